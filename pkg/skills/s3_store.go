package skills

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/config"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

// S3Store keeps skills as <prefix>/<normalized name>.json objects in an
// S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// NewS3Store creates a store from cfg. The bucket is created on first use.
func NewS3Store(cfg config.S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create s3 client")
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key + jsonExt
	}
	return path.Join(s.prefix, key+jsonExt)
}

func (s *S3Store) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// List implements Store
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	const op = "skill.list"
	if err := s.ensureBucket(ctx); err != nil {
		return nil, failure.Wrap(failure.KindPersistence, op, err, "failed to ensure bucket")
	}

	prefix := s.listPrefix()
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, failure.Wrap(failure.KindPersistence, op, obj.Err, "failed to list skills")
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, jsonExt))
	}
	return sortedDisplayNames(keys), nil
}

// Load implements Store
func (s *S3Store) Load(ctx context.Context, name string) (skill.Skill, error) {
	const op = "skill.load"

	key, err := keyFor(op, name)
	if err != nil {
		return skill.Skill{}, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "failed to ensure bucket")
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "failed to get skill object")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return skill.Skill{}, notFound(op, name)
		}
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "failed to read skill object")
	}

	sk, err := DecodeSkill(data)
	if err != nil {
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "corrupt skill object "+s.objectKey(key))
	}
	return sk, nil
}

// Save implements Store
func (s *S3Store) Save(ctx context.Context, sk skill.Skill) (string, error) {
	const op = "skill.save"

	key, err := keyFor(op, sk.SkillName)
	if err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "failed to ensure bucket")
	}

	data, err := EncodeSkill(sk)
	if err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "")
	}

	objectKey := s.objectKey(key)
	location := "s3://" + s.bucket + "/" + objectKey
	if _, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{}); err == nil {
		logger.G(ctx).WithField("skill", sk.SkillName).
			WithField("path", location).
			Warn("overwriting existing skill")
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json; charset=utf-8",
	})
	if err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "failed to put skill object")
	}
	return location, nil
}

// Delete implements Store
func (s *S3Store) Delete(ctx context.Context, name string) error {
	const op = "skill.delete"

	key, err := keyFor(op, name)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return failure.Wrap(failure.KindPersistence, op, err, "failed to ensure bucket")
	}

	objectKey := s.objectKey(key)
	if _, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return notFound(op, name)
		}
		return failure.Wrap(failure.KindPersistence, op, err, "failed to stat skill object")
	}

	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return failure.Wrap(failure.KindPersistence, op, err, "failed to delete skill object")
	}
	return nil
}

// Close implements Store
func (s *S3Store) Close() error {
	return nil
}
