package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/config"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

func sampleSkill(name string) skill.Skill {
	return skill.Skill{
		SkillName:    name,
		Description:  "Summarise <the> week & more",
		Version:      skill.Version,
		CreatedAt:    time.Date(2025, 3, 3, 21, 6, 7, 0, time.UTC),
		SystemPrompt: "你是周报助手。Follow the steps.",
		InputParams: []skill.Param{
			{Name: "notes", Description: "raw notes", Type: "string", Required: true, Example: "shipped"},
		},
		OutputFormat: skill.OutputFormat{
			Description: "report",
			Fields:      []skill.Field{{Name: "summary", Description: "one paragraph"}},
		},
		SourceSOP: sampleSOP(),
	}
}

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"json": func(t *testing.T) Store {
			s, err := NewJSONStore(filepath.Join(t.TempDir(), "skills"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "skills.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			cases := map[string]skill.Skill{
				"full": sampleSkill("Weekly report"),
				"empty schema": {
					SkillName:    "Bare skill",
					Version:      skill.Version,
					CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
					SystemPrompt: "do it",
					SourceSOP:    sampleSOP(),
				},
			}
			for label, sk := range cases {
				location, err := store.Save(ctx, sk)
				require.NoError(t, err, label)
				assert.NotEmpty(t, location)

				loaded, err := store.Load(ctx, sk.SkillName)
				require.NoError(t, err, label)
				assert.Equal(t, sk, loaded, label)
			}

			names, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Bare skill", "Weekly report"}, names)
		})
	}
}

func TestStoreOverwriteAndDelete(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			first := sampleSkill("Weekly report")
			_, err := store.Save(ctx, first)
			require.NoError(t, err)

			second := sampleSkill("Weekly/report")
			second.SystemPrompt = "replacement"
			_, err = store.Save(ctx, second)
			require.NoError(t, err)

			names, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Weekly report"}, names, "colliding names overwrite")

			loaded, err := store.Load(ctx, "Weekly report")
			require.NoError(t, err)
			assert.Equal(t, "replacement", loaded.SystemPrompt)

			loaded, err = store.Load(ctx, "Weekly_report")
			require.NoError(t, err)
			assert.Equal(t, "replacement", loaded.SystemPrompt)

			require.NoError(t, store.Delete(ctx, "Weekly report"))
			_, err = store.Load(ctx, "Weekly report")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.True(t, failure.Is(err, failure.KindPersistence))

			err = store.Delete(ctx, "Weekly report")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreRejectsBlankName(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			_, err := store.Save(context.Background(), skill.Skill{SkillName: "  ", SystemPrompt: "x"})
			assert.True(t, failure.Is(err, failure.KindValidation))
			_, err = store.Load(context.Background(), "")
			assert.True(t, failure.Is(err, failure.KindValidation))
		})
	}
}

func TestJSONStoreFileFormat(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	path, err := store.Save(context.Background(), sampleSkill("Weekly report"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Weekly_report.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "\n  \"skill_name\": \"Weekly report\"")
	assert.Contains(t, content, "Summarise <the> week & more")
	assert.Contains(t, content, "你是周报助手")
	assert.Contains(t, content, "\"source_sop\": {")


	short := sampleSkill("Weekly report")
	short.SystemPrompt = "short"
	short.SourceSOP.Steps = nil
	_, err = store.Save(context.Background(), short)
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), "Weekly report")
	require.NoError(t, err)
	assert.Equal(t, "short", loaded.SystemPrompt)
}

func TestJSONStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Empty.json"), []byte(`{"skill_name":"Empty"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Broken", "Empty"}, names)

	for _, name := range names {
		_, err = store.Load(context.Background(), name)
		require.Error(t, err)
		assert.True(t, failure.Is(err, failure.KindPersistence))
		assert.NotErrorIs(t, err, ErrNotFound)
	}
}

func TestNormalizeAndDisplayName(t *testing.T) {
	tests := []struct {
		in, key, display string
	}{
		{"Weekly report", "Weekly_report", "Weekly report"},
		{"a/b\\c", "a_b_c", "a b c"},
		{" tabs\tand\nlines ", "tabs_and_lines", "tabs and lines"},
		{"小红书 笔记", "小红书_笔记", "小红书 笔记"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.key, NormalizeName(tt.in))
		assert.Equal(t, tt.display, DisplayName(NormalizeName(tt.in)))
	}
}

func TestFilterNames(t *testing.T) {
	names := []string{"Weekly report", "Monthly report", "Blog post"}

	got, err := FilterNames(names, "*report")
	require.NoError(t, err)
	assert.Equal(t, []string{"Weekly report", "Monthly report"}, got)

	got, err = FilterNames(names, "blog*")
	require.NoError(t, err)
	assert.Equal(t, []string{"Blog post"}, got)

	got, err = FilterNames(names, "")
	require.NoError(t, err)
	assert.Equal(t, names, got)

	_, err = FilterNames(names, "[")
	assert.True(t, failure.Is(err, failure.KindValidation))
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, config.StoreConfig{Type: config.StoreJSON, Dir: filepath.Join(t.TempDir(), "s")})
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	s, err = NewStore(ctx, config.StoreConfig{Type: config.StoreSQLite, DBPath: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = NewStore(ctx, config.StoreConfig{Type: config.StoreS3, S3: config.S3Config{
		Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "skills", Prefix: "/team/",
	}})
	require.NoError(t, err)
	s3 := s.(*S3Store)
	assert.Equal(t, "team/Weekly_report.json", s3.objectKey("Weekly_report"))
	assert.Equal(t, "team/", s3.listPrefix())

	_, err = NewStore(ctx, config.StoreConfig{Type: "ftp"})
	assert.ErrorContains(t, err, "unsupported skill store type")
}

func TestNewS3StoreValidation(t *testing.T) {
	_, err := NewS3Store(config.S3Config{})
	assert.ErrorContains(t, err, "endpoint is required")
	_, err = NewS3Store(config.S3Config{Endpoint: "localhost:9000"})
	assert.ErrorContains(t, err, "access key and secret key are required")
	_, err = NewS3Store(config.S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.ErrorContains(t, err, "bucket is required")
}

func TestCompiledSkillRoundTrip(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			fake := completion.NewFakeClient().
				When(completion.TextRequest, "prompt").
				When(completion.JSONRequest, `{"input_params":[],"output_format":{"description":"d","fields":[]}}`)
			sk, err := newCompiler(fake).Compile(ctx, sampleSOP())
			require.NoError(t, err)
			assert.Nil(t, sk.InputParams)
			assert.Nil(t, sk.OutputFormat.Fields)

			_, err = store.Save(ctx, sk)
			require.NoError(t, err)
			loaded, err := store.Load(ctx, sk.SkillName)
			require.NoError(t, err)
			assert.Equal(t, sk, loaded)
		})
	}
}
