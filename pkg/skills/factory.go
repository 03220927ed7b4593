package skills

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/config"
)

// NewStore creates the store selected by cfg.Type
func NewStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case config.StoreJSON, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "skills"
		}
		return NewJSONStore(dir)
	case config.StoreSQLite:
		if cfg.DBPath == "" {
			path, err := config.DefaultDBPath()
			if err != nil {
				return nil, err
			}
			cfg.DBPath = path
		}
		return NewSQLiteStore(ctx, cfg.DBPath)
	case config.StoreS3:
		return NewS3Store(cfg.S3)
	default:
		return nil, errors.Errorf("unsupported skill store type: %s", cfg.Type)
	}
}
