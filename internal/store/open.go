package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/config"
)

const boltFileName = "media.db"

// Open builds the Store for the configured backend.
func Open(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Store, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	var (
		index Index
		err   error
	)

	switch cfg.StorageBackend {
	case config.BackendMongo:
		index, err = OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	case config.BackendPostgres:
		index, err = OpenPostgres(ctx, cfg.DatabaseURL)
	case config.BackendBolt, "":
		index, err = OpenBolt(filepath.Join(cfg.StorageDir, boltFileName))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, err
	}

	s, err := New(index, cfg.StorageDir, logger)
	if err != nil {
		_ = index.Close(ctx)
		return nil, err
	}
	return s, nil
}
