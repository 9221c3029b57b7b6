package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Sn0wAlice/rpi-os-flash/internal/config"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/db"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	appfsm "github.com/Sn0wAlice/rpi-os-flash/pkg/fsm"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
	"github.com/superfly/fsm"
)

// loadConfig loads and validates the configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	if logLevel != nil {
		level, _ := cfg.Level()
		logLevel.Set(level)
	}
	return cfg, nil
}

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, cacheDir string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM database directory (only needed when downloading)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create cache directory")
		}
	}

	return nil
}

// newFetcher builds the scheme router used for the catalog and image downloads.
// s3:// URLs are rejected when no S3 client can be configured.
func newFetcher(ctx context.Context, cfg *config.Config) *storage.Router {
	router := &storage.Router{
		HTTP: storage.NewHTTPFetcher(nil, 0),
	}

	s3Client, err := storage.NewS3Client(ctx, cfg.S3Region)
	if err != nil {
		slog.Warn("s3_client_unavailable", "region", cfg.S3Region, "error", err)
		return router
	}
	router.S3 = s3Client
	return router
}

func openRepository(cfg *config.Config) (*db.Repository, error) {
	if err := ensureDirectories(cfg.SQLitePath, "", cfg.CacheDir); err != nil {
		return nil, err
	}
	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	return repo, nil
}

// materializer wires the download workflow. The returned func shuts the FSM
// manager down.
func newMaterializer(ctx context.Context, cfg *config.Config, repo *db.Repository, cache *storage.Cache, fetcher storage.Fetcher) (*appfsm.Materializer, func(), error) {
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.CacheDir); err != nil {
		return nil, nil, err
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return nil, nil, errors.Wrap(err, "FSM manager failed")
	}
	shutdown := func() { manager.Shutdown(10 * time.Second) }

	machine := appfsm.NewMachine(repo, cache, fetcher, cfg.FSMMaxRetries)
	m, err := appfsm.NewMaterializer(ctx, manager, machine)
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return m, shutdown, nil
}
