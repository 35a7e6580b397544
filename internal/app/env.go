package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/archive"
	"github.com/xxxsen/romsync/internal/config"
	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/device"
	"github.com/xxxsen/romsync/internal/scanner"
)

var defaultConfigPaths = []string{
	"./romsync.json",
	"./romsync.toml",
	"/etc/romsync.json",
}

var configPath string

// SetConfigPath sets the explicit config file tried before the default locations.
func SetConfigPath(path string) {
	configPath = path
}

// env is what most runners need: the loaded config and an open catalog.
type env struct {
	cfg *config.Config
	db  database.IDatabase
}

// loadConfig reads the first config found and reinitialises logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFirst(append([]string{configPath}, defaultConfigPaths...)...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.File, cfg.Log.Level, cfg.Log.MaxRotate, cfg.Log.MaxSize, cfg.Log.MaxKeepDays, cfg.Log.Console)
	return cfg, nil
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := appdb.Open(ctx, cfg.DBFile)
	if err != nil {
		return nil, err
	}
	appdb.SetDefault(db)
	logutil.GetLogger(ctx).Debug("catalog opened", zap.String("db", cfg.DBFile))
	return &env{cfg: cfg, db: db}, nil
}

func (e *env) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	appdb.SetDefault(nil)
	return e.db.Close()
}

func (e *env) extractor() (*archive.Extractor, error) {
	tmp := filepath.Join(e.cfg.DataDir, "tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("ensure temp dir %s: %w", tmp, err)
	}
	return archive.NewExtractor(scanner.IsInnerRom, archive.WithTempRoot(tmp)), nil
}

// loadRegistry merges the built-in profiles with the ones stored in the catalog.
func loadRegistry(ctx context.Context) (*device.Registry, error) {
	stored, err := appdb.ProfileDao.List(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]device.Profile, 0, len(stored))
	for _, sp := range stored {
		p, err := device.ParseDraft([]byte(sp.Content))
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip unreadable stored profile", zap.String("id", sp.ID), zap.Error(err))
			continue
		}
		p.ID = sp.ID
		profiles = append(profiles, p)
	}
	return device.NewRegistry(profiles...), nil
}

func requireFlag(runner, flag, value string) error {
	if value == "" {
		return errors.New(runner + " requires --" + flag)
	}
	return nil
}
