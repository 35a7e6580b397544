package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/system"
)

type MaintainDBCommand struct {
	dryRun bool
	env    *env
}

func NewMaintainDBCommand() *MaintainDBCommand {
	return &MaintainDBCommand{
		dryRun: true,
	}
}

func (c *MaintainDBCommand) Name() string { return "maintain-db" }

func (c *MaintainDBCommand) Desc() string {
	return "清理数据库中文件已丢失或不合法的 ROM 记录"
}

func (c *MaintainDBCommand) Init(f *pflag.FlagSet) {
	f.BoolVar(&c.dryRun, "dryrun", true, "是否只是演练（默认 true）")
}

func (c *MaintainDBCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *MaintainDBCommand) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	records, err := appdb.RomDao.List(ctx)
	if err != nil {
		return err
	}

	var deleteList []int64
	for _, rec := range records {
		reasons := findInvalidReasons(rec)
		if len(reasons) == 0 {
			continue
		}
		logger.Warn("invalid catalog record",
			zap.Int64("id", rec.ID),
			zap.String("file", rec.FilePath),
			zap.Strings("reasons", reasons),
		)
		deleteList = append(deleteList, rec.ID)
	}

	if !c.dryRun && len(deleteList) > 0 {
		const chunkSize = 200
		for start := 0; start < len(deleteList); start += chunkSize {
			end := start + chunkSize
			if end > len(deleteList) {
				end = len(deleteList)
			}
			if err := appdb.RomDao.Remove(ctx, deleteList[start:end]); err != nil {
				return fmt.Errorf("delete invalid records: %w", err)
			}
		}
		logger.Info("invalid records deleted", zap.Int("count", len(deleteList)))
	}

	if err := c.cleanupDigestCache(ctx); err != nil {
		return err
	}

	logger.Info("maintain-db completed",
		zap.Int("invalid_records", len(deleteList)),
		zap.Bool("dry_run", c.dryRun),
	)
	return nil
}

func (c *MaintainDBCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func findInvalidReasons(rec model.CatalogRecord) []string {
	var reasons []string
	if strings.TrimSpace(rec.DisplayName) == "" {
		reasons = append(reasons, "empty name")
	}
	if !system.IsKnown(system.Code(rec.SystemCode)) {
		reasons = append(reasons, "unknown system "+rec.SystemCode)
	}
	if rec.Size == 0 {
		reasons = append(reasons, "size=0")
	}
	if _, err := os.Stat(rec.FilePath); errors.Is(err, os.ErrNotExist) {
		reasons = append(reasons, "file missing")
	}
	return reasons
}

func (c *MaintainDBCommand) cleanupDigestCache(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	missing := 0
	keep := func(location string) bool {
		_, err := os.Stat(location)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("digest cache target missing", zap.String("location", location))
			missing++
			return false
		}
		return true
	}
	if c.dryRun {
		// Prune with a keep-all filter still walks the table
		_, err := appdb.DigestCacheDao.Prune(ctx, func(location string) bool {
			keep(location)
			return true
		})
		if err != nil {
			return err
		}
		logger.Info("digest cache entries missing (dryrun)", zap.Int("count", missing))
		return nil
	}
	deleted, err := appdb.DigestCacheDao.Prune(ctx, keep)
	if err != nil {
		return err
	}
	logger.Info("digest cache entries deleted", zap.Int("count", deleted))
	return nil
}

func init() {
	RegisterRunner("maintain-db", func() IRunner { return NewMaintainDBCommand() })
}
