package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/archive"
	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/hashdb"
	"github.com/xxxsen/romsync/internal/importer"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/naming"
	"github.com/xxxsen/romsync/internal/system"
)

// CorrectRegionsCommand re-derives the region of every record from its filename.
type CorrectRegionsCommand struct {
	dryRun bool
	env    *env
}

func (c *CorrectRegionsCommand) Name() string { return "correct-regions" }

func (c *CorrectRegionsCommand) Desc() string { return "根据文件名重新识别 ROM 的地区" }

func (c *CorrectRegionsCommand) Init(f *pflag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "仅输出将要修改的记录")
}

func (c *CorrectRegionsCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *CorrectRegionsCommand) Run(ctx context.Context) error {
	records, err := appdb.RomDao.List(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0)
	for _, rec := range records {
		region := recordRegion(rec)
		if region == rec.Region {
			continue
		}
		rows = append(rows, []string{strconv.FormatInt(rec.ID, 10), rec.RomFileName, string(rec.Region), string(region)})
		if c.dryRun {
			continue
		}
		if err := appdb.RomDao.Update(ctx, rec.ID, model.RecordPatch{Region: &region}); err != nil {
			return fmt.Errorf("update region of rom %d: %w", rec.ID, err)
		}
	}
	printTable([]string{"id", "file", "old", "new"}, rows, alignRight)
	logutil.GetLogger(ctx).Info("region correction finished",
		zap.Int("records", len(records)),
		zap.Int("changed", len(rows)),
		zap.Bool("dry_run", c.dryRun),
	)
	return nil
}

func (c *CorrectRegionsCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func recordRegion(rec model.CatalogRecord) model.Region {
	region := naming.DetectRegion(rec.RomFileName)
	if region == model.RegionUnknown {
		region = naming.DetectRegion(rec.FileName)
	}
	return region
}

// RehashCommand re-identifies every record against the current hash table.
type RehashCommand struct {
	env *env
}

func (c *RehashCommand) Name() string { return "rehash" }

func (c *RehashCommand) Desc() string { return "使用当前哈希表重新识别数据库中的 ROM" }

func (c *RehashCommand) Init(f *pflag.FlagSet) {}

func (c *RehashCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *RehashCommand) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	table, err := hashdb.Open(c.env.cfg.HashDBDir, c.env.cfg.HashCacheSize)
	if err != nil {
		return err
	}
	if err := table.Load(ctx); err != nil {
		return err
	}
	defer table.Unload()
	extractor, err := c.env.extractor()
	if err != nil {
		return err
	}
	pipeline := importer.NewPipeline(appdb.RomDao, table)

	records, err := appdb.RomDao.List(ctx)
	if err != nil {
		return err
	}
	var (
		errs    error
		changed int
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readRecordPayload(ctx, extractor, rec)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rom %d: %w", rec.ID, err))
			continue
		}
		id, err := pipeline.Identify(ctx, rec.RomFileName, data)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rom %d: %w", rec.ID, err))
			continue
		}
		if id.ContentDigest != rec.Hashes.ContentDigest {
			logger.Warn("rom content changed on disk, rescan required",
				zap.Int64("id", rec.ID),
				zap.String("file", rec.FilePath),
			)
			continue
		}
		patch, ok := rehashPatch(rec, id)
		if !ok {
			continue
		}
		if err := appdb.RomDao.Update(ctx, rec.ID, patch); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		changed++
	}
	logger.Info("rehash finished",
		zap.Int("records", len(records)),
		zap.Int("changed", changed),
		zap.Int("failed", len(multierr.Errors(errs))),
	)
	return errs
}

func (c *RehashCommand) PostRun(ctx context.Context) error { return c.env.Close() }

// rehashPatch returns the fields that differ between rec and a fresh identity.
func rehashPatch(rec model.CatalogRecord, id importer.Identity) (model.RecordPatch, bool) {
	var (
		patch model.RecordPatch
		dirty bool
	)
	if id.IdentificationDigest != rec.Hashes.IdentificationDigest {
		digest := id.IdentificationDigest
		patch.IdentificationDigest = &digest
		dirty = true
	}
	if id.Verified != rec.Verified {
		verified := id.Verified
		patch.Verified = &verified
		dirty = true
	}
	if id.Verified && id.Title != "" && id.Title != rec.DisplayName {
		title := id.Title
		sortName := naming.SortKey(title)
		patch.DisplayName = &title
		patch.SortName = &sortName
		dirty = true
	}
	return patch, dirty
}

// readRecordPayload loads the ROM bytes a record was cataloged from.
func readRecordPayload(ctx context.Context, ex *archive.Extractor, rec model.CatalogRecord) ([]byte, error) {
	if system.IsArchiveExt(filepath.Ext(rec.FilePath)) {
		payload, err := ex.ExtractSingleRom(ctx, rec.FilePath, archive.KindFromPath(rec.FilePath))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			return payload.Data, nil
		}
	}
	data, err := os.ReadFile(rec.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file %s is gone", rec.FilePath)
	}
	return data, err
}

func init() {
	RegisterRunner("correct-regions", func() IRunner { return &CorrectRegionsCommand{} })
	RegisterRunner("rehash", func() IRunner { return &RehashCommand{} })
}
