package app

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
)

type ImportCommand struct {
	input string
	env   *env
}

func (c *ImportCommand) Name() string { return "import" }

func (c *ImportCommand) Desc() string {
	return "从导出的压缩包恢复 ROM, 设备与设备配置"
}

func NewImportCommand() *ImportCommand { return &ImportCommand{} }

func (c *ImportCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.input, "file", "", "导入的 tar.gz 文件路径")
}

func (c *ImportCommand) PreRun(ctx context.Context) error {
	if strings.TrimSpace(c.input) == "" {
		return errors.New("import requires --file")
	}
	logutil.GetLogger(ctx).Info("starting import",
		zap.String("file", c.input),
	)
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *ImportCommand) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	f, err := os.Open(c.input)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", c.input, err)
	}
	defer f.Close()
	bundle, err := readBundle(f)
	if err != nil {
		return err
	}

	inserted, duplicated := 0, 0
	for _, rec := range bundle.Records {
		tags := rec.Tags
		rec.ID = 0
		rec.Tags = nil
		stored, err := appdb.RomDao.Insert(ctx, rec)
		if errors.Is(err, appdb.ErrDuplicateContent) {
			duplicated++
			continue
		}
		if err != nil {
			return err
		}
		for _, name := range tags {
			tag, err := appdb.TagDao.Ensure(ctx, name)
			if err != nil {
				return err
			}
			if err := appdb.TagDao.Attach(ctx, stored.ID, tag.ID); err != nil {
				return err
			}
		}
		inserted++
	}

	devices, err := restoreDevices(ctx, bundle)
	if err != nil {
		return err
	}
	profiles, err := restoreProfiles(ctx, bundle)
	if err != nil {
		return err
	}

	logger.Info("import completed",
		zap.Int("records", len(bundle.Records)),
		zap.Int("inserted", inserted),
		zap.Int("duplicated", duplicated),
		zap.Int("devices", devices),
		zap.Int("profiles", profiles),
	)
	return nil
}

func (c *ImportCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func restoreDevices(ctx context.Context, bundle *catalogBundle) (int, error) {
	existing, err := appdb.DeviceDao.List(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]struct{}, len(existing))
	for _, d := range existing {
		names[d.Name] = struct{}{}
	}
	restored := 0
	for _, d := range bundle.Devices {
		if _, ok := names[d.Name]; ok {
			continue
		}
		d.ID = 0
		if _, err := appdb.DeviceDao.Insert(ctx, d); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

func restoreProfiles(ctx context.Context, bundle *catalogBundle) (int, error) {
	existing, err := appdb.ProfileDao.List(ctx)
	if err != nil {
		return 0, err
	}
	ids := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		ids[p.ID] = struct{}{}
	}
	restored := 0
	for _, p := range bundle.Profiles {
		if _, ok := ids[p.ID]; ok {
			continue
		}
		if err := appdb.ProfileDao.Insert(ctx, p); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

func readBundle(r io.Reader) (*catalogBundle, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	bundle := &catalogBundle{}
	seen := false
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		var target interface{}
		switch path.Clean(header.Name) {
		case bundleCatalogFile:
			target = &bundle.Records
			seen = true
		case bundleDevicesFile:
			target = &bundle.Devices
		case bundleProfilesFile:
			target = &bundle.Profiles
		default:
			continue
		}
		if err := json.NewDecoder(tr).Decode(target); err != nil {
			return nil, fmt.Errorf("parse %s: %w", header.Name, err)
		}
	}
	if !seen {
		return nil, fmt.Errorf("archive has no %s", bundleCatalogFile)
	}
	return bundle, nil
}

func init() {
	RegisterRunner("import", func() IRunner { return NewImportCommand() })
}
