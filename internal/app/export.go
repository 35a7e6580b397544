package app

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/model"
)

const (
	bundleCatalogFile  = "catalog.json"
	bundleDevicesFile  = "devices.json"
	bundleProfilesFile = "profiles.json"
)

// catalogBundle is the content of an export archive.
type catalogBundle struct {
	Records  []model.CatalogRecord `json:"records"`
	Devices  []model.Device        `json:"devices"`
	Profiles []appdb.StoredProfile `json:"profiles"`
}

type ExportCommand struct {
	output string
	env    *env
}

func (c *ExportCommand) Name() string { return "export" }

func (c *ExportCommand) Desc() string {
	return "导出数据库中的 ROM, 设备与设备配置为 tar.gz 包"
}

func NewExportCommand() *ExportCommand { return &ExportCommand{} }

func (c *ExportCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.output, "out", "", "导出的 tar.gz 文件路径")
}

func (c *ExportCommand) PreRun(ctx context.Context) error {
	if strings.TrimSpace(c.output) == "" {
		return errors.New("export requires --out")
	}
	logutil.GetLogger(ctx).Info("starting export",
		zap.String("out", c.output),
	)
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *ExportCommand) Run(ctx context.Context) error {
	var (
		bundle catalogBundle
		err    error
	)
	if bundle.Records, err = appdb.RomDao.List(ctx); err != nil {
		return err
	}
	if bundle.Devices, err = appdb.DeviceDao.List(ctx); err != nil {
		return err
	}
	if bundle.Profiles, err = appdb.ProfileDao.List(ctx); err != nil {
		return err
	}

	f, err := os.Create(c.output)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", c.output, err)
	}
	if err := writeBundle(f, bundle); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logutil.GetLogger(ctx).Info("export completed",
		zap.Int("records", len(bundle.Records)),
		zap.Int("devices", len(bundle.Devices)),
		zap.Int("profiles", len(bundle.Profiles)),
		zap.String("output", c.output),
	)
	return nil
}

func (c *ExportCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func writeBundle(w io.Writer, bundle catalogBundle) error {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)
	now := time.Now()

	files := []struct {
		name string
		v    interface{}
	}{
		{bundleCatalogFile, bundle.Records},
		{bundleDevicesFile, bundle.Devices},
		{bundleProfilesFile, bundle.Profiles},
	}
	for _, file := range files {
		data, err := json.MarshalIndent(file.v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", file.name, err)
		}
		header := &tar.Header{
			Name:     file.name,
			Mode:     0o644,
			Size:     int64(len(data)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gzw.Close()
}

func init() {
	RegisterRunner("export", func() IRunner { return NewExportCommand() })
}
