package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/archive"
	"github.com/xxxsen/romsync/internal/dat"
)

// RomTestCommand checks an arcade set archive against a DAT.
type RomTestCommand struct {
	datPath  string
	filePath string
}

func NewRomTestCommand() *RomTestCommand {
	return &RomTestCommand{}
}

func (c *RomTestCommand) Name() string { return "rom-test" }

func (c *RomTestCommand) Desc() string {
	return "检查压缩包中的 ROM 是否符合 dat 描述"
}

func (c *RomTestCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.datPath, "dat", "", "dat 文件路径")
	f.StringVar(&c.filePath, "file", "", "待验证的压缩包文件路径 (zip/7z)")
}

func (c *RomTestCommand) PreRun(ctx context.Context) error {
	if strings.TrimSpace(c.datPath) == "" {
		return errors.New("rom-test requires --dat")
	}
	if strings.TrimSpace(c.filePath) == "" {
		return errors.New("rom-test requires --file")
	}
	logutil.GetLogger(ctx).Info("starting rom-test",
		zap.String("dat", c.datPath),
		zap.String("file", c.filePath),
	)
	return nil
}

func (c *RomTestCommand) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)

	df, err := dat.NewParser().ParseFile(c.datPath)
	if err != nil {
		return err
	}
	setName := deriveSetName(c.filePath)
	game := df.FindGame(setName)
	if game == nil {
		return fmt.Errorf("set %s not found in dat", setName)
	}

	entries, err := readArchiveEntries(c.filePath)
	if err != nil {
		return err
	}
	issues := dat.CheckArchive(game, entries)
	if len(issues) == 0 {
		logger.Info("rom check passed",
			zap.String("set", setName),
			zap.Int("rom_count", len(game.Roms)),
			zap.String("file", c.filePath),
		)
		return nil
	}
	for _, issue := range issues {
		logger.Error("rom check failed", zap.String("issue", issue))
	}
	return fmt.Errorf("rom check found %d issue(s) for %s", len(issues), setName)
}

func (c *RomTestCommand) PostRun(ctx context.Context) error { return nil }

func init() {
	RegisterRunner("rom-test", func() IRunner { return NewRomTestCommand() })
}

func deriveSetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// readArchiveEntries lists the file entries of a zip or 7z archive.
func readArchiveEntries(path string) ([]dat.ArchiveEntry, error) {
	switch archive.KindFromPath(path) {
	case archive.KindZip:
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("open archive %s: %w", path, err)
		}
		defer zr.Close()
		entries := make([]dat.ArchiveEntry, 0, len(zr.File))
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			entries = append(entries, dat.ArchiveEntry{Name: f.Name, Size: int64(f.UncompressedSize64), CRC32: f.CRC32})
		}
		return entries, nil
	case archive.KindSevenZip:
		sr, err := sevenzip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("open archive %s: %w", path, err)
		}
		defer sr.Close()
		entries := make([]dat.ArchiveEntry, 0, len(sr.File))
		for _, f := range sr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			entries = append(entries, dat.ArchiveEntry{Name: f.Name, Size: int64(f.UncompressedSize), CRC32: f.CRC32})
		}
		return entries, nil
	}
	return nil, fmt.Errorf("unsupported archive %s", path)
}
