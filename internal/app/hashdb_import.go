package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/config"
	"github.com/xxxsen/romsync/internal/dat"
	"github.com/xxxsen/romsync/internal/hashdb"
	"github.com/xxxsen/romsync/internal/system"
)

// HashDBImportCommand merges a DAT into the identification table of one system.
type HashDBImportCommand struct {
	datPath string
	code    string
	cfg     *config.Config
}

func (c *HashDBImportCommand) Name() string { return "hashdb-import" }

func (c *HashDBImportCommand) Desc() string { return "从 dat 文件导入识别哈希表" }

func (c *HashDBImportCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.datPath, "dat", "", "dat 文件路径")
	f.StringVar(&c.code, "system", "", "系统代码, 如 snes/gba/arcade")
}

func (c *HashDBImportCommand) PreRun(ctx context.Context) error {
	if err := requireFlag("hashdb-import", "dat", strings.TrimSpace(c.datPath)); err != nil {
		return err
	}
	if err := requireFlag("hashdb-import", "system", strings.TrimSpace(c.code)); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *HashDBImportCommand) Run(ctx context.Context) error {
	sys, ok := system.Lookup(system.Code(strings.ToLower(strings.TrimSpace(c.code))))
	if !ok {
		return fmt.Errorf("unknown system %q", c.code)
	}
	if sys.ConsoleID == 0 {
		return fmt.Errorf("system %s has no identification table", sys.Code)
	}
	df, err := dat.NewParser().ParseFile(c.datPath)
	if err != nil {
		return err
	}
	n, err := hashdb.ImportDAT(c.cfg.HashDBDir, sys.ConsoleID, sys.Kind, df)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("hash table updated",
		zap.String("system", string(sys.Code)),
		zap.Int("console_id", sys.ConsoleID),
		zap.Int("entries", n),
		zap.String("dat", df.Header.Name),
	)
	return nil
}

func (c *HashDBImportCommand) PostRun(ctx context.Context) error { return nil }

func init() {
	RegisterRunner("hashdb-import", func() IRunner { return &HashDBImportCommand{} })
}
