package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/hashdb"
	"github.com/xxxsen/romsync/internal/importer"
	"github.com/xxxsen/romsync/internal/scanner"
)

// ScanCommand imports every ROM below a directory into the catalog.
type ScanCommand struct {
	dir string
	env *env
}

func NewScanCommand() *ScanCommand { return &ScanCommand{} }

func (c *ScanCommand) Name() string { return "scan" }

func (c *ScanCommand) Desc() string {
	return "扫描目录, 识别 ROM 并导入数据库"
}

func (c *ScanCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.dir, "dir", "", "待扫描的 ROM 目录")
}

func (c *ScanCommand) PreRun(ctx context.Context) error {
	if err := requireFlag("scan", "dir", strings.TrimSpace(c.dir)); err != nil {
		return err
	}
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	c.env = e
	logutil.GetLogger(ctx).Info("starting scan", zap.String("dir", c.dir))
	return nil
}

func (c *ScanCommand) Run(ctx context.Context) error {
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
	pipeline := importer.NewPipeline(appdb.RomDao, table, importer.WithDigestCache(appdb.DigestCacheDao))
	opts := []scanner.Option{scanner.WithExtractor(extractor)}
	if interactive(stdout) {
		opts = append(opts, scanner.WithProgress(func(ev scanner.Event) {
			fmt.Fprintf(stdout, "\r[%d] %-8s %s\033[K", ev.Processed, ev.Outcome, ev.Path)
		}))
	}

	res, err := scanner.New(pipeline, opts...).Scan(ctx, c.dir)
	if interactive(stdout) {
		fmt.Fprintln(stdout)
	}
	if res != nil {
		printScanResult(res)
	}
	return err
}

func (c *ScanCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func printScanResult(res *scanner.Result) {
	printTable([]string{"processed", "imported", "skipped", "failed"}, [][]string{{
		strconv.Itoa(res.Processed),
		strconv.Itoa(len(res.Imported)),
		strconv.Itoa(len(res.Skipped)),
		strconv.Itoa(len(res.Errors)),
	}}, alignRight, alignRight, alignRight, alignRight)

	rows := make([][]string, 0, len(res.Errors))
	for _, err := range res.Errors {
		var perr *importer.RomProcessingError
		if errors.As(err, &perr) {
			cause := ""
			if perr.Cause != nil {
				cause = perr.Cause.Error()
			}
			rows = append(rows, []string{perr.File, perr.Reason, cause})
			continue
		}
		rows = append(rows, []string{"", "", err.Error()})
	}
	printTable([]string{"file", "reason", "detail"}, rows)
}

func init() {
	RegisterRunner("scan", func() IRunner { return NewScanCommand() })
}
