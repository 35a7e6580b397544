package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/storage"
	"github.com/xxxsen/romsync/internal/syncer"
)

// SyncCommand copies the tagged part of the catalog to a registered device.
type SyncCommand struct {
	deviceID int64
	tags     []string
	clean    bool
	verify   bool

	env  *env
	lock *flock.Flock
}

func NewSyncCommand() *SyncCommand { return &SyncCommand{} }

func (c *SyncCommand) Name() string { return "sync" }

func (c *SyncCommand) Desc() string {
	return "按设备配置将已打标签的 ROM 同步到设备"
}

func (c *SyncCommand) Init(f *pflag.FlagSet) {
	f.Int64Var(&c.deviceID, "device", 0, "目标设备 id")
	f.StringSliceVar(&c.tags, "tag", nil, "仅同步带有这些标签的 ROM, 为空则同步全部")
	f.BoolVar(&c.clean, "clean", false, "同步前清空设备上对应的系统目录")
	f.BoolVar(&c.verify, "verify", false, "复制后校验文件 crc")
}

func (c *SyncCommand) PreRun(ctx context.Context) error {
	if c.deviceID <= 0 {
		return errors.New("sync requires --device")
	}
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	c.env = e
	c.lock = flock.New(e.cfg.LockFile())
	locked, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another sync is running (lock %s)", e.cfg.LockFile())
	}
	logutil.GetLogger(ctx).Info("starting sync",
		zap.Int64("device", c.deviceID),
		zap.Strings("tags", c.tags),
		zap.Bool("clean", c.clean),
		zap.Bool("verify", c.verify),
	)
	return nil
}

func (c *SyncCommand) Run(ctx context.Context) error {
	tagIDs, err := resolveTagIDs(ctx, c.tags)
	if err != nil {
		return err
	}
	registry, err := loadRegistry(ctx)
	if err != nil {
		return err
	}
	s3cfg := c.env.cfg.S3
	engine := syncer.New(appdb.RomDao, appdb.DeviceDao, registry, func(ctx context.Context, dev model.Device) (storage.Target, error) {
		return storage.Open(ctx, dev.MountPath, s3cfg)
	})
	if interactive(stdout) {
		defer engine.Subscribe(func(st syncer.Status) {
			fmt.Fprintf(stdout, "\r%-9s %3d%% (%d/%d) %s\033[K", st.Phase, st.ProgressPercent, st.FilesProcessed, st.TotalFiles, st.CurrentFile)
		})()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
			logutil.GetLogger(ctx).Warn("interrupt received, stopping after current file")
			engine.Cancel()
		case <-done:
		}
	}()

	st, err := engine.Start(ctx, tagIDs, c.deviceID, syncer.Options{CleanDestination: c.clean, VerifyFiles: c.verify})
	if interactive(stdout) {
		fmt.Fprintln(stdout)
	}
	printSyncStatus(st)
	return err
}

func (c *SyncCommand) PostRun(ctx context.Context) error {
	if c.lock != nil {
		_ = c.lock.Unlock()
	}
	return c.env.Close()
}

func printSyncStatus(st syncer.Status) {
	summary := []string{
		string(st.Phase),
		strconv.Itoa(st.TotalFiles),
		strconv.Itoa(st.FilesCopied),
		strconv.Itoa(len(st.FilesSkipped)),
		strconv.Itoa(len(st.FilesFailed)),
		strconv.FormatBool(st.Cancelled),
	}
	printTable([]string{"phase", "total", "copied", "skipped", "failed", "cancelled"}, [][]string{summary},
		alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft)

	rows := make([][]string, 0, len(st.FilesSkipped)+len(st.FilesFailed))
	for _, s := range st.FilesSkipped {
		rows = append(rows, []string{"skipped", s.File, s.Reason})
	}
	for _, f := range st.FilesFailed {
		rows = append(rows, []string{"failed", f.File, f.Reason})
	}
	printTable([]string{"result", "file", "reason"}, rows)
}

func init() {
	RegisterRunner("sync", func() IRunner { return NewSyncCommand() })
}
