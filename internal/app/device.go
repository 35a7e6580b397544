package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/model"
)

// DeviceAddCommand registers a sync destination.
type DeviceAddCommand struct {
	name    string
	mount   string
	profile string
	env     *env
}

func (c *DeviceAddCommand) Name() string { return "device-add" }

func (c *DeviceAddCommand) Desc() string { return "注册同步目标设备" }

func (c *DeviceAddCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.name, "name", "", "设备名称")
	f.StringVar(&c.mount, "mount", "", "设备挂载目录, 或 s3://bucket/prefix")
	f.StringVar(&c.profile, "profile", "", "设备配置 id")
}

func (c *DeviceAddCommand) PreRun(ctx context.Context) error {
	for flag, v := range map[string]string{"name": c.name, "mount": c.mount, "profile": c.profile} {
		if err := requireFlag("device-add", flag, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *DeviceAddCommand) Run(ctx context.Context) error {
	registry, err := loadRegistry(ctx)
	if err != nil {
		return err
	}
	profile, ok := registry.Resolve(c.profile)
	if !ok {
		return fmt.Errorf("profile %q not found", c.profile)
	}
	dev, err := appdb.DeviceDao.Insert(ctx, model.Device{Name: strings.TrimSpace(c.name), MountPath: strings.TrimSpace(c.mount), ProfileID: profile.ID})
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("device registered",
		zap.Int64("id", dev.ID),
		zap.String("name", dev.Name),
		zap.String("profile", dev.ProfileID),
	)
	return nil
}

func (c *DeviceAddCommand) PostRun(ctx context.Context) error { return c.env.Close() }

// DeviceListCommand prints the registered devices.
type DeviceListCommand struct {
	env *env
}

func (c *DeviceListCommand) Name() string { return "device-list" }

func (c *DeviceListCommand) Desc() string { return "列出已注册的设备" }

func (c *DeviceListCommand) Init(f *pflag.FlagSet) {}

func (c *DeviceListCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *DeviceListCommand) Run(ctx context.Context) error {
	devices, err := appdb.DeviceDao.List(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{strconv.FormatInt(d.ID, 10), d.Name, d.MountPath, d.ProfileID, humanize.Time(time.Unix(d.CreateTime, 0))})
	}
	printTable([]string{"id", "name", "mount", "profile", "added"}, rows, alignRight)
	return nil
}

func (c *DeviceListCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func init() {
	RegisterRunner("device-add", func() IRunner { return &DeviceAddCommand{} })
	RegisterRunner("device-list", func() IRunner { return &DeviceListCommand{} })
}
