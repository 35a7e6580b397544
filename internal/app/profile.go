package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/device"
)

// ProfileImportCommand validates and stores a user supplied device profile.
type ProfileImportCommand struct {
	file string
	env  *env
}

func (c *ProfileImportCommand) Name() string { return "profile-import" }

func (c *ProfileImportCommand) Desc() string { return "导入自定义设备配置 (json)" }

func (c *ProfileImportCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.file, "file", "", "设备配置 json 文件路径")
}

func (c *ProfileImportCommand) PreRun(ctx context.Context) error {
	if err := requireFlag("profile-import", "file", strings.TrimSpace(c.file)); err != nil {
		return err
	}
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	c.env = e
	return nil
}

func (c *ProfileImportCommand) Run(ctx context.Context) error {
	data, err := os.ReadFile(c.file)
	if err != nil {
		return fmt.Errorf("read profile %s: %w", c.file, err)
	}
	draft, err := device.ParseDraft(data)
	if err != nil {
		return err
	}
	registry, err := loadRegistry(ctx)
	if err != nil {
		return err
	}
	if err := device.Validate(draft, registry.List()); err != nil {
		return fmt.Errorf("invalid profile %s: %w", c.file, err)
	}
	if err := appdb.ProfileDao.Insert(ctx, appdb.StoredProfile{ID: draft.ID, Name: draft.Name, Content: string(data)}); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("profile imported",
		zap.String("id", draft.ID),
		zap.String("name", draft.Name),
		zap.Int("systems", len(draft.Systems)),
	)
	return nil
}

func (c *ProfileImportCommand) PostRun(ctx context.Context) error { return c.env.Close() }

// ProfileListCommand prints built-in and stored profiles.
type ProfileListCommand struct {
	env *env
}

func (c *ProfileListCommand) Name() string { return "profile-list" }

func (c *ProfileListCommand) Desc() string { return "列出所有设备配置" }

func (c *ProfileListCommand) Init(f *pflag.FlagSet) {}

func (c *ProfileListCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *ProfileListCommand) Run(ctx context.Context) error {
	registry, err := loadRegistry(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0)
	for _, p := range registry.List() {
		codes := make([]string, 0, len(p.Systems))
		for _, code := range p.Codes() {
			codes = append(codes, string(code))
		}
		rows = append(rows, []string{p.ID, p.Name, p.BasePath, strconv.FormatBool(p.BuiltIn), strconv.Itoa(len(codes)), strings.Join(codes, ",")})
	}
	printTable([]string{"id", "name", "base", "built-in", "systems", "codes"}, rows)
	return nil
}

func (c *ProfileListCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func init() {
	RegisterRunner("profile-import", func() IRunner { return &ProfileImportCommand{} })
	RegisterRunner("profile-list", func() IRunner { return &ProfileListCommand{} })
}
