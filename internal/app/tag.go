package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
)

// TagCommand attaches or detaches a tag on catalog records.
type TagCommand struct {
	romIDs []int64
	tag    string
	remove bool
	env    *env
}

func (c *TagCommand) Name() string { return "tag" }

func (c *TagCommand) Desc() string { return "为 ROM 添加或移除标签" }

func (c *TagCommand) Init(f *pflag.FlagSet) {
	f.Int64SliceVar(&c.romIDs, "rom-id", nil, "ROM id, 可重复")
	f.StringVar(&c.tag, "tag", "", "标签名")
	f.BoolVar(&c.remove, "remove", false, "移除标签而不是添加")
}

func (c *TagCommand) PreRun(ctx context.Context) error {
	if err := requireFlag("tag", "tag", strings.TrimSpace(c.tag)); err != nil {
		return err
	}
	if len(c.romIDs) == 0 {
		return fmt.Errorf("tag requires --rom-id")
	}
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *TagCommand) Run(ctx context.Context) error {
	tag, err := appdb.TagDao.Ensure(ctx, c.tag)
	if err != nil {
		return err
	}
	for _, id := range c.romIDs {
		if _, err := appdb.RomDao.Get(ctx, id); err != nil {
			return fmt.Errorf("rom %d: %w", id, err)
		}
		if c.remove {
			err = appdb.TagDao.Detach(ctx, id, tag.ID)
		} else {
			err = appdb.TagDao.Attach(ctx, id, tag.ID)
		}
		if err != nil {
			return err
		}
	}
	logutil.GetLogger(ctx).Info("tag updated",
		zap.String("tag", tag.Name),
		zap.Bool("remove", c.remove),
		zap.Int64s("rom_ids", c.romIDs),
	)
	return nil
}

func (c *TagCommand) PostRun(ctx context.Context) error { return c.env.Close() }

// TagListCommand prints every tag.
type TagListCommand struct {
	env *env
}

func (c *TagListCommand) Name() string { return "tag-list" }

func (c *TagListCommand) Desc() string { return "列出所有标签" }

func (c *TagListCommand) Init(f *pflag.FlagSet) {}

func (c *TagListCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *TagListCommand) Run(ctx context.Context) error {
	tags, err := appdb.TagDao.List(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, []string{strconv.FormatInt(t.ID, 10), t.Name})
	}
	printTable([]string{"id", "name"}, rows, alignRight)
	return nil
}

func (c *TagListCommand) PostRun(ctx context.Context) error { return c.env.Close() }

// resolveTagIDs maps tag names to ids; unknown names are an error.
func resolveTagIDs(ctx context.Context, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	tags, err := appdb.TagDao.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(tags))
	for _, t := range tags {
		byName[strings.ToLower(t.Name)] = t.ID
	}
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("tag %q not found", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func init() {
	RegisterRunner("tag", func() IRunner { return &TagCommand{} })
	RegisterRunner("tag-list", func() IRunner { return &TagListCommand{} })
}
