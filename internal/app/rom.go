package app

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/naming"
)

// RomListCommand prints catalog records.
type RomListCommand struct {
	code string
	tags []string
	env  *env
}

func (c *RomListCommand) Name() string { return "rom-list" }

func (c *RomListCommand) Desc() string { return "列出数据库中的 ROM" }

func (c *RomListCommand) Init(f *pflag.FlagSet) {
	f.StringVar(&c.code, "system", "", "仅列出该系统的 ROM")
	f.StringSliceVar(&c.tags, "tag", nil, "仅列出带有这些标签的 ROM")
}

func (c *RomListCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *RomListCommand) Run(ctx context.Context) error {
	var (
		records []model.CatalogRecord
		err     error
	)
	switch {
	case len(c.tags) > 0:
		var ids []int64
		if ids, err = resolveTagIDs(ctx, c.tags); err != nil {
			return err
		}
		records, err = appdb.RomDao.ListByTags(ctx, ids)
	case strings.TrimSpace(c.code) != "":
		records, err = appdb.RomDao.ListBySystem(ctx, strings.ToLower(strings.TrimSpace(c.code)))
	default:
		records, err = appdb.RomDao.List(ctx)
	}
	if err != nil {
		return err
	}
	code := strings.ToLower(strings.TrimSpace(c.code))
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		if code != "" && rec.SystemCode != code {
			continue
		}
		rows = append(rows, romRow(rec))
	}
	printTable([]string{"id", "system", "name", "region", "size", "verified", "fav", "tags"}, rows,
		alignRight, alignLeft, alignLeft, alignLeft, alignRight)
	return nil
}

func (c *RomListCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func romRow(rec model.CatalogRecord) []string {
	return []string{
		strconv.FormatInt(rec.ID, 10),
		rec.SystemCode,
		rec.DisplayName,
		string(rec.Region),
		humanize.Bytes(uint64(rec.Size)),
		strconv.FormatBool(rec.Verified),
		strconv.FormatBool(rec.Favorite),
		strings.Join(rec.Tags, ","),
	}
}

// RomEditCommand changes the user editable fields of a record.
type RomEditCommand struct {
	id       int64
	name     string
	favorite bool
	notes    string
	flags    *pflag.FlagSet
	env      *env
}

func (c *RomEditCommand) Name() string { return "rom-edit" }

func (c *RomEditCommand) Desc() string { return "修改 ROM 的显示名称, 收藏状态或备注" }

func (c *RomEditCommand) Init(f *pflag.FlagSet) {
	c.flags = f
	f.Int64Var(&c.id, "id", 0, "ROM id")
	f.StringVar(&c.name, "name", "", "新的显示名称")
	f.BoolVar(&c.favorite, "favorite", false, "是否收藏")
	f.StringVar(&c.notes, "notes", "", "备注")
}

func (c *RomEditCommand) PreRun(ctx context.Context) error {
	if c.id <= 0 {
		return errors.New("rom-edit requires --id")
	}
	if _, err := c.patch(); err != nil {
		return err
	}
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *RomEditCommand) patch() (model.RecordPatch, error) {
	var patch model.RecordPatch
	changed := func(name string) bool {
		return c.flags != nil && c.flags.Changed(name)
	}
	if changed("name") {
		name := strings.TrimSpace(c.name)
		if name == "" {
			return patch, errors.New("display name cannot be empty")
		}
		sortName := naming.SortKey(name)
		patch.DisplayName = &name
		patch.SortName = &sortName
	}
	if changed("favorite") {
		fav := c.favorite
		patch.Favorite = &fav
	}
	if changed("notes") {
		notes := c.notes
		patch.Notes = &notes
	}
	if patch.DisplayName == nil && patch.Favorite == nil && patch.Notes == nil {
		return patch, errors.New("rom-edit requires at least one of --name, --favorite, --notes")
	}
	return patch, nil
}

func (c *RomEditCommand) Run(ctx context.Context) error {
	patch, err := c.patch()
	if err != nil {
		return err
	}
	if err := appdb.RomDao.Update(ctx, c.id, patch); err != nil {
		return err
	}
	rec, err := appdb.RomDao.Get(ctx, c.id)
	if err != nil {
		return err
	}
	printTable([]string{"id", "system", "name", "region", "size", "verified", "fav", "tags"}, [][]string{romRow(*rec)}, alignRight)
	return nil
}

func (c *RomEditCommand) PostRun(ctx context.Context) error { return c.env.Close() }

// RomRemoveCommand deletes records from the catalog; files on disk are kept.
type RomRemoveCommand struct {
	ids []int64
	env *env
}

func (c *RomRemoveCommand) Name() string { return "rom-remove" }

func (c *RomRemoveCommand) Desc() string { return "从数据库中删除 ROM 记录 (不删除文件)" }

func (c *RomRemoveCommand) Init(f *pflag.FlagSet) {
	f.Int64SliceVar(&c.ids, "id", nil, "ROM id, 可重复")
}

func (c *RomRemoveCommand) PreRun(ctx context.Context) error {
	if len(c.ids) == 0 {
		return errors.New("rom-remove requires --id")
	}
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *RomRemoveCommand) Run(ctx context.Context) error {
	if err := appdb.RomDao.Remove(ctx, c.ids); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("roms removed", zap.Int64s("ids", c.ids))
	return nil
}

func (c *RomRemoveCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func init() {
	RegisterRunner("rom-list", func() IRunner { return &RomListCommand{} })
	RegisterRunner("rom-edit", func() IRunner { return &RomEditCommand{} })
	RegisterRunner("rom-remove", func() IRunner { return &RomRemoveCommand{} })
}
