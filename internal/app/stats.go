package app

import (
	"context"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	appdb "github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/system"
)

// StatsCommand prints catalog totals per system.
type StatsCommand struct {
	env *env
}

func (c *StatsCommand) Name() string { return "stats" }

func (c *StatsCommand) Desc() string { return "统计数据库中的 ROM 数量与大小" }

func (c *StatsCommand) Init(f *pflag.FlagSet) {}

func (c *StatsCommand) PreRun(ctx context.Context) error {
	e, err := openEnv(ctx)
	c.env = e
	return err
}

func (c *StatsCommand) Run(ctx context.Context) error {
	stats, err := appdb.RomDao.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(stats)
	return nil
}

func (c *StatsCommand) PostRun(ctx context.Context) error { return c.env.Close() }

func printStats(stats model.CatalogStats) {
	printTable([]string{"roms", "verified", "favorites", "size"}, [][]string{{
		strconv.FormatInt(stats.Count, 10),
		strconv.FormatInt(stats.Verified, 10),
		strconv.FormatInt(stats.Favorites, 10),
		humanize.Bytes(uint64(stats.TotalSize)),
	}}, alignRight, alignRight, alignRight, alignRight)

	rows := make([][]string, 0, len(stats.Systems))
	for _, s := range stats.Systems {
		name := s.SystemCode
		if sys, ok := system.Lookup(system.Code(s.SystemCode)); ok {
			name = sys.Name
		}
		rows = append(rows, []string{s.SystemCode, name, strconv.FormatInt(s.Count, 10), strconv.FormatInt(s.Verified, 10), humanize.Bytes(uint64(s.TotalSize))})
	}
	printTable([]string{"system", "name", "roms", "verified", "size"}, rows,
		alignLeft, alignLeft, alignRight, alignRight, alignRight)
}

func init() {
	RegisterRunner("stats", func() IRunner { return &StatsCommand{} })
}
