package hashdb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/romsync/internal/dat"
	"github.com/xxxsen/romsync/internal/hasher"
)

func TestLookupLifecycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WritePartition(dir, 3, []GameRecord{
		{MD5: "A2BC447961E52FD2227BAED164F729DC", Title: "Chrono Trigger", ConsoleID: 3, AchievementCount: 77},
	}))
	require.NoError(t, os.WriteFile(dir+"/notes.txt", []byte("ignored"), 0o644))

	table, err := Open(dir, 2)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = table.Lookup(ctx, 3, "a2bc447961e52fd2227baed164f729dc")
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, table.Load(ctx))
	assert.True(t, table.Loaded())
	assert.Equal(t, []int{3}, table.Consoles())

	rec, ok, err := table.Lookup(ctx, 3, "A2BC447961e52fd2227baed164f729dc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Chrono Trigger", rec.Title)
	assert.Equal(t, 77, rec.AchievementCount)

	_, ok, err = table.Lookup(ctx, 3, "ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = table.Lookup(ctx, 99, "a2bc447961e52fd2227baed164f729dc")
	require.NoError(t, err)
	assert.False(t, ok)

	table.Unload()
	assert.False(t, table.Loaded())
	_, _, err = table.Lookup(ctx, 3, "a2bc447961e52fd2227baed164f729dc")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestConcurrentLookups(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WritePartition(dir, 7, []GameRecord{{MD5: "00000000000000000000000000000001", Title: "Mario"}}))
	table, err := Open(dir, 4)
	require.NoError(t, err)
	require.NoError(t, table.Load(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, ok, err := table.Lookup(context.Background(), 7, "00000000000000000000000000000001")
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "Mario", rec.Title)
		}()
	}
	wg.Wait()
}

func TestCorruptPartition(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(PartitionPath(dir, 5), []byte("{not json"), 0o644))
	table, err := Open(dir, 0)
	require.NoError(t, err)
	require.NoError(t, table.Load(context.Background()))
	_, _, err = table.Lookup(context.Background(), 5, "x")
	assert.Error(t, err)
}

const sampleDat = `<?xml version="1.0"?>
<datafile>
	<game name="Chrono Trigger (USA)">
		<description>Chrono Trigger (USA)</description>
		<rom name="Chrono Trigger (USA).sfc" md5="A2BC447961E52FD2227BAED164F729DC"/>
	</game>
	<game name="Nomd">
		<rom name="nomd.sfc"/>
	</game>
</datafile>`

func TestImportDAT(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WritePartition(dir, 3, []GameRecord{{MD5: "11111111111111111111111111111111", Title: "Old", ConsoleID: 3}}))

	df, err := dat.NewParser().Parse(strings.NewReader(sampleDat))
	require.NoError(t, err)
	n, err := ImportDAT(dir, 3, hasher.KindSNESModulo, df)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := ReadPartition(dir, 3)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "11111111111111111111111111111111", records[0].MD5)
	assert.Equal(t, "a2bc447961e52fd2227baed164f729dc", records[1].MD5)
	assert.Equal(t, "Chrono Trigger (USA)", records[1].Title)
}

func TestImportArcadeDAT(t *testing.T) {
	dir := t.TempDir()
	df, err := dat.NewParser().Parse(strings.NewReader(`<datafile><machine name="sf2"><description>Street Fighter II</description></machine></datafile>`))
	require.NoError(t, err)
	n, err := ImportDAT(dir, 27, hasher.KindArcadeFilename, df)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sum := md5.Sum([]byte("sf2"))
	records, err := ReadPartition(dir, 27)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, hex.EncodeToString(sum[:]), records[0].MD5)
	assert.Equal(t, 27, records[0].ConsoleID)
}
