package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/romsync/internal/device"
	"github.com/xxxsen/romsync/internal/hasher"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/storage"
)

type staticRecords []model.CatalogRecord

func (s staticRecords) ListByTags(context.Context, []int64) ([]model.CatalogRecord, error) {
	return s, nil
}

type staticDevices map[int64]model.Device

func (s staticDevices) Get(_ context.Context, id int64) (model.Device, error) {
	dev, ok := s[id]
	if !ok {
		return model.Device{}, fmt.Errorf("device %d not found", id)
	}
	return dev, nil
}

// corruptingTarget reports a wrong digest for one file, as if the copy was damaged.
type corruptingTarget struct {
	*storage.LocalTarget
	corrupt string
}

func (t *corruptingTarget) Checksum(ctx context.Context, rel string) (string, error) {
	if filepath.Base(rel) == t.corrupt {
		return "deadbeef", nil
	}
	return t.LocalTarget.Checksum(ctx, rel)
}

type fixture struct {
	records staticRecords
	mount   string
	engine  *Engine
	updates []Status
}

func makeRecord(t *testing.T, dir string, id int64, code, name string) model.CatalogRecord {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("rom:"+name), 0o644))
	digest, err := hasher.ContainerDigest(path)
	require.NoError(t, err)
	return model.CatalogRecord{
		ID:         id,
		SystemCode: code,
		FilePath:   path,
		FileName:   name,
		Hashes:     model.HashSet{ContainerDigest: digest},
		Tags:       []string{"favorites"},
	}
}

func newFixture(t *testing.T, profile string, open func(root string) storage.Target, records ...model.CatalogRecord) *fixture {
	t.Helper()
	f := &fixture{records: records, mount: t.TempDir()}
	devices := staticDevices{1: {ID: 1, Name: "sd", MountPath: f.mount, ProfileID: profile}}
	f.engine = New(f.records, devices, device.NewRegistry(), func(_ context.Context, dev model.Device) (storage.Target, error) {
		return open(dev.MountPath), nil
	})
	f.engine.Subscribe(func(st Status) { f.updates = append(f.updates, st) })
	return f
}

func localOpen(root string) storage.Target { return storage.NewLocalTarget(root) }

func threeRoms(t *testing.T) []model.CatalogRecord {
	src := t.TempDir()
	return []model.CatalogRecord{
		makeRecord(t, src, 1, "snes", "Chrono Trigger (USA).sfc"),
		makeRecord(t, src, 2, "snes", "Earthbound (USA).zip"),
		makeRecord(t, src, 3, "gba", "Metroid Fusion (USA).gba"),
	}
}

func assertInvariant(t *testing.T, st Status) {
	t.Helper()
	assert.Equal(t, st.TotalFiles, st.FilesProcessed)
	assert.Equal(t, st.FilesProcessed, st.FilesCopied+len(st.FilesSkipped)+len(st.FilesFailed))
}

func TestSyncCopiesEverything(t *testing.T) {
	f := newFixture(t, "onion", localOpen, threeRoms(t)...)
	st, err := f.engine.Start(context.Background(), []int64{1}, 1, Options{})
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, st.Phase)
	assert.Equal(t, 3, st.TotalFiles)
	assert.Equal(t, 3, st.FilesProcessed)
	assert.Equal(t, 3, st.FilesCopied)
	assert.Equal(t, 100, st.ProgressPercent)
	assert.Empty(t, st.FilesSkipped)
	assert.Empty(t, st.FilesFailed)
	assert.NotEmpty(t, st.SessionID)
	assertInvariant(t, st)

	assert.FileExists(t, filepath.Join(f.mount, "Roms", "SFC", "Chrono Trigger (USA).sfc"))
	assert.FileExists(t, filepath.Join(f.mount, "Roms", "SFC", "Earthbound (USA).zip"))
	assert.FileExists(t, filepath.Join(f.mount, "Roms", "GBA", "Metroid Fusion (USA).gba"))

	require.NotEmpty(t, f.updates)
	assert.Equal(t, PhasePreparing, f.updates[0].Phase)
	assert.Equal(t, PhaseCopying, f.updates[1].Phase)
	assert.Equal(t, PhaseDone, f.updates[len(f.updates)-1].Phase)
	assert.Len(t, f.updates, 2+3+1)
	assert.Equal(t, 33, f.updates[2].ProgressPercent)
	assert.Equal(t, 67, f.updates[3].ProgressPercent)
}

func TestSyncSkipsExistingFiles(t *testing.T) {
	f := newFixture(t, "onion", localOpen, threeRoms(t)...)
	_, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)

	st, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, st.Phase)
	require.Len(t, st.FilesSkipped, 3)
	for _, s := range st.FilesSkipped {
		assert.Equal(t, ReasonFileExists, s.Reason)
	}
	assert.Empty(t, st.FilesFailed)
	assert.Equal(t, 0, st.FilesCopied)
	assertInvariant(t, st)
}

func TestSyncVerifyMismatchRemovesCopy(t *testing.T) {
	recs := threeRoms(t)
	f := newFixture(t, "onion", func(root string) storage.Target {
		return &corruptingTarget{LocalTarget: storage.NewLocalTarget(root), corrupt: "Earthbound (USA).zip"}
	}, recs...)

	st, err := f.engine.Start(context.Background(), nil, 1, Options{VerifyFiles: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	assert.Equal(t, PhaseError, st.Phase)
	require.Len(t, st.FilesFailed, 1)
	assert.Equal(t, "Earthbound (USA).zip", st.FilesFailed[0].File)
	assert.Contains(t, st.FilesFailed[0].Reason, "checksum mismatch")
	assert.Equal(t, 2, st.FilesCopied)
	assertInvariant(t, st)
	assert.NoFileExists(t, filepath.Join(f.mount, "Roms", "SFC", "Earthbound (USA).zip"))
	assert.FileExists(t, filepath.Join(f.mount, "Roms", "SFC", "Chrono Trigger (USA).sfc"))

	last := f.updates[len(f.updates)-1]
	assert.Equal(t, PhaseError, last.Phase)
	assert.Len(t, last.FilesFailed, 1)

	var sawVerifying bool
	for _, u := range f.updates {
		if u.Phase == PhaseVerifying {
			sawVerifying = true
		}
	}
	assert.True(t, sawVerifying)
}

func TestSyncSkipReasons(t *testing.T) {
	src := t.TempDir()
	unknown := makeRecord(t, src, 1, "psx", "Crash.bin")
	noMapping := makeRecord(t, src, 2, "n64", "Mario 64.z64")
	badFormat := makeRecord(t, src, 3, "snes", "Secret of Mana.7z")
	good := makeRecord(t, src, 4, "gb", "Tetris.gb")

	f := newFixture(t, "minui", localOpen, unknown, noMapping, badFormat, good)
	st, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)
	require.Len(t, st.FilesSkipped, 3)
	assert.Equal(t, ReasonUnsupportedSystem, st.FilesSkipped[0].Reason)
	assert.Equal(t, ReasonMissingSystemMapping, st.FilesSkipped[1].Reason)
	assert.Equal(t, ReasonUnsupportedFormat, st.FilesSkipped[2].Reason)
	assert.Equal(t, 1, st.FilesCopied)
	assertInvariant(t, st)
}

func TestSyncCopyFailureNamesFile(t *testing.T) {
	recs := threeRoms(t)
	require.NoError(t, os.Remove(recs[0].FilePath))
	f := newFixture(t, "onion", localOpen, recs...)

	st, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.Len(t, st.FilesFailed, 1)
	assert.Contains(t, st.FilesFailed[0].Reason, "Chrono Trigger (USA).sfc")
	assert.Equal(t, 2, st.FilesCopied)
	assert.Equal(t, PhaseError, st.Phase)
	assertInvariant(t, st)
}

func TestSyncCancelStopsBetweenFiles(t *testing.T) {
	f := newFixture(t, "onion", localOpen, threeRoms(t)...)
	var cancelled bool
	f.engine.Subscribe(func(st Status) {
		if st.FilesProcessed == 1 && !cancelled {
			cancelled = true
			f.engine.Cancel()
		}
	})

	st, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)
	assert.True(t, st.Cancelled)
	assert.Equal(t, PhaseDone, st.Phase)
	assert.Equal(t, 1, st.FilesProcessed)
	assert.Equal(t, 3, st.Candidates)
	assert.Equal(t, 1, st.TotalFiles)
	assert.Equal(t, 100, st.ProgressPercent)
	assert.Equal(t, 100, f.updates[len(f.updates)-1].ProgressPercent)
	assert.Empty(t, st.FilesFailed)
	assertInvariant(t, st)
	assert.NoFileExists(t, filepath.Join(f.mount, "Roms", "GBA", "Metroid Fusion (USA).gba"))

	st, err = f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)
	assert.False(t, st.Cancelled, "cancellation does not leak into the next session")
}

func TestSyncEmptyCandidateSet(t *testing.T) {
	f := newFixture(t, "onion", localOpen)
	st, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, st.Phase)
	assert.Equal(t, 0, st.TotalFiles)
	assert.Equal(t, 100, st.ProgressPercent)
	last := f.updates[len(f.updates)-1]
	assert.Equal(t, PhaseDone, last.Phase)
	assert.Equal(t, 100, last.ProgressPercent)
	assertInvariant(t, st)
}

func TestSyncCleanDestination(t *testing.T) {
	f := newFixture(t, "onion", localOpen, threeRoms(t)...)
	stale := filepath.Join(f.mount, "Roms", "SFC", "Old Game.sfc")
	untouched := filepath.Join(f.mount, "Roms", "NDS", "keep.nds")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(untouched), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(untouched, []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.mount, "Roms", "SFC", "Chrono Trigger (USA).sfc"), []byte("old copy"), 0o644))

	st, err := f.engine.Start(context.Background(), nil, 1, Options{CleanDestination: true, VerifyFiles: true})
	require.NoError(t, err)
	assert.Equal(t, 3, st.FilesCopied)
	assert.Empty(t, st.FilesSkipped)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, untouched)
}

func TestSyncPrepareFailure(t *testing.T) {
	f := newFixture(t, "onion", localOpen)
	_, err := f.engine.Start(context.Background(), nil, 42, Options{})
	require.Error(t, err)
	assert.Equal(t, PhaseError, f.updates[len(f.updates)-1].Phase)

	g := newFixture(t, "no-such-profile", localOpen)
	_, err = g.engine.Start(context.Background(), nil, 1, Options{})
	assert.Error(t, err)
}

func TestSyncRejectsConcurrentSession(t *testing.T) {
	f := newFixture(t, "onion", localOpen, threeRoms(t)...)
	var nested error
	f.engine.Subscribe(func(st Status) {
		if st.Phase == PhasePreparing && nested == nil {
			_, nested = f.engine.Start(context.Background(), nil, 1, Options{})
		}
	})
	_, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrSessionActive)
}

func TestSyncListenerPanicDoesNotAbort(t *testing.T) {
	f := newFixture(t, "onion", localOpen, threeRoms(t)...)
	unsubscribe := f.engine.Subscribe(func(Status) { panic("listener disconnected") })
	st, err := f.engine.Start(context.Background(), nil, 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, st.FilesCopied)
	unsubscribe()
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100, percent(0, 0))
	assert.Equal(t, 33, percent(1, 3))
	assert.Equal(t, 100, percent(4, 3))
}
