package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name string
	data []byte
}

func writeZip(t *testing.T, path string, entries ...zipEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		if e.data != nil {
			_, err = fw.Write(e.data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func acceptRoms(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".nes", ".sfc", ".gba":
		return true
	}
	return false
}

func TestKindFromPath(t *testing.T) {
	assert.Equal(t, KindZip, KindFromPath("/a/b.ZIP"))
	assert.Equal(t, KindSevenZip, KindFromPath("b.7z"))
	assert.Equal(t, KindUnknown, KindFromPath("b.rar"))
}

func TestExtractZipSingleRom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mario.zip")
	writeZip(t, path,
		zipEntry{name: "docs/"},
		zipEntry{name: "readme.txt", data: []byte("hello")},
		zipEntry{name: "roms/Super Mario Bros (USA).nes", data: []byte("NES\x1arom")},
	)

	ex := NewExtractor(acceptRoms)
	payload, err := ex.ExtractSingleRom(context.Background(), path, KindZip)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "Super Mario Bros (USA).nes", payload.LogicalFilename)
	assert.Equal(t, "roms/Super Mario Bros (USA).nes", payload.EntryPath)
	assert.Equal(t, []byte("NES\x1arom"), payload.Data)
}

func TestExtractZipMultipleRoms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.zip")
	writeZip(t, path,
		zipEntry{name: "a.nes", data: []byte("a")},
		zipEntry{name: "notes.txt", data: []byte("x")},
		zipEntry{name: "b.sfc", data: []byte("b")},
	)

	ex := NewExtractor(acceptRoms)
	payload, err := ex.ExtractSingleRom(context.Background(), path, KindZip)
	require.Error(t, err)
	assert.Nil(t, payload)
	assert.True(t, errors.Is(err, ErrMultipleRoms))
	assert.False(t, errors.Is(err, ErrReadFailed))

	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, path, aerr.Path)
	assert.Equal(t, "b.sfc", aerr.Entry)
}

func TestExtractZipNoRom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sf2.zip")
	writeZip(t, path,
		zipEntry{name: "sf2_01.bin", data: []byte("1")},
		zipEntry{name: "sf2_02.bin", data: []byte("2")},
	)

	ex := NewExtractor(acceptRoms)
	payload, err := ex.ExtractSingleRom(context.Background(), path, KindZip)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestExtractZipCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a zip"), 0o644))

	ex := NewExtractor(acceptRoms)
	_, err := ex.ExtractSingleRom(context.Background(), path, KindZip)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpenFailed))
	assert.Contains(t, err.Error(), path)
}

func TestExtractZipEntryLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.zip")
	writeZip(t, path, zipEntry{name: "big.gba", data: make([]byte, 4096)})

	ex := NewExtractor(acceptRoms, WithMaxEntrySize(1024))
	_, err := ex.ExtractSingleRom(context.Background(), path, KindZip)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadFailed))
}

func TestExtractZipCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.zip")
	writeZip(t, path, zipEntry{name: "a.nes", data: []byte("a")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractor(acceptRoms).ExtractSingleRom(ctx, path, KindZip)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractSevenZipCorruptCleansTemp(t *testing.T) {
	dir := t.TempDir()
	tmpRoot := filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(tmpRoot, 0o755))
	path := filepath.Join(dir, "bad.7z")
	require.NoError(t, os.WriteFile(path, []byte("7z but not really"), 0o644))

	ex := NewExtractor(acceptRoms, WithTempRoot(tmpRoot))
	_, err := ex.ExtractSingleRom(context.Background(), path, KindSevenZip)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpenFailed))

	left, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, left)
}

// sevenZipExtractor uses a private temp root so tests can check nothing is left behind.
func sevenZipExtractor(t *testing.T) (*Extractor, string) {
	t.Helper()
	tmpRoot := filepath.Join(t.TempDir(), "tmp")
	require.NoError(t, os.MkdirAll(tmpRoot, 0o755))
	return NewExtractor(acceptRoms, WithTempRoot(tmpRoot)), tmpRoot
}

func assertTempRootEmpty(t *testing.T, tmpRoot string) {
	t.Helper()
	left, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestExtractSevenZipSingleRom(t *testing.T) {
	ex, tmpRoot := sevenZipExtractor(t)
	payload, err := ex.ExtractSingleRom(context.Background(), filepath.Join("testdata", "single_rom.7z"), KindSevenZip)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "Metroid Fusion (USA).gba", payload.LogicalFilename)
	assert.Equal(t, "roms/Metroid Fusion (USA).gba", payload.EntryPath)
	assert.Equal(t, []byte("GBA\x00rom-fixture"), payload.Data)
	assertTempRootEmpty(t, tmpRoot)
}

func TestExtractSevenZipMultipleRoms(t *testing.T) {
	ex, tmpRoot := sevenZipExtractor(t)
	path := filepath.Join("testdata", "multiple_roms.7z")
	payload, err := ex.ExtractSingleRom(context.Background(), path, KindSevenZip)
	require.Error(t, err)
	assert.Nil(t, payload)
	assert.True(t, errors.Is(err, ErrMultipleRoms))

	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, path, aerr.Path)
	assert.Equal(t, "b.sfc", aerr.Entry)
	assertTempRootEmpty(t, tmpRoot)
}

func TestExtractSevenZipNoRom(t *testing.T) {
	ex, tmpRoot := sevenZipExtractor(t)
	payload, err := ex.ExtractSingleRom(context.Background(), filepath.Join("testdata", "no_rom.7z"), KindSevenZip)
	require.NoError(t, err)
	assert.Nil(t, payload)
	assertTempRootEmpty(t, tmpRoot)
}

func TestEntryBase(t *testing.T) {
	assert.Equal(t, "x.nes", entryBase("../../x.nes"))
	assert.Equal(t, "x.nes", entryBase(`dir\x.nes`))
	assert.Equal(t, "x.nes", entryBase("/abs/x.nes"))
}
