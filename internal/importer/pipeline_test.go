package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/hashdb"
	"github.com/xxxsen/romsync/internal/hasher"
	"github.com/xxxsen/romsync/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	records []model.CatalogRecord
	failErr error
}

func (s *memStore) FindByContentDigest(_ context.Context, digest string) (*model.CatalogRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Hashes.ContentDigest == digest {
			rec := s.records[i]
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

func (s *memStore) Insert(_ context.Context, rec model.CatalogRecord) (model.CatalogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return rec, s.failErr
	}
	rec.ID = int64(len(s.records) + 1)
	s.records = append(s.records, rec)
	return rec, nil
}

type mapLookup map[string]hashdb.GameRecord

func (m mapLookup) Lookup(_ context.Context, consoleID int, digest string) (hashdb.GameRecord, bool, error) {
	rec, ok := m[fmt.Sprintf("%d/%s", consoleID, digest)]
	return rec, ok, nil
}

type memCache struct {
	entries map[string]string
	hits    int
}

func (c *memCache) Lookup(_ context.Context, location string, modTime int64) (string, bool, error) {
	d, ok := c.entries[fmt.Sprintf("%s@%d", location, modTime)]
	if ok {
		c.hits++
	}
	return d, ok, nil
}

func (c *memCache) Store(_ context.Context, location string, modTime int64, digest string) error {
	c.entries[fmt.Sprintf("%s@%d", location, modTime)] = digest
	return nil
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestImportVerifiedRom(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	payload := []byte("some snes rom data")
	path := writeFile(t, dir, "ct.sfc", payload)

	ident, err := hasher.Identify(hasher.KindSNESModulo, "ct.sfc", payload)
	require.NoError(t, err)
	lookup := mapLookup{"3/" + ident.Digest: {MD5: ident.Digest, Title: "Chrono Trigger", ConsoleID: 3}}

	store := &memStore{}
	rec, err := NewPipeline(store, lookup).ImportOne(ctx, path, "Chrono Trigger (USA).sfc", payload)
	require.NoError(t, err)
	assert.Equal(t, "snes", rec.SystemCode)
	assert.Equal(t, "Chrono Trigger", rec.DisplayName)
	assert.True(t, rec.Verified)
	assert.Equal(t, model.RegionUSA, rec.Region)
	assert.Equal(t, ident.Digest, rec.Hashes.IdentificationDigest)
	assert.Equal(t, hasher.ContentDigest(payload), rec.Hashes.ContentDigest)
	assert.Equal(t, "ct.sfc", rec.FileName)
	assert.Equal(t, "Chrono Trigger (USA).sfc", rec.RomFileName)
	assert.Equal(t, int64(len(payload)), rec.Size)
}

func TestImportUnverifiedFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("gba data")
	path := writeFile(t, dir, "x.gba", payload)

	rec, err := NewPipeline(&memStore{}, mapLookup{}).ImportOne(context.Background(), path, "metroid_fusion (Europe) [!].gba", payload)
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	assert.Equal(t, "Metroid Fusion", rec.DisplayName)
	assert.Equal(t, model.RegionEurope, rec.Region)
	assert.Equal(t, "metroid fusion", rec.SortName)
}

func TestImportContainerDigestIsOnDiskFile(t *testing.T) {
	dir := t.TempDir()
	container := []byte("pretend this is a zip holding the rom")
	path := writeFile(t, dir, "Game (Japan).zip", container)
	payload := []byte("inner rom bytes")

	rec, err := NewPipeline(&memStore{}, nil).ImportOne(context.Background(), path, "game.gb", payload)
	require.NoError(t, err)
	want, err := hasher.ContainerDigest(path)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Hashes.ContainerDigest)
	assert.NotEqual(t, rec.Hashes.ContentDigest, rec.Hashes.ContainerDigest)
	assert.Equal(t, model.RegionJapan, rec.Region)
}

func TestImportDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	payload := []byte("same content")
	first := writeFile(t, dir, "a.gb", payload)
	second := writeFile(t, dir, "b.gb", payload)

	store := &memStore{}
	p := NewPipeline(store, nil)
	rec, err := p.ImportOne(ctx, first, "a.gb", payload)
	require.NoError(t, err)

	_, err = p.ImportOne(ctx, second, "b.gb", payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRom))

	var dup *DuplicateRomError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, rec.ID, dup.ExistingID)
	assert.Equal(t, second, dup.File)
	assert.Contains(t, err.Error(), second)
	assert.Contains(t, err.Error(), first)
	assert.Len(t, store.records, 1)
}

func TestImportUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "readme.txt", []byte("x"))
	_, err := NewPipeline(&memStore{}, nil).ImportOne(context.Background(), path, "readme.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedExtension))

	var perr *RomProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ReasonUnsupportedExtension, perr.Reason)
}

func TestImportMalformedRom(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tiny.nds", []byte("short"))
	_, err := NewPipeline(&memStore{}, nil).ImportOne(context.Background(), path, "tiny.nds", []byte("short"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, hasher.ErrMalformedRom))
	var perr *RomProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ReasonMalformedRom, perr.Reason)
}

func TestImportPersistFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.gb", []byte("a"))
	boom := errors.New("disk full")
	_, err := NewPipeline(&memStore{failErr: boom}, nil).ImportOne(context.Background(), path, "a.gb", []byte("a"))
	assert.Equal(t, boom, err)
}

func TestImportStoreRaceReportsDuplicate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.gb", []byte("a"))
	store := &racingStore{memStore: &memStore{}}
	_, err := NewPipeline(store, nil).ImportOne(context.Background(), path, "a.gb", []byte("a"))
	assert.True(t, errors.Is(err, ErrDuplicateRom))
}

// racingStore pretends another writer inserted the same content between the check and the insert.
type racingStore struct {
	*memStore
	inserted bool
}

func (s *racingStore) Insert(ctx context.Context, rec model.CatalogRecord) (model.CatalogRecord, error) {
	if !s.inserted {
		s.inserted = true
		other := rec
		other.FilePath = "/elsewhere/a.gb"
		_, _ = s.memStore.Insert(ctx, other)
	}
	return rec, fmt.Errorf("insert rom: %w", db.ErrDuplicateContent)
}

func TestImportUsesDigestCache(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.gb", []byte("a"))
	info, err := os.Stat(path)
	require.NoError(t, err)

	cache := &memCache{entries: map[string]string{
		fmt.Sprintf("%s@%d", path, info.ModTime().UnixNano()): "cafebabe",
	}}
	rec, err := NewPipeline(&memStore{}, nil, WithDigestCache(cache)).ImportOne(context.Background(), path, "a.gb", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "cafebabe", rec.Hashes.ContainerDigest)
	assert.Equal(t, 1, cache.hits)

	other := writeFile(t, dir, "b.gb", []byte("b"))
	rec, err = NewPipeline(&memStore{}, nil, WithDigestCache(cache)).ImportOne(context.Background(), other, "b.gb", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, "cafebabe", rec.Hashes.ContainerDigest)
	assert.Len(t, cache.entries, 2)
}
