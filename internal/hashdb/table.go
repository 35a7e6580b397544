package hashdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotLoaded is returned by lookups issued before Load or after Unload.
var ErrNotLoaded = errors.New("hash table not loaded")

const partitionExt = ".json"

// GameRecord is one entry of the identification table.
type GameRecord struct {
	MD5              string `json:"md5"`
	Title            string `json:"title"`
	ConsoleID        int    `json:"console_id"`
	AchievementCount int    `json:"achievement_count"`
}

type partition map[string]GameRecord

// Table maps identification digests to known games. Partitions are stored one
// file per console and are read lazily on first lookup.
//
// Lookups are safe for concurrent use. Load and Unload must be serialized by
// the owner of the table.
type Table struct {
	dir string

	mu     sync.RWMutex
	loaded bool
	index  map[int]string
	cache  *lru.Cache[int, partition]
	group  singleflight.Group
}

// Open prepares a table rooted at dir; nothing is read until Load.
func Open(dir string, cacheSize int) (*Table, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("hash table dir is required")
	}
	if cacheSize <= 0 {
		cacheSize = 16
	}
	cache, err := lru.New[int, partition](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create partition cache: %w", err)
	}
	return &Table{dir: dir, cache: cache}, nil
}

// Load indexes the partition files available on disk.
func (t *Table) Load(ctx context.Context) error {
	entries, err := os.ReadDir(t.dir)
	if errors.Is(err, os.ErrNotExist) {
		entries = nil
	} else if err != nil {
		return fmt.Errorf("read hash table dir %s: %w", t.dir, err)
	}
	index := make(map[int]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), partitionExt) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if err != nil {
			continue
		}
		index[id] = filepath.Join(t.dir, e.Name())
	}

	t.mu.Lock()
	t.index = index
	t.loaded = true
	t.cache.Purge()
	t.mu.Unlock()

	logutil.GetLogger(ctx).Info("hash table loaded",
		zap.String("dir", t.dir),
		zap.Int("partitions", len(index)),
	)
	return nil
}

// Unload drops every cached partition and the index.
func (t *Table) Unload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded = false
	t.index = nil
	t.cache.Purge()
}

// Loaded reports whether Load has been called since the last Unload.
func (t *Table) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// Consoles lists the console ids with a partition on disk.
func (t *Table) Consoles() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int, 0, len(t.index))
	for id := range t.index {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Lookup finds the game whose identification digest matches.
func (t *Table) Lookup(ctx context.Context, consoleID int, digest string) (GameRecord, bool, error) {
	t.mu.RLock()
	loaded := t.loaded
	path, ok := t.index[consoleID]
	t.mu.RUnlock()
	if !loaded {
		return GameRecord{}, false, ErrNotLoaded
	}
	if !ok {
		return GameRecord{}, false, nil
	}

	part, err := t.partition(ctx, consoleID, path)
	if err != nil {
		return GameRecord{}, false, err
	}
	rec, ok := part[strings.ToLower(digest)]
	return rec, ok, nil
}

func (t *Table) partition(ctx context.Context, consoleID int, path string) (partition, error) {
	if part, ok := t.cache.Get(consoleID); ok {
		return part, nil
	}
	v, err, _ := t.group.Do(strconv.Itoa(consoleID), func() (interface{}, error) {
		part, err := readPartition(path)
		if err != nil {
			return nil, err
		}
		t.cache.Add(consoleID, part)
		logutil.GetLogger(ctx).Debug("hash partition loaded",
			zap.Int("console_id", consoleID),
			zap.Int("entries", len(part)),
		)
		return part, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(partition), nil
}

func readPartition(path string) (partition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hash partition %s: %w", path, err)
	}
	var records []GameRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode hash partition %s: %w", path, err)
	}
	part := make(partition, len(records))
	for _, rec := range records {
		part[strings.ToLower(rec.MD5)] = rec
	}
	return part, nil
}

// PartitionPath is the file holding the records of one console.
func PartitionPath(dir string, consoleID int) string {
	return filepath.Join(dir, strconv.Itoa(consoleID)+partitionExt)
}

// ReadPartition returns the records stored for consoleID, empty when none exist.
func ReadPartition(dir string, consoleID int) ([]GameRecord, error) {
	part, err := readPartition(PartitionPath(dir, consoleID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]GameRecord, 0, len(part))
	for _, rec := range part {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MD5 < out[j].MD5 })
	return out, nil
}

// WritePartition replaces the partition of consoleID with records.
func WritePartition(dir string, consoleID int, records []GameRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure hash table dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode hash partition: %w", err)
	}
	path := PartitionPath(dir, consoleID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write hash partition %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace hash partition %s: %w", path, err)
	}
	return nil
}
