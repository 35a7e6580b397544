package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Kind identifies a supported container format.
type Kind int

const (
	KindUnknown Kind = iota
	KindZip
	KindSevenZip
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindSevenZip:
		return "7z"
	}
	return "unknown"
}

// KindFromPath picks the container kind from the file extension.
func KindFromPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return KindZip
	case ".7z":
		return KindSevenZip
	}
	return KindUnknown
}

var (
	ErrOpenFailed   = errors.New("archive open failed")
	ErrReadFailed   = errors.New("archive read failed")
	ErrMultipleRoms = errors.New("multiple roms in archive")
)

// Error carries the archive path and the failing entry, if any.
type Error struct {
	Kind  error
	Path  string
	Entry string
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Path)
	if e.Entry != "" {
		msg += fmt.Sprintf(" (entry %s)", e.Entry)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func openFailed(path string, err error) error {
	return &Error{Kind: ErrOpenFailed, Path: path, Err: err}
}

func readFailed(path, entry string, err error) error {
	return &Error{Kind: ErrReadFailed, Path: path, Entry: entry, Err: err}
}

func multipleRoms(path, first, second string) error {
	return &Error{Kind: ErrMultipleRoms, Path: path, Entry: second, Err: fmt.Errorf("already matched %s", first)}
}

// Payload is the single ROM pulled out of an archive.
type Payload struct {
	// LogicalFilename is the base name of the matched entry.
	LogicalFilename string
	// EntryPath is the entry name as stored in the archive.
	EntryPath string
	Data      []byte
}

// DefaultMaxEntrySize bounds how much of a single entry is buffered in memory.
const DefaultMaxEntrySize int64 = 1 << 30

// Extractor pulls exactly one ROM out of a zip or 7z container.
type Extractor struct {
	accept       func(name string) bool
	tempRoot     string
	maxEntrySize int64
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithTempRoot sets the parent directory of per-archive extraction directories.
func WithTempRoot(dir string) Option {
	return func(e *Extractor) { e.tempRoot = dir }
}

// WithMaxEntrySize overrides DefaultMaxEntrySize.
func WithMaxEntrySize(n int64) Option {
	return func(e *Extractor) { e.maxEntrySize = n }
}

// NewExtractor builds an extractor; accept decides whether an entry name is a ROM.
func NewExtractor(accept func(name string) bool, opts ...Option) *Extractor {
	e := &Extractor{accept: accept, maxEntrySize: DefaultMaxEntrySize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractSingleRom returns the only ROM entry of the archive, or nil when the
// archive holds no ROM. A second ROM entry fails with ErrMultipleRoms.
func (e *Extractor) ExtractSingleRom(ctx context.Context, path string, kind Kind) (*Payload, error) {
	switch kind {
	case KindZip:
		return e.extractZip(ctx, path)
	case KindSevenZip:
		return e.extractSevenZip(ctx, path)
	default:
		return nil, openFailed(path, fmt.Errorf("unsupported archive kind %s", kind))
	}
}

type entryInfo struct {
	name  string
	isDir bool
	size  uint64
}

// matcher tracks the one-ROM invariant while entries stream past.
type matcher struct {
	e       *Extractor
	path    string
	matched string
}

// consider reports whether the entry is the first ROM; a later ROM entry is an error.
func (m *matcher) consider(info entryInfo) (bool, error) {
	if info.isDir || !m.e.accept(info.name) {
		return false, nil
	}
	if m.matched != "" {
		return false, multipleRoms(m.path, m.matched, info.name)
	}
	if info.size > uint64(m.e.maxEntrySize) {
		return false, readFailed(m.path, info.name, fmt.Errorf("entry size %d exceeds limit %d", info.size, m.e.maxEntrySize))
	}
	m.matched = info.name
	return true, nil
}

func (e *Extractor) readAll(path, entry string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxEntrySize+1))
	if err != nil {
		return nil, readFailed(path, entry, err)
	}
	if int64(len(data)) > e.maxEntrySize {
		return nil, readFailed(path, entry, fmt.Errorf("entry exceeds limit %d", e.maxEntrySize))
	}
	return data, nil
}

// entryBase is the logical filename of an entry, stripped of any directories.
func entryBase(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return filepath.Base(filepath.Clean("/" + name))
}
