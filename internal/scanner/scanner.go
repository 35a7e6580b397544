package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/archive"
	"github.com/xxxsen/romsync/internal/importer"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/system"
)

// Outcomes reported with every progress event.
const (
	OutcomeImported = "imported"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Importer stores one ROM payload.
type Importer interface {
	ImportOne(ctx context.Context, filePath, logicalFilename string, payload []byte) (*model.CatalogRecord, error)
}

// Event is pushed once per examined file.
type Event struct {
	Path      string
	Outcome   string
	Processed int
	Err       error
}

// Result summarises a scan; Errors holds one *importer.RomProcessingError per failed file.
type Result struct {
	Processed int
	Imported  []*model.CatalogRecord
	Skipped   []string
	Errors    []error
}

// Scanner walks a directory tree and imports every ROM it finds.
type Scanner struct {
	importer  Importer
	extractor *archive.Extractor
	progress  func(Event)
}

type Option func(*Scanner)

// WithExtractor replaces the default archive extractor.
func WithExtractor(e *archive.Extractor) Option {
	return func(s *Scanner) { s.extractor = e }
}

// WithProgress registers a listener; a panicking listener loses the event.
func WithProgress(fn func(Event)) Option {
	return func(s *Scanner) { s.progress = fn }
}

// IsInnerRom decides whether an archive entry is a playable ROM.
func IsInnerRom(name string) bool {
	return system.IsInnerRomExt(filepath.Ext(name))
}

func New(imp Importer, opts ...Option) *Scanner {
	s := &Scanner{importer: imp}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = archive.NewExtractor(IsInnerRom)
	}
	return s
}

// Scan imports every ROM below root. Per-file failures are collected in the
// result; only cancellation or an unreadable root stops the walk.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	res := &Result{}
	info, err := os.Stat(root)
	if err != nil {
		return res, fmt.Errorf("stat scan root %s: %w", root, err)
	}
	if !info.IsDir() {
		s.handleFile(ctx, root, res)
		return res, ctx.Err()
	}

	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == root {
				return res, fmt.Errorf("read scan root %s: %w", root, err)
			}
			s.fail(ctx, res, dir, importer.ReasonReadFailed, err)
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		var subdirs []string
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if e.IsDir() {
				subdirs = append(subdirs, path)
				continue
			}
			if !e.Type().IsRegular() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			s.handleFile(ctx, path, res)
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	logutil.GetLogger(ctx).Info("scan finished",
		zap.String("root", root),
		zap.Int("processed", res.Processed),
		zap.Int("imported", len(res.Imported)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Errors)),
	)
	return res, nil
}

func (s *Scanner) handleFile(ctx context.Context, path string, res *Result) {
	res.Processed++
	ext := filepath.Ext(path)

	if system.IsArchiveExt(ext) {
		payload, err := s.extractor.ExtractSingleRom(ctx, path, archive.KindFromPath(path))
		if err != nil {
			s.fail(ctx, res, path, importer.ReasonArchive, err)
			return
		}
		if payload != nil {
			s.importPayload(ctx, res, path, payload.LogicalFilename, payload.Data)
			return
		}
		// No ROM inside: the container itself may still be a ROM by its own
		// extension (arcade sets are zips of chip dumps).
		logutil.GetLogger(ctx).Debug("archive holds no rom, trying container", zap.String("file", path))
	}

	if !system.IsRomExt(ext) {
		res.Skipped = append(res.Skipped, path)
		s.emit(ctx, Event{Path: path, Outcome: OutcomeSkipped, Processed: res.Processed})
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.fail(ctx, res, path, importer.ReasonReadFailed, err)
		return
	}
	s.importPayload(ctx, res, path, filepath.Base(path), data)
}

func (s *Scanner) importPayload(ctx context.Context, res *Result, path, logical string, data []byte) {
	rec, err := s.importer.ImportOne(ctx, path, logical, data)
	if err != nil {
		s.fail(ctx, res, path, "import_failed", err)
		return
	}
	res.Imported = append(res.Imported, rec)
	s.emit(ctx, Event{Path: path, Outcome: OutcomeImported, Processed: res.Processed})
}

func (s *Scanner) fail(ctx context.Context, res *Result, path, reason string, err error) {
	var perr *importer.RomProcessingError
	if !errors.As(err, &perr) {
		err = &importer.RomProcessingError{File: path, Reason: reason, Cause: err}
	}
	res.Errors = append(res.Errors, err)
	logutil.GetLogger(ctx).Warn("process file failed", zap.String("file", path), zap.Error(err))
	s.emit(ctx, Event{Path: path, Outcome: OutcomeFailed, Processed: res.Processed, Err: err})
}

func (s *Scanner) emit(ctx context.Context, ev Event) {
	if s.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(ctx).Warn("scan progress listener panicked", zap.String("file", ev.Path), zap.Any("panic", r))
		}
	}()
	s.progress(ev)
}
