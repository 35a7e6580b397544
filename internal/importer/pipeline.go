package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/romsync/internal/db"
	"github.com/xxxsen/romsync/internal/hashdb"
	"github.com/xxxsen/romsync/internal/hasher"
	"github.com/xxxsen/romsync/internal/model"
	"github.com/xxxsen/romsync/internal/naming"
	"github.com/xxxsen/romsync/internal/system"
)

// CatalogStore is the part of the catalog the pipeline writes to.
type CatalogStore interface {
	FindByContentDigest(ctx context.Context, digest string) (*model.CatalogRecord, bool, error)
	Insert(ctx context.Context, rec model.CatalogRecord) (model.CatalogRecord, error)
}

// GameLookup resolves identification digests to known games.
type GameLookup interface {
	Lookup(ctx context.Context, consoleID int, digest string) (hashdb.GameRecord, bool, error)
}

// DigestCache remembers container digests between runs.
type DigestCache interface {
	Lookup(ctx context.Context, location string, modTime int64) (string, bool, error)
	Store(ctx context.Context, location string, modTime int64, digest string) error
}

// Identity is what the pipeline learns about a payload before it is cataloged.
type Identity struct {
	System               system.System
	IdentificationDigest string
	ContentDigest        string
	Title                string
	Verified             bool
	Note                 string
}

// Pipeline turns one ROM payload into a catalog record.
type Pipeline struct {
	store  CatalogStore
	lookup GameLookup
	cache  DigestCache
}

type Option func(*Pipeline)

// WithDigestCache reuses container digests of unchanged files.
func WithDigestCache(c DigestCache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// NewPipeline builds a pipeline; lookup may be nil, every payload is then unverified.
func NewPipeline(store CatalogStore, lookup GameLookup, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, lookup: lookup}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identify resolves the system, digests and canonical title of a payload.
func (p *Pipeline) Identify(ctx context.Context, logicalFilename string, payload []byte) (Identity, error) {
	ext := filepath.Ext(logicalFilename)
	code, ok := system.FromExtension(ext)
	if !ok {
		return Identity{}, processingError(logicalFilename, ReasonUnsupportedExtension,
			&UnsupportedExtensionError{File: logicalFilename, Ext: ext})
	}
	sys, _ := system.Lookup(code)
	id := Identity{
		System:        sys,
		ContentDigest: hasher.ContentDigest(payload),
	}
	if sys.ConsoleID == 0 {
		return id, nil
	}

	ident, err := hasher.Identify(sys.Kind, logicalFilename, payload)
	if err != nil {
		reason := ReasonHashFailed
		if errors.Is(err, hasher.ErrMalformedRom) {
			reason = ReasonMalformedRom
		}
		return Identity{}, processingError(logicalFilename, reason, err)
	}
	id.IdentificationDigest = ident.Digest
	id.Note = ident.Note

	if p.lookup == nil {
		return id, nil
	}
	game, found, err := p.lookup.Lookup(ctx, sys.ConsoleID, ident.Digest)
	if err != nil {
		return Identity{}, processingError(logicalFilename, ReasonLookupFailed, err)
	}
	if found {
		id.Title = game.Title
		id.Verified = true
	}
	return id, nil
}

// ImportOne identifies the payload read from filePath and stores it in the catalog.
// logicalFilename differs from the base of filePath when the payload came out of an archive.
func (p *Pipeline) ImportOne(ctx context.Context, filePath, logicalFilename string, payload []byte) (*model.CatalogRecord, error) {
	id, err := p.Identify(ctx, logicalFilename, payload)
	if err != nil {
		return nil, err
	}
	if id.Note != "" {
		logutil.GetLogger(ctx).Warn("identification note",
			zap.String("file", filePath),
			zap.String("note", id.Note),
		)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, processingError(filePath, ReasonReadFailed, err)
	}
	containerDigest, err := p.containerDigest(ctx, filePath, info)
	if err != nil {
		return nil, processingError(filePath, ReasonHashFailed, err)
	}

	displayName := id.Title
	if displayName == "" {
		displayName = naming.CleanDisplayName(logicalFilename)
	}
	region := naming.DetectRegion(logicalFilename)
	if region == model.RegionUnknown && logicalFilename != filepath.Base(filePath) {
		region = naming.DetectRegion(filepath.Base(filePath))
	}

	if existing, found, err := p.store.FindByContentDigest(ctx, id.ContentDigest); err != nil {
		return nil, err
	} else if found {
		return nil, processingError(filePath, ReasonDuplicateRom, &DuplicateRomError{
			File:         filePath,
			Digest:       id.ContentDigest,
			ExistingID:   existing.ID,
			ExistingFile: existing.FilePath,
		})
	}

	rec := model.CatalogRecord{
		SystemCode:  string(id.System.Code),
		DisplayName: displayName,
		SortName:    naming.SortKey(displayName),
		Region:      region,
		FilePath:    filePath,
		FileName:    filepath.Base(filePath),
		RomFileName: logicalFilename,
		Size:        info.Size(),
		Hashes: model.HashSet{
			IdentificationDigest: id.IdentificationDigest,
			ContentDigest:        id.ContentDigest,
			ContainerDigest:      containerDigest,
		},
		Verified: id.Verified,
	}
	stored, err := p.store.Insert(ctx, rec)
	if errors.Is(err, db.ErrDuplicateContent) {
		// lost a race against another insert of the same content
		if existing, found, ferr := p.store.FindByContentDigest(ctx, id.ContentDigest); ferr == nil && found {
			return nil, processingError(filePath, ReasonDuplicateRom, &DuplicateRomError{
				File:         filePath,
				Digest:       id.ContentDigest,
				ExistingID:   existing.ID,
				ExistingFile: existing.FilePath,
			})
		}
	}
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Debug("rom imported",
		zap.String("file", filePath),
		zap.String("system", stored.SystemCode),
		zap.String("name", stored.DisplayName),
		zap.Bool("verified", stored.Verified),
	)
	return &stored, nil
}

func (p *Pipeline) containerDigest(ctx context.Context, filePath string, info os.FileInfo) (string, error) {
	modTime := info.ModTime().UnixNano()
	if p.cache != nil {
		if digest, ok, err := p.cache.Lookup(ctx, filePath, modTime); err == nil && ok {
			return digest, nil
		}
	}
	digest, err := hasher.ContainerDigest(filePath)
	if err != nil {
		return "", fmt.Errorf("container digest: %w", err)
	}
	if p.cache != nil {
		if err := p.cache.Store(ctx, filePath, modTime, digest); err != nil {
			logutil.GetLogger(ctx).Warn("store container digest failed", zap.String("file", filePath), zap.Error(err))
		}
	}
	return digest, nil
}
