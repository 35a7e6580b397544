package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bodgit/sevenzip"
)

func (e *Extractor) extractSevenZip(ctx context.Context, path string) (*Payload, error) {
	sr, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, openFailed(path, err)
	}
	defer sr.Close()

	tmpDir, err := os.MkdirTemp(e.tempRoot, "romsync-7z-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir for %s: %w", path, err)
	}
	defer os.RemoveAll(tmpDir)

	m := &matcher{e: e, path: path}
	var (
		extracted string
		entryPath string
	)
	for _, f := range sr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := m.consider(entryInfo{name: f.Name, isDir: f.FileInfo().IsDir(), size: f.UncompressedSize})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		target := filepath.Join(tmpDir, entryBase(f.Name))
		if err := e.extractSevenZipEntry(path, f, target); err != nil {
			return nil, err
		}
		extracted = target
		entryPath = f.Name
	}
	if extracted == "" {
		return nil, nil
	}

	data, err := os.ReadFile(extracted)
	if err != nil {
		return nil, readFailed(path, entryPath, err)
	}
	return &Payload{LogicalFilename: entryBase(entryPath), EntryPath: entryPath, Data: data}, nil
}

func (e *Extractor) extractSevenZipEntry(path string, f *sevenzip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return readFailed(path, f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return readFailed(path, f.Name, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, e.maxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return readFailed(path, f.Name, err)
	}
	if n > e.maxEntrySize {
		return readFailed(path, f.Name, fmt.Errorf("entry exceeds limit %d", e.maxEntrySize))
	}
	return nil
}
