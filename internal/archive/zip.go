package archive

import (
	"context"

	"github.com/klauspost/compress/zip"
)

func (e *Extractor) extractZip(ctx context.Context, path string) (*Payload, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, openFailed(path, err)
	}
	defer zr.Close()

	m := &matcher{e: e, path: path}
	var payload *Payload
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := m.consider(entryInfo{name: f.Name, isDir: f.FileInfo().IsDir(), size: f.UncompressedSize64})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, err := e.readZipEntry(path, f)
		if err != nil {
			return nil, err
		}
		payload = &Payload{LogicalFilename: entryBase(f.Name), EntryPath: f.Name, Data: data}
	}
	return payload, nil
}

func (e *Extractor) readZipEntry(path string, f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, readFailed(path, f.Name, err)
	}
	defer rc.Close()
	return e.readAll(path, f.Name, rc)
}
