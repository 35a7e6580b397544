package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/romsync/internal/hasher"
)

// LocalTarget writes to a mounted directory.
type LocalTarget struct {
	root string
}

func NewLocalTarget(root string) *LocalTarget {
	return &LocalTarget{root: root}
}

// resolve maps rel onto the mount and refuses anything outside it.
func (t *LocalTarget) resolve(rel string) (string, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return "", err
	}
	full := filepath.Join(t.root, filepath.FromSlash(clean))
	r, err := filepath.Rel(t.root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	return full, nil
}

func (t *LocalTarget) Location(rel string) (string, error) {
	return t.resolve(rel)
}

func (t *LocalTarget) Exists(_ context.Context, rel string) (bool, error) {
	loc, err := t.resolve(rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(loc)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Put copies srcPath to rel; a failed copy leaves nothing behind.
func (t *LocalTarget) Put(_ context.Context, rel, srcPath string) (err error) {
	dst, err := t.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("ensure dest dir %s: %w", filepath.Dir(dst), err)
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create dest %s: %w", dst, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()
	if _, err = io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("write dest %s: %w", dst, err)
	}
	if err = out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync dest %s: %w", dst, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close dest %s: %w", dst, err)
	}
	return nil
}

func (t *LocalTarget) Checksum(_ context.Context, rel string) (string, error) {
	loc, err := t.resolve(rel)
	if err != nil {
		return "", err
	}
	return hasher.ContainerDigest(loc)
}

func (t *LocalTarget) Remove(_ context.Context, rel string) error {
	loc, err := t.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(loc); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (t *LocalTarget) RemoveAll(_ context.Context, relDir string) error {
	loc, err := t.resolve(relDir)
	if err != nil {
		return err
	}
	if loc == filepath.Clean(t.root) {
		return fmt.Errorf("refusing to clear device root %s", t.root)
	}
	return os.RemoveAll(loc)
}
