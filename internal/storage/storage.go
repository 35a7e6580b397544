package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	appconfig "github.com/xxxsen/romsync/internal/config"
)

// Target is the destination filesystem of a device. Paths are slash separated
// and relative to the device mount.
type Target interface {
	Exists(ctx context.Context, rel string) (bool, error)
	Put(ctx context.Context, rel, srcPath string) error
	// Checksum returns the container digest of the stored file.
	Checksum(ctx context.Context, rel string) (string, error)
	Remove(ctx context.Context, rel string) error
	RemoveAll(ctx context.Context, relDir string) error
	// Location returns where rel lives on the device, for messages.
	Location(rel string) (string, error)
}

// ErrOutsideRoot is returned for paths that climb above the device mount.
var ErrOutsideRoot = errors.New("path escapes device root")

// cleanRel normalises rel to a slash path below the mount; "." is the mount itself.
func cleanRel(rel string) (string, error) {
	p := path.Clean(strings.TrimLeft(strings.ReplaceAll(rel, "\\", "/"), "/"))
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	return p, nil
}

const s3Scheme = "s3://"

// Open picks the target for a device mount: s3://bucket/prefix or a local directory.
func Open(ctx context.Context, mount string, cfg appconfig.S3Config) (Target, error) {
	mount = strings.TrimSpace(mount)
	if mount == "" {
		return nil, fmt.Errorf("device mount is empty")
	}
	if !strings.HasPrefix(strings.ToLower(mount), s3Scheme) {
		return NewLocalTarget(mount), nil
	}
	u, err := url.Parse(mount)
	if err != nil {
		return nil, fmt.Errorf("parse mount %s: %w", mount, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("mount %s has no bucket", mount)
	}
	return NewS3Target(ctx, cfg, u.Host, strings.Trim(u.Path, "/"))
}
