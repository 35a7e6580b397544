package db

import (
	"context"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
)

const hashCacheTableName = "file_hash_cache_tab"

var DigestCacheDao = NewDigestCacheDAO(Default)

// DigestCacheDAO remembers container digests of files on disk keyed by path and mtime.
type DigestCacheDAO struct {
	dbGetter DatabaseGetter
}

func NewDigestCacheDAO(getter DatabaseGetter) *DigestCacheDAO {
	return &DigestCacheDAO{dbGetter: getter}
}

// Lookup returns a cached digest for the location when the modification time matches.
func (dao *DigestCacheDAO) Lookup(ctx context.Context, location string, modTime int64) (string, bool, error) {
	db := dao.dbGetter()
	if db == nil {
		return "", false, nil
	}

	const query = `SELECT hash, file_modtime FROM file_hash_cache_tab WHERE location = ? LIMIT 1`
	rows, err := db.QueryContext(ctx, query, location)
	if err != nil {
		return "", false, fmt.Errorf("query digest cache: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	var (
		digest        string
		cachedModTime int64
	)
	if err := rows.Scan(&digest, &cachedModTime); err != nil {
		return "", false, fmt.Errorf("scan digest cache: %w", err)
	}
	return digest, cachedModTime == modTime, nil
}

// Store records the digest computed for location at modTime.
func (dao *DigestCacheDAO) Store(ctx context.Context, location string, modTime int64, digest string) error {
	db := dao.dbGetter()
	if db == nil {
		return ErrNotInitialised
	}
	insertSQL, insertArgs, err := builder.BuildInsert(hashCacheTableName, []map[string]interface{}{{
		"location":     location,
		"create_time":  time.Now().Unix(),
		"file_modtime": modTime,
		"hash":         digest,
	}})
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, insertSQL, insertArgs...)
	if err == nil {
		return nil
	}
	if !isUniqueConstraintError(err) {
		return fmt.Errorf("insert digest cache: %w", err)
	}
	updateSQL, updateArgs, err := builder.BuildUpdate(hashCacheTableName,
		map[string]interface{}{"location": location},
		map[string]interface{}{"file_modtime": modTime, "hash": digest},
	)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, updateSQL, updateArgs...); err != nil {
		return fmt.Errorf("update digest cache: %w", err)
	}
	return nil
}

// Prune deletes the entries whose location is rejected by keep and returns how many were removed.
func (dao *DigestCacheDAO) Prune(ctx context.Context, keep func(location string) bool) (int, error) {
	db := dao.dbGetter()
	if db == nil {
		return 0, ErrNotInitialised
	}
	rows, err := db.QueryContext(ctx, `SELECT location FROM file_hash_cache_tab`)
	if err != nil {
		return 0, fmt.Errorf("list digest cache: %w", err)
	}
	var stale []string
	for rows.Next() {
		var location string
		if err := rows.Scan(&location); err != nil {
			rows.Close()
			return 0, err
		}
		if !keep(location) {
			stale = append(stale, location)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	deleteSQL, args, err := builder.BuildDelete(hashCacheTableName, map[string]interface{}{"location in": stale})
	if err != nil {
		return 0, err
	}
	if _, err := db.ExecContext(ctx, deleteSQL, args...); err != nil {
		return 0, fmt.Errorf("delete digest cache entries: %w", err)
	}
	return len(stale), nil
}
