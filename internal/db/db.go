package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	gsqlite "github.com/glebarez/go-sqlite"
	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var defaultDB database.IDatabase

// DatabaseGetter returns a database handle. Used to defer retrieval until first use.
type DatabaseGetter func() database.IDatabase

// ErrNotInitialised is returned by DAOs used before SetDefault.
var ErrNotInitialised = errors.New("database not initialised")

// connection pragmas travel in the dsn so a recycled connection gets them too
var connPragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rom_tab (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	system_code VARCHAR(16) NOT NULL,
	display_name VARCHAR(256) NOT NULL,
	sort_name VARCHAR(256) NOT NULL,
	region VARCHAR(32) NOT NULL,
	file_path VARCHAR(1024) NOT NULL,
	file_name VARCHAR(256) NOT NULL,
	rom_file_name VARCHAR(256) NOT NULL,
	rom_size BIGINT NOT NULL,
	ident_md5 VARCHAR(32) NOT NULL,
	content_md5 VARCHAR(32) NOT NULL,
	container_crc VARCHAR(8) NOT NULL,
	verified INTEGER NOT NULL DEFAULT 0,
	favorite INTEGER NOT NULL DEFAULT 0,
	create_time BIGINT NOT NULL,
	update_time BIGINT NOT NULL,
	ext_info VARCHAR(2048) NOT NULL
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_rom_tab_content_md5 ON rom_tab(content_md5);`,
	`CREATE INDEX IF NOT EXISTS idx_rom_tab_system_code ON rom_tab(system_code);`,
	`CREATE TABLE IF NOT EXISTS tag_tab (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name VARCHAR(64) NOT NULL,
	create_time BIGINT NOT NULL
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tag_tab_name ON tag_tab(name);`,
	`CREATE TABLE IF NOT EXISTS rom_tag_tab (
	rom_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	create_time BIGINT NOT NULL,
	PRIMARY KEY (rom_id, tag_id)
);`,
	`CREATE INDEX IF NOT EXISTS idx_rom_tag_tab_tag ON rom_tag_tab(tag_id);`,
	`CREATE TABLE IF NOT EXISTS device_tab (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name VARCHAR(128) NOT NULL,
	mount_path VARCHAR(1024) NOT NULL,
	profile_id VARCHAR(64) NOT NULL,
	create_time BIGINT NOT NULL
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_device_tab_name ON device_tab(name);`,
	`CREATE TABLE IF NOT EXISTS profile_tab (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(128) NOT NULL,
	content TEXT NOT NULL,
	create_time BIGINT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS file_hash_cache_tab (
	location VARCHAR(1024) PRIMARY KEY,
	file_modtime BIGINT NOT NULL,
	hash VARCHAR(32) NOT NULL,
	create_time BIGINT NOT NULL
);`,
}

// Open connects to the sqlite catalog at path and applies the schema.
func Open(ctx context.Context, path string) (database.IDatabase, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}
	db, err := sqlite.New(dsn(path), func(db database.IDatabase) error {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("enable wal: %w", err)
		}
		return nil
	}, func(db database.IDatabase) error {
		if err := EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// SetDefault assigns the global database instance.
func SetDefault(db database.IDatabase) {
	defaultDB = db
}

// Default returns the configured global database instance.
func Default() database.IDatabase {
	return defaultDB
}

// EnsureSchema initialises required tables and indexes.
func EnsureSchema(ctx context.Context, db database.IDatabase) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var serr *gsqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// queryRow runs a single-row query; sql.ErrNoRows when nothing matches.
func queryRow(ctx context.Context, q database.IQueryer, query string, args []interface{}, dest ...interface{}) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	return rows.Close()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
