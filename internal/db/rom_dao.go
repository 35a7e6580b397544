package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/xxxsen/common/database"

	"github.com/xxxsen/romsync/internal/model"
)

const romTableName = "rom_tab"

// ErrDuplicateContent is returned when an insert collides with the content digest index.
var ErrDuplicateContent = errors.New("content digest already cataloged")

// ErrRecordNotFound is returned by lookups on missing ids.
var ErrRecordNotFound = errors.New("record not found")

var romFields = []string{
	"id", "system_code", "display_name", "sort_name", "region", "file_path", "file_name",
	"rom_file_name", "rom_size", "ident_md5", "content_md5", "container_crc", "verified",
	"favorite", "create_time", "update_time", "ext_info",
}

var RomDao = NewRomDAO(Default)

// RomDAO stores catalog records.
type RomDAO struct {
	dbGetter DatabaseGetter
}

// NewRomDAO builds a DAO resolving its handle through getter.
func NewRomDAO(getter DatabaseGetter) *RomDAO {
	return &RomDAO{dbGetter: getter}
}

func (dao *RomDAO) db() (database.IDatabase, error) {
	db := dao.dbGetter()
	if db == nil {
		return nil, ErrNotInitialised
	}
	return db, nil
}

// FindByContentDigest returns the record owning digest, if any.
func (dao *RomDAO) FindByContentDigest(ctx context.Context, digest string) (*model.CatalogRecord, bool, error) {
	recs, err := dao.query(ctx, map[string]interface{}{"content_md5": strings.ToLower(digest), "_limit": []uint{1}})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return &recs[0], true, nil
}

// Get returns the record with id.
func (dao *RomDAO) Get(ctx context.Context, id int64) (*model.CatalogRecord, error) {
	recs, err := dao.query(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("rom %d: %w", id, ErrRecordNotFound)
	}
	return &recs[0], nil
}

// Insert stores rec and returns it with id and timestamps filled.
func (dao *RomDAO) Insert(ctx context.Context, rec model.CatalogRecord) (model.CatalogRecord, error) {
	db, err := dao.db()
	if err != nil {
		return rec, err
	}
	extInfo, err := rec.MarshalExtInfo()
	if err != nil {
		return rec, err
	}
	now := time.Now().Unix()
	rec.CreateTime = now
	rec.UpdateTime = now
	rec.Hashes.ContentDigest = strings.ToLower(rec.Hashes.ContentDigest)
	payload := []map[string]interface{}{{
		"system_code":   rec.SystemCode,
		"display_name":  rec.DisplayName,
		"sort_name":     rec.SortName,
		"region":        string(rec.Region),
		"file_path":     rec.FilePath,
		"file_name":     rec.FileName,
		"rom_file_name": rec.RomFileName,
		"rom_size":      rec.Size,
		"ident_md5":     rec.Hashes.IdentificationDigest,
		"content_md5":   rec.Hashes.ContentDigest,
		"container_crc": rec.Hashes.ContainerDigest,
		"verified":      boolToInt(rec.Verified),
		"favorite":      boolToInt(rec.Favorite),
		"create_time":   now,
		"update_time":   now,
		"ext_info":      extInfo,
	}}
	insertSQL, args, err := builder.BuildInsert(romTableName, payload)
	if err != nil {
		return rec, err
	}
	res, err := db.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rec, fmt.Errorf("insert rom %s: %w", rec.Hashes.ContentDigest, ErrDuplicateContent)
		}
		return rec, fmt.Errorf("insert rom: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return rec, err
	}
	return rec, nil
}

// Update applies the non-nil fields of patch to the record with id.
func (dao *RomDAO) Update(ctx context.Context, id int64, patch model.RecordPatch) error {
	db, err := dao.db()
	if err != nil {
		return err
	}
	update := map[string]interface{}{}
	if patch.DisplayName != nil {
		update["display_name"] = *patch.DisplayName
	}
	if patch.SortName != nil {
		update["sort_name"] = *patch.SortName
	}
	if patch.Region != nil {
		update["region"] = string(*patch.Region)
	}
	if patch.Favorite != nil {
		update["favorite"] = boolToInt(*patch.Favorite)
	}
	if patch.IdentificationDigest != nil {
		update["ident_md5"] = *patch.IdentificationDigest
	}
	if patch.Verified != nil {
		update["verified"] = boolToInt(*patch.Verified)
	}
	if patch.Notes != nil {
		rec := model.CatalogRecord{Notes: *patch.Notes}
		extInfo, err := rec.MarshalExtInfo()
		if err != nil {
			return err
		}
		update["ext_info"] = extInfo
	}
	if len(update) == 0 {
		return nil
	}
	update["update_time"] = time.Now().Unix()
	updateSQL, args, err := builder.BuildUpdate(romTableName, map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, updateSQL, args...)
	if err != nil {
		return fmt.Errorf("update rom %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update rom %d: %w", id, ErrRecordNotFound)
	}
	return nil
}

// Remove deletes the records and their tag links.
func (dao *RomDAO) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	db, err := dao.db()
	if err != nil {
		return err
	}
	return db.OnTransation(ctx, func(ctx context.Context, tx database.IQueryExecer) error {
		linkSQL, linkArgs, err := builder.BuildDelete(romTagTableName, map[string]interface{}{"rom_id in": ids})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, linkSQL, linkArgs...); err != nil {
			return fmt.Errorf("delete rom tags: %w", err)
		}
		delSQL, delArgs, err := builder.BuildDelete(romTableName, map[string]interface{}{"id in": ids})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
			return fmt.Errorf("delete roms: %w", err)
		}
		return nil
	})
}

// List returns every record ordered by id.
func (dao *RomDAO) List(ctx context.Context) ([]model.CatalogRecord, error) {
	return dao.listWithTags(ctx, map[string]interface{}{})
}

// ListBySystem returns the records of one system.
func (dao *RomDAO) ListBySystem(ctx context.Context, code string) ([]model.CatalogRecord, error) {
	return dao.listWithTags(ctx, map[string]interface{}{"system_code": code})
}

// ListByTags returns records carrying any of tagIDs; an empty filter lists everything.
func (dao *RomDAO) ListByTags(ctx context.Context, tagIDs []int64) ([]model.CatalogRecord, error) {
	if len(tagIDs) == 0 {
		return dao.List(ctx)
	}
	db, err := dao.db()
	if err != nil {
		return nil, err
	}
	linkSQL, linkArgs, err := builder.BuildSelect(romTagTableName, map[string]interface{}{"tag_id in": tagIDs}, []string{"rom_id"})
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, linkSQL, linkArgs...)
	if err != nil {
		return nil, fmt.Errorf("query rom tags: %w", err)
	}
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	// the single connection must be released before the follow-up queries
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return dao.listWithTags(ctx, map[string]interface{}{"id in": ids})
}

// Stats aggregates counts and sizes over the catalog.
func (dao *RomDAO) Stats(ctx context.Context) (model.CatalogStats, error) {
	var stats model.CatalogStats
	db, err := dao.db()
	if err != nil {
		return stats, err
	}
	const totalSQL = `SELECT COUNT(*), COALESCE(SUM(rom_size), 0), COALESCE(SUM(verified), 0), COALESCE(SUM(favorite), 0) FROM rom_tab`
	if err := queryRow(ctx, db, totalSQL, nil, &stats.Count, &stats.TotalSize, &stats.Verified, &stats.Favorites); err != nil {
		return stats, fmt.Errorf("query catalog totals: %w", err)
	}
	const bySystemSQL = `SELECT system_code, COUNT(*), COALESCE(SUM(verified), 0), COALESCE(SUM(rom_size), 0) FROM rom_tab GROUP BY system_code ORDER BY system_code`
	rows, err := db.QueryContext(ctx, bySystemSQL)
	if err != nil {
		return stats, fmt.Errorf("query system stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s model.SystemStat
		if err := rows.Scan(&s.SystemCode, &s.Count, &s.Verified, &s.TotalSize); err != nil {
			return stats, err
		}
		stats.Systems = append(stats.Systems, s)
	}
	return stats, rows.Err()
}

func (dao *RomDAO) listWithTags(ctx context.Context, where map[string]interface{}) ([]model.CatalogRecord, error) {
	where["_orderby"] = "id asc"
	recs, err := dao.query(ctx, where)
	if err != nil || len(recs) == 0 {
		return recs, err
	}
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	tags, err := dao.tagNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Tags = tags[recs[i].ID]
	}
	return recs, nil
}

func (dao *RomDAO) query(ctx context.Context, where map[string]interface{}) ([]model.CatalogRecord, error) {
	db, err := dao.db()
	if err != nil {
		return nil, err
	}
	query, args, err := builder.BuildSelect(romTableName, where, romFields)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query roms: %w", err)
	}
	defer rows.Close()

	var result []model.CatalogRecord
	for rows.Next() {
		var (
			rec      model.CatalogRecord
			region   string
			verified int
			favorite int
			extInfo  string
		)
		if err := rows.Scan(&rec.ID, &rec.SystemCode, &rec.DisplayName, &rec.SortName, &region,
			&rec.FilePath, &rec.FileName, &rec.RomFileName, &rec.Size,
			&rec.Hashes.IdentificationDigest, &rec.Hashes.ContentDigest, &rec.Hashes.ContainerDigest,
			&verified, &favorite, &rec.CreateTime, &rec.UpdateTime, &extInfo); err != nil {
			return nil, fmt.Errorf("scan rom: %w", err)
		}
		rec.Region = model.Region(region)
		rec.Verified = verified != 0
		rec.Favorite = favorite != 0
		if err := rec.ApplyExtInfo(extInfo); err != nil {
			return nil, fmt.Errorf("decode ext info of rom %d: %w", rec.ID, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (dao *RomDAO) tagNames(ctx context.Context, romIDs []int64) (map[int64][]string, error) {
	db, err := dao.db()
	if err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(romIDs)), ",")
	query := `SELECT rt.rom_id, t.name FROM rom_tag_tab rt JOIN tag_tab t ON t.id = rt.tag_id WHERE rt.rom_id IN (` + placeholders + `) ORDER BY t.name`
	args := make([]interface{}, 0, len(romIDs))
	for _, id := range romIDs {
		args = append(args, id)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tag names: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]string, len(romIDs))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}
