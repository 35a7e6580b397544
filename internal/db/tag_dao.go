package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/xxxsen/common/database"

	"github.com/xxxsen/romsync/internal/model"
)

const (
	tagTableName    = "tag_tab"
	romTagTableName = "rom_tag_tab"
)

var TagDao = NewTagDAO(Default)

// TagDAO manages tags and their links to catalog records.
type TagDAO struct {
	dbGetter DatabaseGetter
}

func NewTagDAO(getter DatabaseGetter) *TagDAO {
	return &TagDAO{dbGetter: getter}
}

// Ensure returns the tag named name, creating it on first use.
func (dao *TagDAO) Ensure(ctx context.Context, name string) (model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tag{}, fmt.Errorf("tag name is required")
	}
	db := dao.dbGetter()
	if db == nil {
		return model.Tag{}, ErrNotInitialised
	}
	insertSQL, args, err := builder.BuildInsert(tagTableName, []map[string]interface{}{{
		"name":        name,
		"create_time": time.Now().Unix(),
	}})
	if err != nil {
		return model.Tag{}, err
	}
	tag := model.Tag{Name: name}
	err = db.OnTransation(ctx, func(ctx context.Context, tx database.IQueryExecer) error {
		if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil && !isUniqueConstraintError(err) {
			return fmt.Errorf("insert tag %s: %w", name, err)
		}
		if err := queryRow(ctx, tx, `SELECT id FROM tag_tab WHERE name = ?`, []interface{}{name}, &tag.ID); err != nil {
			return fmt.Errorf("query tag %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return model.Tag{}, err
	}
	return tag, nil
}

// List returns every tag ordered by name.
func (dao *TagDAO) List(ctx context.Context) ([]model.Tag, error) {
	db := dao.dbGetter()
	if db == nil {
		return nil, ErrNotInitialised
	}
	query, args, err := builder.BuildSelect(tagTableName, map[string]interface{}{"_orderby": "name asc"}, []string{"id", "name"})
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	var result []model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		result = append(result, tag)
	}
	return result, rows.Err()
}

// Attach links a record to a tag; linking twice is a no-op.
func (dao *TagDAO) Attach(ctx context.Context, romID, tagID int64) error {
	db := dao.dbGetter()
	if db == nil {
		return ErrNotInitialised
	}
	insertSQL, args, err := builder.BuildInsert(romTagTableName, []map[string]interface{}{{
		"rom_id":      romID,
		"tag_id":      tagID,
		"create_time": time.Now().Unix(),
	}})
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, insertSQL, args...); err != nil && !isUniqueConstraintError(err) {
		return fmt.Errorf("attach tag %d to rom %d: %w", tagID, romID, err)
	}
	return nil
}

// Detach removes the link between a record and a tag.
func (dao *TagDAO) Detach(ctx context.Context, romID, tagID int64) error {
	db := dao.dbGetter()
	if db == nil {
		return ErrNotInitialised
	}
	delSQL, args, err := builder.BuildDelete(romTagTableName, map[string]interface{}{"rom_id": romID, "tag_id": tagID})
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, delSQL, args...); err != nil {
		return fmt.Errorf("detach tag %d from rom %d: %w", tagID, romID, err)
	}
	return nil
}
