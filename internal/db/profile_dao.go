package db

import (
	"context"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
)

const profileTableName = "profile_tab"

var ProfileDao = NewProfileDAO(Default)

// StoredProfile is a validated device profile draft persisted as JSON.
type StoredProfile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	CreateTime int64  `json:"create_time"`
}

// ProfileDAO persists user supplied device profiles.
type ProfileDAO struct {
	dbGetter DatabaseGetter
}

func NewProfileDAO(getter DatabaseGetter) *ProfileDAO {
	return &ProfileDAO{dbGetter: getter}
}

// Insert stores a profile; ids are unique.
func (dao *ProfileDAO) Insert(ctx context.Context, p StoredProfile) error {
	db := dao.dbGetter()
	if db == nil {
		return ErrNotInitialised
	}
	insertSQL, args, err := builder.BuildInsert(profileTableName, []map[string]interface{}{{
		"id":          p.ID,
		"name":        p.Name,
		"content":     p.Content,
		"create_time": time.Now().Unix(),
	}})
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, insertSQL, args...); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("profile %q already exists", p.ID)
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// Get returns the profile with id.
func (dao *ProfileDAO) Get(ctx context.Context, id string) (StoredProfile, error) {
	list, err := dao.query(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return StoredProfile{}, err
	}
	if len(list) == 0 {
		return StoredProfile{}, fmt.Errorf("profile %s: %w", id, ErrRecordNotFound)
	}
	return list[0], nil
}

// List returns every stored profile ordered by name.
func (dao *ProfileDAO) List(ctx context.Context) ([]StoredProfile, error) {
	return dao.query(ctx, map[string]interface{}{"_orderby": "name asc"})
}

func (dao *ProfileDAO) query(ctx context.Context, where map[string]interface{}) ([]StoredProfile, error) {
	db := dao.dbGetter()
	if db == nil {
		return nil, ErrNotInitialised
	}
	query, args, err := builder.BuildSelect(profileTableName, where, []string{"id", "name", "content", "create_time"})
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()
	var result []StoredProfile
	for rows.Next() {
		var p StoredProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Content, &p.CreateTime); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
