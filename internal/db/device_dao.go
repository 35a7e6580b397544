package db

import (
	"context"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/romsync/internal/model"
)

const deviceTableName = "device_tab"

var DeviceDao = NewDeviceDAO(Default)

// DeviceDAO stores registered sync destinations.
type DeviceDAO struct {
	dbGetter DatabaseGetter
}

func NewDeviceDAO(getter DatabaseGetter) *DeviceDAO {
	return &DeviceDAO{dbGetter: getter}
}

// Insert registers a device; names are unique.
func (dao *DeviceDAO) Insert(ctx context.Context, dev model.Device) (model.Device, error) {
	db := dao.dbGetter()
	if db == nil {
		return dev, ErrNotInitialised
	}
	dev.CreateTime = time.Now().Unix()
	insertSQL, args, err := builder.BuildInsert(deviceTableName, []map[string]interface{}{{
		"name":        dev.Name,
		"mount_path":  dev.MountPath,
		"profile_id":  dev.ProfileID,
		"create_time": dev.CreateTime,
	}})
	if err != nil {
		return dev, err
	}
	res, err := db.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return dev, fmt.Errorf("device %q already exists", dev.Name)
		}
		return dev, fmt.Errorf("insert device: %w", err)
	}
	if dev.ID, err = res.LastInsertId(); err != nil {
		return dev, err
	}
	return dev, nil
}

// Get returns the device with id.
func (dao *DeviceDAO) Get(ctx context.Context, id int64) (model.Device, error) {
	devs, err := dao.query(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return model.Device{}, err
	}
	if len(devs) == 0 {
		return model.Device{}, fmt.Errorf("device %d: %w", id, ErrRecordNotFound)
	}
	return devs[0], nil
}

// List returns every device ordered by id.
func (dao *DeviceDAO) List(ctx context.Context) ([]model.Device, error) {
	return dao.query(ctx, map[string]interface{}{"_orderby": "id asc"})
}

func (dao *DeviceDAO) query(ctx context.Context, where map[string]interface{}) ([]model.Device, error) {
	db := dao.dbGetter()
	if db == nil {
		return nil, ErrNotInitialised
	}
	query, args, err := builder.BuildSelect(deviceTableName, where, []string{"id", "name", "mount_path", "profile_id", "create_time"})
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()
	var result []model.Device
	for rows.Next() {
		var dev model.Device
		if err := rows.Scan(&dev.ID, &dev.Name, &dev.MountPath, &dev.ProfileID, &dev.CreateTime); err != nil {
			return nil, err
		}
		result = append(result, dev)
	}
	return result, rows.Err()
}
