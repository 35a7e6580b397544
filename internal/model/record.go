package model

import (
	"encoding/json"
	"strings"
)

// Region is the release region inferred from filename tags.
type Region string

const (
	RegionUnknown     Region = "Unknown"
	RegionUSA         Region = "USA"
	RegionEurope      Region = "Europe"
	RegionJapan       Region = "Japan"
	RegionWorld       Region = "World"
	RegionKorea       Region = "Korea"
	RegionChina       Region = "China"
	RegionTaiwan      Region = "Taiwan"
	RegionHongKong    Region = "Hong Kong"
	RegionAsia        Region = "Asia"
	RegionBrazil      Region = "Brazil"
	RegionAustralia   Region = "Australia"
	RegionCanada      Region = "Canada"
	RegionFrance      Region = "France"
	RegionGermany     Region = "Germany"
	RegionSpain       Region = "Spain"
	RegionItaly       Region = "Italy"
	RegionNetherlands Region = "Netherlands"
	RegionSweden      Region = "Sweden"
	RegionRussia      Region = "Russia"
)

// HashSet carries the three digests computed for a ROM.
type HashSet struct {
	// IdentificationDigest is empty when the console is unknown.
	IdentificationDigest string `json:"identification_digest,omitempty"`
	ContentDigest        string `json:"content_digest"`
	ContainerDigest      string `json:"container_digest"`
}

// CatalogRecord is one identified ROM stored in the catalog.
type CatalogRecord struct {
	ID          int64    `json:"id"`
	SystemCode  string   `json:"system_code"`
	DisplayName string   `json:"display_name"`
	SortName    string   `json:"sort_name"`
	Region      Region   `json:"region"`
	FilePath    string   `json:"file_path"`
	FileName    string   `json:"file_name"`
	RomFileName string   `json:"rom_file_name"`
	Size        int64    `json:"size"`
	Hashes      HashSet  `json:"hashes"`
	Verified    bool     `json:"verified"`
	Tags        []string `json:"tags,omitempty"`
	Favorite    bool     `json:"favorite"`
	Notes       string   `json:"notes,omitempty"`
	CreateTime  int64    `json:"create_time"`
	UpdateTime  int64    `json:"update_time"`
}

// RecordPatch lists the mutable fields of a record; nil fields are left untouched.
type RecordPatch struct {
	DisplayName          *string
	SortName             *string
	Region               *Region
	Favorite             *bool
	Notes                *string
	IdentificationDigest *string
	Verified             *bool
}

// Tag groups catalog records for filtering sync sets.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Device is a registered sync destination.
type Device struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	MountPath  string `json:"mount_path"`
	ProfileID  string `json:"profile_id"`
	CreateTime int64  `json:"create_time"`
}

// SystemStat aggregates catalog content per system.
type SystemStat struct {
	SystemCode string `json:"system_code"`
	Count      int64  `json:"count"`
	Verified   int64  `json:"verified"`
	TotalSize  int64  `json:"total_size"`
}

// CatalogStats summarises the whole catalog.
type CatalogStats struct {
	Count     int64        `json:"count"`
	Verified  int64        `json:"verified"`
	Favorites int64        `json:"favorites"`
	TotalSize int64        `json:"total_size"`
	Systems   []SystemStat `json:"systems"`
}

type recordExtInfo struct {
	Notes string `json:"notes,omitempty"`
}

// MarshalExtInfo packs loosely structured fields into the ext_info column.
func (r CatalogRecord) MarshalExtInfo() (string, error) {
	data, err := json.Marshal(recordExtInfo{Notes: r.Notes})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ApplyExtInfo restores fields stored in ext_info.
func (r *CatalogRecord) ApplyExtInfo(extInfo string) error {
	if strings.TrimSpace(extInfo) == "" {
		return nil
	}
	var payload recordExtInfo
	if err := json.Unmarshal([]byte(extInfo), &payload); err != nil {
		return err
	}
	r.Notes = payload.Notes
	return nil
}
