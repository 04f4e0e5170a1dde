package sqlite

import "time"

type urlRow struct {
	ID        int64  `gorm:"primaryKey"`
	URL       string `gorm:"column:url;uniqueIndex;not null"`
	Processed bool   `gorm:"not null;default:false"`
}

func (urlRow) TableName() string { return "urls" }

type tagRow struct {
	ID  int64  `gorm:"primaryKey"`
	Tag string `gorm:"uniqueIndex;not null"`
}

func (tagRow) TableName() string { return "location_tags" }

type buildingRow struct {
	ID          int64  `gorm:"primaryKey"`
	Address     string `gorm:"uniqueIndex;not null"`
	Built       *time.Time
	TotalFloors *int
	HasLift     *bool
	MapURL      string `gorm:"column:map_url;not null;default:''"`
	Lat         float64
	Lng         float64
}

func (buildingRow) TableName() string { return "buildings" }

type buildingLocationRow struct {
	BuildingID int64 `gorm:"primaryKey;autoIncrement:false"`
	LocationID int64 `gorm:"primaryKey;autoIncrement:false"`
}

func (buildingLocationRow) TableName() string { return "building_location" }

type apartmentRow struct {
	ID            int64 `gorm:"primaryKey"`
	BuildingID    int64 `gorm:"not null;index:apartments_fingerprint_idx,priority:1"`
	PropertyType  string
	Rooms         *int `gorm:"index:apartments_fingerprint_idx,priority:2"`
	LivingSpace   *int `gorm:"index:apartments_fingerprint_idx,priority:3"`
	HasBalcony    *bool
	Floor         *int `gorm:"index:apartments_fingerprint_idx,priority:4"`
	Avgift        *int
	Driftskostnad *int
}

func (apartmentRow) TableName() string { return "apartments" }

type saleRow struct {
	ID          int64     `gorm:"primaryKey"`
	ApartmentID int64     `gorm:"not null"`
	URLID       int64     `gorm:"column:url_id;not null"`
	SaleDate    time.Time `gorm:"not null"`
	AskedPrice  *int
	SoldPrice   *int
}

func (saleRow) TableName() string { return "sales" }
