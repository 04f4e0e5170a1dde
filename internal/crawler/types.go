package crawler

import (
	"time"

	"github.com/paulmach/orb"
)

// URL is a discovered detail page tracked for resumability.
type URL struct {
	ID        int64  `json:"id"`
	Address   string `json:"address"`
	Processed bool   `json:"processed"`
}

// LocationTag is a free-text area label attached to buildings.
type LocationTag struct {
	ID  int64  `json:"id"`
	Tag string `json:"tag"`
}

// Building is identified by its street address.
type Building struct {
	ID          int64      `json:"id"`
	Address     string     `json:"address"`
	Built       *time.Time `json:"built,omitempty"`
	TotalFloors *int       `json:"total_floors,omitempty"`
	HasLift     *bool      `json:"has_lift,omitempty"`
	MapURL      string     `json:"map_url"`
	// Location holds the coordinate pair as (lng, lat).
	Location orb.Point     `json:"location"`
	Tags     []LocationTag `json:"tags,omitempty"`
}

// Lat returns the building latitude.
func (b Building) Lat() float64 { return b.Location.Lat() }

// Lng returns the building longitude.
func (b Building) Lng() float64 { return b.Location.Lon() }

// Apartment belongs to exactly one Building.
type Apartment struct {
	ID            int64  `json:"id"`
	BuildingID    int64  `json:"building_id"`
	PropertyType  string `json:"property_type"`
	Rooms         *int   `json:"rooms,omitempty"`
	LivingSpace   *int   `json:"living_space,omitempty"`
	HasBalcony    *bool  `json:"has_balcony,omitempty"`
	Floor         *int   `json:"floor,omitempty"`
	Avgift        *int   `json:"avgift,omitempty"`
	Driftskostnad *int   `json:"driftskostnad,omitempty"`
}

// Sale is a single sale event sourced from one detail page.
type Sale struct {
	ID          int64     `json:"id"`
	ApartmentID int64     `json:"apartment_id"`
	URLID       int64     `json:"url_id"`
	SaleDate    time.Time `json:"sale_date"`
	AskedPrice  *int      `json:"asked_price,omitempty"`
	SoldPrice   *int      `json:"sold_price,omitempty"`
}

// ListingRecord is the normalized output of a detail page parse.
type ListingRecord struct {
	Address       string
	PropertyType  string
	Rooms         *int
	LivingSpace   *int
	Avgift        *int
	Driftskostnad *int
	Built         *time.Time
	Floor         *int
	TotalFloors   *int
	HasBalcony    *bool
	HasLift       bool
	SaleDate      time.Time
	AskedPrice    *int
	SoldPrice     *int
	MapURL        string
	Lat           float64
	Lng           float64
	Locations     []string
}

// ResultPage is the outcome of parsing one search-results page.
type ResultPage struct {
	Links    []string
	NextPage string
}

// Resolution bundles the entities a record resolved to.
type Resolution struct {
	Building  Building
	Apartment Apartment
	Sale      Sale
	// NewBuilding and NewApartment report whether the entity was created by this resolution.
	NewBuilding  bool
	NewApartment bool
}
