package crawler

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// LookupKey is the dedup key for buildings: the exact address string.
func (b Building) LookupKey() string {
	return b.Address
}

// Fingerprint is the approximate dedup key for apartments. Two distinct apartments in
// the same building with identical rooms, living space, floor and balcony status collide.
type Fingerprint struct {
	BuildingID  int64
	Rooms       *int
	LivingSpace *int
	Floor       *int
	HasBalcony  *bool
}

// LookupKey returns the apartment fingerprint.
func (a Apartment) LookupKey() Fingerprint {
	return Fingerprint{
		BuildingID:  a.BuildingID,
		Rooms:       a.Rooms,
		LivingSpace: a.LivingSpace,
		Floor:       a.Floor,
		HasBalcony:  a.HasBalcony,
	}
}

// Equal compares fingerprints treating two unknown values as equal.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.BuildingID == o.BuildingID &&
		intEq(f.Rooms, o.Rooms) &&
		intEq(f.LivingSpace, o.LivingSpace) &&
		intEq(f.Floor, o.Floor) &&
		boolEq(f.HasBalcony, o.HasBalcony)
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("building=%d rooms=%s living_space=%s floor=%s balcony=%s",
		f.BuildingID, fmtInt(f.Rooms), fmtInt(f.LivingSpace), fmtInt(f.Floor), fmtBool(f.HasBalcony))
}

// LookupKey returns the normalized tag text.
func (t LocationTag) LookupKey() string {
	return strings.TrimSpace(t.Tag)
}

// BuildingFromRecord builds a candidate building; it has no id until persisted.
func BuildingFromRecord(rec ListingRecord) Building {
	lift := rec.HasLift
	return Building{
		Address:     rec.Address,
		Built:       rec.Built,
		TotalFloors: rec.TotalFloors,
		HasLift:     &lift,
		MapURL:      rec.MapURL,
		Location:    orb.Point{rec.Lng, rec.Lat},
	}
}

// ApartmentFromRecord builds a candidate apartment scoped to buildingID.
func ApartmentFromRecord(rec ListingRecord, buildingID int64) Apartment {
	return Apartment{
		BuildingID:    buildingID,
		PropertyType:  rec.PropertyType,
		Rooms:         rec.Rooms,
		LivingSpace:   rec.LivingSpace,
		HasBalcony:    rec.HasBalcony,
		Floor:         rec.Floor,
		Avgift:        rec.Avgift,
		Driftskostnad: rec.Driftskostnad,
	}
}

// SaleFromRecord builds a new sale for apartmentID sourced from urlID.
func SaleFromRecord(rec ListingRecord, apartmentID, urlID int64) Sale {
	return Sale{
		ApartmentID: apartmentID,
		URLID:       urlID,
		SaleDate:    rec.SaleDate,
		AskedPrice:  rec.AskedPrice,
		SoldPrice:   rec.SoldPrice,
	}
}

// UniqueTags trims, drops empties and removes duplicates while keeping order.
func UniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func intEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func boolEq(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func fmtInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprint(*v)
}

func fmtBool(v *bool) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprint(*v)
}
