// Package model contains the valuation domain types and their invariants.
//
// Every exported input type carries a Validate method that fails fast with a
// *ValidationError naming the violated constraint.
package model

import (
	"strings"
	"time"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks coordinate ranges.
func (p GeoPoint) Validate(field string) *ValidationError {
	if p.Lat < -90 || p.Lat > 90 {
		return NewValidationError(field+".lat", "must be within [-90, 90]")
	}
	if p.Lng < -180 || p.Lng > 180 {
		return NewValidationError(field+".lng", "must be within [-180, 180]")
	}
	return nil
}

// Comparable is a past transaction or listing used as valuation evidence.
type Comparable struct {
	ID               string       `json:"id"`
	Ref              *string      `json:"ref,omitempty"`
	Version          int          `json:"version"`
	Date             time.Time    `json:"date"`
	Lat              float64      `json:"lat"`
	Lng              float64      `json:"lng"`
	Type             PropertyType `json:"type,omitempty"`
	Price            float64      `json:"price"`
	Sqm              float64      `json:"sqm"`
	Rooms            *int         `json:"rooms,omitempty"`
	Baths            *int         `json:"baths,omitempty"`
	Floor            *int         `json:"floor,omitempty"`
	Elevator         *bool        `json:"elevator,omitempty"`
	TerraceSqm       *float64     `json:"terraceSqm,omitempty"`
	Parking          *bool        `json:"parking,omitempty"`
	Condition        *Condition   `json:"condition,omitempty"`
	BuildingAgeYears *float64     `json:"buildingAgeYears,omitempty"`
	Source           Source       `json:"source"`
	Address          *string      `json:"address,omitempty"`
	Photos           []string     `json:"photos,omitempty"`
	ImportedAt       time.Time    `json:"importedAt"`
}

// Point returns the comparable location.
func (c Comparable) Point() GeoPoint { return GeoPoint{Lat: c.Lat, Lng: c.Lng} }

// ComparableRecord is the raw shape accepted by the import path.
type ComparableRecord struct {
	Ref              *string      `json:"ref,omitempty"`
	Date             time.Time    `json:"date"`
	Lat              float64      `json:"lat"`
	Lng              float64      `json:"lng"`
	Type             PropertyType `json:"type,omitempty"`
	Price            float64      `json:"price"`
	Sqm              float64      `json:"sqm"`
	Rooms            *int         `json:"rooms,omitempty"`
	Baths            *int         `json:"baths,omitempty"`
	Floor            *int         `json:"floor,omitempty"`
	Elevator         *bool        `json:"elevator,omitempty"`
	TerraceSqm       *float64     `json:"terraceSqm,omitempty"`
	Parking          *bool        `json:"parking,omitempty"`
	Condition        *Condition   `json:"condition,omitempty"`
	BuildingAgeYears *float64     `json:"buildingAgeYears,omitempty"`
	Source           *Source      `json:"source,omitempty"`
	Address          *string      `json:"address,omitempty"`
	Photos           []string     `json:"photos,omitempty"`
}

// Validate checks every import invariant and reports all violations.
func (r ComparableRecord) Validate() error {
	var errs ValidationErrors
	if r.Ref != nil && strings.TrimSpace(*r.Ref) == "" {
		errs = append(errs, NewValidationError("ref", "must not be blank when set"))
	}
	if r.Date.IsZero() {
		errs = append(errs, NewValidationError("date", "is required"))
	}
	if e := (GeoPoint{Lat: r.Lat, Lng: r.Lng}).Validate("location"); e != nil {
		errs = append(errs, e)
	}
	if r.Type != "" && !r.Type.Valid() {
		errs = append(errs, NewValidationError("type", "must be a known property type"))
	}
	if r.Price <= 0 {
		errs = append(errs, NewValidationError("price", "must be > 0"))
	}
	if r.Sqm <= 0 {
		errs = append(errs, NewValidationError("sqm", "must be > 0"))
	}
	if r.Rooms != nil && *r.Rooms < 0 {
		errs = append(errs, NewValidationError("rooms", "must be >= 0"))
	}
	if r.Baths != nil && *r.Baths < 0 {
		errs = append(errs, NewValidationError("baths", "must be >= 0"))
	}
	if r.TerraceSqm != nil && *r.TerraceSqm < 0 {
		errs = append(errs, NewValidationError("terraceSqm", "must be >= 0"))
	}
	if r.BuildingAgeYears != nil && *r.BuildingAgeYears < 0 {
		errs = append(errs, NewValidationError("buildingAgeYears", "must be >= 0"))
	}
	if r.Condition != nil && !r.Condition.Valid() {
		errs = append(errs, NewValidationError("condition", "must be a known condition"))
	}
	if r.Source != nil && !r.Source.Valid() {
		errs = append(errs, NewValidationError("source", "must be one of PORTAL, REGISTRO, NOTARIA, INTERNO"))
	}
	for _, p := range r.Photos {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, NewValidationError("photos", "must not contain blank entries"))
			break
		}
	}
	return errs.errOrNil()
}

// ToComparable builds the stored comparable. The record must be valid.
func (r ComparableRecord) ToComparable(id string, version int, importedAt time.Time) Comparable {
	src := SourceInterno
	if r.Source != nil {
		src = *r.Source
	}
	return Comparable{
		ID:               id,
		Ref:              r.Ref,
		Version:          version,
		Date:             r.Date.UTC(),
		Lat:              r.Lat,
		Lng:              r.Lng,
		Type:             r.Type,
		Price:            r.Price,
		Sqm:              r.Sqm,
		Rooms:            r.Rooms,
		Baths:            r.Baths,
		Floor:            r.Floor,
		Elevator:         r.Elevator,
		TerraceSqm:       r.TerraceSqm,
		Parking:          r.Parking,
		Condition:        r.Condition,
		BuildingAgeYears: r.BuildingAgeYears,
		Source:           src,
		Address:          r.Address,
		Photos:           append([]string(nil), r.Photos...),
		ImportedAt:       importedAt.UTC(),
	}
}

// SubjectRef is the property being valued. It is immutable during a run.
type SubjectRef struct {
	Address          *string      `json:"address,omitempty"`
	Lat              *float64     `json:"lat,omitempty"`
	Lng              *float64     `json:"lng,omitempty"`
	Type             PropertyType `json:"type,omitempty"`
	Sqm              float64      `json:"sqm"`
	Rooms            int          `json:"rooms"`
	Baths            int          `json:"baths"`
	Floor            int          `json:"floor"`
	Elevator         bool         `json:"elevator"`
	Condition        Condition    `json:"condition,omitempty"`
	BuildingAgeYears *float64     `json:"buildingAgeYears,omitempty"`
	POIs             []GeoPoint   `json:"pois,omitempty"`
}

// Point returns the subject coordinates when both are known.
func (s SubjectRef) Point() (GeoPoint, bool) {
	if s.Lat == nil || s.Lng == nil {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: *s.Lat, Lng: *s.Lng}, true
}

// Validate checks the subject invariants.
func (s SubjectRef) Validate() error {
	var errs ValidationErrors
	if s.Sqm <= 0 {
		errs = append(errs, NewValidationError("subject.sqm", "must be > 0"))
	}
	if (s.Lat == nil) != (s.Lng == nil) {
		errs = append(errs, NewValidationError("subject.lat", "lat and lng must be given together"))
	} else if p, ok := s.Point(); ok {
		if e := p.Validate("subject"); e != nil {
			errs = append(errs, e)
		}
	}
	if s.Type != "" && !s.Type.Valid() {
		errs = append(errs, NewValidationError("subject.type", "must be a known property type"))
	}
	if s.Rooms < 0 {
		errs = append(errs, NewValidationError("subject.rooms", "must be >= 0"))
	}
	if s.Baths < 0 {
		errs = append(errs, NewValidationError("subject.baths", "must be >= 0"))
	}
	if s.Condition != "" && !s.Condition.Valid() {
		errs = append(errs, NewValidationError("subject.condition", "must be a known condition"))
	}
	if s.BuildingAgeYears != nil && *s.BuildingAgeYears < 0 {
		errs = append(errs, NewValidationError("subject.buildingAgeYears", "must be >= 0"))
	}
	for _, p := range s.POIs {
		if e := p.Validate("subject.pois"); e != nil {
			errs = append(errs, e)
			break
		}
	}
	return errs.errOrNil()
}
