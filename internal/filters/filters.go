// Package filters owns the search intent: the filter set, the user location,
// and the store that mediates every change to them.
package filters

import (
	"strings"

	"placemap/internal/core"
	"placemap/internal/geo"
)

// Transport is a travel mode.
type Transport string

const (
	TransportDriving        Transport = "driving"
	TransportDrivingTraffic Transport = "driving-traffic"
	TransportWalking        Transport = "walking"
	TransportCycling        Transport = "cycling"
	TransportTransit        Transport = "transit"
)

// ParseTransport returns the transport for s, or false when s is not a known mode.
func ParseTransport(s string) (Transport, bool) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportDriving, TransportDrivingTraffic, TransportWalking, TransportCycling, TransportTransit:
		return t, true
	}
	return "", false
}

// Unit is a distance unit.
type Unit string

const (
	UnitKm Unit = "km"
	UnitMi Unit = "mi"
)

// ParseUnit returns the unit for s, or false when s is not a known unit.
func ParseUnit(s string) (Unit, bool) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitKm, UnitMi:
		return u, true
	}
	return "", false
}

// Filters is the complete filter set of a search.
type Filters struct {
	Category            *string   `json:"category"`
	Subcategory         *string   `json:"subcategory"`
	Transport           Transport `json:"transport"`
	Distance            float64   `json:"distance"`
	Unit                Unit      `json:"unit"`
	Query               string    `json:"query"`
	AroundMeCount       int       `json:"aroundMeCount"`
	ShowMultiDirections bool      `json:"showMultiDirections"`
	// MaxDuration is the longest acceptable travel time in minutes
	MaxDuration float64 `json:"maxDuration"`
}

// DefaultFilters returns the documented default filter set.
func DefaultFilters() Filters {
	return Filters{
		Transport:           TransportWalking,
		Distance:            10,
		Unit:                UnitKm,
		AroundMeCount:       3,
		ShowMultiDirections: false,
		MaxDuration:         20,
	}
}

// Clone returns a copy that shares no pointers with f.
func (f Filters) Clone() Filters {
	out := f
	if f.Category != nil {
		c := *f.Category
		out.Category = &c
	}
	if f.Subcategory != nil {
		s := *f.Subcategory
		out.Subcategory = &s
	}
	return out
}

// CategoryValue returns the category or "" when unset.
func (f Filters) CategoryValue() string {
	if f.Category == nil {
		return ""
	}
	return *f.Category
}

// SubcategoryValue returns the subcategory or "" when unset.
func (f Filters) SubcategoryValue() string {
	if f.Subcategory == nil {
		return ""
	}
	return *f.Subcategory
}

// RadiusMeters converts Distance to meters using Unit.
func (f Filters) RadiusMeters() float64 {
	return f.Distance * geo.MetersPerUnit(string(f.Unit))
}

// SearchQuery builds the collaborator request for a search at center.
func (f Filters) SearchQuery(center core.Coordinates) core.SearchQuery {
	return core.SearchQuery{
		Query:        f.Query,
		Center:       center,
		Category:     f.CategoryValue(),
		Subcategory:  f.SubcategoryValue(),
		RadiusMeters: f.RadiusMeters(),
	}
}

// Partial is a sparse update for Filters. Nil fields are left untouched.
// ClearCategory and ClearSubcategory reset the respective field to unset.
type Partial struct {
	Category            *string    `json:"category,omitempty"`
	Subcategory         *string    `json:"subcategory,omitempty"`
	ClearCategory       bool       `json:"clearCategory,omitempty"`
	ClearSubcategory    bool       `json:"clearSubcategory,omitempty"`
	Transport           *Transport `json:"transport,omitempty"`
	Distance            *float64   `json:"distance,omitempty"`
	Unit                *Unit      `json:"unit,omitempty"`
	Query               *string    `json:"query,omitempty"`
	AroundMeCount       *int       `json:"aroundMeCount,omitempty"`
	ShowMultiDirections *bool      `json:"showMultiDirections,omitempty"`
	MaxDuration         *float64   `json:"maxDuration,omitempty"`
}

// IsEmpty reports whether the partial changes nothing.
func (p Partial) IsEmpty() bool {
	return p == Partial{}
}

// Merge returns f with every set field of p applied.
func (f Filters) Merge(p Partial) Filters {
	out := f.Clone()
	if p.ClearCategory {
		out.Category = nil
	}
	if p.Category != nil {
		c := *p.Category
		out.Category = &c
	}
	if p.ClearSubcategory {
		out.Subcategory = nil
	}
	if p.Subcategory != nil {
		s := *p.Subcategory
		out.Subcategory = &s
	}
	if p.Transport != nil {
		out.Transport = *p.Transport
	}
	if p.Distance != nil {
		out.Distance = *p.Distance
	}
	if p.Unit != nil {
		out.Unit = *p.Unit
	}
	if p.Query != nil {
		out.Query = *p.Query
	}
	if p.AroundMeCount != nil {
		out.AroundMeCount = *p.AroundMeCount
	}
	if p.ShowMultiDirections != nil {
		out.ShowMultiDirections = *p.ShowMultiDirections
	}
	if p.MaxDuration != nil {
		out.MaxDuration = *p.MaxDuration
	}
	return out
}

// Validate rejects values that can never produce a meaningful search.
func (p Partial) Validate() error {
	if p.Transport != nil {
		if _, ok := ParseTransport(string(*p.Transport)); !ok {
			return &ValidationError{Field: "transport", Reason: "unknown transport mode"}
		}
	}
	if p.Unit != nil {
		if _, ok := ParseUnit(string(*p.Unit)); !ok {
			return &ValidationError{Field: "unit", Reason: "unknown unit"}
		}
	}
	if p.Distance != nil && !(*p.Distance > 0) {
		return &ValidationError{Field: "distance", Reason: "must be positive"}
	}
	if p.AroundMeCount != nil && *p.AroundMeCount < 0 {
		return &ValidationError{Field: "aroundMeCount", Reason: "must not be negative"}
	}
	if p.MaxDuration != nil && !(*p.MaxDuration > 0) {
		return &ValidationError{Field: "maxDuration", Reason: "must be positive"}
	}
	return nil
}

// ValidationError describes a rejected filter value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// String is a helper for building Partial values.
func String(s string) *string { return &s }

// Float is a helper for building Partial values.
func Float(v float64) *float64 { return &v }

// Int is a helper for building Partial values.
func Int(v int) *int { return &v }

// Bool is a helper for building Partial values.
func Bool(v bool) *bool { return &v }
