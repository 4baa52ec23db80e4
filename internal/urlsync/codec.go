// Package urlsync keeps the filter store, the URL query string and persisted
// client state in agreement.
package urlsync

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"placemap/internal/core"
	"placemap/internal/filters"
)

// Query parameter names.
const (
	ParamCategory            = "category"
	ParamSubcategory         = "subcategory"
	ParamTransport           = "transport"
	ParamDistance            = "distance"
	ParamUnit                = "unit"
	ParamQuery               = "query"
	ParamAroundMeCount       = "aroundMeCount"
	ParamShowMultiDirections = "showMultiDirections"
	ParamMaxDuration         = "maxDuration"
	ParamLat                 = "lat"
	ParamLng                 = "lng"
	ParamAutoSearch          = "autoSearch"
)

// Encode serializes the search intent. Unset category and subcategory and an
// empty query are omitted; every other field is written so that the URL
// overrides whatever state the receiver already holds.
func Encode(f filters.Filters, loc *core.Coordinates) url.Values {
	v := url.Values{}
	if f.Category != nil {
		v.Set(ParamCategory, *f.Category)
	}
	if f.Subcategory != nil {
		v.Set(ParamSubcategory, *f.Subcategory)
	}
	if f.Transport != "" {
		v.Set(ParamTransport, string(f.Transport))
	}
	v.Set(ParamDistance, formatFloat(f.Distance))
	if f.Unit != "" {
		v.Set(ParamUnit, string(f.Unit))
	}
	if f.Query != "" {
		v.Set(ParamQuery, f.Query)
	}
	v.Set(ParamAroundMeCount, strconv.Itoa(f.AroundMeCount))
	v.Set(ParamShowMultiDirections, strconv.FormatBool(f.ShowMultiDirections))
	v.Set(ParamMaxDuration, formatFloat(f.MaxDuration))
	if loc != nil {
		v.Set(ParamLat, formatFloat(loc.Lat()))
		v.Set(ParamLng, formatFloat(loc.Lng()))
	}
	return v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Decoded is the search intent read from a query string.
type Decoded struct {
	Filters filters.Filters
	// Location is nil unless both lat and lng were present and valid
	Location   *core.Coordinates
	AutoSearch bool
	// Present is true when at least one known parameter was supplied
	Present bool
	// Rejected names the parameters that were present but unusable
	Rejected []string
}

// Decode applies the parameters in v on top of base. Parsing is defensive:
// an unparsable, non-finite or out-of-range value leaves the base value in
// place and is reported in Rejected.
func Decode(v url.Values, base filters.Filters) Decoded {
	d := Decoded{Filters: base.Clone()}
	f := &d.Filters

	has := func(name string) bool {
		_, ok := v[name]
		if ok {
			d.Present = true
		}
		return ok
	}
	reject := func(name string) { d.Rejected = append(d.Rejected, name) }

	if has(ParamCategory) {
		f.Category = optionalString(v.Get(ParamCategory))
	}
	if has(ParamSubcategory) {
		f.Subcategory = optionalString(v.Get(ParamSubcategory))
	}
	if has(ParamTransport) {
		if t, ok := filters.ParseTransport(v.Get(ParamTransport)); ok {
			f.Transport = t
		} else {
			reject(ParamTransport)
		}
	}
	if has(ParamDistance) {
		if n, ok := positiveFloat(v.Get(ParamDistance)); ok {
			f.Distance = n
		} else {
			reject(ParamDistance)
		}
	}
	if has(ParamUnit) {
		if u, ok := filters.ParseUnit(v.Get(ParamUnit)); ok {
			f.Unit = u
		} else {
			reject(ParamUnit)
		}
	}
	if has(ParamQuery) {
		f.Query = strings.TrimSpace(v.Get(ParamQuery))
	}
	if has(ParamAroundMeCount) {
		if n, err := strconv.Atoi(strings.TrimSpace(v.Get(ParamAroundMeCount))); err == nil && n >= 0 {
			f.AroundMeCount = n
		} else {
			reject(ParamAroundMeCount)
		}
	}
	if has(ParamShowMultiDirections) {
		if b, err := strconv.ParseBool(strings.TrimSpace(v.Get(ParamShowMultiDirections))); err == nil {
			f.ShowMultiDirections = b
		} else {
			reject(ParamShowMultiDirections)
		}
	}
	if has(ParamMaxDuration) {
		if n, ok := positiveFloat(v.Get(ParamMaxDuration)); ok {
			f.MaxDuration = n
		} else {
			reject(ParamMaxDuration)
		}
	}

	hasLat, hasLng := has(ParamLat), has(ParamLng)
	switch {
	case hasLat && hasLng:
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(v.Get(ParamLat)), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(v.Get(ParamLng)), 64)
		c := core.NewCoordinates(lng, lat)
		if errLat == nil && errLng == nil && c.Validate() == nil {
			d.Location = &c
		} else {
			reject(ParamLat)
			reject(ParamLng)
		}
	case hasLat:
		reject(ParamLat)
	case hasLng:
		reject(ParamLng)
	}

	if has(ParamAutoSearch) {
		b, err := strconv.ParseBool(strings.TrimSpace(v.Get(ParamAutoSearch)))
		d.AutoSearch = err == nil && b
	}
	return d
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func positiveFloat(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, false
	}
	return n, true
}

// sanitize replaces every field of f that a query string could not have
// produced with the value from fallback. Persisted state goes through it
// before reaching the store.
func sanitize(f, fallback filters.Filters) (filters.Filters, []string) {
	out := f.Clone()
	var fixed []string
	if _, ok := filters.ParseTransport(string(out.Transport)); !ok {
		out.Transport = fallback.Transport
		fixed = append(fixed, ParamTransport)
	}
	if _, ok := filters.ParseUnit(string(out.Unit)); !ok {
		out.Unit = fallback.Unit
		fixed = append(fixed, ParamUnit)
	}
	if math.IsNaN(out.Distance) || math.IsInf(out.Distance, 0) || out.Distance <= 0 {
		out.Distance = fallback.Distance
		fixed = append(fixed, ParamDistance)
	}
	if out.AroundMeCount < 0 {
		out.AroundMeCount = fallback.AroundMeCount
		fixed = append(fixed, ParamAroundMeCount)
	}
	if math.IsNaN(out.MaxDuration) || math.IsInf(out.MaxDuration, 0) || out.MaxDuration <= 0 {
		out.MaxDuration = fallback.MaxDuration
		fixed = append(fixed, ParamMaxDuration)
	}
	return out, fixed
}
