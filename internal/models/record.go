package models

import "net/url"

type Record struct {
	Country       string   `json:"country"`
	Date          string   `json:"date"`
	Cases         int      `json:"cases"`
	Deaths        int      `json:"deaths"`
	Recovered     int      `json:"recovered"`
	Active        int      `json:"active"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	WHORegion     *string  `json:"who_region"`
	MortalityRate *float64 `json:"mortality_rate"`
	RecoveryRate  *float64 `json:"recovery_rate"`
}

func (r Record) Key() Key {
	return Key{Country: r.Country, Date: r.Date}
}

// Key identifies a record for update and delete. The backend enforces
// uniqueness on it; the dashboard does not.
type Key struct {
	Country string `json:"country"`
	Date    string `json:"date"`
}

// Query encodes the key the way the backend's DELETE route expects it.
func (k Key) Query() string {
	v := url.Values{}
	v.Set("country", k.Country)
	v.Set("date", k.Date)
	return v.Encode()
}

func (k Key) IsZero() bool {
	return k.Country == "" || k.Date == ""
}

// Patch carries the fields of an update. Nil fields keep their current value.
type Patch struct {
	Cases         *int
	Deaths        *int
	Recovered     *int
	Active        *int
	Latitude      *float64
	Longitude     *float64
	WHORegion     *string
	MortalityRate *float64
	RecoveryRate  *float64
}

func (p Patch) Empty() bool {
	return p.Cases == nil && p.Deaths == nil && p.Recovered == nil && p.Active == nil &&
		p.Latitude == nil && p.Longitude == nil && p.WHORegion == nil &&
		p.MortalityRate == nil && p.RecoveryRate == nil
}

// Apply returns a copy of r with the non-nil fields of p applied.
func (p Patch) Apply(r Record) Record {
	if p.Cases != nil {
		r.Cases = *p.Cases
	}
	if p.Deaths != nil {
		r.Deaths = *p.Deaths
	}
	if p.Recovered != nil {
		r.Recovered = *p.Recovered
	}
	if p.Active != nil {
		r.Active = *p.Active
	}
	if p.Latitude != nil {
		r.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		r.Longitude = p.Longitude
	}
	if p.WHORegion != nil {
		r.WHORegion = p.WHORegion
	}
	if p.MortalityRate != nil {
		r.MortalityRate = p.MortalityRate
	}
	if p.RecoveryRate != nil {
		r.RecoveryRate = p.RecoveryRate
	}
	return r
}

// Filter narrows the result set before pagination. Dates compare as ISO
// strings and both bounds are inclusive.
type Filter struct {
	Country   string `json:"country,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func (f Filter) Match(r Record) bool {
	if f.Country != "" && r.Country != f.Country {
		return false
	}
	if f.StartDate != "" && r.Date < f.StartDate {
		return false
	}
	if f.EndDate != "" && r.Date > f.EndDate {
		return false
	}
	return true
}

func (f Filter) IsZero() bool {
	return f.Country == "" && f.StartDate == "" && f.EndDate == ""
}

// Values encodes the filter as query parameters, omitting empty fields.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Country != "" {
		v.Set("country", f.Country)
	}
	if f.StartDate != "" {
		v.Set("start_date", f.StartDate)
	}
	if f.EndDate != "" {
		v.Set("end_date", f.EndDate)
	}
	return v
}

type TimeSeriesPoint struct {
	Date      string `json:"date"`
	Confirmed int    `json:"confirmed"`
	Deaths    int    `json:"deaths"`
}

type CategoryPoint struct {
	Name string   `json:"name"`
	Rate *float64 `json:"rate"`
}

type Summary struct {
	Records            int      `json:"records"`
	TotalCases         int      `json:"total_cases"`
	TotalDeaths        int      `json:"total_deaths"`
	TotalRecovered     int      `json:"total_recovered"`
	TotalActive        int      `json:"total_active"`
	MeanMortalityRate  *float64 `json:"mean_mortality_rate"`
	MedianRecoveryRate *float64 `json:"median_recovery_rate"`
}

type MutationResult struct {
	Message string `json:"message"`
}
