// Package forms coerces submitted form fields into records, patches and keys.
package forms

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"pandemic-dashboard/internal/models"
)

var (
	IntFields   = []string{"cases", "deaths", "recovered", "active"}
	FloatFields = []string{"latitude", "longitude", "mortality_rate", "recovery_rate"}
)

type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Reason, e.Value)
}

// Fields flattens form values into key -> text, keeping the first value.
func Fields(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = strings.TrimSpace(vals[0])
		}
	}
	return out
}

func ParseKey(v url.Values) (models.Key, error) {
	f := Fields(v)
	key := models.Key{Country: f["country"], Date: f["date"]}

	var errs []error
	if key.Country == "" {
		errs = append(errs, &FieldError{Field: "country", Reason: "required"})
	}
	if key.Date == "" {
		errs = append(errs, &FieldError{Field: "date", Reason: "required"})
	}
	return key, errors.Join(errs...)
}

// ParseRecord builds a full record for creation. The key and all integer
// counters are required; the rest are optional.
func ParseRecord(v url.Values) (models.Record, error) {
	key, err := ParseKey(v)
	if err != nil {
		return models.Record{}, err
	}
	f := Fields(v)

	var errs []error
	counters := make(map[string]int, len(IntFields))
	for _, name := range IntFields {
		n, ok, err := parseInt(name, f[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			errs = append(errs, &FieldError{Field: name, Reason: "required"})
			continue
		}
		counters[name] = n
	}

	floats, err := parseFloats(f)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return models.Record{}, err
	}

	return models.Record{
		Country:       key.Country,
		Date:          key.Date,
		Cases:         counters["cases"],
		Deaths:        counters["deaths"],
		Recovered:     counters["recovered"],
		Active:        counters["active"],
		Latitude:      floats["latitude"],
		Longitude:     floats["longitude"],
		WHORegion:     optionalString(f["who_region"]),
		MortalityRate: floats["mortality_rate"],
		RecoveryRate:  floats["recovery_rate"],
	}, nil
}

// ParsePatch reads an update: the key plus whichever fields were submitted.
func ParsePatch(v url.Values) (models.Key, models.Patch, error) {
	key, err := ParseKey(v)
	if err != nil {
		return models.Key{}, models.Patch{}, err
	}
	f := Fields(v)

	var (
		errs  []error
		patch models.Patch
	)
	ints := map[string]**int{
		"cases":     &patch.Cases,
		"deaths":    &patch.Deaths,
		"recovered": &patch.Recovered,
		"active":    &patch.Active,
	}
	for _, name := range IntFields {
		n, ok, err := parseInt(name, f[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			*ints[name] = &n
		}
	}

	floats, err := parseFloats(f)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return models.Key{}, models.Patch{}, err
	}

	patch.Latitude = floats["latitude"]
	patch.Longitude = floats["longitude"]
	patch.MortalityRate = floats["mortality_rate"]
	patch.RecoveryRate = floats["recovery_rate"]
	patch.WHORegion = optionalString(f["who_region"])

	if patch.Empty() {
		return models.Key{}, models.Patch{}, &FieldError{Field: "fields", Reason: "nothing to update"}
	}
	return key, patch, nil
}

func parseInt(name, raw string) (int, bool, error) {
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, &FieldError{Field: name, Value: raw, Reason: "must be an integer"}
	}
	if n < 0 {
		return 0, false, &FieldError{Field: name, Value: raw, Reason: "must not be negative"}
	}
	return n, true, nil
}

func parseFloats(f map[string]string) (map[string]*float64, error) {
	out := make(map[string]*float64, len(FloatFields))
	var errs []error
	for _, name := range FloatFields {
		raw := f[name]
		if raw == "" {
			continue
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, &FieldError{Field: name, Value: raw, Reason: "must be a number"})
			continue
		}
		out[name] = &n
	}
	return out, errors.Join(errs...)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
