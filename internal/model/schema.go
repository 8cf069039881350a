package model

import (
	"strconv"
	"strings"
)

// SchemaVersion is bumped when the field list or typing rules change.
const SchemaVersion = 1

// LeaseFields is the fixed extraction schema, in display order.
var LeaseFields = []string{
	"city",
	"building_name",
	"floors_units",
	"lease_start_date",
	"lease_tenure_months",
	"lease_end_date",
	"handover_date",
	"rent_free_period_months",
	"rent_start_date",
	"lock_in_period",
	"lock_in_end_date",
	"termination_notice_period_months",
	"renewal_notice_period_months",
	"renewal_option",
	"super_builtup_area_sqft",
	"carpet_area_sqft",
	"efficiency",
	"cam_area_sqft",
	"monthly_rent_rs",
	"rate_per_sqft_rs",
	"monthly_cam_rs",
	"parking_4w_included",
	"parking_2w_included",
	"parking_charges_rs",
	"ifrsd_rs",
	"stamp_duty_rs",
}

var dateFields = set(
	"lease_start_date",
	"lease_end_date",
	"rent_start_date",
	"handover_date",
	"lock_in_end_date",
)

var intFields = set(
	"lease_tenure_months",
	"lock_in_period",
	"rent_free_period_months",
	"termination_notice_period_months",
	"renewal_notice_period_months",
	"parking_4w_included",
	"parking_2w_included",
)

var floatFields = set(
	"carpet_area_sqft",
	"super_builtup_area_sqft",
	"cam_area_sqft",
	"efficiency",
	"rate_per_sqft_rs",
	"monthly_cam_rs",
	"monthly_rent_rs",
	"parking_charges_rs",
	"stamp_duty_rs",
	"ifrsd_rs",
)

func set(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Schema is an ordered field registry with indexed membership.
type Schema struct {
	fields []string
	byName map[string]struct{}
}

// NewSchema creates a Schema over the given ordered field names.
func NewSchema(fields []string) *Schema {
	s := &Schema{
		fields: fields,
		byName: make(map[string]struct{}, len(fields)),
	}
	for _, f := range fields {
		s.byName[f] = struct{}{}
	}
	return s
}

// DefaultSchema returns the lease field schema.
func DefaultSchema() *Schema {
	return NewSchema(LeaseFields)
}

// Fields returns the ordered field names.
func (s *Schema) Fields() []string {
	return s.fields
}

// Has reports whether the named field is part of the schema.
func (s *Schema) Has(field string) bool {
	_, ok := s.byName[field]
	return ok
}

// Len returns the number of schema fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

var nullTokens = set("none", "null", "na", "n/a")

// Coerce normalizes a raw value for the named field. Empty strings and
// null-ish tokens become nil; integer and numeric fields are parsed with
// thousands separators stripped. Unparseable values pass through unchanged
// so a reviewer sees exactly what was entered.
func (s *Schema) Coerce(field string, raw any) any {
	if raw == nil {
		return nil
	}

	value := raw
	if str, ok := raw.(string); ok {
		str = strings.TrimSpace(str)
		if str == "" {
			return nil
		}
		if _, null := nullTokens[strings.ToLower(str)]; null {
			return nil
		}
		value = str
	}

	if _, ok := dateFields[field]; ok {
		return value
	}

	if _, ok := intFields[field]; ok {
		if f, ok := toFloat(value); ok {
			return int64(f)
		}
		return value
	}

	if _, ok := floatFields[field]; ok {
		if f, ok := toFloat(value); ok {
			return f
		}
		return value
	}

	return value
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
