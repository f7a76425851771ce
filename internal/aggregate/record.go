// Package aggregate turns flat order, production and sales records into
// display-ready buckets and aligned series. Every function is pure: bad data
// degrades to zero values or skipped records instead of errors.
package aggregate

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// KeyDelimiter joins record fields into a composite key.
const KeyDelimiter = "-"

// Number is a numeric field that tolerates strings, nulls and garbage.
type Number struct {
	Value float64
	Valid bool
}

// Num builds a valid Number, used mostly by tests and fixtures.
func Num(v float64) Number {
	return coerceNumber(v)
}

// UnmarshalJSON never fails; unusable input yields an invalid zero Number.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil
	}
	*n = coerceNumber(raw)
	return nil
}

// MarshalJSON writes the coerced value.
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Float())
}

// Float returns the value, or 0 when invalid.
func (n Number) Float() float64 {
	if !n.Valid {
		return 0
	}
	return n.Value
}

func coerceNumber(raw interface{}) Number {
	switch v := raw.(type) {
	case nil, bool:
		return Number{}
	case json.Number:
		raw = v.String()
	}
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return Number{}
		}
		raw = s
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Number{}
	}
	return Number{Value: v, Valid: true}
}

// Record is a single flat row as returned by the MarSUKAT API.
type Record struct {
	ProductType string `json:"productType"`
	Size        string `json:"size,omitempty"`
	Level       string `json:"level,omitempty"`
	Department  string `json:"department,omitempty"`
	Status      string `json:"status,omitempty"`
	Quantity    Number `json:"quantity"`
	Amount      Number `json:"amount"`
	Date        string `json:"date,omitempty"`
}

// Field names a string attribute of a Record usable in composite keys.
type Field string

const (
	FieldProductType Field = "product_type"
	FieldSize        Field = "size"
	FieldLevel       Field = "level"
	FieldDepartment  Field = "department"
	FieldStatus      Field = "status"
)

var fieldAccessors = map[Field]func(Record) string{
	FieldProductType: func(r Record) string { return r.ProductType },
	FieldSize:        func(r Record) string { return r.Size },
	FieldLevel:       func(r Record) string { return r.Level },
	FieldDepartment:  func(r Record) string { return r.Department },
	FieldStatus:      func(r Record) string { return r.Status },
}

// ParseField resolves a field name, reporting false for unknown names.
func ParseField(name string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(name)))
	_, ok := fieldAccessors[f]
	return f, ok
}

// Field returns the named attribute, or "" for an unknown field.
func (r Record) Field(f Field) string {
	if get, ok := fieldAccessors[f]; ok {
		return strings.TrimSpace(get(r))
	}
	return ""
}

// ValueField names a numeric attribute of a Record.
type ValueField string

const (
	ValueQuantity ValueField = "quantity"
	ValueAmount   ValueField = "amount"
)

var valueAccessors = map[ValueField]func(Record) Number{
	ValueQuantity: func(r Record) Number { return r.Quantity },
	ValueAmount:   func(r Record) Number { return r.Amount },
}

// Value returns the numeric attribute; unknown fields and invalid values are 0.
func (r Record) Value(v ValueField) float64 {
	if get, ok := valueAccessors[v]; ok {
		return get(r).Float()
	}
	return 0
}

// Time parses the record date. ok is false for missing or malformed dates.
func (r Record) Time() (time.Time, bool) {
	raw := strings.TrimSpace(r.Date)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := cast.ToTimeInDefaultLocationE(raw, time.UTC)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// CompositeKey joins the given fields of r in order.
func CompositeKey(r Record, fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = r.Field(f)
	}
	return strings.Join(parts, KeyDelimiter)
}
