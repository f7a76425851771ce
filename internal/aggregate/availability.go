package aggregate

import (
	"encoding/json"
	"strings"
)

// Availability classifies a requested group against stock.
type Availability int

const (
	NotAvailable Availability = iota
	Available
)

func (a Availability) String() string {
	if a == Available {
		return "Available"
	}
	return "Not Available"
}

// MarshalJSON encodes the display string.
func (a Availability) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// DefaultAlwaysAvailable lists product types that are not inventory tracked.
var DefaultAlwaysAvailable = []string{"LOGO", "NECKTIE"}

// AvailabilityChecker compares requested quantities with available stock.
type AvailabilityChecker struct {
	exempt map[string]struct{}
}

// NewAvailabilityChecker builds a checker whose exempt product types are
// always available. Matching ignores case and surrounding spaces.
func NewAvailabilityChecker(exemptTypes ...string) *AvailabilityChecker {
	exempt := make(map[string]struct{}, len(exemptTypes))
	for _, t := range exemptTypes {
		if n := normalizeType(t); n != "" {
			exempt[n] = struct{}{}
		}
	}
	return &AvailabilityChecker{exempt: exempt}
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// Exempt reports whether productType skips the stock check.
func (c *AvailabilityChecker) Exempt(productType string) bool {
	if c == nil {
		return false
	}
	_, ok := c.exempt[normalizeType(productType)]
	return ok
}

// Classify decides one group. requested <= available is Available.
func (c *AvailabilityChecker) Classify(productType string, requested, available float64) Availability {
	if c.Exempt(productType) || requested <= available {
		return Available
	}
	return NotAvailable
}

// AvailabilityRow is the outcome for one composite key.
type AvailabilityRow struct {
	Key       string       `json:"key"`
	Requested float64      `json:"requested"`
	InStock   float64      `json:"inStock"`
	Status    Availability `json:"status"`
}

// Check classifies every requested key. typeOf extracts the product type from a
// key; a nil typeOf matches exempt types as key prefixes, so exempt types may
// themselves contain the key delimiter. Rows are sorted by key.
func (c *AvailabilityChecker) Check(requested, available Bucket, typeOf func(string) string) []AvailabilityRow {
	if typeOf == nil {
		typeOf = c.typeFromKey
	}
	rows := make([]AvailabilityRow, 0, len(requested))
	for _, key := range requested.Keys() {
		req := requested[key]
		stock := available[key]
		rows = append(rows, AvailabilityRow{
			Key:       key,
			Requested: req,
			InStock:   stock,
			Status:    c.Classify(typeOf(key), req, stock),
		})
	}
	return rows
}

// CheckGroups classifies grouped rows, reading the product type from each
// group's representative record. Output follows the group order.
func (c *AvailabilityChecker) CheckGroups(groups []Group, available Bucket) []AvailabilityRow {
	rows := make([]AvailabilityRow, 0, len(groups))
	for _, g := range groups {
		stock := available[g.Key]
		rows = append(rows, AvailabilityRow{
			Key:       g.Key,
			Requested: g.Total,
			InStock:   stock,
			Status:    c.Classify(g.Representative.ProductType, g.Total, stock),
		})
	}
	return rows
}

// typeFromKey returns the exempt type the key starts with, or the first key
// segment when none matches.
func (c *AvailabilityChecker) typeFromKey(key string) string {
	if c != nil {
		upper := normalizeType(key)
		for t := range c.exempt {
			if upper == t || strings.HasPrefix(upper, t+KeyDelimiter) {
				return t
			}
		}
	}
	return firstKeySegment(key)
}

func firstKeySegment(key string) string {
	if i := strings.Index(key, KeyDelimiter); i >= 0 {
		return key[:i]
	}
	return key
}
