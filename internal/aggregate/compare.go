package aggregate

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

const (
	// NotApplicable is shown when a change has no baseline.
	NotApplicable = "N/A"

	changeCeiling = 100.0
	changeFloor   = -100.0
)

// Change is a percentage change between two totals.
type Change struct {
	// Value is clamped to [-100, 100].
	Value float64
	// Raw is the unclamped percentage.
	Raw   float64
	Valid bool
}

// PercentChange computes (current-previous)/previous*100 clamped to
// [-100, 100]. A zero previous value has no baseline and yields an invalid
// Change.
func PercentChange(current, previous float64) Change {
	if previous == 0 || math.IsNaN(previous) || math.IsNaN(current) {
		return Change{}
	}
	raw := (current - previous) / previous * 100
	if math.IsInf(raw, 0) || math.IsNaN(raw) {
		return Change{}
	}
	return Change{Value: math.Max(changeFloor, math.Min(changeCeiling, raw)), Raw: raw, Valid: true}
}

// String renders "+10", "-50", "0" or "N/A", with at most one decimal.
func (c Change) String() string {
	if !c.Valid {
		return NotApplicable
	}
	rounded := math.Round(c.Value*10) / 10
	if rounded == 0 {
		return "0"
	}
	s := strconv.FormatFloat(rounded, 'f', -1, 64)
	if rounded > 0 {
		return "+" + s
	}
	return s
}

// MarshalJSON encodes the display string.
func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// AlignedPoint pairs a current and a comparison value under one label.
type AlignedPoint struct {
	Label           string  `json:"label"`
	CurrentValue    float64 `json:"currentValue"`
	ComparisonValue float64 `json:"comparisonValue"`
	Change          Change  `json:"change"`
}

func newAlignedPoint(label string, current, comparison float64) AlignedPoint {
	return AlignedPoint{
		Label:           label,
		CurrentValue:    current,
		ComparisonValue: comparison,
		Change:          PercentChange(current, comparison),
	}
}

// Align merges two buckets so every key of either side appears once, with the
// missing side set to zero. Points are ordered by current value descending,
// then comparison value descending, then label.
func Align(current, comparison Bucket) []AlignedPoint {
	labels := make(map[string]struct{}, len(current)+len(comparison))
	for k := range current {
		labels[k] = struct{}{}
	}
	for k := range comparison {
		labels[k] = struct{}{}
	}
	points := make([]AlignedPoint, 0, len(labels))
	for k := range labels {
		points = append(points, newAlignedPoint(k, current[k], comparison[k]))
	}
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.CurrentValue != b.CurrentValue {
			return a.CurrentValue > b.CurrentValue
		}
		if a.ComparisonValue != b.ComparisonValue {
			return a.ComparisonValue > b.ComparisonValue
		}
		return a.Label < b.Label
	})
	return points
}

// AlignPeriods pairs two period series position by position, keeping the
// canonical order. A shorter series is padded with zeros and labels come from
// whichever series has the position.
func AlignPeriods(current, comparison []PeriodTotal) []AlignedPoint {
	n := len(current)
	if len(comparison) > n {
		n = len(comparison)
	}
	points := make([]AlignedPoint, 0, n)
	for i := 0; i < n; i++ {
		var label string
		var cur, cmp float64
		if i < len(current) {
			label = current[i].Label
			cur = current[i].Value
		}
		if i < len(comparison) {
			if label == "" {
				label = comparison[i].Label
			}
			cmp = comparison[i].Value
		}
		points = append(points, newAlignedPoint(label, cur, cmp))
	}
	return points
}

// SeriesTotals sums both sides of an aligned series.
func SeriesTotals(points []AlignedPoint) (current, comparison float64) {
	for _, p := range points {
		current += p.CurrentValue
		comparison += p.ComparisonValue
	}
	return current, comparison
}
