package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Granularity selects how dated records are bucketed.
type Granularity string

const (
	GranularityMonth Granularity = "month"
	GranularityWeek  Granularity = "week"
	GranularityYear  Granularity = "year"
)

// ParseGranularity resolves a granularity name; unknown names fall back to month.
func ParseGranularity(s string) Granularity {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case GranularityWeek:
		return GranularityWeek
	case GranularityYear:
		return GranularityYear
	default:
		return GranularityMonth
	}
}

// MonthNames is indexed from 0; month numbers coming from keys are 1-indexed.
var MonthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// PeriodTotal is one position on a gap-free period axis.
type PeriodTotal struct {
	Label  string  `json:"label"`
	Period int     `json:"period"`
	Value  float64 `json:"value"`
	Count  int     `json:"count"`
}

// PeriodOptions scopes a bucketing run.
type PeriodOptions struct {
	Granularity Granularity
	// Year restricts month and week bucketing to one calendar (or ISO) year.
	// Zero accepts every year.
	Year int
	// FromYear and ToYear fix the year axis. When unset the observed range is used.
	FromYear int
	ToYear   int
}

// BucketByPeriod sums value per period and returns every period of the
// canonical range in order, zero-filled. Records without a parseable date are
// skipped.
func BucketByPeriod(records []Record, value ValueField, opts PeriodOptions) []PeriodTotal {
	switch opts.Granularity {
	case GranularityWeek:
		return bucketByWeek(records, value, opts.Year)
	case GranularityYear:
		return bucketByYear(records, value, opts.FromYear, opts.ToYear)
	default:
		return bucketByMonth(records, value, opts.Year)
	}
}

func bucketByMonth(records []Record, value ValueField, year int) []PeriodTotal {
	out := make([]PeriodTotal, len(MonthNames))
	for i, name := range MonthNames {
		out[i] = PeriodTotal{Label: name, Period: i + 1}
	}
	for _, r := range records {
		t, ok := r.Time()
		if !ok {
			continue
		}
		if year > 0 && t.Year() != year {
			continue
		}
		idx := int(t.Month()) - 1
		out[idx].Value += r.Value(value)
		out[idx].Count++
	}
	return out
}

func bucketByWeek(records []Record, value ValueField, year int) []PeriodTotal {
	weeks := 53
	if year > 0 {
		weeks = ISOWeeksInYear(year)
	}
	out := make([]PeriodTotal, weeks)
	for i := range out {
		out[i] = PeriodTotal{Label: fmt.Sprintf("Week %d", i+1), Period: i + 1}
	}
	for _, r := range records {
		t, ok := r.Time()
		if !ok {
			continue
		}
		isoYear, week := t.ISOWeek()
		if year > 0 && isoYear != year {
			continue
		}
		if week < 1 || week > weeks {
			continue
		}
		out[week-1].Value += r.Value(value)
		out[week-1].Count++
	}
	return out
}

func bucketByYear(records []Record, value ValueField, from, to int) []PeriodTotal {
	type entry struct {
		value float64
		count int
	}
	seen := make(map[int]entry)
	minYear, maxYear := 0, 0
	for _, r := range records {
		t, ok := r.Time()
		if !ok {
			continue
		}
		y := t.Year()
		e := seen[y]
		e.value += r.Value(value)
		e.count++
		seen[y] = e
		if minYear == 0 || y < minYear {
			minYear = y
		}
		if y > maxYear {
			maxYear = y
		}
	}
	if from <= 0 {
		from = minYear
	}
	if to <= 0 {
		to = maxYear
	}
	if from <= 0 || to <= 0 || from > to {
		return []PeriodTotal{}
	}
	out := make([]PeriodTotal, 0, to-from+1)
	for y := from; y <= to; y++ {
		e := seen[y]
		out = append(out, PeriodTotal{Label: strconv.Itoa(y), Period: y, Value: e.value, Count: e.count})
	}
	return out
}

// ISOWeeksInYear returns 52 or 53. December 28th always falls in the last ISO
// week of its year.
func ISOWeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}

// MonthYearKey formats t as "M-YYYY".
func MonthYearKey(t time.Time) string {
	return fmt.Sprintf("%d-%d", int(t.Month()), t.Year())
}

// MonthLabelFromKey maps a "MM-YYYY" key to its month name. The month part is
// 1-indexed.
func MonthLabelFromKey(key string) (string, bool) {
	month, _, ok := splitMonthYearKey(key)
	if !ok {
		return "", false
	}
	return MonthNames[month-1], true
}

func splitMonthYearKey(key string) (month, year int, ok bool) {
	parts := strings.Split(strings.TrimSpace(key), KeyDelimiter)
	if len(parts) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	year, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || year <= 0 {
		return 0, 0, false
	}
	return month, year, true
}

// BucketByMonthKey sums value per "M-YYYY" key. Records without a parseable
// date are skipped.
func BucketByMonthKey(records []Record, value ValueField) Bucket {
	bucket := make(Bucket)
	for _, r := range records {
		t, ok := r.Time()
		if !ok {
			continue
		}
		bucket[MonthYearKey(t)] += r.Value(value)
	}
	return bucket
}

// MonthKeySeries turns a month-key bucket into a chronologically ordered
// series labelled "January 2024". Malformed keys are dropped.
func MonthKeySeries(bucket Bucket) []PeriodTotal {
	type keyed struct {
		month, year int
		value       float64
	}
	items := make([]keyed, 0, len(bucket))
	for k, v := range bucket {
		month, year, ok := splitMonthYearKey(k)
		if !ok {
			continue
		}
		items = append(items, keyed{month: month, year: year, value: v})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].year != items[j].year {
			return items[i].year < items[j].year
		}
		return items[i].month < items[j].month
	})
	out := make([]PeriodTotal, 0, len(items))
	for _, it := range items {
		out = append(out, PeriodTotal{
			Label:  fmt.Sprintf("%s %d", MonthNames[it.month-1], it.year),
			Period: it.year*100 + it.month,
			Value:  it.value,
		})
	}
	return out
}
