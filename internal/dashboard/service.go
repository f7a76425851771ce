// Package dashboard prepares the MarSUKAT dashboard views from upstream records.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
)

// Fetcher reads raw records from the MarSUKAT API.
type Fetcher interface {
	Fetch(ctx context.Context, resource upstream.Resource, query url.Values) ([]aggregate.Record, error)
}

// ErrInvalidFilter marks filter values the service cannot use.
var ErrInvalidFilter = errors.New("dashboard: invalid filter")

var orderItemKey = []aggregate.Field{aggregate.FieldProductType, aggregate.FieldSize, aggregate.FieldLevel}

// Service coordinates upstream fetches, the cache and the aggregation helpers.
type Service struct {
	fetcher Fetcher
	cache   *Cache
	checker *aggregate.AvailabilityChecker
	now     func() time.Time
}

// NewService wires a Fetcher with a Cache and availability rules.
func NewService(fetcher Fetcher, cache *Cache, checker *aggregate.AvailabilityChecker) *Service {
	if checker == nil {
		checker = aggregate.NewAvailabilityChecker(aggregate.DefaultAlwaysAvailable...)
	}
	return &Service{fetcher: fetcher, cache: cache, checker: checker, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Invalidate drops every cached upstream fetch.
func (s *Service) Invalidate(ctx context.Context) (int64, error) {
	return s.cache.Bump(ctx)
}

// InvalidateResource drops the cached fetches of one upstream resource.
func (s *Service) InvalidateResource(ctx context.Context, resource upstream.Resource) (int64, error) {
	if !upstream.Known(resource) {
		return 0, fmt.Errorf("%w: resource %q", ErrInvalidFilter, resource)
	}
	return s.cache.BumpResource(ctx, resource)
}

func (s *Service) fetch(ctx context.Context, resource upstream.Resource, query url.Values) ([]aggregate.Record, error) {
	if s.fetcher == nil {
		return nil, errors.New("dashboard: fetcher not configured")
	}
	load := func(ctx context.Context) ([]aggregate.Record, error) {
		return s.fetcher.Fetch(ctx, resource, query)
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Records(ctx, resource, query, load)
}

// fetchYears fetches one resource for several years concurrently.
func (s *Service) fetchYears(ctx context.Context, resource upstream.Resource, years ...int) (map[int][]aggregate.Record, error) {
	results := make([][]aggregate.Record, len(years))
	g, ctx := errgroup.WithContext(ctx)
	for i, year := range years {
		g.Go(func() error {
			records, err := s.fetch(ctx, resource, url.Values{"year": {strconv.Itoa(year)}})
			if err != nil {
				return fmt.Errorf("fetch %s %d: %w", resource, year, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	byYear := make(map[int][]aggregate.Record, len(years))
	for i, year := range years {
		byYear[year] = append(byYear[year], results[i]...)
	}
	return byYear, nil
}

// ResolveYear maps 0 to the current year and rejects years outside 1900..9999.
func (s *Service) ResolveYear(year int) (int, error) {
	if year == 0 {
		return s.now().UTC().Year(), nil
	}
	if year < 1900 || year > 9999 {
		return 0, fmt.Errorf("%w: year %d", ErrInvalidFilter, year)
	}
	return year, nil
}

// OrderItems groups order items by product type, size and level and checks
// each group against inventory stock. Orders and stock are fetched together.
func (s *Service) OrderItems(ctx context.Context, filter OrderItemsFilter) ([]OrderItemRow, error) {
	query := url.Values{}
	if filter.Level != "" {
		query.Set("level", filter.Level)
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}

	var items, stock []aggregate.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.fetch(gctx, upstream.ResourceOrderItems, query)
		return err
	})
	g.Go(func() error {
		var err error
		stock, err = s.fetch(gctx, upstream.ResourceInventoryStock, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := aggregate.GroupRecords(items, orderItemKey, aggregate.ValueQuantity)
	available := aggregate.Accumulate(stock, orderItemKey, aggregate.ValueQuantity)
	checks := s.checker.CheckGroups(groups, available)

	rows := make([]OrderItemRow, 0, len(groups))
	for i, group := range groups {
		rep := group.Representative
		rows = append(rows, OrderItemRow{
			Key:          group.Key,
			ProductType:  rep.ProductType,
			Size:         rep.Size,
			Level:        rep.Level,
			Quantity:     group.Total,
			InStock:      checks[i].InStock,
			Orders:       group.Count,
			Availability: checks[i].Status,
		})
	}
	return rows, nil
}

// ProductionByMonth returns the twelve monthly production totals of a year.
func (s *Service) ProductionByMonth(ctx context.Context, year int) ([]aggregate.PeriodTotal, error) {
	year, err := s.ResolveYear(year)
	if err != nil {
		return nil, err
	}
	byYear, err := s.fetchYears(ctx, upstream.ResourceProduction, year)
	if err != nil {
		return nil, err
	}
	return aggregate.BucketByPeriod(byYear[year], aggregate.ValueQuantity, aggregate.PeriodOptions{
		Granularity: aggregate.GranularityMonth,
		Year:        year,
	}), nil
}

// ProductionComparison compares the production of a month with the month
// before it, per product type.
func (s *Service) ProductionComparison(ctx context.Context, month time.Time) (Comparison, error) {
	if month.IsZero() {
		month = s.now().UTC()
	}
	current := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	previous := current.AddDate(0, -1, 0)

	years := []int{current.Year()}
	if previous.Year() != current.Year() {
		years = append(years, previous.Year())
	}
	byYear, err := s.fetchYears(ctx, upstream.ResourceProduction, years...)
	if err != nil {
		return Comparison{}, err
	}

	productKey := []aggregate.Field{aggregate.FieldProductType}
	currentBucket := aggregate.Accumulate(inMonth(byYear[current.Year()], current), productKey, aggregate.ValueQuantity)
	previousBucket := aggregate.Accumulate(inMonth(byYear[previous.Year()], previous), productKey, aggregate.ValueQuantity)

	return newComparison(monthLabel(current), monthLabel(previous), aggregate.Align(currentBucket, previousBucket)), nil
}

func inMonth(records []aggregate.Record, month time.Time) []aggregate.Record {
	out := make([]aggregate.Record, 0, len(records))
	for _, r := range records {
		t, ok := r.Time()
		if !ok {
			continue
		}
		if t.Year() == month.Year() && t.Month() == month.Month() {
			out = append(out, r)
		}
	}
	return out
}

func monthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", aggregate.MonthNames[t.Month()-1], t.Year())
}

const yearWindow = 5

// SalesComparison compares sales revenue of a year with the year before. For
// the year granularity each of the last five years is compared with its
// predecessor.
func (s *Service) SalesComparison(ctx context.Context, filter SalesFilter) (Comparison, error) {
	year, err := s.ResolveYear(filter.Year)
	if err != nil {
		return Comparison{}, err
	}
	granularity := aggregate.ParseGranularity(string(filter.Granularity))

	if granularity == aggregate.GranularityYear {
		years := make([]int, 0, yearWindow+1)
		for y := year - yearWindow; y <= year; y++ {
			years = append(years, y)
		}
		byYear, err := s.fetchYears(ctx, upstream.ResourceSalesReport, years...)
		if err != nil {
			return Comparison{}, err
		}
		var all []aggregate.Record
		for _, y := range years {
			all = append(all, byYear[y]...)
		}
		current := aggregate.BucketByPeriod(all, aggregate.ValueAmount, aggregate.PeriodOptions{
			Granularity: granularity, FromYear: year - yearWindow + 1, ToYear: year,
		})
		previous := aggregate.BucketByPeriod(all, aggregate.ValueAmount, aggregate.PeriodOptions{
			Granularity: granularity, FromYear: year - yearWindow, ToYear: year - 1,
		})
		cmp := newComparison(
			fmt.Sprintf("%d-%d", year-yearWindow+1, year),
			fmt.Sprintf("%d-%d", year-yearWindow, year-1),
			aggregate.AlignPeriods(current, previous),
		)
		cmp.Granularity = granularity
		return cmp, nil
	}

	byYear, err := s.fetchYears(ctx, upstream.ResourceSalesReport, year, year-1)
	if err != nil {
		return Comparison{}, err
	}
	current := aggregate.BucketByPeriod(byYear[year], aggregate.ValueAmount, aggregate.PeriodOptions{Granularity: granularity, Year: year})
	previous := aggregate.BucketByPeriod(byYear[year-1], aggregate.ValueAmount, aggregate.PeriodOptions{Granularity: granularity, Year: year - 1})
	cmp := newComparison(strconv.Itoa(year), strconv.Itoa(year-1), aggregate.AlignPeriods(current, previous))
	cmp.Granularity = granularity
	return cmp, nil
}

// SalesByMonthKey groups a year of sales under "M-YYYY" keys in calendar order.
func (s *Service) SalesByMonthKey(ctx context.Context, year int) ([]MonthKeyTotal, error) {
	year, err := s.ResolveYear(year)
	if err != nil {
		return nil, err
	}
	byYear, err := s.fetchYears(ctx, upstream.ResourceSalesReport, year)
	if err != nil {
		return nil, err
	}
	series := aggregate.MonthKeySeries(aggregate.BucketByMonthKey(byYear[year], aggregate.ValueAmount))
	out := make([]MonthKeyTotal, 0, len(series))
	for _, p := range series {
		y, m := p.Period/100, p.Period%100
		key := fmt.Sprintf("%d-%d", m, y)
		month, ok := aggregate.MonthLabelFromKey(key)
		if !ok {
			continue
		}
		out = append(out, MonthKeyTotal{Key: key, Month: month, Year: y, Total: p.Value})
	}
	return out, nil
}

// TopDepartments ranks departments by sales revenue for a year.
func (s *Service) TopDepartments(ctx context.Context, filter TopFilter) ([]aggregate.KeyTotal, error) {
	year, err := s.ResolveYear(filter.Year)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultTopLimit
	}
	byYear, err := s.fetchYears(ctx, upstream.ResourceSalesReport, year)
	if err != nil {
		return nil, err
	}
	bucket := aggregate.Accumulate(recordsInYear(byYear[year], year), []aggregate.Field{aggregate.FieldDepartment}, aggregate.ValueAmount)
	if v, ok := bucket[""]; ok {
		delete(bucket, "")
		bucket[UnassignedDepartment] += v
	}
	return aggregate.Rank(bucket, limit), nil
}

// recordsInYear keeps records dated in year. Undated records are dropped, as
// the period bucketer does.
func recordsInYear(records []aggregate.Record, year int) []aggregate.Record {
	out := make([]aggregate.Record, 0, len(records))
	for _, r := range records {
		if t, ok := r.Time(); ok && t.Year() == year {
			out = append(out, r)
		}
	}
	return out
}

// StatusBreakdown counts the records of a resource per order status. Every
// status is listed, zero counts included.
func (s *Service) StatusBreakdown(ctx context.Context, resource upstream.Resource) ([]StatusCount, error) {
	switch resource {
	case upstream.ResourceOrderItems, upstream.ResourceRentals, upstream.ResourceCommercialJobs:
	default:
		return nil, fmt.Errorf("%w: resource %s has no status", ErrInvalidFilter, resource)
	}
	records, err := s.fetch(ctx, resource, nil)
	if err != nil {
		return nil, err
	}
	counts := aggregate.CountByStatus(records)
	out := make([]StatusCount, 0, len(aggregate.AllOrderStatuses))
	for _, status := range aggregate.AllOrderStatuses {
		out = append(out, StatusCount{Status: status, Badge: aggregate.StatusBadge(status), Count: counts[status]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// Summary builds the yearly overview stored by the snapshot job.
func (s *Service) Summary(ctx context.Context, year int) (Summary, error) {
	year, err := s.ResolveYear(year)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Year: year, GeneratedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		production, err := s.ProductionByMonth(gctx, year)
		summary.Production = production
		return err
	})
	g.Go(func() error {
		sales, err := s.SalesComparison(gctx, SalesFilter{Granularity: aggregate.GranularityMonth, Year: year})
		summary.Sales = sales
		return err
	})
	g.Go(func() error {
		top, err := s.TopDepartments(gctx, TopFilter{Year: year, Limit: defaultTopLimit})
		summary.TopDepartments = top
		return err
	})
	g.Go(func() error {
		statuses, err := s.StatusBreakdown(gctx, upstream.ResourceOrderItems)
		summary.OrderStatuses = statuses
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}
