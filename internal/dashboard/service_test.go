package dashboard

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
)

type stubFetcher struct {
	mu      sync.Mutex
	data    map[string][]aggregate.Record
	err     error
	calls   map[string]int
	queries []url.Values
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{data: map[string][]aggregate.Record{}, calls: map[string]int{}}
}

func stubKey(resource upstream.Resource, year string) string {
	if year == "" {
		return string(resource)
	}
	return string(resource) + "?" + year
}

func (f *stubFetcher) set(resource upstream.Resource, year string, records ...aggregate.Record) {
	f.data[stubKey(resource, year)] = records
}

func (f *stubFetcher) Fetch(ctx context.Context, resource upstream.Resource, query url.Values) ([]aggregate.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stubKey(resource, query.Get("year"))
	f.calls[key]++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[key], nil
}

func (f *stubFetcher) callCount(resource upstream.Resource, year string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stubKey(resource, year)]
}

func newTestService(t *testing.T, fetcher Fetcher) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(fetcher, NewCache(client, time.Minute), nil)
	svc.WithNow(func() time.Time { return time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC) })
	return svc
}

func item(productType, size, level string, qty float64) aggregate.Record {
	return aggregate.Record{ProductType: productType, Size: size, Level: level, Quantity: aggregate.Num(qty)}
}

func sale(date, department string, amount float64) aggregate.Record {
	return aggregate.Record{Date: date, Department: department, Amount: aggregate.Num(amount)}
}

func produced(date, productType string, qty float64) aggregate.Record {
	return aggregate.Record{Date: date, ProductType: productType, Quantity: aggregate.Num(qty)}
}

func TestOrderItemsGroupsAndChecksStock(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceOrderItems, "",
		item("Polo", "M", "SMA", 3),
		item("Polo", "M", "SMA", 4),
		item("Logo", "", "SMA", 50),
		item("Pants", "L", "SMP", 2),
	)
	fetcher.set(upstream.ResourceInventoryStock, "",
		item("Polo", "M", "SMA", 5),
		item("Pants", "L", "SMP", 2),
	)
	svc := newTestService(t, fetcher)

	rows, err := svc.OrderItems(context.Background(), OrderItemsFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Polo-M-SMA", rows[0].Key)
	assert.Equal(t, 7.0, rows[0].Quantity)
	assert.Equal(t, 5.0, rows[0].InStock)
	assert.Equal(t, 2, rows[0].Orders)
	assert.Equal(t, aggregate.NotAvailable, rows[0].Availability)

	assert.Equal(t, "Logo", rows[1].ProductType)
	assert.Equal(t, aggregate.Available, rows[1].Availability)

	assert.Equal(t, aggregate.Available, rows[2].Availability)
}

func TestOrderItemsForwardsFilterAndCaches(t *testing.T) {
	fetcher := newStubFetcher()
	svc := newTestService(t, fetcher)
	ctx := context.Background()

	_, err := svc.OrderItems(ctx, OrderItemsFilter{Level: "SMA", Status: "pending"})
	require.NoError(t, err)
	_, err = svc.OrderItems(ctx, OrderItemsFilter{Level: "SMA", Status: "pending"})
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.callCount(upstream.ResourceOrderItems, ""))
	assert.Equal(t, 1, fetcher.callCount(upstream.ResourceInventoryStock, ""))

	_, err = svc.Invalidate(ctx)
	require.NoError(t, err)
	_, err = svc.OrderItems(ctx, OrderItemsFilter{Level: "SMA", Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount(upstream.ResourceOrderItems, ""))

	found := false
	for _, q := range fetcher.queries {
		if q.Get("level") == "SMA" && q.Get("status") == "pending" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProductionByMonthDefaultsToCurrentYear(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceProduction, "2024",
		produced("2024-01-05", "Polo", 10),
		produced("2024-12-31", "Polo", 4),
		produced("2023-06-01", "Polo", 99),
		produced("not a date", "Polo", 7),
	)
	svc := newTestService(t, fetcher)

	series, err := svc.ProductionByMonth(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, series, 12)
	assert.Equal(t, 10.0, series[0].Value)
	assert.Equal(t, 4.0, series[11].Value)
	assert.Equal(t, 0.0, series[5].Value)
}

func TestProductionByMonthRejectsYear(t *testing.T) {
	svc := newTestService(t, newStubFetcher())
	_, err := svc.ProductionByMonth(context.Background(), 12)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestProductionComparisonAcrossYearBoundary(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceProduction, "2024",
		produced("2024-01-03", "Polo", 30),
		produced("2024-01-20", "Pants", 5),
	)
	fetcher.set(upstream.ResourceProduction, "2023",
		produced("2023-12-10", "Polo", 20),
		produced("2023-11-10", "Polo", 1000),
	)
	svc := newTestService(t, fetcher)

	cmp, err := svc.ProductionComparison(context.Background(), time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "January 2024", cmp.CurrentLabel)
	assert.Equal(t, "December 2023", cmp.ComparisonLabel)
	require.Len(t, cmp.Points, 2)
	assert.Equal(t, "Polo", cmp.Points[0].Label)
	assert.Equal(t, "+50", cmp.Points[0].Change.String())
	assert.Equal(t, "Pants", cmp.Points[1].Label)
	assert.Equal(t, aggregate.NotApplicable, cmp.Points[1].Change.String())
	assert.Equal(t, 35.0, cmp.CurrentTotal)
	assert.Equal(t, 20.0, cmp.ComparisonTotal)
	assert.Equal(t, "+75", cmp.Change.String())
}

func TestSalesComparisonMonthly(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceSalesReport, "2024", sale("2024-02-01", "Tailoring", 110))
	fetcher.set(upstream.ResourceSalesReport, "2023", sale("2023-02-14", "Tailoring", 100))
	svc := newTestService(t, fetcher)

	cmp, err := svc.SalesComparison(context.Background(), SalesFilter{Year: 2024})
	require.NoError(t, err)

	assert.Equal(t, aggregate.GranularityMonth, cmp.Granularity)
	assert.Equal(t, "2024", cmp.CurrentLabel)
	assert.Equal(t, "2023", cmp.ComparisonLabel)
	require.Len(t, cmp.Points, 12)
	assert.Equal(t, "+10", cmp.Points[1].Change.String())
	assert.Equal(t, aggregate.NotApplicable, cmp.Points[0].Change.String())
	assert.Equal(t, "+10", cmp.Change.String())
}

func TestSalesComparisonYearly(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceSalesReport, "2024", sale("2024-02-01", "", 200))
	fetcher.set(upstream.ResourceSalesReport, "2023", sale("2023-02-01", "", 100))
	svc := newTestService(t, fetcher)

	cmp, err := svc.SalesComparison(context.Background(), SalesFilter{Granularity: aggregate.GranularityYear, Year: 2024})
	require.NoError(t, err)

	for y := 2019; y <= 2024; y++ {
		assert.Equal(t, 1, fetcher.callCount(upstream.ResourceSalesReport, strconv.Itoa(y)))
	}
	require.Len(t, cmp.Points, 5)
	assert.Equal(t, "2024", cmp.Points[4].Label)
	assert.Equal(t, 200.0, cmp.Points[4].CurrentValue)
	assert.Equal(t, 100.0, cmp.Points[4].ComparisonValue)
	assert.Equal(t, "+100", cmp.Points[4].Change.String())
	assert.Equal(t, "2020-2024", cmp.CurrentLabel)
}

func TestSalesComparisonPropagatesUpstreamError(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.err = errors.New("upstream down")
	svc := newTestService(t, fetcher)

	_, err := svc.SalesComparison(context.Background(), SalesFilter{Year: 2024})
	assert.ErrorContains(t, err, "upstream down")
}

func TestSalesByMonthKeyOrdersChronologically(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceSalesReport, "2024",
		sale("2024-12-01", "A", 5),
		sale("2024-01-10", "A", 3),
		sale("2024-01-11", "B", 2),
	)
	svc := newTestService(t, fetcher)

	totals, err := svc.SalesByMonthKey(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, MonthKeyTotal{Key: "1-2024", Month: "January", Year: 2024, Total: 5}, totals[0])
	assert.Equal(t, MonthKeyTotal{Key: "12-2024", Month: "December", Year: 2024, Total: 5}, totals[1])
}

func TestTopDepartmentsRanksAndLabelsUnassigned(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceSalesReport, "2024",
		sale("2024-01-01", "Tailoring", 50),
		sale("2024-01-02", "Embroidery", 80),
		sale("2024-01-03", "", 10),
		sale("2024-01-04", "Tailoring", 40),
	)
	svc := newTestService(t, fetcher)

	top, err := svc.TopDepartments(context.Background(), TopFilter{Year: 2024, Limit: 2})
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, aggregate.KeyTotal{Key: "Tailoring", Total: 90}, top[0])
	assert.Equal(t, aggregate.KeyTotal{Key: "Embroidery", Total: 80}, top[1])

	all, err := svc.TopDepartments(context.Background(), TopFilter{Year: 2024, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, UnassignedDepartment, all[2].Key)
}

func TestTopDepartmentsIgnoresRecordsOutsideYear(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceSalesReport, "2024",
		sale("2024-03-01", "Tailoring", 20),
		sale("2023-12-31", "Embroidery", 500),
		sale("2025-01-01", "Tailoring", 300),
		sale("", "Embroidery", 700),
	)
	svc := newTestService(t, fetcher)

	top, err := svc.TopDepartments(context.Background(), TopFilter{Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, []aggregate.KeyTotal{{Key: "Tailoring", Total: 20}}, top)
}

func TestStatusBreakdownListsEveryStatus(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceRentals, "",
		aggregate.Record{Status: "Pending"},
		aggregate.Record{Status: "pending"},
		aggregate.Record{Status: "Completed"},
	)
	svc := newTestService(t, fetcher)

	counts, err := svc.StatusBreakdown(context.Background(), upstream.ResourceRentals)
	require.NoError(t, err)
	require.Len(t, counts, len(aggregate.AllOrderStatuses))
	assert.Equal(t, aggregate.StatusPending, counts[0].Status)
	assert.Equal(t, 2, counts[0].Count)
	assert.Equal(t, aggregate.StatusCompleted, counts[1].Status)
	assert.NotEmpty(t, counts[0].Badge.Color)

	_, err = svc.StatusBreakdown(context.Background(), upstream.ResourceProduction)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestSummaryCombinesViews(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceProduction, "2024", produced("2024-03-01", "Polo", 4))
	fetcher.set(upstream.ResourceSalesReport, "2024", sale("2024-03-01", "Tailoring", 120))
	svc := newTestService(t, fetcher)

	summary, err := svc.Summary(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2024, summary.Year)
	assert.Len(t, summary.Production, 12)
	assert.Equal(t, 4.0, summary.Production[2].Value)
	assert.Equal(t, 120.0, summary.Sales.CurrentTotal)
	require.Len(t, summary.TopDepartments, 1)
	assert.Len(t, summary.OrderStatuses, len(aggregate.AllOrderStatuses))
}

func TestServiceWithoutCache(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(upstream.ResourceProduction, "2024", produced("2024-01-01", "Polo", 1))
	svc := NewService(fetcher, nil, nil)

	series, err := svc.ProductionByMonth(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, 1.0, series[0].Value)
	_, err = svc.Invalidate(context.Background())
	assert.NoError(t, err)
}
