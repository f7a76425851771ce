package dashboardhttp

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/dashboard"
	"github.com/marsukat/marsukat-dashboard/internal/snapshot"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
)

type stubService struct {
	err         error
	yearErr     error
	year        int
	salesFilter dashboard.SalesFilter
	topFilter   dashboard.TopFilter
	month       time.Time
	resource    upstream.Resource
	bumped      int
	bumpedRes   upstream.Resource
}

func (s *stubService) ResolveYear(year int) (int, error) {
	if s.yearErr != nil {
		return 0, s.yearErr
	}
	if year == 0 {
		return 2025, nil
	}
	return year, nil
}

func (s *stubService) OrderItems(ctx context.Context, filter dashboard.OrderItemsFilter) ([]dashboard.OrderItemRow, error) {
	return []dashboard.OrderItemRow{{Key: "Polo-M-" + filter.Level, Quantity: 3, Availability: aggregate.Available}}, s.err
}

func (s *stubService) ProductionByMonth(ctx context.Context, year int) ([]aggregate.PeriodTotal, error) {
	s.year = year
	return []aggregate.PeriodTotal{{Label: "January", Period: 1, Value: 10}}, s.err
}

func (s *stubService) ProductionComparison(ctx context.Context, month time.Time) (dashboard.Comparison, error) {
	s.month = month
	return dashboard.Comparison{CurrentLabel: "March 2024"}, s.err
}

func (s *stubService) SalesComparison(ctx context.Context, filter dashboard.SalesFilter) (dashboard.Comparison, error) {
	s.salesFilter = filter
	points := aggregate.AlignPeriods(
		[]aggregate.PeriodTotal{{Label: "January", Value: 110}},
		[]aggregate.PeriodTotal{{Label: "January", Value: 100}},
	)
	return dashboard.Comparison{
		CurrentLabel:    "2024",
		ComparisonLabel: "2023",
		Granularity:     filter.Granularity,
		Points:          points,
		CurrentTotal:    110,
		ComparisonTotal: 100,
		Change:          aggregate.PercentChange(110, 100),
	}, s.err
}

func (s *stubService) SalesByMonthKey(ctx context.Context, year int) ([]dashboard.MonthKeyTotal, error) {
	return []dashboard.MonthKeyTotal{{Key: "1-2024", Month: "January", Year: 2024, Total: 5}}, s.err
}

func (s *stubService) TopDepartments(ctx context.Context, filter dashboard.TopFilter) ([]aggregate.KeyTotal, error) {
	s.topFilter = filter
	return []aggregate.KeyTotal{{Key: "Tailoring", Total: 90}}, s.err
}

func (s *stubService) StatusBreakdown(ctx context.Context, resource upstream.Resource) ([]dashboard.StatusCount, error) {
	s.resource = resource
	return []dashboard.StatusCount{{Status: aggregate.StatusPending, Badge: aggregate.StatusBadge(aggregate.StatusPending), Count: 2}}, s.err
}

func (s *stubService) Invalidate(ctx context.Context) (int64, error) {
	s.bumped++
	return int64(s.bumped + 1), s.err
}

func (s *stubService) InvalidateResource(ctx context.Context, resource upstream.Resource) (int64, error) {
	s.bumpedRes = resource
	return 7, s.err
}

type stubSnapshots struct {
	kind  string
	limit int
}

func (s *stubSnapshots) List(ctx context.Context, kind string, limit int) ([]snapshot.Snapshot, error) {
	s.kind, s.limit = kind, limit
	return []snapshot.Snapshot{{Kind: kind, Period: "2024", Payload: json.RawMessage(`{"year":2024}`)}}, nil
}

func newTestRouter(t *testing.T, svc DashboardService, snaps SnapshotLister) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(nil, svc, snaps).MountRoutes(r)
	return r
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestOrderItemsEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubService{}, nil)
	rr := serve(router, http.MethodGet, "/orders/items?level=SMA")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"items":[{"key":"Polo-M-SMA","productType":"","size":"","level":"","quantity":3,"inStock":0,"orders":0,"availability":"Available"}]}`, rr.Body.String())
}

func TestSalesCompareParsesFilters(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil)
	rr := serve(router, http.MethodGet, "/sales/compare?granularity=WEEK&year=2024")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, aggregate.GranularityWeek, svc.salesFilter.Granularity)
	assert.Equal(t, 2024, svc.salesFilter.Year)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "+10", body["change"])
}

func TestInvalidQueriesReturnProblem(t *testing.T) {
	router := newTestRouter(t, &stubService{}, nil)
	cases := []string{
		"/sales/compare?granularity=decade",
		"/sales/compare?year=abc",
		"/production/monthly?year=20",
		"/production/compare?month=2024-13",
		"/departments/top?limit=-1",
		"/departments/top?limit=500",
		"/statuses?resource=production",
	}
	for _, target := range cases {
		t.Run(target, func(t *testing.T) {
			rr := serve(router, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var problem map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
			assert.Equal(t, "Validation Failed", problem["title"])
		})
	}
}

func TestUpstreamFailureMapsToBadGateway(t *testing.T) {
	router := newTestRouter(t, &stubService{err: &upstream.StatusError{Resource: upstream.ResourceSalesReport, Code: 500}}, nil)
	rr := serve(router, http.MethodGet, "/sales/monthly?year=2024")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	router = newTestRouter(t, &stubService{err: upstream.ErrUnauthorized}, nil)
	rr = serve(router, http.MethodGet, "/orders/items")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestServiceFilterErrorMapsToBadRequest(t *testing.T) {
	router := newTestRouter(t, &stubService{err: dashboard.ErrInvalidFilter}, nil)
	rr := serve(router, http.MethodGet, "/production/monthly")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	router = newTestRouter(t, &stubService{yearErr: dashboard.ErrInvalidFilter}, nil)
	rr = serve(router, http.MethodGet, "/departments/top")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOmittedYearReportsResolvedYear(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil)

	rr := serve(router, http.MethodGet, "/production/monthly")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2025, svc.year)
	var body struct {
		Year int `json:"year"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2025, body.Year)

	for _, target := range []string{"/sales/monthly", "/departments/top"} {
		rr = serve(router, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rr.Code, target)
		body.Year = 0
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, 2025, body.Year, target)
	}
	assert.Equal(t, 2025, svc.topFilter.Year)
}

func TestUnexpectedErrorHidesDetail(t *testing.T) {
	router := newTestRouter(t, &stubService{err: errors.New("redis: connection refused")}, nil)
	rr := serve(router, http.MethodGet, "/departments/top")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "redis")
}

func TestProductionCompareParsesMonth(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil)
	rr := serve(router, http.MethodGet, "/production/compare?month=2024-01")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), svc.month)
}

func TestTopDepartmentsForwardsLimit(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil)
	rr := serve(router, http.MethodGet, "/departments/top?year=2023&limit=3")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, dashboard.TopFilter{Year: 2023, Limit: 3}, svc.topFilter)
}

func TestStatusesEndpoint(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil)

	rr := serve(router, http.MethodGet, "/statuses")
	require.Equal(t, http.StatusOK, rr.Code)
	var badges struct {
		Statuses []map[string]any `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &badges))
	assert.Len(t, badges.Statuses, len(aggregate.AllOrderStatuses))

	rr = serve(router, http.MethodGet, "/statuses?resource=rentals")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, upstream.ResourceRentals, svc.resource)
}

func TestSalesCSVExport(t *testing.T) {
	router := newTestRouter(t, &stubService{}, nil)
	rr := serve(router, http.MethodGet, "/sales/export.csv?year=2024")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "sales-month-2024.csv")

	records, err := csv.NewReader(bytes.NewReader(rr.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"January", "110.00", "100.00", "+10"}, records[1])
}

func TestCacheBump(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil)
	rr := serve(router, http.MethodPost, "/cache/bump")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, svc.bumped)
	assert.JSONEq(t, `{"version":2}`, rr.Body.String())

	rr = serve(router, http.MethodPost, "/cache/bump?resource=inventory/stocks")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, upstream.ResourceInventoryStock, svc.bumpedRes)
	assert.Equal(t, 1, svc.bumped)
	assert.JSONEq(t, `{"resource":"inventory/stocks","version":7}`, rr.Body.String())

	rr = serve(router, http.MethodPost, "/cache/bump?resource=payroll")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSnapshotsEndpoint(t *testing.T) {
	snaps := &stubSnapshots{}
	router := newTestRouter(t, &stubService{}, snaps)
	rr := serve(router, http.MethodGet, "/snapshots?limit=5")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, snapshot.KindSummary, snaps.kind)
	assert.Equal(t, 5, snaps.limit)
	assert.Contains(t, rr.Body.String(), `"period":"2024"`)

	rr = serve(newTestRouter(t, &stubService{}, nil), http.MethodGet, "/snapshots")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
