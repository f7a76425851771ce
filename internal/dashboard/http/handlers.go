package dashboardhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/dashboard"
	"github.com/marsukat/marsukat-dashboard/internal/dashboard/export"
	"github.com/marsukat/marsukat-dashboard/internal/platform/httpx"
	"github.com/marsukat/marsukat-dashboard/internal/snapshot"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
)

const requestTimeout = 10 * time.Second

// DashboardService defines the data contract used by the handler.
type DashboardService interface {
	ResolveYear(year int) (int, error)
	OrderItems(ctx context.Context, filter dashboard.OrderItemsFilter) ([]dashboard.OrderItemRow, error)
	ProductionByMonth(ctx context.Context, year int) ([]aggregate.PeriodTotal, error)
	ProductionComparison(ctx context.Context, month time.Time) (dashboard.Comparison, error)
	SalesComparison(ctx context.Context, filter dashboard.SalesFilter) (dashboard.Comparison, error)
	SalesByMonthKey(ctx context.Context, year int) ([]dashboard.MonthKeyTotal, error)
	TopDepartments(ctx context.Context, filter dashboard.TopFilter) ([]aggregate.KeyTotal, error)
	StatusBreakdown(ctx context.Context, resource upstream.Resource) ([]dashboard.StatusCount, error)
	Invalidate(ctx context.Context) (int64, error)
	InvalidateResource(ctx context.Context, resource upstream.Resource) (int64, error)
}

// SnapshotLister reads stored snapshots.
type SnapshotLister interface {
	List(ctx context.Context, kind string, limit int) ([]snapshot.Snapshot, error)
}

// Handler serves the dashboard JSON API.
type Handler struct {
	logger    *slog.Logger
	service   DashboardService
	snapshots SnapshotLister
	validate  *validator.Validate
	csvPool   sync.Pool
	timeout   time.Duration
}

// NewHandler constructs the dashboard HTTP handler. snapshots may be nil.
func NewHandler(logger *slog.Logger, service DashboardService, snapshots SnapshotLister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		snapshots: snapshots,
		validate:  validator.New(),
		timeout:   requestTimeout,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

type orderItemsQuery struct {
	Level  string `validate:"omitempty,max=32"`
	Status string `validate:"omitempty,max=32"`
}

type yearQuery struct {
	Year int `validate:"omitempty,min=1900,max=9999"`
}

type monthQuery struct {
	Month string `validate:"omitempty,datetime=2006-01"`
}

type salesQuery struct {
	Granularity string `validate:"omitempty,oneof=month week year"`
	Year        int    `validate:"omitempty,min=1900,max=9999"`
}

type topQuery struct {
	Year  int `validate:"omitempty,min=1900,max=9999"`
	Limit int `validate:"omitempty,min=1,max=100"`
}

type statusQuery struct {
	Resource string `validate:"omitempty,oneof=orders rentals commercial-jobs"`
}

type bumpQuery struct {
	Resource string `validate:"omitempty,oneof=orders/items production sales-report inventory/stocks rentals commercial-jobs"`
}

type snapshotQuery struct {
	Kind  string `validate:"omitempty,oneof=summary"`
	Limit int    `validate:"omitempty,min=1,max=100"`
}

var statusResources = map[string]upstream.Resource{
	"orders":          upstream.ResourceOrderItems,
	"rentals":         upstream.ResourceRentals,
	"commercial-jobs": upstream.ResourceCommercialJobs,
}

func (h *Handler) handleOrderItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := orderItemsQuery{Level: strings.TrimSpace(q.Get("level")), Status: strings.TrimSpace(q.Get("status"))}
	if !h.check(w, query) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rows, err := h.service.OrderItems(ctx, dashboard.OrderItemsFilter{Level: query.Level, Status: query.Status})
	if err != nil {
		h.respondServiceError(w, "order items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) handleProductionMonthly(w http.ResponseWriter, r *http.Request) {
	var query yearQuery
	if err := parseInt(r.URL.Query(), "year", &query.Year); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.check(w, query) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	year, err := h.service.ResolveYear(query.Year)
	if err != nil {
		h.respondServiceError(w, "production monthly", err)
		return
	}
	series, err := h.service.ProductionByMonth(ctx, year)
	if err != nil {
		h.respondServiceError(w, "production monthly", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"year": year, "series": series})
}

func (h *Handler) handleProductionCompare(w http.ResponseWriter, r *http.Request) {
	query := monthQuery{Month: strings.TrimSpace(r.URL.Query().Get("month"))}
	if !h.check(w, query) {
		return
	}
	var month time.Time
	if query.Month != "" {
		parsed, err := time.Parse("2006-01", query.Month)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: month", httpx.ErrValidation))
			return
		}
		month = parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cmp, err := h.service.ProductionComparison(ctx, month)
	if err != nil {
		h.respondServiceError(w, "production compare", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cmp)
}

func (h *Handler) parseSales(w http.ResponseWriter, r *http.Request) (dashboard.SalesFilter, bool) {
	q := r.URL.Query()
	query := salesQuery{Granularity: strings.ToLower(strings.TrimSpace(q.Get("granularity")))}
	if err := parseInt(q, "year", &query.Year); err != nil {
		httpx.RespondError(w, err)
		return dashboard.SalesFilter{}, false
	}
	if !h.check(w, query) {
		return dashboard.SalesFilter{}, false
	}
	return dashboard.SalesFilter{Granularity: aggregate.ParseGranularity(query.Granularity), Year: query.Year}, true
}

func (h *Handler) handleSalesCompare(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseSales(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cmp, err := h.service.SalesComparison(ctx, filter)
	if err != nil {
		h.respondServiceError(w, "sales compare", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cmp)
}

func (h *Handler) handleSalesMonthly(w http.ResponseWriter, r *http.Request) {
	var query yearQuery
	if err := parseInt(r.URL.Query(), "year", &query.Year); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.check(w, query) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	year, err := h.service.ResolveYear(query.Year)
	if err != nil {
		h.respondServiceError(w, "sales monthly", err)
		return
	}
	totals, err := h.service.SalesByMonthKey(ctx, year)
	if err != nil {
		h.respondServiceError(w, "sales monthly", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"year": year, "months": totals})
}

func (h *Handler) handleSalesCSV(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseSales(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cmp, err := h.service.SalesComparison(ctx, filter)
	if err != nil {
		h.respondServiceError(w, "sales export", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteComparisonCSV(buf, cmp); err != nil {
		h.respondServiceError(w, "write sales csv", err)
		return
	}

	filename := fmt.Sprintf("sales-%s-%s.csv", filter.Granularity, cmp.CurrentLabel)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) handleTopDepartments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query topQuery
	if err := parseInt(q, "year", &query.Year); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := parseInt(q, "limit", &query.Limit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.check(w, query) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	year, err := h.service.ResolveYear(query.Year)
	if err != nil {
		h.respondServiceError(w, "top departments", err)
		return
	}
	top, err := h.service.TopDepartments(ctx, dashboard.TopFilter{Year: year, Limit: query.Limit})
	if err != nil {
		h.respondServiceError(w, "top departments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"year": year, "departments": top})
}

type statusBadge struct {
	Status aggregate.OrderStatus `json:"status"`
	Badge  aggregate.Badge       `json:"badge"`
}

func (h *Handler) handleStatuses(w http.ResponseWriter, r *http.Request) {
	query := statusQuery{Resource: strings.TrimSpace(r.URL.Query().Get("resource"))}
	if !h.check(w, query) {
		return
	}
	if query.Resource == "" {
		badges := make([]statusBadge, 0, len(aggregate.AllOrderStatuses))
		for _, s := range aggregate.AllOrderStatuses {
			badges = append(badges, statusBadge{Status: s, Badge: aggregate.StatusBadge(s)})
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"statuses": badges})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	counts, err := h.service.StatusBreakdown(ctx, statusResources[query.Resource])
	if err != nil {
		h.respondServiceError(w, "status breakdown", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"resource": query.Resource, "statuses": counts})
}

func (h *Handler) handleCacheBump(w http.ResponseWriter, r *http.Request) {
	query := bumpQuery{Resource: strings.TrimSpace(r.URL.Query().Get("resource"))}
	if !h.check(w, query) {
		return
	}
	if query.Resource != "" {
		resource := upstream.Resource(query.Resource)
		version, err := h.service.InvalidateResource(r.Context(), resource)
		if err != nil {
			h.respondServiceError(w, "cache bump", err)
			return
		}
		h.logger.Info("dashboard cache invalidated", slog.String("resource", query.Resource), slog.Int64("version", version))
		httpx.JSON(w, http.StatusOK, map[string]any{"resource": query.Resource, "version": version})
		return
	}
	version, err := h.service.Invalidate(r.Context())
	if err != nil {
		h.respondServiceError(w, "cache bump", err)
		return
	}
	h.logger.Info("dashboard cache invalidated", slog.Int64("version", version))
	httpx.JSON(w, http.StatusOK, map[string]any{"version": version})
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "snapshot store not configured")
		return
	}
	q := r.URL.Query()
	query := snapshotQuery{Kind: strings.TrimSpace(q.Get("kind"))}
	if err := parseInt(q, "limit", &query.Limit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.check(w, query) {
		return
	}
	if query.Kind == "" {
		query.Kind = snapshot.KindSummary
	}
	if query.Limit == 0 {
		query.Limit = 12
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.snapshots.List(ctx, query.Kind, query.Limit)
	if err != nil {
		h.respondServiceError(w, "list snapshots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"snapshots": items})
}

func (h *Handler) check(w http.ResponseWriter, query any) bool {
	if err := h.validate.Struct(query); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			names := make([]string, 0, len(fields))
			for _, fieldErr := range fields {
				names = append(names, strings.ToLower(fieldErr.Field()))
			}
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(names, ", ")))
			return false
		}
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	var statusErr *upstream.StatusError
	var urlErr *url.Error
	switch {
	case errors.Is(err, dashboard.ErrInvalidFilter):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(op, slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	case errors.Is(err, upstream.ErrUnauthorized), errors.As(err, &statusErr), errors.As(err, &urlErr):
		h.logger.Warn(op, slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUpstream, err))
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseInt(q url.Values, name string, dest *int) error {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, name)
	}
	*dest = v
	return nil
}
