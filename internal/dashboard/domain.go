package dashboard

import (
	"time"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
)

// OrderItemsFilter narrows the order-items screen.
type OrderItemsFilter struct {
	Level  string
	Status string
}

// OrderItemRow is one grouped product/size/level line with its stock check.
type OrderItemRow struct {
	Key          string                 `json:"key"`
	ProductType  string                 `json:"productType"`
	Size         string                 `json:"size"`
	Level        string                 `json:"level"`
	Quantity     float64                `json:"quantity"`
	InStock      float64                `json:"inStock"`
	Orders       int                    `json:"orders"`
	Availability aggregate.Availability `json:"availability"`
}

// Comparison is an aligned current-versus-previous view.
type Comparison struct {
	CurrentLabel    string                   `json:"currentLabel"`
	ComparisonLabel string                   `json:"comparisonLabel"`
	Granularity     aggregate.Granularity    `json:"granularity,omitempty"`
	Points          []aggregate.AlignedPoint `json:"points"`
	CurrentTotal    float64                  `json:"currentTotal"`
	ComparisonTotal float64                  `json:"comparisonTotal"`
	Change          aggregate.Change         `json:"change"`
}

func newComparison(currentLabel, comparisonLabel string, points []aggregate.AlignedPoint) Comparison {
	cur, cmp := aggregate.SeriesTotals(points)
	return Comparison{
		CurrentLabel:    currentLabel,
		ComparisonLabel: comparisonLabel,
		Points:          points,
		CurrentTotal:    cur,
		ComparisonTotal: cmp,
		Change:          aggregate.PercentChange(cur, cmp),
	}
}

// SalesFilter scopes the sales comparison.
type SalesFilter struct {
	Granularity aggregate.Granularity
	Year        int
}

// TopFilter scopes the department ranking.
type TopFilter struct {
	Year  int
	Limit int
}

// MonthKeyTotal is a sales total under a "M-YYYY" key.
type MonthKeyTotal struct {
	Key   string  `json:"key"`
	Month string  `json:"month"`
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

// StatusCount is the number of records in one status with its badge.
type StatusCount struct {
	Status aggregate.OrderStatus `json:"status"`
	Badge  aggregate.Badge       `json:"badge"`
	Count  int                   `json:"count"`
}

// Summary bundles the yearly dashboard views stored as snapshots.
type Summary struct {
	Year           int                     `json:"year"`
	GeneratedAt    time.Time               `json:"generatedAt"`
	Production     []aggregate.PeriodTotal `json:"production"`
	Sales          Comparison              `json:"sales"`
	TopDepartments []aggregate.KeyTotal    `json:"topDepartments"`
	OrderStatuses  []StatusCount           `json:"orderStatuses"`
}

// UnassignedDepartment labels sales rows without a department.
const UnassignedDepartment = "Unassigned"

const defaultTopLimit = 5
