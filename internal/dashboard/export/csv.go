// Package export renders dashboard views for download.
package export

import (
	"encoding/csv"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/dashboard"
)

var printer = message.NewPrinter(language.English)

// WriteComparisonCSV emits an aligned comparison with a closing total row.
func WriteComparisonCSV(w io.Writer, cmp dashboard.Comparison) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	current, previous := cmp.CurrentLabel, cmp.ComparisonLabel
	if current == "" {
		current = "Current"
	}
	if previous == "" {
		previous = "Comparison"
	}
	if err := writer.Write([]string{"Period", current, previous, "Change (%)"}); err != nil {
		return err
	}
	for _, point := range cmp.Points {
		if err := writer.Write([]string{
			point.Label,
			formatFloat(point.CurrentValue),
			formatFloat(point.ComparisonValue),
			point.Change.String(),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{
		"Total",
		formatFloat(cmp.CurrentTotal),
		formatFloat(cmp.ComparisonTotal),
		cmp.Change.String(),
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WritePeriodCSV emits a bucketed series.
func WritePeriodCSV(w io.Writer, series []aggregate.PeriodTotal) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Period", "Value", "Records"}); err != nil {
		return err
	}
	for _, p := range series {
		if err := writer.Write([]string{p.Label, formatFloat(p.Value), printer.Sprintf("%d", p.Count)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return printer.Sprintf("%.2f", v)
}
