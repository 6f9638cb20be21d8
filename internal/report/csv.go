// Package report renders the products of a residual analysis run into
// files: metrics tables, a JSON summary, PNG charts and an HTML dashboard.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/calibration.report/internal/residual"
)

// metricsHeader matches the column names of the legacy analysis scripts so
// existing spreadsheets keep working.
var metricsHeader = []string{"mode", "axis", "n_samples", "mean", "mae", "rmse", "maxabs", "std"}

// WriteMetricsCSV writes one line per metric row in the order given.
func WriteMetricsCSV(w io.Writer, rows []residual.MetricRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(metricsHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			string(r.Regime),
			r.Channel.String(),
			strconv.Itoa(r.SampleCount),
			formatFloat(r.Mean),
			formatFloat(r.MAE),
			formatFloat(r.RMSE),
			formatFloat(r.MaxAbs),
			formatFloat(r.Std),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %s/%s: %w", r.Regime, r.Channel, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
