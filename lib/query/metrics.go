package query

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

var (
	cursorSteps    = metrics.NewCounter("ikv_cursor_steps_total")
	cursorSeeks    = metrics.NewCounter("ikv_cursor_seeks_total")
	recordsMatched = metrics.NewCounter("ikv_records_matched_total")
)

// observe records one call of verb that started at start.
func observe(verb string, start time.Time, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`ikv_query_calls_total{verb=%q}`, verb)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`ikv_query_duration_seconds{verb=%q}`, verb)).UpdateDuration(start)
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`ikv_query_errors_total{verb=%q,code=%q}`, verb, CodeOf(err).String())).Inc()
	}
}

// WriteMetrics writes all query metrics in Prometheus text format to w.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
