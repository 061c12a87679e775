package models

import "time"

// MetricsPeriod is the bucketing granularity for pre-aggregated metrics.
type MetricsPeriod string

const (
	PeriodHour MetricsPeriod = "hour"
	PeriodDay  MetricsPeriod = "day"
)

// MetricsBucket is one pre-aggregated (app, period-start) rollup used for
// charting without scanning raw logs. Written at most once per
// (app, period, period_start).
type MetricsBucket struct {
	ID           string        `json:"id"`
	AppID        string        `json:"app_id"`
	Period       MetricsPeriod `json:"period"`
	PeriodStart  time.Time     `json:"period_start"`
	TotalCount   int64         `json:"total_count"`
	ErrorCount   int64         `json:"error_count"`
	WarnCount    int64         `json:"warn_count"`
	InfoCount    int64         `json:"info_count"`
	DebugCount   int64         `json:"debug_count"`
	FlaggedCount int64         `json:"flagged_count"`
	AvgPerMinute float64       `json:"avg_per_minute"`
	CreatedAt    time.Time     `json:"created_at"`
}
