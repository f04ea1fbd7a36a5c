package analytics

import "time"

// Aggregate key names
const (
	EventTypeMetricsKey   = "event_type_metrics"
	DailyEventCountsKey   = "daily_event_counts"
	UniqueUsersKey        = "unique_users"
	UniqueSessionsKey     = "unique_sessions"
	HourlyAggregationsKey = "hourly_aggregations"
)

// Event types with fixed meaning in the conversion metrics
const (
	PageViewEvent          = "page_view"
	UserRegisteredEvent    = "user_registered"
	PurchaseCompletedEvent = "purchase_completed"
)

// TrendDays is the number of days reported in daily trends
const TrendDays = 7

// DateKey formats the daily counter field for t (UTC)
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// HourKey formats the hourly aggregation field for t (UTC)
func HourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02-15")
}
