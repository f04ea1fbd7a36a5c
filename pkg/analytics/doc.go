// Package analytics maintains the aggregate counters and derives the
// dashboards served by the API.
//
// # Overview
//
// Counters is the write side: every stored event increments its type
// counter and the day's counter and adds its user and session to the
// unique sets. Service is the read side and never writes. Aggregator runs
// the scheduled passes (hourly snapshot, index cleanup).
//
// # Keys
//
//	event_type_metrics   hash  event_type -> count
//	daily_event_counts   hash  YYYY-MM-DD -> count
//	unique_users         set   user ids
//	unique_sessions      set   session ids
//	hourly_aggregations  hash  YYYY-MM-DD-HH -> count
//
// Counters only ever increase. When a counter key expires it silently starts
// again from zero on the next event.
//
// # Usage Example
//
//	dashboard, err := service.Dashboard(ctx)
//	if err != nil {
//		return err
//	}
//	fmt.Println(dashboard.Summary.TotalEvents)
//
//	user, err := service.UserAnalytics(ctx, "user_00042", 0)
package analytics
