// Package api exposes the event analytics platform over HTTP.
//
// # Routes
//
//	GET  /health                             liveness plus Redis status (no auth)
//	GET  /health/live, /health/ready         probes (no auth)
//	GET  /metrics                            Prometheus exposition (no auth)
//	POST /events/                            record an event (write)
//	GET  /events/{event_id}/                 fetch one event (read)
//	PUT  /events/{event_id}/enrich/          merge additional_properties (write)
//	GET  /analytics/[?user_id=&limit=]       dashboard or per-user view (read)
//	POST /generate-sample-data/{num_events}/ enqueue synthetic events (admin)
//	GET  /jobs/{job_id}                      background job status (read)
//	GET  /auth/info                          describe the calling key (read)
//
// # Errors
//
// Redis being unreachable yields 503 {"error":"Database connection failed"}.
// Known platform failures yield 500 with the cause in "details"; input
// problems yield 400 and missing events 404 with the requested event_id.
//
// # Wiring
//
//	srv := api.NewServer(api.Deps{
//	    Events:    repo,
//	    Analytics: service,
//	    Jobs:      queue,
//	    Auth:      authenticator,
//	    Health:    observability.NewHealthChecker(api.ServiceName, store),
//	})
//	http.ListenAndServe(":5000", srv.Handler())
package api
