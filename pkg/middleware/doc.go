// Package middleware provides API-key authentication, permission checks and
// Redis-backed rate limiting for the beacon HTTP API.
//
// Keys are presented as "Authorization: Bearer <key>", an X-API-Key header or
// an api_key query parameter, checked in that order. Every key carries a set
// of permissions (read, write, admin) and an hourly request budget:
//
//	keys := middleware.NewKeyStore(cfg.Auth.AdminKey)
//	limiter := middleware.NewRateLimiter(store)
//	auth := middleware.NewAuthenticator(keys, middleware.WithRateLimiter(limiter))
//	router.Handle("/events/", auth.Require(middleware.PermWrite)(handler))
//
// The limiter keeps one counter per key and window under
// ratelimit:key_<md5 prefix>. When Redis is unreachable requests are allowed.
package middleware
