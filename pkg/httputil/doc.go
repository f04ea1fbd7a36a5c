// Package httputil provides HTTP handler utilities for consistent error
// bodies, JSON decoding, path and query parsing, and the generic middleware
// (request ids, access logging, panic recovery) shared by the API.
//
// Error bodies always carry an "error" title, optionally with a "message" for
// the caller or "details" holding the underlying cause:
//
//	httputil.WriteServiceUnavailable(w, "Database connection failed", "Unable to connect to analytics database")
//	httputil.WriteInternalError(w, "Platform error", err)
//
// Request bodies are decoded as generic JSON objects so that handlers can
// report exactly which required fields are missing:
//
//	body, ok := httputil.ParseJSONObjectOrError(w, r)
//	if !ok {
//	    return
//	}
package httputil
