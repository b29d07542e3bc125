// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start at debug level (method, path, remote) and completion
(status, human-readable response size, duration_ms).

# Rate Limiting

Event submission is limited per subject with a token bucket per key:

	limiter := middleware.NewRateLimiter(cfg.EventRate, cfg.EventBurst, middleware.DefaultMaxKeys)
	mux.HandleFunc("POST /subject/experiments/{id}/events",
		middleware.WithLogging(middleware.WithRateLimit(limiter, userKey, handler)))

Requests over the limit get 429 with Retry-After. An empty key falls back
to the client IP. The limiter holds at most maxKeys buckets and evicts the
least recently used one to make room; buckets idle long enough to refill
are dropped as they are passed.

# CORS Middleware

Enable cross-origin requests for browser clients:

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

Allows methods GET, POST, PUT, DELETE, OPTIONS with the identity and
conditional request headers, and exposes ETag, Last-Modified, Location and Retry-After.

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

Parse JSON request bodies:

	var req models.ExperimentRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

Get the original client IP (handles X-Forwarded-For, X-Real-IP):

	ip := middleware.GetClientIP(r)
*/
package middleware
