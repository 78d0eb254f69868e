// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware returns a gin.HandlerFunc that records m.RequestDuration /
// RequestsTotal / ResponseErrors for every request and logs completion with
// the request's trace ID attached. It assumes otelgin.Middleware has
// already run earlier in the chain so a span is active on c.Request's
// context; it does not start its own span.
func GinMiddleware(m *HTTPMetrics, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		ctx := c.Request.Context()
		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		m.RecordRequest(ctx, route, c.Request.Method, status, duration.Seconds())

		Logger(ctx, logger).Info("request completed",
			slog.String("route", route),
			slog.String("method", c.Request.Method),
			slog.Int("status", status),
			slog.Duration("duration", duration),
		)
	}
}
