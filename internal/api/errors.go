// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
)

// ErrorResponse is the body written for every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// statusForKind maps a gatewayerr.Kind to the HTTP status a caller should
// see. Kinds absent from this table (there are none today, but a future
// kind added to gatewayerr without a matching case here would otherwise
// panic on map lookup) fall through to 500 in writeError.
var statusForKind = map[gatewayerr.Kind]int{
	gatewayerr.KindDimensionMismatch:  http.StatusBadRequest,
	gatewayerr.KindUnknownID:          http.StatusNotFound,
	gatewayerr.KindIntegrityViolation: http.StatusBadRequest,
	gatewayerr.KindCycleDetected:      http.StatusConflict,
	gatewayerr.KindStorageUnavailable: http.StatusServiceUnavailable,
	gatewayerr.KindTrainingDiverged:   http.StatusUnprocessableEntity,
	gatewayerr.KindDeadlineExceeded:   http.StatusGatewayTimeout,
	gatewayerr.KindResourceExhausted:  http.StatusTooManyRequests,
}

// writeError maps err to an HTTP status and writes the JSON error body.
// A plain (non-gatewayerr) error is treated as an internal error.
func writeError(c *gin.Context, err error) {
	var gerr *gatewayerr.Error
	if errors.As(err, &gerr) {
		status, ok := statusForKind[gerr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorResponse{
			Error:     gerr.Error(),
			Code:      string(gerr.Kind),
			RequestID: requestID(c),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     err.Error(),
		Code:      "internal",
		RequestID: requestID(c),
	})
}

// writeValidationError reports a binding/validation failure as 400.
func writeValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     err.Error(),
		Code:      "invalid_request",
		RequestID: requestID(c),
	})
}

func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-ID")
}
