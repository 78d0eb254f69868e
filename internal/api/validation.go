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
	"log/slog"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/capgateway/internal/graphstore"
)

// registerValidators adds capability_fqdn and tool_id validations (the
// same checks graphstore.RegisterFormats gives strfmt) to gin's default
// validator engine, so request DTOs can use `binding:"capability_fqdn"` /
// `binding:"tool_id"` tags alongside the ordinary go-playground/validator
// tags (required, oneof, min, max, ...) gin already understands. strfmt and
// go-playground/validator have no native bridge between them, so both
// formats are backed directly by graphstore's exported pattern checks
// rather than round-tripping through strfmt.Default.Validates.
func registerValidators(logger *slog.Logger) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		logger.Warn("api: gin's default validator engine is not go-playground/validator/v10, skipping custom format registration")
		return
	}
	_ = v.RegisterValidation("capability_fqdn", func(fl validator.FieldLevel) bool {
		return graphstore.ValidFQDN(fl.Field().String())
	})
	_ = v.RegisterValidation("tool_id", func(fl validator.FieldLevel) bool {
		return graphstore.ValidToolID(fl.Field().String())
	})
}
