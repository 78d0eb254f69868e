// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/go-openapi/strfmt"
)

// IntegrityHash computes the full SHA-256 hex digest over a capability's
// canonical content.
func IntegrityHash(canonicalContent []byte) string {
	sum := sha256.Sum256(canonicalContent)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 4 hex characters of a full integrity hash.
func ShortHash(fullHash string) string {
	if len(fullHash) < 4 {
		return fullHash
	}
	return fullHash[:4]
}

// FQDN builds a capability's fully-qualified name from its components and
// short hash: org.project.namespace.action.shorthash.
func FQDN(org, project, namespace, action, shortHash string) string {
	return fmt.Sprintf("%s.%s.%s.%s.%s", org, project, namespace, action, shortHash)
}

var fqdnPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+){3}\.[0-9a-f]{4}$`)

// CapabilityFQDN is a string that matches the capability FQDN template.
// RegisterFormats adds a strfmt format named "capability-fqdn" for it;
// internal/api does not use strfmt and validates FQDNs through ValidFQDN
// via a `binding:"capability_fqdn"` tag.
type CapabilityFQDN string

var toolIDPattern = regexp.MustCompile(`^[^:\s]+:[^:\s]+$`)

// RegisterFormats registers the capability-fqdn and tool-id custom formats
// with strfmt's default registry. Call once at startup before any request
// validation runs.
func RegisterFormats() {
	strfmt.Default.Add("capability-fqdn", new(strfmt.Default), func(s string) bool {
		return fqdnPattern.MatchString(s)
	})
	strfmt.Default.Add("tool-id", new(strfmt.Default), func(s string) bool {
		return toolIDPattern.MatchString(s)
	})
}

// ValidFQDN reports whether s matches the capability FQDN template. Shared
// by the strfmt format above and by internal/api's go-playground/validator
// struct-tag validation, so both layers enforce the same rule.
func ValidFQDN(s string) bool {
	return fqdnPattern.MatchString(s)
}

// ValidToolID reports whether s matches the tool id template
// ("namespace:name").
func ValidToolID(s string) bool {
	return toolIDPattern.MatchString(s)
}
