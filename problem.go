// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package taskwatch

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// ProblemContentType is the media type of RFC 7807 error bodies.
const ProblemContentType = "application/problem+json"

// ProblemDetails is an RFC 7807 error body.
type ProblemDetails struct {
	Type     string `json:"type,omitzero"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitzero"`
	Instance string `json:"instance,omitzero"`

	// Extensions holds members not defined by RFC 7807.
	Extensions map[string]jsontext.Value `json:",unknown"`
}

// DecodeProblem parses an RFC 7807 body. It returns nil when data is not a
// problem document with at least a title and a status.
func DecodeProblem(data []byte) *ProblemDetails {
	var p ProblemDetails
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	if p.Title == "" || p.Status == 0 {
		return nil
	}
	return &p
}

// Message returns the most specific human readable text of p.
func (p *ProblemDetails) Message() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// IsClientError reports whether p describes a 4xx status.
func (p *ProblemDetails) IsClientError() bool {
	return p.Status >= 400 && p.Status <= 499
}

// IsServerError reports whether p describes a 5xx status.
func (p *ProblemDetails) IsServerError() bool {
	return p.Status >= 500 && p.Status <= 599
}

// IsRateLimitError reports whether p describes a 429 status.
func (p *ProblemDetails) IsRateLimitError() bool {
	return p.Status == 429
}

// IsAuthError reports whether p describes a 401 or 403 status.
func (p *ProblemDetails) IsAuthError() bool {
	return p.Status == 401 || p.Status == 403
}

// Extension decodes the extension member key into v. It reports whether the
// member was present and decoded.
func (p *ProblemDetails) Extension(key string, v any) bool {
	raw, ok := p.Extensions[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
