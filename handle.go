// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package taskwatch

import (
	"errors"
	"strings"
)

// GenerateRequest is the body of a course generation request.
type GenerateRequest struct {
	Topic     string   `json:"topic"`
	Interests []string `json:"interests"`
}

// Validate checks that the request can be sent.
func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return errors.New("topic cannot be empty")
	}
	return nil
}

// TaskHandle identifies a started task.
type TaskHandle struct {
	// TaskID is the server assigned task identifier.
	TaskID string `json:"taskId"`
	// ProvisionalResultID is a placeholder result id usable before completion.
	ProvisionalResultID string `json:"provisionalResultId"`
	// IdempotencyKey is the key the start request was sent with.
	IdempotencyKey string `json:"-"`
}
