/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit events.
type EventType string

const (
	// EventSubmissionCompleted is emitted when both notifications were delivered.
	EventSubmissionCompleted EventType = "submission.completed"
	// EventSubmissionFailed is emitted when rendering or a notification failed.
	EventSubmissionFailed EventType = "submission.failed"
	// EventSubmissionRejected is emitted when a submission was refused before rendering.
	EventSubmissionRejected EventType = "submission.rejected"
)

// Event is one audit record. Result uses the same values as the
// submissions_total metric label.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SubmissionID string    `json:"submissionId,omitempty"`
	// Client is the masked client email.
	Client       string   `json:"client,omitempty"`
	Result       string   `json:"result"`
	ClientSent   bool     `json:"clientSent"`
	OperatorSent bool     `json:"operatorSent"`
	Fallbacks    []string `json:"fallbacks,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// NewEvent returns an event with a fresh id and the current time.
func NewEvent(t EventType, result string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Result:    result,
	}
}
