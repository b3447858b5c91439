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

package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
)

// Placeholder is rendered in place of any optional value that is absent or empty.
const Placeholder = "—"

var (
	// ErrEmailRequired is returned when the client email is missing or blank.
	ErrEmailRequired = errors.New("client email is required")
	// ErrEmailInvalid is returned when the client email is not a single plain address.
	ErrEmailInvalid = errors.New("client email is invalid")
)

// ValidationError reports a record that must not proceed to rendering.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid intake record: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Record is a single intake form submission describing a requested electrical
// panel configuration. Only Email is required; every other field may be
// absent and is rendered as Placeholder in that case.
type Record struct {
	Address    *string           `json:"address,omitempty"`
	Tension    *string           `json:"tension,omitempty"`
	WantsPlans *bool             `json:"wantsPlans,omitempty"`
	Files      []json.RawMessage `json:"files,omitempty"`
	Rooms      []string          `json:"rooms,omitempty"`
	Appliances []string          `json:"appliances,omitempty"`
	Notes      *string           `json:"notes,omitempty"`
	Email      string            `json:"email"`
}

// Validate checks the client email. It is the only validated field.
func (r Record) Validate() error {
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return &ValidationError{Field: "email", Err: ErrEmailRequired}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Err: ErrEmailInvalid}
	}
	return nil
}

// ClientEmail returns the trimmed client email.
func (r Record) ClientEmail() string {
	return strings.TrimSpace(r.Email)
}

// PlansRequested reports whether the client explicitly asked for plans.
// An unset WantsPlans counts as not requested.
func (r Record) PlansRequested() bool {
	return r.WantsPlans != nil && *r.WantsPlans
}

// FileCount returns the number of attached file descriptors.
func (r Record) FileCount() int {
	return len(r.Files)
}

// Text returns the trimmed value of an optional field, or Placeholder when
// the value is nil, empty or whitespace only.
func Text(p *string) string {
	if p == nil {
		return Placeholder
	}
	if v := strings.TrimSpace(*p); v != "" {
		return v
	}
	return Placeholder
}

// Items returns the non-blank entries of a list in their original order.
func Items(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Fingerprint returns a stable digest of the normalised record. Two
// submissions that would render the same document share a fingerprint.
func (r Record) Fingerprint() string {
	h := sha256.New()
	write := func(key, value string) {
		h.Write([]byte(key))
		h.Write([]byte{0})
		h.Write([]byte(value))
		h.Write([]byte{0})
	}
	write("email", strings.ToLower(r.ClientEmail()))
	write("address", Text(r.Address))
	write("tension", Text(r.Tension))
	write("plans", strconv.FormatBool(r.PlansRequested()))
	write("files", strconv.Itoa(r.FileCount()))
	for _, room := range Items(r.Rooms) {
		write("room", room)
	}
	for _, a := range Items(r.Appliances) {
		write("appliance", a)
	}
	write("notes", Text(r.Notes))
	return hex.EncodeToString(h.Sum(nil))
}
