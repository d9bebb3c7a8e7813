// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlexec

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned for any non-2xx response of the service.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d: %s: %s", e.StatusCode, e.ErrorCode, e.Message)
}

const (
	// ErrorCodeUnknownState is used for a statement that reported a state
	// that this client does not know.
	ErrorCodeUnknownState = "UNKNOWN_STATE"
	// ErrorCodeMissingStatementID is used when the server accepted a
	// statement without returning its id.
	ErrorCodeMissingStatementID = "MISSING_STATEMENT_ID"
)

// StatementError is returned when a remote statement ended in a state other
// than SUCCEEDED.
type StatementError struct {
	StatementID string
	State       State
	ErrorCode   string
	Message     string
	SQLState    string
}

func (e *StatementError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "statement " + strings.ToLower(string(e.State))
	}
	id := e.StatementID
	if id == "" {
		id = "<unknown>"
	}
	if e.ErrorCode == "" {
		return fmt.Sprintf("statement %s: %s", id, msg)
	}
	return fmt.Sprintf("statement %s: [%s] %s", id, e.ErrorCode, msg)
}

func newStatementError(resp *Response) *StatementError {
	err := &StatementError{
		StatementID: resp.StatementID,
		State:       resp.Status.State,
		SQLState:    resp.Status.SQLState,
	}
	if resp.Status.Error != nil {
		err.ErrorCode = resp.Status.Error.ErrorCode
		err.Message = resp.Status.Error.Message
	}
	if !resp.Status.State.Known() {
		err.ErrorCode = ErrorCodeUnknownState
		err.Message = fmt.Sprintf("unexpected statement state %q", resp.Status.State)
		return err
	}
	if err.ErrorCode == "" && resp.Status.State != StateFailed {
		err.ErrorCode = string(resp.Status.State)
	}
	return err
}

// IsInvalidSession returns true if err indicates that the session that was
// referenced by a request no longer exists on the server.
func IsInvalidSession(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusNotFound {
		return true
	}
	switch apiErr.ErrorCode {
	case "NOT_FOUND", "RESOURCE_DOES_NOT_EXIST", "INVALID_STATE":
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "invalid session")
}
