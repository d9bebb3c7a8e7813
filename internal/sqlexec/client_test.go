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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

type countingRecorder struct {
	n     int
	total time.Duration
}

func (r *countingRecorder) RecordStatusCall(d time.Duration) {
	r.n++
	r.total += d
}

// statusServer returns RUNNING for the given number of polls and then the
// final response.
type statusServer struct {
	mu       sync.Mutex
	polls    int
	final    Response
	requests []string
	canceled bool
}

func (s *statusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(&ServiceError{ErrorCode: "UNAUTHENTICATED", Message: "bad token"})
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == StatementsPath:
		_ = json.NewEncoder(w).Encode(&Response{StatementID: "s1", Status: StatementStatus{State: StatePending}})
	case r.Method == http.MethodGet && r.URL.Path == statementPath("s1"):
		if s.polls > 0 {
			s.polls--
			_ = json.NewEncoder(w).Encode(&Response{StatementID: "s1", Status: StatementStatus{State: StateRunning}})
			return
		}
		_ = json.NewEncoder(w).Encode(&s.final)
	case r.Method == http.MethodPost && r.URL.Path == cancelStatementPath("s1"):
		s.canceled = true
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewHTTPClient(Config{BaseURL: server.URL, Token: "tok", PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestExecuteStatement_PollsUntilDone(t *testing.T) {
	t.Parallel()

	handler := &statusServer{
		polls: 3,
		final: Response{
			StatementID: "s1",
			Status:      StatementStatus{State: StateSucceeded},
			Manifest: &ResultManifest{
				Schema:          ResultSchema{ColumnCount: 1, Columns: []ColumnInfo{{Name: "num_affected_rows"}}},
				TotalChunkCount: 1,
			},
			Result: &ResultData{DataArray: [][]*string{{strPtr("4")}}},
		},
	}
	c := newTestClient(t, handler)
	recorder := &countingRecorder{}
	resp, err := c.ExecuteStatement(context.Background(), ExecuteRequest{Statement: "UPDATE t SET x=1", WarehouseID: "w"}, recorder)
	if err != nil {
		t.Fatal(err)
	}
	if g, w := resp.Manifest.ColumnIndex("num_affected_rows"), 0; g != w {
		t.Fatalf("column index mismatch\n Got: %v\nWant: %v", g, w)
	}
	// Three RUNNING responses and one SUCCEEDED response.
	if g, w := recorder.n, 4; g != w {
		t.Fatalf("status call count mismatch\n Got: %v\nWant: %v", g, w)
	}
	if recorder.total <= 0 {
		t.Fatalf("status latency should be positive, got %v", recorder.total)
	}
	if g, w := len(handler.requests), 5; g != w {
		t.Fatalf("request count mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestExecuteStatement_Defaults(t *testing.T) {
	t.Parallel()

	var got ExecuteRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(&Response{StatementID: "s1", Status: StatementStatus{State: StateSucceeded}})
	}))
	if _, err := c.ExecuteStatement(context.Background(), ExecuteRequest{Statement: "SELECT 1", WarehouseID: "w", SessionID: "sess"}, nil); err != nil {
		t.Fatal(err)
	}
	want := ExecuteRequest{
		Statement:     "SELECT 1",
		WarehouseID:   "w",
		SessionID:     "sess",
		WaitTimeout:   "0s",
		OnWaitTimeout: "CONTINUE",
		Disposition:   "INLINE",
		Format:        "JSON_ARRAY",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteStatement_Failed(t *testing.T) {
	t.Parallel()

	handler := &statusServer{
		final: Response{
			StatementID: "s1",
			Status: StatementStatus{
				State:    StateFailed,
				Error:    &ServiceError{ErrorCode: "BAD_REQUEST", Message: "Table not found"},
				SQLState: "42P01",
			},
		},
	}
	c := newTestClient(t, handler)
	resp, err := c.ExecuteStatement(context.Background(), ExecuteRequest{Statement: "DELETE FROM t"}, nil)
	var se *StatementError
	if !errors.As(err, &se) {
		t.Fatalf("error type mismatch, got %v", err)
	}
	want := &StatementError{StatementID: "s1", State: StateFailed, ErrorCode: "BAD_REQUEST", Message: "Table not found", SQLState: "42P01"}
	if diff := cmp.Diff(want, se); diff != "" {
		t.Fatalf("error mismatch (-want +got):\n%s", diff)
	}
	if resp == nil || resp.StatementID != "s1" {
		t.Fatalf("response should be returned with the error, got %v", resp)
	}
}

func TestExecuteStatement_Canceled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &statusServer{final: Response{StatementID: "s1", Status: StatementStatus{State: StateCanceled}}})
	_, err := c.ExecuteStatement(context.Background(), ExecuteRequest{Statement: "SELECT 1"}, nil)
	var se *StatementError
	if !errors.As(err, &se) {
		t.Fatalf("error type mismatch, got %v", err)
	}
	if g, w := se.ErrorCode, "CANCELED"; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestExecuteStatement_UnknownState(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name  string
		state State
	}{
		{name: "new state", state: "QUEUED"},
		{name: "empty state", state: ""},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, &statusServer{final: Response{Status: StatementStatus{State: test.state}}})
			recorder := &countingRecorder{}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := c.ExecuteStatement(ctx, ExecuteRequest{Statement: "SELECT 1"}, recorder)
			var se *StatementError
			if !errors.As(err, &se) {
				t.Fatalf("error type mismatch, got %v", err)
			}
			if g, w := se.ErrorCode, ErrorCodeUnknownState; g != w {
				t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
			}
			if g, w := se.State, test.state; g != w {
				t.Fatalf("state mismatch\n Got: %v\nWant: %v", g, w)
			}
			if g, w := se.StatementID, "s1"; g != w {
				t.Fatalf("statement id mismatch\n Got: %v\nWant: %v", g, w)
			}
			if g, w := recorder.n, 1; g != w {
				t.Fatalf("status call count mismatch\n Got: %v\nWant: %v", g, w)
			}
		})
	}
}

func TestExecuteStatement_MissingStatementID(t *testing.T) {
	t.Parallel()

	var requests int
	var mu sync.Mutex
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		_, _ = w.Write([]byte("{}"))
	}))
	resp, err := c.ExecuteStatement(context.Background(), ExecuteRequest{Statement: "SELECT 1"}, nil)
	var se *StatementError
	if !errors.As(err, &se) {
		t.Fatalf("error type mismatch, got %v", err)
	}
	if g, w := se.ErrorCode, ErrorCodeMissingStatementID; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
	if resp != nil {
		t.Fatalf("response should be nil, got %v", resp)
	}
	mu.Lock()
	defer mu.Unlock()
	if g, w := requests, 1; g != w {
		t.Fatalf("request count mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestExecuteStatement_ContextCanceledWhilePolling(t *testing.T) {
	t.Parallel()

	handler := &statusServer{polls: 1 << 30}
	server := httptest.NewServer(handler)
	defer server.Close()
	c, err := NewHTTPClient(Config{BaseURL: server.URL, Token: "tok", PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ExecuteStatement(ctx, ExecuteRequest{Statement: "SELECT 1"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, context.DeadlineExceeded)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if !handler.canceled {
		t.Fatal("abandoned statement should be canceled")
	}
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(&ServiceError{ErrorCode: "NOT_FOUND", Message: "invalid session abc"})
	}))
	err := c.DeleteSession(context.Background(), "abc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type mismatch, got %v", err)
	}
	if diff := cmp.Diff(&APIError{StatusCode: 404, ErrorCode: "NOT_FOUND", Message: "invalid session abc"}, apiErr); diff != "" {
		t.Fatalf("error mismatch (-want +got):\n%s", diff)
	}
	if !IsInvalidSession(err) {
		t.Fatal("IsInvalidSession should return true")
	}
}

func TestIsInvalidSession(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		err  error
		want bool
	}{
		{err: errors.New("boom"), want: false},
		{err: &APIError{StatusCode: 500, Message: "internal"}, want: false},
		{err: &APIError{StatusCode: 400, ErrorCode: "INVALID_STATE"}, want: true},
		{err: &APIError{StatusCode: 400, Message: "Invalid session handle"}, want: true},
		{err: &APIError{StatusCode: 404}, want: true},
	} {
		if g, w := IsInvalidSession(test.err), test.want; g != w {
			t.Errorf("IsInvalidSession(%v) mismatch\n Got: %v\nWant: %v", test.err, g, w)
		}
	}
}

func TestNewHTTPClient_MissingURL(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPClient(Config{}); err == nil {
		t.Fatal("missing error for empty base url")
	}
}

func strPtr(s string) *string {
	return &s
}
