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

// Package sqlexec implements a client for the SQL Statement Execution REST API
// of a Databricks SQL warehouse.
package sqlexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/googleapis/gax-go/v2"
)

const (
	DefaultPollInterval = 200 * time.Millisecond

	cancelTimeout = 10 * time.Second
)

// StatusRecorder receives the latency of each status call that is executed
// while waiting for a statement to finish.
type StatusRecorder interface {
	RecordStatusCall(d time.Duration)
}

// Client is the transport that the driver uses to talk to a SQL warehouse.
type Client interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	// ExecuteStatement submits a statement and blocks until it has reached a
	// terminal state. A statement that does not succeed is returned as a
	// *StatementError together with the last response.
	ExecuteStatement(ctx context.Context, req ExecuteRequest, recorder StatusRecorder) (*Response, error)
	GetChunk(ctx context.Context, statementID string, index int) (*ResultData, error)
	CancelStatement(ctx context.Context, statementID string) error
	CloseStatement(ctx context.Context, statementID string) error
	Close() error
}

type Config struct {
	// BaseURL is the scheme and host of the workspace, e.g. https://adb-123.azuredatabricks.net.
	BaseURL      string
	Token        string
	UserAgent    string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

var _ Client = &HTTPClient{}

type HTTPClient struct {
	baseURL      string
	token        string
	userAgent    string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewHTTPClient(config Config) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("sqlexec: missing base url")
	}
	c := &HTTPClient{
		baseURL:      strings.TrimSuffix(config.BaseURL, "/"),
		token:        config.Token,
		userAgent:    config.UserAgent,
		pollInterval: config.PollInterval,
		httpClient:   config.HTTPClient,
		logger:       config.Logger,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c, nil
}

func (c *HTTPClient) CreateSession(ctx context.Context, req CreateSessionRequest) (string, error) {
	var resp CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, SessionsPath, req, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("sqlexec: server did not return a session id")
	}
	c.logger.DebugContext(ctx, "created session", "sessionId", resp.SessionID)
	return resp.SessionID, nil
}

func (c *HTTPClient) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID), nil, nil)
}

func (c *HTTPClient) ExecuteStatement(ctx context.Context, req ExecuteRequest, recorder StatusRecorder) (*Response, error) {
	if req.WaitTimeout == "" {
		req.WaitTimeout = "0s"
	}
	if req.OnWaitTimeout == "" {
		req.OnWaitTimeout = "CONTINUE"
	}
	if req.Disposition == "" {
		req.Disposition = "INLINE"
	}
	if req.Format == "" {
		req.Format = "JSON_ARRAY"
	}
	resp := &Response{}
	if err := c.do(ctx, http.MethodPost, StatementsPath, req, resp); err != nil {
		return nil, err
	}
	statementID := resp.StatementID
	if statementID == "" {
		return nil, &StatementError{
			State:     resp.Status.State,
			ErrorCode: ErrorCodeMissingStatementID,
			Message:   "server did not return a statement id",
		}
	}
	c.logger.DebugContext(ctx, "submitted statement", "statementId", statementID, "state", resp.Status.State)

	// The first status call is executed directly. All following calls wait
	// for the poll interval.
	for polls := 0; !resp.Status.State.Terminal(); polls++ {
		if polls > 0 {
			if err := gax.Sleep(ctx, c.pollInterval); err != nil {
				c.cancelAbandoned(ctx, statementID)
				return nil, err
			}
		}
		next := &Response{}
		start := time.Now()
		err := c.do(ctx, http.MethodGet, statementPath(statementID), nil, next)
		if recorder != nil {
			recorder.RecordStatusCall(time.Since(start))
		}
		if err != nil {
			if ctx.Err() != nil {
				c.cancelAbandoned(ctx, statementID)
			}
			return nil, err
		}
		if next.StatementID == "" {
			next.StatementID = statementID
		}
		resp = next
	}
	if resp.Status.State != StateSucceeded {
		return resp, newStatementError(resp)
	}
	return resp, nil
}

// cancelAbandoned cancels a statement that the caller stopped waiting for.
func (c *HTTPClient) cancelAbandoned(ctx context.Context, statementID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := c.CancelStatement(ctx, statementID); err != nil {
		c.logger.WarnContext(ctx, "failed to cancel statement", "statementId", statementID, "err", err)
	}
}

func (c *HTTPClient) GetChunk(ctx context.Context, statementID string, index int) (*ResultData, error) {
	data := &ResultData{}
	if err := c.do(ctx, http.MethodGet, chunkPath(statementID, index), nil, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *HTTPClient) CancelStatement(ctx context.Context, statementID string) error {
	return c.do(ctx, http.MethodPost, cancelStatementPath(statementID), nil, nil)
}

func (c *HTTPClient) CloseStatement(ctx context.Context, statementID string) error {
	return c.do(ctx, http.MethodDelete, statementPath(statementID), nil, nil)
}

func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var se ServiceError
		if len(b) > 0 && json.Unmarshal(b, &se) == nil {
			apiErr.ErrorCode = se.ErrorCode
			apiErr.Message = se.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(res.StatusCode)
		}
		return apiErr
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}
