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

package databricksdriver

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dbsql-go/go-sql-databricks/internal/sqlexec"
	"github.com/dbsql-go/go-sql-databricks/telemetry"
)

const affectedRowsColumn = "num_affected_rows"

// session is the physical session on a SQL warehouse. A session is opened
// once and closed once.
type session struct {
	client      sqlexec.Client
	id          string
	warehouseID string
	logger      *slog.Logger
	closed      bool
}

func openSession(ctx context.Context, client sqlexec.Client, config *ConnectorConfig, logger *slog.Logger) (*session, error) {
	id, err := client.CreateSession(ctx, sqlexec.CreateSessionRequest{
		WarehouseID:  config.WarehouseID,
		Catalog:      config.Catalog,
		Schema:       config.Schema,
		SessionConfs: config.SessionConfigs,
	})
	if err != nil {
		return nil, &Error{Kind: KindExecution, Code: CodeConnectionError, Msg: "failed to open session", Err: err}
	}
	logger.Log(ctx, LevelNotice, "opened session", "sessionId", id)
	return &session{
		client:      client,
		id:          id,
		warehouseID: config.WarehouseID,
		logger:      logger,
	}, nil
}

// close closes the session on the server. Calling close more than once is a
// no-op. A session that the server no longer knows is considered closed.
func (s *session) close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.DeleteSession(ctx, s.id); err != nil {
		if sqlexec.IsInvalidSession(err) {
			s.logger.WarnContext(ctx, "session was already invalid on the server", "sessionId", s.id, "err", err)
			return nil
		}
		return &Error{Kind: KindExecution, Code: CodeConnectionError, Msg: "failed to close session", Err: err}
	}
	s.logger.Log(ctx, LevelNotice, "closed session", "sessionId", s.id)
	return nil
}

type executeResult struct {
	hasResultSet bool
	// updateCount is UpdateCountUnknown if the statement did not return an
	// affected rows count.
	updateCount int64
	response    *sqlexec.Response
}

// execute runs a statement on the session and waits for it to finish. The
// status calls and the time until the result is ready are recorded in details.
func (s *session) execute(ctx context.Context, query string, details *telemetry.StatementDetails) (*executeResult, error) {
	if s.closed {
		return nil, connectionClosedError()
	}
	start := time.Now()
	resp, err := s.client.ExecuteStatement(ctx, sqlexec.ExecuteRequest{
		Statement:   query,
		WarehouseID: s.warehouseID,
		SessionID:   s.id,
	}, &details.Operation)
	if resp != nil {
		details.StatementID = resp.StatementID
	}
	if err != nil {
		return nil, executionError("failed to execute statement", err)
	}
	details.Result.SetResultSetReadyLatency(time.Since(start))

	res := &executeResult{
		hasResultSet: returnsResultSet(query),
		updateCount:  UpdateCountUnknown,
		response:     resp,
	}
	if !res.hasResultSet {
		if count, ok := affectedRows(resp); ok {
			res.updateCount = count
		}
	}
	return res, nil
}

// affectedRows sums the affected rows column of the inline result, if the
// result has one.
func affectedRows(resp *sqlexec.Response) (int64, bool) {
	index := resp.Manifest.ColumnIndex(affectedRowsColumn)
	if index < 0 {
		return 0, false
	}
	if resp.Result == nil {
		return 0, true
	}
	var total int64
	for _, row := range resp.Result.DataArray {
		if index >= len(row) || row[index] == nil {
			continue
		}
		n, err := strconv.ParseInt(*row[index], 10, 64)
		if err != nil {
			return 0, false
		}
		total += n
	}
	return total, true
}
