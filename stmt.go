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
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/dbsql-go/go-sql-databricks/telemetry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DatabricksStmt is the public interface for a raw Databricks statement. A
// statement can be created with DatabricksConn.CreateStatement.
type DatabricksStmt interface {
	driver.Stmt
	driver.StmtExecContext
	driver.StmtQueryContext

	// Execute executes the given SQL string and returns whether it produced
	// a result set, and the number of affected rows. The update count is
	// UpdateCountUnknown if the statement did not return one.
	Execute(ctx context.Context, sql string) (hasResultSet bool, updateCount int64, err error)
	// ExecuteQuery executes the given SQL string and returns the result.
	ExecuteQuery(ctx context.Context, sql string) (driver.Rows, error)

	AddBatch(sql string) error
	ClearBatch() error
	ExecuteBatch(ctx context.Context) ([]int64, error)

	// QueryTimeout returns the timeout of this statement. Zero means no timeout.
	QueryTimeout() time.Duration
	SetQueryTimeout(timeout time.Duration) error
	// Connection returns the connection that created this statement.
	Connection() (DatabricksConn, error)
	// StatementID returns the id of the last statement that was executed on
	// the SQL warehouse.
	StatementID() string
	IsClosed() bool
}

var _ DatabricksStmt = &stmt{}

type stmt struct {
	conn         *conn
	query        string
	closed       bool
	queryTimeout time.Duration
	batch        *BatchExecutor
	statementID  string
	openRows     *rows
}

func newStmt(c *conn, query string) *stmt {
	s := &stmt{
		conn:         c,
		query:        query,
		queryTimeout: c.connector.connectorConfig.QueryTimeout,
	}
	s.batch = NewBatchExecutor(s, c.connector.connectorConfig.MaxBatchSize, c.logger)
	return s
}

func (s *stmt) String() string {
	return fmt.Sprintf("DatabricksStatement(statementId=%s, conn=%v)", s.statementID, s.conn)
}

func (s *stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.batch.ClearCommands()
	if s.openRows != nil {
		return s.openRows.Close()
	}
	return nil
}

func (s *stmt) IsClosed() bool {
	return s.closed
}

func (s *stmt) NumInput() int {
	return 0
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, status.Errorf(codes.Unimplemented, "use ExecContext instead")
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		return nil, status.Errorf(codes.InvalidArgument, "query parameters are not supported")
	}
	if s.query == "" {
		return nil, validationError("statement has no SQL string, use Execute instead")
	}
	return s.exec(ctx, s.query)
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, status.Errorf(codes.Unimplemented, "use QueryContext instead")
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, status.Errorf(codes.InvalidArgument, "query parameters are not supported")
	}
	if s.query == "" {
		return nil, validationError("statement has no SQL string, use ExecuteQuery instead")
	}
	return s.executeQuery(ctx, s.query, false)
}

func (s *stmt) QueryTimeout() time.Duration {
	return s.queryTimeout
}

func (s *stmt) SetQueryTimeout(timeout time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if timeout < 0 {
		return validationError("query timeout must not be negative, got %v", timeout)
	}
	s.queryTimeout = timeout
	return nil
}

func (s *stmt) Connection() (DatabricksConn, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.conn, nil
}

func (s *stmt) StatementID() string {
	return s.statementID
}

func (s *stmt) AddBatch(sql string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.batch.AddCommand(sql)
}

func (s *stmt) ClearBatch() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.batch.ClearCommands()
	return nil
}

func (s *stmt) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.batch.ExecuteBatch(ctx)
}

func (s *stmt) checkOpen() error {
	if s.closed {
		return statementClosedError()
	}
	if s.conn.closed {
		return connectionClosedError()
	}
	return nil
}

// Execute implements Executor, and is used for each command in a batch.
func (s *stmt) Execute(ctx context.Context, sql string) (bool, int64, error) {
	if err := s.checkOpen(); err != nil {
		return false, 0, err
	}
	res, details, err := s.execute(ctx, sql)
	s.finish(ctx, details)
	if err != nil {
		return false, 0, err
	}
	return res.hasResultSet, res.updateCount, nil
}

func (s *stmt) ExecuteQuery(ctx context.Context, sql string) (driver.Rows, error) {
	return s.executeQuery(ctx, sql, false)
}

func (s *stmt) exec(ctx context.Context, sql string) (driver.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	res, details, err := s.execute(ctx, sql)
	s.finish(ctx, details)
	if err != nil {
		return nil, err
	}
	return &result{rowsAffected: max(res.updateCount, 0)}, nil
}

// executeQuery executes the statement and returns its result. The statement
// is closed together with the rows if closeStmt is true.
func (s *stmt) executeQuery(ctx context.Context, sql string, closeStmt bool) (driver.Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.openRows != nil {
		_ = s.openRows.Close()
	}
	var cancel context.CancelFunc
	if s.queryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
	}
	details := telemetry.NewStatementDetails("")
	res, err := s.conn.session.execute(ctx, sql, details)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		s.finish(ctx, details)
		return nil, err
	}
	s.statementID = res.response.StatementID
	s.conn.connector.collector.Register(details)
	if res.response.Result != nil {
		details.Chunks.RecordChunkLatency(0, details.Result.ResultSetReadyLatency())
	}
	r := newRows(ctx, s.conn.client, res.response, details)
	r.close = func() error {
		if cancel != nil {
			cancel()
		}
		s.openRows = nil
		s.closeRemote(res.response.StatementID)
		s.conn.connector.collector.Export(context.Background(), details.StatementID)
		if closeStmt {
			return s.Close()
		}
		return nil
	}
	s.openRows = r
	return r, nil
}

func (s *stmt) execute(ctx context.Context, sql string) (*executeResult, *telemetry.StatementDetails, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	details := telemetry.NewStatementDetails("")
	res, err := s.conn.session.execute(ctx, sql, details)
	if details.StatementID != "" {
		s.statementID = details.StatementID
	}
	return res, details, err
}

// finish closes the remote statement and exports its latency counters.
func (s *stmt) finish(ctx context.Context, details *telemetry.StatementDetails) {
	if details.StatementID == "" {
		return
	}
	s.closeRemote(details.StatementID)
	s.conn.connector.collector.Register(details)
	s.conn.connector.collector.Export(ctx, details.StatementID)
}

func (s *stmt) closeRemote(statementID string) {
	if statementID == "" || s.conn.session.closed {
		return
	}
	if err := s.conn.client.CloseStatement(context.Background(), statementID); err != nil {
		s.conn.logger.Warn("failed to close statement", "statementId", statementID, "err", err)
	}
}

type result struct {
	rowsAffected int64
}

func (r *result) LastInsertId() (int64, error) {
	return 0, status.Errorf(codes.Unimplemented, "Databricks does not support auto-generated ids")
}

func (r *result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}
