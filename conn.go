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
	"errors"
	"fmt"
	"log/slog"

	"github.com/dbsql-go/go-sql-databricks/internal/sqlexec"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DatabricksConn is the public interface for the raw Databricks connection
// for the database/sql driver. This interface can be used with the
// db.Conn().Raw() method.
type DatabricksConn interface {
	driver.Conn
	driver.ExecerContext
	driver.QueryerContext
	driver.Pinger

	// CreateStatement returns a new statement on this connection. The
	// statement can be used to execute multiple SQL strings and batches.
	CreateStatement() (DatabricksStmt, error)
	// ExecuteBatch executes the given SQL strings as one batch and returns
	// the update count of each statement. See BatchExecutor.ExecuteBatch.
	ExecuteBatch(ctx context.Context, statements []string) ([]int64, error)
	// SessionID returns the id of the session on the SQL warehouse.
	SessionID() string
	IsClosed() bool
}

var _ DatabricksConn = &conn{}

type conn struct {
	connector *connector
	client    sqlexec.Client
	session   *session
	connId    string
	logger    *slog.Logger
	closed    bool
}

func (c *conn) String() string {
	return fmt.Sprintf("DatabricksConnection(connId=%s, sessionId=%s)", c.connId, c.session.id)
}

func (c *conn) SessionID() string {
	return c.session.id
}

func (c *conn) IsClosed() bool {
	return c.closed
}

func (c *conn) CreateStatement() (DatabricksStmt, error) {
	if c.closed {
		return nil, connectionClosedError()
	}
	return newStmt(c, ""), nil
}

func (c *conn) ExecuteBatch(ctx context.Context, statements []string) ([]int64, error) {
	if c.closed {
		return nil, connectionClosedError()
	}
	s := newStmt(c, "")
	defer func() { _ = s.Close() }()
	for _, sql := range statements {
		if err := s.AddBatch(sql); err != nil {
			return nil, err
		}
	}
	return s.ExecuteBatch(ctx)
}

// Ping implements the driver.Pinger interface.
// returns ErrBadConn if the connection is no longer valid.
func (c *conn) Ping(ctx context.Context) error {
	if c.closed {
		return driver.ErrBadConn
	}
	rows, err := c.QueryContext(ctx, "SELECT 1", []driver.NamedValue{})
	if err != nil {
		return driver.ErrBadConn
	}
	defer func() { _ = rows.Close() }()
	values := make([]driver.Value, 1)
	if err := rows.Next(values); err != nil {
		return driver.ErrBadConn
	}
	if values[0] != "1" {
		return driver.ErrBadConn
	}
	return nil
}

// ResetSession implements the driver.SessionResetter interface.
// returns ErrBadConn if the connection is no longer valid.
func (c *conn) ResetSession(_ context.Context) error {
	if c.closed {
		return driver.ErrBadConn
	}
	return nil
}

// IsValid implements the driver.Validator interface.
func (c *conn) IsValid() bool {
	return !c.closed
}

// CheckNamedValue implements the driver.NamedValueChecker interface. Query
// parameters are not supported.
func (c *conn) CheckNamedValue(value *driver.NamedValue) error {
	if value == nil {
		return nil
	}
	return status.Errorf(codes.InvalidArgument, "query parameters are not supported, got %T", value.Value)
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	if c.closed {
		return nil, connectionClosedError()
	}
	return newStmt(c, query), nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, status.Errorf(codes.InvalidArgument, "query parameters are not supported")
	}
	if c.closed {
		return nil, connectionClosedError()
	}
	s := newStmt(c, query)
	rows, err := s.executeQuery(ctx, query, true)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return rows, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		return nil, status.Errorf(codes.InvalidArgument, "query parameters are not supported")
	}
	if c.closed {
		return nil, connectionClosedError()
	}
	s := newStmt(c, query)
	defer func() { _ = s.Close() }()
	return s.exec(ctx, query)
}

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	return nil, status.Errorf(codes.Unimplemented, "transactions are not supported")
}

// Close closes the session on the SQL warehouse. The shared client of the
// connector is closed when this was the last open connection.
func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Log(context.Background(), LevelNotice, "closing connection")
	err := c.session.close(context.Background())
	return errors.Join(err, c.connector.decreaseConnCount())
}
