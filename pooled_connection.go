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
	"log/slog"
	"reflect"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ConnectionEvent is sent to a ConnectionEventListener when a connection
// that was handed out by a PooledConnection is closed, or when the
// PooledConnection can no longer be used.
type ConnectionEvent struct {
	Source *PooledConnection
	// Err is set for ConnectionErrorOccurred events.
	Err error
}

// ConnectionEventListener is notified of the lifecycle of the connections of
// a PooledConnection. Listeners are called synchronously on the goroutine
// that closed the connection.
type ConnectionEventListener interface {
	ConnectionClosed(event ConnectionEvent)
	ConnectionErrorOccurred(event ConnectionEvent)
}

type StatementEvent struct {
	Source    *PooledConnection
	Statement DatabricksStmt
	Err       error
}

type StatementEventListener interface {
	StatementClosed(event StatementEvent)
	StatementErrorOccurred(event StatementEvent)
}

// PooledConnection owns one physical connection and hands out VirtualConn
// handles for it. Closing a handle does not close the physical connection;
// it only notifies the registered listeners, so a connection pool can reuse
// the PooledConnection. The physical connection is closed by Close.
//
// A PooledConnection is not safe for concurrent use. At most one VirtualConn
// is open at any time.
type PooledConnection struct {
	physical  DatabricksConn
	logger    *slog.Logger
	listeners []ConnectionEventListener
	current   *VirtualConn
	closed    bool
}

// NewPooledConnection returns a PooledConnection that owns the given
// physical connection.
func NewPooledConnection(physical DatabricksConn, logger *slog.Logger) *PooledConnection {
	if logger == nil {
		logger = noopLogger
	}
	return &PooledConnection{physical: physical, logger: logger}
}

// OpenPooledConnection opens a new physical connection with the given
// connector and returns a PooledConnection for it.
func OpenPooledConnection(ctx context.Context, connector driver.Connector) (*PooledConnection, error) {
	dc, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	physical, ok := dc.(DatabricksConn)
	if !ok {
		_ = dc.Close()
		return nil, status.Errorf(codes.InvalidArgument, "connector returned %T, which is not a Databricks connection", dc)
	}
	logger := noopLogger
	if c, ok := physical.(*conn); ok {
		logger = c.logger
	}
	return NewPooledConnection(physical, logger), nil
}

// PhysicalConnection returns the connection that is owned by this PooledConnection.
func (p *PooledConnection) PhysicalConnection() DatabricksConn {
	return p.physical
}

// Connection returns a new handle for the physical connection. A handle that
// was returned by an earlier call and that is still open is closed without
// notifying the listeners.
func (p *PooledConnection) Connection() (*VirtualConn, error) {
	if p.closed || p.physical.IsClosed() {
		err := connectionClosedError()
		p.fireConnectionErrorOccurred(err)
		return nil, err
	}
	if p.current != nil && !p.current.closed {
		p.logger.Debug("closing previous connection handle")
		p.current.closed = true
	}
	p.current = &VirtualConn{pool: p, physical: p.physical}
	return p.current, nil
}

// AddConnectionEventListener registers a listener. Adding the same listener
// twice has no effect.
func (p *PooledConnection) AddConnectionEventListener(listener ConnectionEventListener) {
	if listener == nil || p.indexOfListener(listener) >= 0 {
		return
	}
	p.listeners = append(p.listeners, listener)
}

func (p *PooledConnection) RemoveConnectionEventListener(listener ConnectionEventListener) {
	if i := p.indexOfListener(listener); i >= 0 {
		p.listeners = slices.Delete(p.listeners, i, i+1)
	}
}

func (p *PooledConnection) indexOfListener(listener ConnectionEventListener) int {
	if listener == nil || !reflect.TypeOf(listener).Comparable() {
		return -1
	}
	for i, l := range p.listeners {
		if reflect.TypeOf(l) == reflect.TypeOf(listener) && l == listener {
			return i
		}
	}
	return -1
}

// AddStatementEventListener does not register anything. Statement events
// are not sent.
func (p *PooledConnection) AddStatementEventListener(StatementEventListener) {}

func (p *PooledConnection) RemoveStatementEventListener(StatementEventListener) {}

// Close closes the physical connection. Calling Close more than once is a no-op.
func (p *PooledConnection) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.current != nil {
		p.current.closed = true
	}
	return p.physical.Close()
}

func (p *PooledConnection) fireConnectionClosed() {
	event := ConnectionEvent{Source: p}
	for _, l := range slices.Clone(p.listeners) {
		l.ConnectionClosed(event)
	}
}

func (p *PooledConnection) fireConnectionErrorOccurred(err error) {
	event := ConnectionEvent{Source: p, Err: err}
	for _, l := range slices.Clone(p.listeners) {
		l.ConnectionErrorOccurred(event)
	}
}

var _ DatabricksConn = &VirtualConn{}

// VirtualConn is a handle for the physical connection of a PooledConnection.
// All calls are forwarded to the physical connection, except Close.
type VirtualConn struct {
	pool     *PooledConnection
	physical DatabricksConn
	closed   bool
}

func (v *VirtualConn) String() string {
	return fmt.Sprintf("Pooled connection wrapping physical connection %v", v.physical)
}

func (v *VirtualConn) checkOpen() error {
	if v.IsClosed() {
		return connectionClosedError()
	}
	return nil
}

// IsClosed returns true if this handle or the physical connection has been closed.
func (v *VirtualConn) IsClosed() bool {
	return v.closed || v.physical.IsClosed()
}

// Close marks this handle as closed and notifies the listeners of the
// PooledConnection. The physical connection stays open.
func (v *VirtualConn) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.pool.fireConnectionClosed()
	return nil
}

func (v *VirtualConn) SessionID() string {
	return v.physical.SessionID()
}

func (v *VirtualConn) CreateStatement() (DatabricksStmt, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	s, err := v.physical.CreateStatement()
	if err != nil {
		return nil, err
	}
	return &VirtualStmt{conn: v, physical: s}, nil
}

func (v *VirtualConn) ExecuteBatch(ctx context.Context, statements []string) ([]int64, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	return v.physical.ExecuteBatch(ctx, statements)
}

func (v *VirtualConn) Prepare(query string) (driver.Stmt, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	s, err := v.physical.Prepare(query)
	if err != nil {
		return nil, err
	}
	if ds, ok := s.(DatabricksStmt); ok {
		return &VirtualStmt{conn: v, physical: ds}, nil
	}
	return s, nil
}

func (v *VirtualConn) Begin() (driver.Tx, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	return v.physical.Begin()
}

func (v *VirtualConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	return v.physical.ExecContext(ctx, query, args)
}

func (v *VirtualConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	return v.physical.QueryContext(ctx, query, args)
}

func (v *VirtualConn) Ping(ctx context.Context) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.physical.Ping(ctx)
}

var _ DatabricksStmt = &VirtualStmt{}

// VirtualStmt is a handle for a statement on a VirtualConn. Closing a
// VirtualStmt closes the statement, but not the connection.
type VirtualStmt struct {
	conn     *VirtualConn
	physical DatabricksStmt
	closed   bool
}

func (s *VirtualStmt) String() string {
	return fmt.Sprintf("Pooled statement wrapping physical statement %v", s.physical)
}

func (s *VirtualStmt) checkOpen() error {
	if s.closed {
		return statementClosedError()
	}
	if s.conn.IsClosed() {
		return connectionClosedError()
	}
	return nil
}

func (s *VirtualStmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.physical.Close()
}

func (s *VirtualStmt) IsClosed() bool {
	return s.closed || s.conn.IsClosed()
}

// Connection returns the VirtualConn that created this statement.
func (s *VirtualStmt) Connection() (DatabricksConn, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.conn, nil
}

// QueryTimeout can also be read after the statement has been closed.
func (s *VirtualStmt) QueryTimeout() time.Duration {
	return s.physical.QueryTimeout()
}

func (s *VirtualStmt) SetQueryTimeout(timeout time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.physical.SetQueryTimeout(timeout)
}

func (s *VirtualStmt) StatementID() string {
	return s.physical.StatementID()
}

func (s *VirtualStmt) NumInput() int {
	return s.physical.NumInput()
}

func (s *VirtualStmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, status.Errorf(codes.Unimplemented, "use ExecContext instead")
}

func (s *VirtualStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, status.Errorf(codes.Unimplemented, "use QueryContext instead")
}

func (s *VirtualStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.physical.ExecContext(ctx, args)
}

func (s *VirtualStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.physical.QueryContext(ctx, args)
}

func (s *VirtualStmt) Execute(ctx context.Context, sql string) (bool, int64, error) {
	if err := s.checkOpen(); err != nil {
		return false, 0, err
	}
	return s.physical.Execute(ctx, sql)
}

func (s *VirtualStmt) ExecuteQuery(ctx context.Context, sql string) (driver.Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.physical.ExecuteQuery(ctx, sql)
}

func (s *VirtualStmt) AddBatch(sql string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.physical.AddBatch(sql)
}

func (s *VirtualStmt) ClearBatch() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.physical.ClearBatch()
}

func (s *VirtualStmt) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.physical.ExecuteBatch(ctx)
}
