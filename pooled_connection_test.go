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
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dbsql-go/go-sql-databricks/testutil"
	"github.com/google/go-cmp/cmp"
)

type recordingListener struct {
	closed []ConnectionEvent
	errors []ConnectionEvent
}

func (l *recordingListener) ConnectionClosed(event ConnectionEvent) {
	l.closed = append(l.closed, event)
}

func (l *recordingListener) ConnectionErrorOccurred(event ConnectionEvent) {
	l.errors = append(l.errors, event)
}

func setupPooledConnection(t *testing.T) (p *PooledConnection, server *testutil.MockedWarehouseServer, teardown func()) {
	c, server, connectorTeardown := setupTestConnector(t)
	p, err := OpenPooledConnection(context.Background(), c)
	if err != nil {
		connectorTeardown()
		t.Fatal(err)
	}
	return p, server, func() {
		_ = p.Close()
		connectorTeardown()
	}
}

func TestPooledConnection_ReusesSession(t *testing.T) {
	t.Parallel()

	p, server, teardown := setupPooledConnection(t)
	defer teardown()
	putBatchResults(server)
	listener := &recordingListener{}
	p.AddConnectionEventListener(listener)
	ctx := context.Background()

	vc1, err := p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	sessionID := vc1.SessionID()
	if _, err := vc1.ExecContext(ctx, "UPDATE t SET x = 2", nil); err != nil {
		t.Fatal(err)
	}
	if err := vc1.Close(); err != nil {
		t.Fatal(err)
	}
	if err := vc1.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if g, w := len(listener.closed), 1; g != w {
		t.Fatalf("closed events mismatch\n Got: %v\nWant: %v", g, w)
	}
	if listener.closed[0].Source != p {
		t.Fatal("event source should be the pooled connection")
	}
	if !vc1.IsClosed() {
		t.Fatal("handle should be closed")
	}
	if p.PhysicalConnection().IsClosed() {
		t.Fatal("physical connection should still be open")
	}
	if g, w := len(server.DeletedSessions()), 0; g != w {
		t.Fatalf("deleted sessions mismatch\n Got: %v\nWant: %v", g, w)
	}

	vc2, err := p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	if g, w := vc2.SessionID(), sessionID; g != w {
		t.Fatalf("session id mismatch\n Got: %v\nWant: %v", g, w)
	}
	if err := vc2.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{sessionID}, server.OpenSessions()); diff != "" {
		t.Fatalf("open sessions mismatch (-want +got):\n%s", diff)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if diff := cmp.Diff([]string{sessionID}, server.DeletedSessions()); diff != "" {
		t.Fatalf("deleted sessions mismatch (-want +got):\n%s", diff)
	}
	if !vc2.IsClosed() {
		t.Fatal("handle should be closed after the pooled connection was closed")
	}
	// Closing the pooled connection does not send a closed event.
	if g, w := len(listener.closed), 1; g != w {
		t.Fatalf("closed events mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestPooledConnection_ConnectionClosesPreviousHandle(t *testing.T) {
	t.Parallel()

	p, _, teardown := setupPooledConnection(t)
	defer teardown()
	listener := &recordingListener{}
	p.AddConnectionEventListener(listener)
	ctx := context.Background()

	vc1, err := p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	vc2, err := p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	if !vc1.IsClosed() {
		t.Fatal("previous handle should be closed")
	}
	if vc2.IsClosed() {
		t.Fatal("new handle should be open")
	}
	if len(listener.closed) != 0 {
		t.Fatalf("closing the previous handle should not send events, got %v", listener.closed)
	}
	if err := vc1.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if _, err := vc1.CreateStatement(); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if _, err := vc1.QueryContext(ctx, "SELECT 1", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	// Closing a handle that was already closed does not send an event.
	if err := vc1.Close(); err != nil {
		t.Fatal(err)
	}
	if len(listener.closed) != 0 {
		t.Fatalf("unexpected closed events: %v", listener.closed)
	}
}

func TestPooledConnection_ClosedPhysicalConnection(t *testing.T) {
	t.Parallel()

	p, _, teardown := setupPooledConnection(t)
	defer teardown()
	listener := &recordingListener{}
	p.AddConnectionEventListener(listener)
	ctx := context.Background()

	vc, err := p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	s, err := vc.CreateStatement()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Execute(ctx, "UPDATE t SET x = 2"); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if _, err := vc.ExecuteBatch(ctx, []string{"UPDATE t SET x = 2"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if c, err := s.Connection(); !errors.Is(err, ErrClosed) || c != nil {
		t.Fatalf("connection mismatch\n Got: %v, %v\nWant: nil, %v", c, err, ErrClosed)
	}
	if err := s.SetQueryTimeout(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if !s.IsClosed() {
		t.Fatal("statement on a closed physical connection should report closed")
	}
	if g, w := s.QueryTimeout(), time.Duration(0); g != w {
		t.Fatalf("query timeout mismatch\n Got: %v\nWant: %v", g, w)
	}
	_, err = p.Connection()
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if g, w := len(listener.errors), 1; g != w {
		t.Fatalf("error events mismatch\n Got: %v\nWant: %v", g, w)
	}
	if !errors.Is(listener.errors[0].Err, ErrClosed) {
		t.Fatalf("event error mismatch\n Got: %v\nWant: %v", listener.errors[0].Err, ErrClosed)
	}
}

func TestPooledConnection_Listeners(t *testing.T) {
	t.Parallel()

	p, _, teardown := setupPooledConnection(t)
	defer teardown()
	l1 := &recordingListener{}
	l2 := &recordingListener{}
	p.AddConnectionEventListener(l1)
	p.AddConnectionEventListener(l1)
	p.AddConnectionEventListener(l2)
	p.AddConnectionEventListener(nil)

	vc, err := p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	if err := vc.Close(); err != nil {
		t.Fatal(err)
	}
	if g, w := len(l1.closed), 1; g != w {
		t.Fatalf("l1 closed events mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := len(l2.closed), 1; g != w {
		t.Fatalf("l2 closed events mismatch\n Got: %v\nWant: %v", g, w)
	}

	p.RemoveConnectionEventListener(l1)
	vc, err = p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	if err := vc.Close(); err != nil {
		t.Fatal(err)
	}
	if g, w := len(l1.closed), 1; g != w {
		t.Fatalf("l1 closed events mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := len(l2.closed), 2; g != w {
		t.Fatalf("l2 closed events mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestVirtualStmt(t *testing.T) {
	t.Parallel()

	p, server, teardown := setupPooledConnection(t)
	defer teardown()
	putBatchResults(server)
	ctx := context.Background()

	vc, err := p.Connection()
	if err != nil {
		t.Fatal(err)
	}
	if g, w := vc.String(), fmt.Sprintf("Pooled connection wrapping physical connection %v", p.PhysicalConnection()); g != w {
		t.Fatalf("string mismatch\n Got: %v\nWant: %v", g, w)
	}
	s, err := vc.CreateStatement()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(fmt.Sprint(s), "Pooled statement wrapping physical statement ") {
		t.Fatalf("unexpected statement string: %v", s)
	}
	c, err := s.Connection()
	if err != nil {
		t.Fatal(err)
	}
	if c != DatabricksConn(vc) {
		t.Fatal("statement connection should be the virtual connection")
	}
	if err := s.SetQueryTimeout(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.AddBatch("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddBatch("UPDATE t SET x = 2"); err != nil {
		t.Fatal(err)
	}
	counts, err := s.ExecuteBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{1, 2}, counts); diff != "" {
		t.Fatalf("update counts mismatch (-want +got):\n%s", diff)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if !s.IsClosed() {
		t.Fatal("statement should be closed")
	}
	if _, err := s.Connection(); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if _, _, err := s.Execute(ctx, "UPDATE t SET x = 2"); !errors.Is(err, ErrClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrClosed)
	}
	if g, w := s.QueryTimeout(), 5*time.Second; g != w {
		t.Fatalf("query timeout mismatch\n Got: %v\nWant: %v", g, w)
	}
	// Closing the statement does not close the connection.
	if vc.IsClosed() {
		t.Fatal("connection should still be open")
	}
}
