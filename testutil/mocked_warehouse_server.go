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

package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/dbsql-go/go-sql-databricks/internal/sqlexec"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	WarehouseID = "test-warehouse"
	HTTPPath    = "/sql/1.0/warehouses/" + WarehouseID
	Token       = "test-token"

	SelectFooFromBar         = "SELECT FOO FROM BAR"
	selectFooFromBarRowCount = 5
)

type StatementResultType int

const (
	StatementResultError StatementResultType = iota
	StatementResultResultSet
	StatementResultUpdateCount
	// StatementResultNoUpdateCount is the result of a statement that
	// succeeds without returning any result or update count, such as DDL.
	StatementResultNoUpdateCount
)

// StatementResult is the mocked result of a SQL statement.
type StatementResult struct {
	Type        StatementResultType
	UpdateCount int64
	Columns     []string
	Rows        [][]*string
	// ChunkSize is the max number of rows per chunk. Zero returns all rows
	// in the first chunk.
	ChunkSize int
	Err       *sqlexec.ServiceError
	SQLState  string
	// PendingPolls is the number of status calls that will return RUNNING
	// before the statement finishes.
	PendingPolls int
}

// Request is a request that was received by the mocked server.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

type statementState struct {
	id           string
	sql          string
	result       *StatementResult
	pendingPolls int
	state        sqlexec.State
}

// MockedWarehouseServer is an in-process HTTP server that implements the
// parts of the SQL Statement Execution API that are used by the driver.
type MockedWarehouseServer struct {
	mu               sync.Mutex
	statementResults map[string]*StatementResult
	sessions         map[string]bool
	deletedSessions  []string
	statements       map[string]*statementState
	requests         []Request
	deleteSessionErr *sqlexec.ServiceError

	server *httptest.Server
	// URL is the base url of the server, e.g. http://127.0.0.1:1234.
	URL string
	// Address is the host:port of the server.
	Address string
}

// NewMockedWarehouseServer starts a mocked warehouse server on a random
// local port.
func NewMockedWarehouseServer(t *testing.T) (server *MockedWarehouseServer, teardown func()) {
	t.Helper()
	return StartMockedWarehouseServer()
}

// StartMockedWarehouseServer starts a mocked warehouse server outside of a
// test, e.g. for running samples without a real warehouse.
func StartMockedWarehouseServer() (server *MockedWarehouseServer, teardown func()) {
	s := &MockedWarehouseServer{
		statementResults: make(map[string]*StatementResult),
		sessions:         make(map[string]bool),
		statements:       make(map[string]*statementState),
	}
	s.setupSelect1Result()
	s.setupFooResults()

	router := mux.NewRouter()
	router.Use(s.recordRequests)
	router.HandleFunc(sqlexec.SessionsPath, s.createSession).Methods(http.MethodPost)
	router.HandleFunc(sqlexec.SessionsPath+"{id}", s.deleteSession).Methods(http.MethodDelete)
	router.HandleFunc(sqlexec.StatementsPath, s.executeStatement).Methods(http.MethodPost)
	router.HandleFunc(sqlexec.StatementsPath+"{id}", s.getStatement).Methods(http.MethodGet)
	router.HandleFunc(sqlexec.StatementsPath+"{id}", s.closeStatement).Methods(http.MethodDelete)
	router.HandleFunc(sqlexec.StatementsPath+"{id}/cancel", s.cancelStatement).Methods(http.MethodPost)
	router.HandleFunc(sqlexec.StatementsPath+"{id}/result/chunks/{index:[0-9]+}", s.getChunk).Methods(http.MethodGet)

	s.server = httptest.NewServer(router)
	s.URL = s.server.URL
	s.Address = strings.TrimPrefix(s.server.URL, "http://")
	return s, func() {
		s.server.Close()
	}
}

// DSN returns a connection string for this server with the given extra
// parameters appended.
func (s *MockedWarehouseServer) DSN(params ...string) string {
	dsn := fmt.Sprintf("databricks://%s/default;httpPath=%s;PWD=%s;usePlainText=true", s.Address, HTTPPath, Token)
	for _, p := range params {
		dsn += ";" + p
	}
	return dsn
}

func (s *MockedWarehouseServer) setupSelect1Result() {
	s.PutStatementResult("SELECT 1", &StatementResult{
		Type:    StatementResultResultSet,
		Columns: []string{"1"},
		Rows:    [][]*string{{Str("1")}},
	})
}

func (s *MockedWarehouseServer) setupFooResults() {
	rows := make([][]*string, selectFooFromBarRowCount)
	for i := range rows {
		rows[i] = []*string{Str(strconv.Itoa(i + 1))}
	}
	s.PutStatementResult(SelectFooFromBar, &StatementResult{
		Type:      StatementResultResultSet,
		Columns:   []string{"FOO"},
		Rows:      rows,
		ChunkSize: 2,
	})
}

// Str returns a pointer to the given string.
func Str(s string) *string {
	return &s
}

// PutStatementResult registers the result that is returned for the given sql string.
func (s *MockedWarehouseServer) PutStatementResult(sql string, result *StatementResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statementResults[strings.TrimSpace(sql)] = result
}

// PutDeleteSessionError makes all following session deletes fail with the given error.
func (s *MockedWarehouseServer) PutDeleteSessionError(err *sqlexec.ServiceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionErr = err
}

// OpenSessions returns the ids of the sessions that have not been deleted.
func (s *MockedWarehouseServer) OpenSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id, open := range s.sessions {
		if open {
			ids = append(ids, id)
		}
	}
	return ids
}

// DeletedSessions returns the ids of the sessions that have been deleted, in
// the order they were deleted.
func (s *MockedWarehouseServer) DeletedSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletedSessions...)
}

// StatementState returns the current state of the given statement.
func (s *MockedWarehouseServer) StatementState(id string) sqlexec.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statements[id]; ok {
		return st.state
	}
	return ""
}

// DrainRequests returns all requests received so far and clears the list.
func (s *MockedWarehouseServer) DrainRequests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	requests := s.requests
	s.requests = nil
	return requests
}

// RequestsWithMethodAndPrefix filters the given requests.
func RequestsWithMethodAndPrefix(requests []Request, method, prefix string) []Request {
	var res []Request
	for _, r := range requests {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			res = append(res, r)
		}
	}
	return res
}

// ExecuteRequests returns the decoded statement execution requests.
func ExecuteRequests(requests []Request) []sqlexec.ExecuteRequest {
	var res []sqlexec.ExecuteRequest
	for _, r := range RequestsWithMethodAndPrefix(requests, http.MethodPost, sqlexec.StatementsPath) {
		if strings.HasSuffix(r.Path, "/cancel") {
			continue
		}
		var req sqlexec.ExecuteRequest
		if err := json.Unmarshal(r.Body, &req); err == nil {
			res = append(res, req)
		}
	}
	return res
}

func (s *MockedWarehouseServer) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
		s.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid access token")
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next.ServeHTTP(w, r)
	})
}

func (s *MockedWarehouseServer) createSession(w http.ResponseWriter, r *http.Request) {
	var req sqlexec.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}
	if req.WarehouseID != WarehouseID {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "unknown warehouse "+req.WarehouseID)
		return
	}
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = true
	s.mu.Unlock()
	writeJSON(w, &sqlexec.CreateSessionResponse{SessionID: id})
}

func (s *MockedWarehouseServer) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteSessionErr != nil {
		writeError(w, http.StatusBadRequest, s.deleteSessionErr.ErrorCode, s.deleteSessionErr.Message)
		return
	}
	if open, ok := s.sessions[id]; !ok || !open {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "invalid session "+id)
		return
	}
	s.sessions[id] = false
	s.deletedSessions = append(s.deletedSessions, id)
	writeJSON(w, struct{}{})
}

func (s *MockedWarehouseServer) executeStatement(w http.ResponseWriter, r *http.Request) {
	var req sqlexec.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.SessionID != "" && !s.sessions[req.SessionID] {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "invalid session "+req.SessionID)
		return
	}
	result, ok := s.statementResults[strings.TrimSpace(req.Statement)]
	if !ok {
		result = &StatementResult{
			Type: StatementResultError,
			Err:  &sqlexec.ServiceError{ErrorCode: "NOT_FOUND", Message: "no result found for " + req.Statement},
		}
	}
	st := &statementState{
		id:           uuid.New().String(),
		sql:          req.Statement,
		result:       result,
		pendingPolls: result.PendingPolls,
		state:        sqlexec.StatePending,
	}
	s.statements[st.id] = st
	writeJSON(w, s.response(st))
}

func (s *MockedWarehouseServer) getStatement(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "unknown statement")
		return
	}
	if !st.state.Terminal() {
		if st.pendingPolls > 0 {
			st.pendingPolls--
		}
	}
	writeJSON(w, s.response(st))
}

func (s *MockedWarehouseServer) cancelStatement(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "unknown statement")
		return
	}
	if !st.state.Terminal() {
		st.state = sqlexec.StateCanceled
	}
	writeJSON(w, struct{}{})
}

func (s *MockedWarehouseServer) closeStatement(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "unknown statement")
		return
	}
	st.state = sqlexec.StateClosed
	writeJSON(w, struct{}{})
}

func (s *MockedWarehouseServer) getChunk(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[mux.Vars(r)["id"]]
	if !ok || st.state != sqlexec.StateSucceeded || st.result.Type != StatementResultResultSet {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "no result for statement")
		return
	}
	index, _ := strconv.Atoi(mux.Vars(r)["index"])
	chunks := splitChunks(st.result.Rows, st.result.ChunkSize)
	if index >= len(chunks) {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "invalid chunk index")
		return
	}
	writeJSON(w, chunkData(chunks, index, st.result.ChunkSize))
}

// response must be called while holding s.mu.
func (s *MockedWarehouseServer) response(st *statementState) *sqlexec.Response {
	if st.state == sqlexec.StatePending || st.state == sqlexec.StateRunning {
		if st.pendingPolls > 0 {
			st.state = sqlexec.StateRunning
		} else if st.result.Type == StatementResultError {
			st.state = sqlexec.StateFailed
		} else {
			st.state = sqlexec.StateSucceeded
		}
	}
	resp := &sqlexec.Response{StatementID: st.id, Status: sqlexec.StatementStatus{State: st.state}}
	switch st.state {
	case sqlexec.StateFailed:
		resp.Status.Error = st.result.Err
		resp.Status.SQLState = st.result.SQLState
	case sqlexec.StateSucceeded:
		resp.Manifest, resp.Result = resultOf(st.result)
	}
	return resp
}

func resultOf(result *StatementResult) (*sqlexec.ResultManifest, *sqlexec.ResultData) {
	var columns []string
	var rows [][]*string
	chunkSize := 0
	switch result.Type {
	case StatementResultUpdateCount:
		count := strconv.FormatInt(result.UpdateCount, 10)
		columns = []string{"num_affected_rows", "num_inserted_rows"}
		rows = [][]*string{{Str(count), Str(count)}}
	case StatementResultResultSet:
		columns = result.Columns
		rows = result.Rows
		chunkSize = result.ChunkSize
	}
	manifest := &sqlexec.ResultManifest{
		Format:        "JSON_ARRAY",
		Schema:        sqlexec.ResultSchema{ColumnCount: len(columns)},
		TotalRowCount: int64(len(rows)),
	}
	for i, c := range columns {
		manifest.Schema.Columns = append(manifest.Schema.Columns, sqlexec.ColumnInfo{Name: c, TypeName: "STRING", Position: i})
	}
	chunks := splitChunks(rows, chunkSize)
	manifest.TotalChunkCount = len(chunks)
	if len(chunks) == 0 {
		return manifest, nil
	}
	return manifest, chunkData(chunks, 0, chunkSize)
}

func splitChunks(rows [][]*string, size int) [][][]*string {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 {
		return [][][]*string{rows}
	}
	var chunks [][][]*string
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

func chunkData(chunks [][][]*string, index, size int) *sqlexec.ResultData {
	data := &sqlexec.ResultData{
		ChunkIndex: index,
		RowCount:   int64(len(chunks[index])),
		DataArray:  chunks[index],
	}
	if size > 0 {
		data.RowOffset = int64(index * size)
	}
	if index+1 < len(chunks) {
		next := index + 1
		data.NextChunkIndex = &next
	}
	return data
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(&sqlexec.ServiceError{ErrorCode: errorCode, Message: message})
}
