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

import "fmt"

const (
	SessionsPath   = "/api/2.0/sql/sessions/"
	StatementsPath = "/api/2.0/sql/statements/"
)

func sessionPath(sessionID string) string {
	return SessionsPath + sessionID
}

func statementPath(statementID string) string {
	return StatementsPath + statementID
}

func cancelStatementPath(statementID string) string {
	return StatementsPath + statementID + "/cancel"
}

func chunkPath(statementID string, index int) string {
	return fmt.Sprintf("%s%s/result/chunks/%d", StatementsPath, statementID, index)
}

// State is the execution state of a remote statement.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCanceled  State = "CANCELED"
	StateClosed    State = "CLOSED"
)

// Terminal returns true if the statement will not change state anymore.
// Only PENDING and RUNNING are polled again; any other value, including an
// empty or unrecognized state, ends the statement.
func (s State) Terminal() bool {
	return s != StatePending && s != StateRunning
}

// Known returns true if s is one of the states that the API documents.
func (s State) Known() bool {
	switch s {
	case StatePending, StateRunning, StateSucceeded, StateFailed, StateCanceled, StateClosed:
		return true
	}
	return false
}

type CreateSessionRequest struct {
	WarehouseID  string            `json:"warehouse_id"`
	Catalog      string            `json:"catalog,omitempty"`
	Schema       string            `json:"schema,omitempty"`
	SessionConfs map[string]string `json:"session_confs,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

type ExecuteRequest struct {
	Statement     string `json:"statement"`
	WarehouseID   string `json:"warehouse_id"`
	SessionID     string `json:"session_id,omitempty"`
	Catalog       string `json:"catalog,omitempty"`
	Schema        string `json:"schema,omitempty"`
	WaitTimeout   string `json:"wait_timeout,omitempty"`
	OnWaitTimeout string `json:"on_wait_timeout,omitempty"`
	Disposition   string `json:"disposition,omitempty"`
	Format        string `json:"format,omitempty"`
	RowLimit      int64  `json:"row_limit,omitempty"`
}

// ServiceError is the error object that the service includes in error
// responses and in the status of failed statements.
type ServiceError struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type StatementStatus struct {
	State    State         `json:"state"`
	Error    *ServiceError `json:"error,omitempty"`
	SQLState string        `json:"sql_state,omitempty"`
}

type ColumnInfo struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name,omitempty"`
	Position int    `json:"position"`
}

type ResultSchema struct {
	ColumnCount int          `json:"column_count"`
	Columns     []ColumnInfo `json:"columns,omitempty"`
}

type ResultManifest struct {
	Format          string       `json:"format,omitempty"`
	Schema          ResultSchema `json:"schema"`
	TotalChunkCount int          `json:"total_chunk_count"`
	TotalRowCount   int64        `json:"total_row_count"`
	Truncated       bool         `json:"truncated,omitempty"`
}

// ColumnIndex returns the position of the column with the given name, or -1.
func (m *ResultManifest) ColumnIndex(name string) int {
	if m == nil {
		return -1
	}
	for i, c := range m.Schema.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ResultData is one chunk of an inline JSON_ARRAY result. Null values are
// nil pointers.
type ResultData struct {
	ChunkIndex     int         `json:"chunk_index"`
	RowOffset      int64       `json:"row_offset"`
	RowCount       int64       `json:"row_count"`
	DataArray      [][]*string `json:"data_array,omitempty"`
	NextChunkIndex *int        `json:"next_chunk_index,omitempty"`
}

type Response struct {
	StatementID string          `json:"statement_id"`
	Status      StatementStatus `json:"status"`
	Manifest    *ResultManifest `json:"manifest,omitempty"`
	Result      *ResultData     `json:"result,omitempty"`
}
