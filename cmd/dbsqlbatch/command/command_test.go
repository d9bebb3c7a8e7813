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

package command

import (
	"bytes"
	"errors"
	"testing"

	databricksdriver "github.com/dbsql-go/go-sql-databricks"
	"github.com/dbsql-go/go-sql-databricks/internal/sqlexec"
	"github.com/dbsql-go/go-sql-databricks/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchYAML = `name: load
statements:
  - INSERT INTO t VALUES (1)
  - UPDATE t SET x = 2
  - CREATE TABLE t2 (x INT)
`

func setupServer(t *testing.T) *testutil.MockedWarehouseServer {
	server, teardown := testutil.NewMockedWarehouseServer(t)
	t.Cleanup(teardown)
	server.PutStatementResult("INSERT INTO t VALUES (1)", &testutil.StatementResult{Type: testutil.StatementResultUpdateCount, UpdateCount: 1})
	server.PutStatementResult("UPDATE t SET x = 2", &testutil.StatementResult{Type: testutil.StatementResultUpdateCount, UpdateCount: 2})
	server.PutStatementResult("CREATE TABLE t2 (x INT)", &testutil.StatementResult{Type: testutil.StatementResultNoUpdateCount})
	return server
}

func writeBatchFile(t *testing.T, content string) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/batches/batch.yaml", []byte(content), 0o644))
	return fs
}

func execute(fs afero.Fs, args ...string) (string, error) {
	root := NewRootCommand(fs)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoadBatchFile(t *testing.T) {
	t.Parallel()

	fs := writeBatchFile(t, batchYAML)
	bf, err := LoadBatchFile(fs, "/batches/batch.yaml")
	require.NoError(t, err)
	assert.Equal(t, "load", bf.Name)
	assert.Equal(t, []string{"INSERT INTO t VALUES (1)", "UPDATE t SET x = 2", "CREATE TABLE t2 (x INT)"}, bf.Statements)

	_, err = LoadBatchFile(fs, "/batches/missing.yaml")
	require.Error(t, err)
	_, err = LoadBatchFile(fs, "")
	require.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/batches/invalid.yaml", []byte("statements: [unterminated"), 0o644))
	_, err = LoadBatchFile(fs, "/batches/invalid.yaml")
	require.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/batches/unnamed.yaml", []byte("statements:\n  - DELETE FROM t\n"), 0o644))
	bf, err = LoadBatchFile(fs, "/batches/unnamed.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/batches/unnamed.yaml", bf.Name)
}

func TestBatchFile_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		statements   []string
		maxBatchSize int
		wantErr      string
	}{
		{name: "valid", statements: []string{"INSERT INTO t VALUES (1)", "DROP TABLE t"}},
		{name: "empty", wantErr: "contains no statements"},
		{name: "too many", statements: []string{"DELETE FROM t", "DELETE FROM t"}, maxBatchSize: 1, wantErr: "maximum allowed is 1"},
		{name: "blank statement", statements: []string{"DELETE FROM t", "  "}, wantErr: "statement 1"},
		{name: "query", statements: []string{"SELECT * FROM t"}, wantErr: "returns a result set"},
	}
	for _, tc := range tests {
		bf := &BatchFile{Name: tc.name, Statements: tc.statements}
		err := bf.Validate(tc.maxBatchSize)
		if tc.wantErr == "" {
			assert.NoError(t, err, tc.name)
			continue
		}
		if assert.Error(t, err, tc.name) {
			assert.Contains(t, err.Error(), tc.wantErr, tc.name)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	fs := writeBatchFile(t, batchYAML)
	out, err := execute(fs, "validate", "--file", "/batches/batch.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "batch load is valid: 3 statements")
	assert.Contains(t, out, "DML")
	assert.Contains(t, out, "DDL")

	_, err = execute(fs, "validate", "--file", "/batches/batch.yaml", "--max-batch-size", "2")
	require.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	server := setupServer(t)
	fs := writeBatchFile(t, batchYAML)
	out, err := execute(fs, "run", "--dsn", server.DSN(), "-f", "/batches/batch.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "INSERT INTO t VALUES (1)")
	assert.Contains(t, out, "SUCCESS_NO_INFO")
	assert.NotContains(t, out, "FAILED")

	requests := server.DrainRequests()
	statements := testutil.ExecuteRequests(requests)
	require.Len(t, statements, 3)
	assert.Equal(t, "CREATE TABLE t2 (x INT)", statements[2].Statement)
	// The session is closed when the command finishes.
	assert.Empty(t, server.OpenSessions())
	assert.Len(t, server.DeletedSessions(), 1)
}

func TestRunCommand_BatchFails(t *testing.T) {
	t.Parallel()

	server := setupServer(t)
	server.PutStatementResult("UPDATE t SET x = 2", &testutil.StatementResult{
		Type: testutil.StatementResultError,
		Err:  &sqlexec.ServiceError{ErrorCode: "TABLE_OR_VIEW_NOT_FOUND", Message: "table t not found"},
	})
	fs := writeBatchFile(t, batchYAML)
	out, err := execute(fs, "run", "--dsn", server.DSN(), "--file", "/batches/batch.yaml")
	var batchErr *databricksdriver.BatchError
	require.True(t, errors.As(err, &batchErr), "got %v", err)
	assert.Equal(t, []int64{1}, batchErr.BatchUpdateCounts)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "NOT EXECUTED")
	assert.Len(t, testutil.ExecuteRequests(server.DrainRequests()), 2)
}

func TestRunCommand_MaxBatchSize(t *testing.T) {
	t.Parallel()

	server := setupServer(t)
	fs := writeBatchFile(t, batchYAML)
	_, err := execute(fs, "run", "--dsn", server.DSN(), "--file", "/batches/batch.yaml", "--max-batch-size", "2")
	require.ErrorIs(t, err, databricksdriver.ErrValidation)
	assert.Empty(t, testutil.ExecuteRequests(server.DrainRequests()))
}

func TestRunCommand_MissingDSN(t *testing.T) {
	t.Parallel()

	fs := writeBatchFile(t, batchYAML)
	_, err := execute(fs, "run", "--file", "/batches/batch.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DBSQL_DSN")
}

func TestRunCommand_DSNFromEnv(t *testing.T) {
	server := setupServer(t)
	t.Setenv("DBSQL_DSN", server.DSN())
	fs := writeBatchFile(t, batchYAML)
	out, err := execute(fs, "run", "--file", "/batches/batch.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS_NO_INFO")
}
