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
	"io"
	"time"

	"github.com/dbsql-go/go-sql-databricks/internal/sqlexec"
	"github.com/dbsql-go/go-sql-databricks/telemetry"
	"google.golang.org/api/iterator"
)

// rowIterator returns the rows of a result one by one, and iterator.Done
// when there are no more rows.
type rowIterator interface {
	Next() ([]*string, error)
	Stop()
}

// chunkIterator iterates over the rows of an inline result and fetches the
// following chunks from the server when needed.
type chunkIterator struct {
	ctx         context.Context
	client      sqlexec.Client
	statementID string
	details     *telemetry.StatementDetails

	current *sqlexec.ResultData
	pos     int
	done    bool
}

func (it *chunkIterator) Next() ([]*string, error) {
	for {
		if it.done {
			return nil, iterator.Done
		}
		if it.current != nil && it.pos < len(it.current.DataArray) {
			row := it.current.DataArray[it.pos]
			it.pos++
			return row, nil
		}
		if it.current != nil {
			it.details.Chunks.AddChunkIterated()
		}
		if it.current == nil || it.current.NextChunkIndex == nil {
			it.done = true
			return nil, iterator.Done
		}
		index := *it.current.NextChunkIndex
		start := time.Now()
		data, err := it.client.GetChunk(it.ctx, it.statementID, index)
		if err != nil {
			return nil, executionError("failed to fetch result chunk", err)
		}
		it.details.Chunks.RecordChunkLatency(index, time.Since(start))
		it.current = data
		it.pos = 0
	}
}

func (it *chunkIterator) Stop() {
	it.done = true
	it.current = nil
}

var _ driver.RowsColumnTypeDatabaseTypeName = &rows{}

type rows struct {
	it        rowIterator
	cols      []string
	typeNames []string
	details   *telemetry.StatementDetails
	close     func() error
	closed    bool
}

func newRows(ctx context.Context, client sqlexec.Client, resp *sqlexec.Response, details *telemetry.StatementDetails) *rows {
	r := &rows{
		it: &chunkIterator{
			ctx:         ctx,
			client:      client,
			statementID: resp.StatementID,
			details:     details,
			current:     resp.Result,
		},
		details: details,
	}
	if resp.Manifest != nil {
		details.Chunks.SetTotalChunks(resp.Manifest.TotalChunkCount)
		for _, c := range resp.Manifest.Schema.Columns {
			r.cols = append(r.cols, c.Name)
			r.typeNames = append(r.typeNames, c.TypeName)
		}
	}
	return r
}

// Columns returns the names of the columns.
func (r *rows) Columns() []string {
	return r.cols
}

// ColumnTypeDatabaseTypeName returns the type name that the server reported
// for the column. All values are returned as strings.
func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	if index < 0 || index >= len(r.typeNames) {
		return ""
	}
	return r.typeNames[index]
}

// Close closes the rows iterator.
func (r *rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.it.Stop()
	if r.close != nil {
		if err := r.close(); err != nil {
			return err
		}
	}
	return nil
}

// Next moves the cursor to the next row. Values are strings, or nil for NULL.
func (r *rows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	row, err := r.it.Next()
	if err == iterator.Done {
		r.details.Result.MarkResultSetConsumption(false)
		return io.EOF
	}
	if err != nil {
		return err
	}
	r.details.Result.MarkResultSetConsumption(true)
	for i := range dest {
		if i < len(row) && row[i] != nil {
			dest[i] = *row[i]
		} else {
			dest[i] = nil
		}
	}
	return nil
}
