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
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const (
	// SuccessNoInfo is the update count of a batch command that succeeded
	// without returning the number of affected rows.
	SuccessNoInfo int64 = -2
	// UpdateCountUnknown is returned by an Executor for a statement that did
	// not return the number of affected rows.
	UpdateCountUnknown int64 = -1
)

// Command is a SQL string in a batch.
type Command struct {
	sql string
}

// NewCommand returns a Command for the given SQL string. Empty strings are
// rejected.
func NewCommand(sql string) (Command, error) {
	if strings.TrimSpace(sql) == "" {
		return Command{}, validationError("SQL command is empty")
	}
	return Command{sql: sql}, nil
}

func (c Command) SQL() string {
	return c.sql
}

// Executor executes a single SQL statement for a batch.
type Executor interface {
	// Execute executes the statement and returns whether it produced a result
	// set, and the number of affected rows. The update count is
	// UpdateCountUnknown if the statement did not return one.
	Execute(ctx context.Context, sql string) (hasResultSet bool, updateCount int64, err error)
}

// BatchExecutor collects SQL commands and executes them one by one in the
// order they were added. A BatchExecutor is not safe for concurrent use.
type BatchExecutor struct {
	executor     Executor
	maxBatchSize int
	commands     []Command
	logger       *slog.Logger
}

func NewBatchExecutor(executor Executor, maxBatchSize int, logger *slog.Logger) *BatchExecutor {
	if logger == nil {
		logger = noopLogger
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &BatchExecutor{executor: executor, maxBatchSize: maxBatchSize, logger: logger}
}

// AddCommand adds a SQL command to the batch. The batch is not modified if
// the command is empty or if the batch is full.
func (b *BatchExecutor) AddCommand(sql string) error {
	cmd, err := NewCommand(sql)
	if err != nil {
		return err
	}
	if len(b.commands) >= b.maxBatchSize {
		return validationError("batch size limit exceeded, maximum allowed is %d", b.maxBatchSize)
	}
	b.commands = append(b.commands, cmd)
	return nil
}

// ClearCommands removes all commands from the batch.
func (b *BatchExecutor) ClearCommands() {
	b.commands = nil
}

func (b *BatchExecutor) Len() int {
	return len(b.commands)
}

func (b *BatchExecutor) MaxBatchSize() int {
	return b.maxBatchSize
}

// Commands returns a copy of the commands in the batch.
func (b *BatchExecutor) Commands() []Command {
	return slices.Clone(b.commands)
}

// ExecuteBatch executes all commands in the batch and returns the update
// count of each command. Commands that succeeded without an update count get
// SuccessNoInfo.
//
// Execution stops at the first command that fails or that returns a result
// set. A *BatchError is returned in that case, containing the update counts
// of the commands that were executed before it. The batch is always empty
// when this method returns.
func (b *BatchExecutor) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if len(b.commands) == 0 {
		b.logger.WarnContext(ctx, "no commands to execute in the batch")
		return []int64{}, nil
	}
	batchStart := time.Now()
	counts := make([]int64, len(b.commands))
	for i, cmd := range b.commands {
		start := time.Now()
		hasResultSet, updateCount, err := b.executor.Execute(ctx, cmd.sql)
		elapsed := time.Since(start)
		if err != nil {
			b.logger.DebugContext(ctx, "batch command failed", "index", i, "elapsed", elapsed, "err", err)
			return nil, b.batchFailure(ctx, batchStart, counts[:i], fmt.Sprintf("batch execution failed at command %d: %v", i, err), err)
		}
		b.logger.DebugContext(ctx, "batch command executed", "index", i, "elapsed", elapsed)
		if hasResultSet {
			cause := &Error{Kind: KindExecution, Code: CodeBatchResultSet, Msg: "statement in batch returned a result set"}
			return nil, b.batchFailure(ctx, batchStart, counts[:i], fmt.Sprintf("command %d in the batch attempted to return a result set", i), cause)
		}
		if updateCount < 0 {
			updateCount = SuccessNoInfo
		}
		counts[i] = updateCount
	}
	b.logger.DebugContext(ctx, "batch executed", "commands", len(counts), "elapsed", time.Since(batchStart))
	b.ClearCommands()
	return counts, nil
}

func (b *BatchExecutor) batchFailure(ctx context.Context, batchStart time.Time, completed []int64, msg string, cause error) error {
	b.logger.DebugContext(ctx, "batch failed", "completed", len(completed), "elapsed", time.Since(batchStart))
	b.ClearCommands()
	return &BatchError{
		BatchUpdateCounts: slices.Clone(completed),
		Code:              CodeBatchExecute,
		SQLState:          sqlStateOf(cause),
		Msg:               msg,
		Err:               cause,
	}
}

// BatchError is returned when a batch stops before all commands were
// executed. BatchUpdateCounts contains one entry for each command that
// was executed before the failing command.
type BatchError struct {
	BatchUpdateCounts []int64
	Code              DriverErrorCode
	SQLState          string
	Msg               string
	Err               error
}

func (be *BatchError) Error() string {
	if be.Msg == "" && be.Err != nil {
		return be.Err.Error()
	}
	return be.Msg
}

func (be *BatchError) Unwrap() error {
	return be.Err
}

// Is makes errors.Is(err, ErrExecution) true for all batch errors.
func (be *BatchError) Is(target error) bool {
	return target == ErrExecution
}
