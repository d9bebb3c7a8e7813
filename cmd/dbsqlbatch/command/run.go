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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	databricksdriver "github.com/dbsql-go/go-sql-databricks"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func (bc *BatchCommand) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a batch file",
		Long:  "Execute all statements in a batch file as one batch on a single session and print the update count of each statement.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bf, err := LoadBatchFile(bc.fs, bc.v.GetString("file"))
			if err != nil {
				return err
			}
			if len(bf.Statements) == 0 {
				return fmt.Errorf("batch %s contains no statements", bf.Name)
			}
			return bc.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), bf)
		},
	}
	addFileFlag(cmd.Flags())
	cmd.Flags().Int("max-batch-size", 0, "maximum number of statements in the batch (default: the driver default)")
	return cmd
}

func (bc *BatchCommand) run(ctx context.Context, out, errOut io.Writer, bf *BatchFile) error {
	dsn := bc.v.GetString("dsn")
	if dsn == "" {
		return fmt.Errorf("no connection string specified, use --dsn or %s_DSN", envPrefix)
	}
	config, err := databricksdriver.ExtractConnectorConfig(dsn)
	if err != nil {
		return err
	}
	if n := bc.v.GetInt("max-batch-size"); n > 0 {
		config.MaxBatchSize = n
	}
	level := slog.LevelWarn
	if bc.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	config.Logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	connector, err := databricksdriver.CreateConnector(config)
	if err != nil {
		return err
	}
	defer func() { _ = connector.(io.Closer).Close() }()
	if ctx == nil {
		ctx = context.Background()
	}
	pooled, err := databricksdriver.OpenPooledConnection(ctx, connector)
	if err != nil {
		return err
	}
	defer func() { _ = pooled.Close() }()
	conn, err := pooled.Connection()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	stmt, err := conn.CreateStatement()
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, sql := range bf.Statements {
		if err := stmt.AddBatch(sql); err != nil {
			return err
		}
	}
	counts, err := stmt.ExecuteBatch(ctx)
	var batchErr *databricksdriver.BatchError
	if errors.As(err, &batchErr) {
		renderCounts(out, bf.Statements, batchErr.BatchUpdateCounts, true)
		return err
	}
	if err != nil {
		return err
	}
	renderCounts(out, bf.Statements, counts, false)
	return nil
}

func renderCounts(out io.Writer, statements []string, counts []int64, failed bool) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "statement", "update count"})
	table.SetAutoWrapText(false)
	for i, sql := range statements {
		var count string
		switch {
		case i < len(counts) && counts[i] == databricksdriver.SuccessNoInfo:
			count = "SUCCESS_NO_INFO"
		case i < len(counts):
			count = strconv.FormatInt(counts[i], 10)
		case failed && i == len(counts):
			count = "FAILED"
		default:
			count = "NOT EXECUTED"
		}
		table.Append([]string{strconv.Itoa(i), sql, count})
	}
	table.Render()
}
