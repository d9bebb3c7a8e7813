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
	"fmt"
	"strconv"

	databricksdriver "github.com/dbsql-go/go-sql-databricks"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func (bc *BatchCommand) validateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a batch file without executing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bf, err := LoadBatchFile(bc.fs, bc.v.GetString("file"))
			if err != nil {
				return err
			}
			if err := bf.Validate(bc.v.GetInt("max-batch-size")); err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"#", "statement", "type"})
			table.SetAutoWrapText(false)
			for i, sql := range bf.Statements {
				table.Append([]string{strconv.Itoa(i), sql, databricksdriver.DetectStatementType(sql).String()})
			}
			table.Render()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "batch %s is valid: %d statements\n", bf.Name, len(bf.Statements))
			return err
		},
	}
	addFileFlag(cmd.Flags())
	cmd.Flags().Int("max-batch-size", databricksdriver.DefaultMaxBatchSize, "maximum number of statements in the batch")
	return cmd
}
