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

// Package command contains the commands of the dbsqlbatch CLI.
package command

import (
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "DBSQL"

// BatchCommand holds the state that is shared by all dbsqlbatch commands.
type BatchCommand struct {
	fs afero.Fs
	v  *viper.Viper
}

// NewRootCommand creates the root command with all subcommands. Batch files
// are read from fs.
func NewRootCommand(fs afero.Fs) *cobra.Command {
	bc := &BatchCommand{fs: fs, v: viper.New()}
	bc.v.SetEnvPrefix(envPrefix)
	bc.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	bc.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "dbsqlbatch",
		Short: "Execute batches of SQL statements on a Databricks SQL warehouse",
		Long: `dbsqlbatch executes the statements in a YAML batch file one by one on a
single session of a Databricks SQL warehouse and prints the update count of
each statement.

A batch file looks like this:

  name: load-customers
  statements:
    - INSERT INTO customers VALUES (1, 'Alice')
    - UPDATE customers SET active = true

All flags can also be set with environment variables with the prefix DBSQL_,
e.g. DBSQL_DSN.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag errors have already been reported at this point.
			cmd.SilenceUsage = true
			return bc.v.BindPFlags(cmd.Flags())
		},
	}
	root.PersistentFlags().String("dsn", "", "connection string of the SQL warehouse, e.g. databricks://host/default;httpPath=/sql/1.0/warehouses/abc;PWD=token")
	root.PersistentFlags().Bool("verbose", false, "log debug messages of the driver to stderr")

	root.AddCommand(bc.runCommand())
	root.AddCommand(bc.validateCommand())
	return root
}
