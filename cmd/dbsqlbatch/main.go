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

// dbsqlbatch executes a file with SQL statements as one batch on a
// Databricks SQL warehouse.
package main

import (
	"log/slog"
	"os"

	"github.com/dbsql-go/go-sql-databricks/cmd/dbsqlbatch/command"
	"github.com/spf13/afero"
)

func main() {
	if err := command.NewRootCommand(afero.NewOsFs()).Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
