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

	databricksdriver "github.com/dbsql-go/go-sql-databricks"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// BatchFile is the content of a batch file.
type BatchFile struct {
	Name       string   `yaml:"name,omitempty"`
	Statements []string `yaml:"statements"`
}

func addFileFlag(flags *pflag.FlagSet) {
	flags.StringP("file", "f", "", "path of the YAML batch file")
}

// LoadBatchFile reads and parses the batch file at path.
func LoadBatchFile(fs afero.Fs, path string) (*BatchFile, error) {
	if path == "" {
		return nil, fmt.Errorf("no batch file specified, use --file")
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}
	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}
	if bf.Name == "" {
		bf.Name = path
	}
	return &bf, nil
}

// Validate checks the statements of the batch without connecting to a
// warehouse. maxBatchSize is ignored if it is zero.
func (bf *BatchFile) Validate(maxBatchSize int) error {
	if len(bf.Statements) == 0 {
		return fmt.Errorf("batch %s contains no statements", bf.Name)
	}
	if maxBatchSize > 0 && len(bf.Statements) > maxBatchSize {
		return fmt.Errorf("batch %s contains %d statements, maximum allowed is %d", bf.Name, len(bf.Statements), maxBatchSize)
	}
	for i, sql := range bf.Statements {
		if _, err := databricksdriver.NewCommand(sql); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
		if databricksdriver.DetectStatementType(sql) == databricksdriver.StatementTypeQuery {
			return fmt.Errorf("statement %d returns a result set and cannot be executed in a batch", i)
		}
	}
	return nil
}
