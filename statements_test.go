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

import "testing"

func TestDetectStatementType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  StatementType
	}{
		{input: "SELECT 1", want: StatementTypeQuery},
		{input: "select * from foo", want: StatementTypeQuery},
		{input: "  \n\tSELECT 1", want: StatementTypeQuery},
		{input: "-- comment\nSELECT 1", want: StatementTypeQuery},
		{input: "/* comment */ SELECT 1", want: StatementTypeQuery},
		{input: "((SELECT 1))", want: StatementTypeQuery},
		{input: "WITH t AS (SELECT 1) SELECT * FROM t", want: StatementTypeQuery},
		{input: "SHOW TABLES", want: StatementTypeQuery},
		{input: "DESCRIBE TABLE foo", want: StatementTypeQuery},
		{input: "EXPLAIN SELECT 1", want: StatementTypeQuery},
		{input: "VALUES (1), (2)", want: StatementTypeQuery},
		{input: "INSERT INTO foo VALUES (1)", want: StatementTypeDml},
		{input: "update foo set bar=1", want: StatementTypeDml},
		{input: "DELETE FROM foo", want: StatementTypeDml},
		{input: "MERGE INTO foo USING bar ON foo.id = bar.id WHEN MATCHED THEN DELETE", want: StatementTypeDml},
		{input: "CREATE TABLE foo (id INT)", want: StatementTypeDdl},
		{input: "/* multi\nline */ DROP TABLE foo", want: StatementTypeDdl},
		{input: "ALTER TABLE foo ADD COLUMN bar INT", want: StatementTypeDdl},
		{input: "OPTIMIZE foo", want: StatementTypeDdl},
		{input: "USE CATALOG main", want: StatementTypeUnknown},
		{input: "", want: StatementTypeUnknown},
		{input: "-- only a comment", want: StatementTypeUnknown},
		{input: "/* unterminated", want: StatementTypeUnknown},
	}
	for _, tc := range tests {
		if g, w := DetectStatementType(tc.input), tc.want; g != w {
			t.Errorf("%q: statement type mismatch\n Got: %v\nWant: %v", tc.input, g, w)
		}
		if g, w := returnsResultSet(tc.input), tc.want == StatementTypeQuery; g != w {
			t.Errorf("%q: returns result set mismatch\n Got: %v\nWant: %v", tc.input, g, w)
		}
	}
}
