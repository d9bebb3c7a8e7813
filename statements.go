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
	"strings"
	"unicode"
)

// resultSetStatements contains the keywords of the statements that return a
// result set on a SQL warehouse.
var resultSetStatements = map[string]bool{
	"SELECT": true, "SHOW": true, "DESCRIBE": true, "DESC": true, "EXPLAIN": true,
	"WITH": true, "SET": true, "MAP": true, "FROM": true, "VALUES": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "DECLARE": true,
	"PUT": true, "GET": true, "REMOVE": true, "LIST": true, "BEGIN": true,
}

var dmlStatements = map[string]bool{"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "COPY": true}
var ddlStatements = map[string]bool{"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true, "GRANT": true, "REVOKE": true, "COMMENT": true, "OPTIMIZE": true}

// StatementType indicates the type of SQL statement.
type StatementType int

const (
	// StatementTypeUnknown indicates that the type of statement could not be
	// determined from its first keyword.
	StatementTypeUnknown StatementType = iota
	// StatementTypeQuery indicates that the statement returns a result set.
	StatementTypeQuery
	// StatementTypeDml indicates that the statement modifies data and
	// returns an update count.
	StatementTypeDml
	StatementTypeDdl
)

func (st StatementType) String() string {
	switch st {
	case StatementTypeQuery:
		return "QUERY"
	case StatementTypeDml:
		return "DML"
	case StatementTypeDdl:
		return "DDL"
	}
	return "UNKNOWN"
}

// DetectStatementType returns the type of SQL statement based on the first
// keyword that is found in the SQL statement.
func DetectStatementType(sql string) StatementType {
	keyword := strings.ToUpper(firstKeyword(sql))
	switch {
	case resultSetStatements[keyword]:
		return StatementTypeQuery
	case dmlStatements[keyword]:
		return StatementTypeDml
	case ddlStatements[keyword]:
		return StatementTypeDdl
	}
	return StatementTypeUnknown
}

// returnsResultSet returns true if executing the given statement produces a
// result set instead of an update count.
func returnsResultSet(sql string) bool {
	return DetectStatementType(sql) == StatementTypeQuery
}

// firstKeyword returns the first word of the statement after skipping
// whitespace, comments and opening parentheses.
func firstKeyword(sql string) string {
	pos := skipWhitespacesAndComments(sql, 0)
	start := pos
	for pos < len(sql) {
		c := rune(sql[pos])
		if !unicode.IsLetter(c) && c != '_' {
			break
		}
		pos++
	}
	return sql[start:pos]
}

func skipWhitespacesAndComments(sql string, pos int) int {
	for pos < len(sql) {
		c := sql[pos]
		if c == '-' && len(sql) > pos+1 && sql[pos+1] == '-' {
			// This is a single line comment starting with '--'.
			pos = skipSingleLineComment(sql, pos+2)
		} else if c == '/' && len(sql) > pos+1 && sql[pos+1] == '*' {
			pos = skipMultiLineComment(sql, pos+2)
		} else if c == '(' || unicode.IsSpace(rune(c)) {
			pos++
		} else {
			break
		}
	}
	return pos
}

func skipSingleLineComment(sql string, pos int) int {
	if i := strings.IndexByte(sql[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(sql)
}

func skipMultiLineComment(sql string, pos int) int {
	if i := strings.Index(sql[pos:], "*/"); i >= 0 {
		return pos + i + 2
	}
	return len(sql)
}
