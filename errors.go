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
	"errors"
	"fmt"

	"github.com/dbsql-go/go-sql-databricks/internal/sqlexec"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies the errors that are returned by the driver.
type ErrorKind int

const (
	KindExecution ErrorKind = iota
	KindConfiguration
	KindValidation
	KindClosed
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindValidation:
		return "validation error"
	case KindClosed:
		return "resource closed"
	default:
		return "execution error"
	}
}

// Sentinel errors that can be used with errors.Is to check the kind of an
// error that is returned by the driver.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrExecution     = &Error{Kind: KindExecution}
	ErrClosed        = &Error{Kind: KindClosed}
)

// DriverErrorCode is a stable code that identifies the cause of an error.
type DriverErrorCode string

const (
	CodeInvalidConnectionString DriverErrorCode = "INVALID_CONNECTION_STRING"
	CodeInputValidation         DriverErrorCode = "INPUT_VALIDATION_ERROR"
	CodeConnectionClosed        DriverErrorCode = "CONNECTION_CLOSED"
	CodeStatementClosed         DriverErrorCode = "STATEMENT_CLOSED"
	CodeConnectionError         DriverErrorCode = "CONNECTION_ERROR"
	CodeExecuteStatementFailed  DriverErrorCode = "EXECUTE_STATEMENT_FAILED"
	CodeBatchExecute            DriverErrorCode = "BATCH_EXECUTE_EXCEPTION"
	CodeBatchResultSet          DriverErrorCode = "BATCH_RESULT_SET"
)

// Error is the error type for all errors that originate in the driver.
type Error struct {
	Kind     ErrorKind
	Code     DriverErrorCode
	SQLState string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for the kind of this error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// GRPCStatus maps the error to a gRPC status, so status.Code(err) can be
// used to classify driver errors.
func (e *Error) GRPCStatus() *status.Status {
	var code codes.Code
	switch e.Kind {
	case KindConfiguration, KindValidation:
		code = codes.InvalidArgument
	case KindClosed:
		code = codes.FailedPrecondition
	default:
		code = codes.Unknown
	}
	return status.New(code, e.Error())
}

func configurationError(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Code: CodeInvalidConnectionString, Msg: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: CodeInputValidation, Msg: fmt.Sprintf(format, args...)}
}

func connectionClosedError() error {
	return &Error{Kind: KindClosed, Code: CodeConnectionClosed, Msg: "connection is closed"}
}

func statementClosedError() error {
	return &Error{Kind: KindClosed, Code: CodeStatementClosed, Msg: "statement is closed"}
}

// executionError wraps an error that was returned by the transport.
func executionError(msg string, err error) error {
	e := &Error{Kind: KindExecution, Code: CodeExecuteStatementFailed, Msg: msg, Err: err}
	var se *sqlexec.StatementError
	if errors.As(err, &se) {
		e.SQLState = se.SQLState
	}
	return e
}

// sqlStateOf returns the SQL state of err, if it has one.
func sqlStateOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.SQLState != "" {
		return de.SQLState
	}
	var se *sqlexec.StatementError
	if errors.As(err, &se) {
		return se.SQLState
	}
	return ""
}
