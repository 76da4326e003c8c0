package core

import (
	"context"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidQuery is returned for queries that cannot be compiled.
	ErrInvalidQuery = qcode.ErrInvalidQuery

	// ErrNotFound is returned for unknown tree nodes, types and
	// assignments.
	ErrNotFound = qcode.ErrNotFound

	// ErrInternal signals a mismatch between compiler, decoder and
	// post-processor.
	ErrInternal = qcode.ErrInternal

	// ErrQueryTimeout is matched by execution errors of statements that
	// ran longer than the query timeout.
	ErrQueryTimeout = errors.New("query timeout")

	// ErrNoDatabase is returned by engines created without a database.
	ErrNoDatabase = errors.New("no database")
)

const (
	mysqlQueryInterrupted   = 3024 // ER_QUERY_TIMEOUT
	mariadbStatementTimeout = 1969 // ER_STATEMENT_TIMEOUT
	pgQueryCanceled         = "57014"
)

// ExecError is a backend failure. It carries the generated SQL.
type ExecError struct {
	SQL string
	Err error
}

func (e *ExecError) Error() string {
	return "execution failed: " + e.Err.Error()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Is matches ErrQueryTimeout when the backend cancelled the statement.
func (e *ExecError) Is(target error) bool {
	return target == ErrQueryTimeout && isTimeout(e.Err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlQueryInterrupted || me.Number == mariadbStatementTimeout
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgQueryCanceled
	}
	return false
}

func execError(sql string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExecError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecError{SQL: sql, Err: err}
}
