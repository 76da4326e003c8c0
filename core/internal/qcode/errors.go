package qcode

import (
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidQuery is returned for queries that cannot be compiled:
	// unknown columns, invalid operators, invalid joins or malformed trees.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound is returned when a referenced tree node, type or
	// assignment does not exist.
	ErrNotFound = sdata.ErrNotFound

	// ErrInternal signals a broken invariant inside the engine.
	ErrInternal = errors.New("internal error")
)

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidQuery, format, args...)
}

func notFoundf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}
