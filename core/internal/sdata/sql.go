package sdata

import (
	"bytes"
	_ "embed"
)

//go:embed sql/sqlite_schema.sql
var SQLiteSchemaStmt string

//go:embed env/test.yml
var testEnvironment []byte

// TestSchema returns the environment used by the compiler tests.
func TestSchema() *Schema {
	s, err := LoadSchema(bytes.NewReader(testEnvironment))
	if err != nil {
		panic(err)
	}
	return s
}
