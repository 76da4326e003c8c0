package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettySQL(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "clauses",
			query: "SELECT id FROM FX_CONTENT WHERE tdef = 10 ORDER BY id DESC LIMIT 5",
			want:  "SELECT id\nFROM FX_CONTENT\nWHERE tdef = 10\nORDER BY id DESC\nLIMIT 5",
		},
		{
			name:  "string literals",
			query: "SELECT 'select  from' FROM x WHERE a='it''s'",
			want:  "SELECT 'select  from'\nFROM x\nWHERE a='it''s'",
		},
		{
			name:  "subquery",
			query: "SELECT c0 FROM (SELECT id FROM t) filter",
			want:  "SELECT c0\nFROM (\n  SELECT id\n  FROM t) filter",
		},
		{
			name:  "identifiers",
			query: "select tbl_union_1.id from tbl_union_1",
			want:  "SELECT tbl_union_1.id\nFROM tbl_union_1",
		},
		{
			name:  "whitespace",
			query: "SELECT   a,\n\tb  FROM t",
			want:  "SELECT a, b\nFROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrettySQL(tt.query))
		})
	}
}
