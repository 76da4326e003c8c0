package cmisql_test

import (
	"testing"

	"github.com/dosco/fxquery/core/internal/cmisql"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelect(t *testing.T) {
	q, err := cmisql.Parse("SELECT a.caption AS title, `cmis:objectId`, SCORE() FROM article a " +
		"ORDER BY a.caption DESC LIMIT 10 OFFSET 20")
	require.NoError(t, err)

	assert.Equal(t, qcode.From{Type: "article", Alias: "a"}, q.From)
	assert.Equal(t, []qcode.Column{
		{Table: "a", Name: "caption", Alias: "title"},
		{Name: "cmis:objectId"},
		{Func: "SCORE"},
	}, q.Select)
	assert.Equal(t, []qcode.Order{{Table: "a", Column: "caption", Desc: true}}, q.OrderBy)
	assert.Equal(t, 10, q.Max)
	assert.Equal(t, 20, q.Start)
}

func TestParseJoin(t *testing.T) {
	q, err := cmisql.Parse("SELECT p.caption, a.caption FROM product p " +
		"JOIN article a ON p.`cmis:objectId` = a.author")
	require.NoError(t, err)

	require.Len(t, q.From.Joins, 1)
	assert.Equal(t, qcode.Join{
		Type:  "article",
		Alias: "a",
		Left:  qcode.ColumnName{Table: "p", Name: "cmis:objectId"},
		Right: qcode.ColumnName{Table: "a", Name: "author"},
	}, q.From.Joins[0])
}

func TestParseWhere(t *testing.T) {
	q, err := cmisql.Parse("SELECT caption FROM article WHERE priority > 3 AND UPPER(caption) LIKE 'A%' " +
		"AND (tags = 'red' OR category IN ('news', 'sports')) AND author IS NOT NULL")
	require.NoError(t, err)

	w := q.Where
	require.Len(t, w.And, 4)
	assert.Equal(t, &qcode.Where{Column: "priority", Op: ">", Value: "3"}, w.And[0])
	assert.Equal(t, &qcode.Where{Column: "caption", Func: "UPPER", Op: "like", Value: "A%"}, w.And[1])

	or := w.And[2]
	require.Len(t, or.Or, 2)
	assert.Equal(t, []string{"news", "sports"}, or.Or[1].Values)
	assert.Equal(t, "in", or.Or[1].Op)

	assert.Equal(t, "is not null", w.And[3].Op)
}

func TestParsePredicateFunctions(t *testing.T) {
	q, err := cmisql.Parse("SELECT a.caption FROM article a WHERE CONTAINS(a, 'hello') OR IN_FOLDER('/docs')")
	require.NoError(t, err)

	require.Len(t, q.Where.Or, 2)
	assert.Equal(t, &qcode.Where{Table: "a", Op: "CONTAINS", Value: "hello"}, q.Where.Or[0])
	assert.Equal(t, &qcode.Where{Op: "IN_FOLDER", Value: "/docs"}, q.Where.Or[1])
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{
		"SELECT caption FROM",
		"DELETE FROM article",
		"SELECT * FROM article",
		"SELECT caption FROM article a LEFT JOIN person p ON a.author = p.id",
		"SELECT caption FROM article WHERE NOT priority = 1",
		"SELECT caption FROM article WHERE priority = other",
		"SELECT caption FROM article, person",
	} {
		_, err := cmisql.Parse(text)
		require.Error(t, err, text)
		assert.True(t, errors.Is(err, qcode.ErrInvalidQuery), text)
	}
}
