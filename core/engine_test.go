package core_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dosco/fxquery/core"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

var supervisor = &core.Ticket{UserID: 1, MandatorID: 1, GlobalSupervisor: true}

const testData = `
INSERT INTO FX_CONTENT (id, ver, tdef, mandator, acl, created_by, created_at) VALUES
  (1, 1, 10, 1, 2, 7, 1700000000000),
  (2, 1, 11, 1, 2, 7, 1700000000000),
  (3, 1, 10, 1, 2, 8, 1700000000000),
  (4, 1, 20, 1, 3, 8, 1700000000000);

INSERT INTO FX_CONTENT_DATA (id, ver, pos, lang, tprop, assign, xpath, ismldef, FTEXT1024, UFTEXT1024, FINT) VALUES
  (1, 1, 1, 1, 100, 1000, '/CAPTION[1]', 1, 'Alpha', 'ALPHA', NULL),
  (2, 1, 1, 1, 100, 1100, '/CAPTION[1]', 1, 'Beta', 'BETA', NULL),
  (3, 1, 1, 1, 100, 1000, '/CAPTION[1]', 1, 'Gamma', 'GAMMA', NULL),
  (1, 1, 1, 0, 102, 1002, '/PRIORITY[1]', 0, NULL, NULL, 5),
  (2, 1, 1, 0, 102, 1102, '/PRIORITY[1]', 0, NULL, NULL, 3),
  (3, 1, 1, 0, 102, 1002, '/PRIORITY[1]', 0, NULL, NULL, 1),
  (1, 1, 1, 0, 112, 1007, '/KEYWORDS[1]', 0, 'go', 'GO', NULL),
  (1, 1, 2, 0, 112, 1007, '/KEYWORDS[2]', 0, 'sql', 'SQL', NULL);

INSERT INTO FXS_TREE (id, parent, ref, name, path, lft, rgt, depth) VALUES
  (1, NULL, NULL, 'root', '/', 1, 100, 0),
  (5, 1, 1, 'news', '/news', 10, 20, 1),
  (6, 5, 3, 'gamma', '/news/gamma', 11, 12, 2);
`

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "fx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sdata.SQLiteSchemaStmt)
	require.NoError(t, err)
	_, err = db.Exec(testData)
	require.NoError(t, err)
	return db
}

func newTestEngine(t *testing.T, options ...core.Option) (*core.Engine, *sql.DB) {
	t.Helper()

	db := newTestDB(t)
	g, err := core.NewEngine(&core.Config{DBType: "sqlite"}, db, sdata.TestSchema(), options...)
	require.NoError(t, err)
	return g, db
}

type fakeContent struct {
	loads map[core.PK]int
}

func (f *fakeContent) Load(c context.Context, pk core.PK) (core.ContentRecord, error) {
	f.loads[pk]++

	ct := core.NewContent(pk)
	if pk.ID == 1 {
		ct.Set("/KEYWORDS[1]", 0, "go")
		ct.Set("/KEYWORDS[2]", 0, "sql")
	}
	return ct, nil
}

func TestQuery(t *testing.T) {
	g, _ := newTestEngine(t)

	res, err := g.Query(context.Background(), &core.Query{
		Select:  []core.Column{{Name: "caption"}, {Name: "priority"}},
		From:    core.From{Type: "article", Alias: "a"},
		OrderBy: []core.Order{{Column: "priority", Desc: true}},
	}, supervisor)
	require.NoError(t, err)

	assert.Equal(t, []string{"caption", "priority"}, res.Columns())
	assert.Equal(t, [][]interface{}{
		{"Alpha", int64(5)},
		{"Beta", int64(3)},
		{"Gamma", int64(1)},
	}, res.Rows())
	assert.NotEmpty(t, res.SQL())
}

func TestQueryPaging(t *testing.T) {
	g, _ := newTestEngine(t)

	res, err := g.Query(context.Background(), &core.Query{
		Select:  []core.Column{{Func: "row_number"}, {Name: "caption"}, {Name: "priority"}},
		From:    core.From{Type: "article", Alias: "a"},
		OrderBy: []core.Order{{Column: "priority", Desc: true}},
		Start:   1,
		Max:     1,
	}, supervisor)
	require.NoError(t, err)

	require.Equal(t, 1, res.RowCount())
	v, err := res.Value(0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = res.Value(0, res.ColumnIndex("caption"))
	require.NoError(t, err)
	assert.Equal(t, "Beta", v)

	_, err = res.Value(0, 4)
	assert.Error(t, err)
}

func TestQueryConditions(t *testing.T) {
	g, _ := newTestEngine(t)

	tests := []struct {
		name  string
		where *core.Where
		want  []interface{}
	}{
		{"compare", &core.Where{Column: "priority", Op: ">", Value: "2"},
			[]interface{}{"Alpha", "Beta"}},
		{"conjunction", &core.Where{And: []*core.Where{
			{Column: "priority", Op: ">", Value: "2"},
			{Column: "caption", Op: "like", Value: "B%"},
		}}, []interface{}{"Beta"}},
		{"system column", &core.Where{Column: "created_by", Op: "=", Value: "8"},
			[]interface{}{"Gamma"}},
		{"folder", &core.Where{Op: "in_folder", Value: "/news"},
			[]interface{}{"Gamma"}},
		{"nothing", &core.Where{Column: "priority", Op: ">", Value: "10"},
			nil},
		{"disjunction", &core.Where{Or: []*core.Where{
			{Column: "priority", Op: "=", Value: "5"},
			{Column: "priority", Op: "=", Value: "1"},
		}}, []interface{}{"Alpha", "Gamma"}},
		{"disjunction in conjunction", &core.Where{And: []*core.Where{
			{Or: []*core.Where{
				{Column: "priority", Op: "=", Value: "5"},
				{Column: "priority", Op: "=", Value: "1"},
			}},
			{Column: "caption", Op: "like", Value: "G%"},
		}}, []interface{}{"Gamma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.Query(context.Background(), &core.Query{
				Select:  []core.Column{{Name: "caption"}},
				From:    core.From{Type: "article", Alias: "a"},
				Where:   tt.where,
				OrderBy: []core.Order{{Column: "caption"}},
			}, supervisor)
			require.NoError(t, err)

			var got []interface{}
			for _, row := range res.Rows() {
				got = append(got, row[0])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryText(t *testing.T) {
	g, _ := newTestEngine(t)

	res, err := g.QueryText(context.Background(),
		"SELECT a.caption FROM article a WHERE a.priority = 5", supervisor)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"Alpha"}}, res.Rows())

	_, err = g.QueryText(context.Background(), "SELECT FROM", supervisor)
	assert.True(t, errors.Is(err, core.ErrInvalidQuery))
}

func TestMultivaluedLoadedOncePerInstance(t *testing.T) {
	fc := &fakeContent{loads: make(map[core.PK]int)}
	g, _ := newTestEngine(t, core.OptionSetContentEngine(fc))

	res, err := g.Query(context.Background(), &core.Query{
		Select: []core.Column{
			{Name: "keywords"},
			{Name: "keywords", Alias: "kw2"},
			{Name: "priority"},
		},
		From:    core.From{Type: "article", Alias: "a"},
		OrderBy: []core.Order{{Column: "priority", Desc: true}},
	}, supervisor)
	require.NoError(t, err)

	require.Equal(t, 3, res.RowCount())
	assert.Equal(t, []interface{}{"go", "sql"}, res.Row(0)[0])
	assert.Equal(t, []interface{}{"go", "sql"}, res.Row(0)[1])
	assert.Equal(t, []interface{}{}, res.Row(1)[0])

	assert.Len(t, fc.loads, 3)
	for pk, n := range fc.loads {
		assert.Equal(t, 1, n, pk.String())
	}
}

func TestMultivaluedFromDatabase(t *testing.T) {
	g, _ := newTestEngine(t)

	res, err := g.Query(context.Background(), &core.Query{
		Select: []core.Column{{Name: "keywords"}},
		From:   core.From{Type: "article", Alias: "a"},
		Where:  &core.Where{Column: "priority", Op: "=", Value: "5"},
	}, supervisor)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{[]interface{}{"go", "sql"}}}, res.Rows())
}

func TestSearch(t *testing.T) {
	g, _ := newTestEngine(t)

	res, err := g.Search(context.Background(), &core.SearchQuery{
		Types: []string{"article"},
		Where: &core.Where{Column: "#article/priority", Op: ">", Value: "0"},
		Max:   2,
	}, supervisor)
	require.NoError(t, err)

	assert.True(t, res.Truncated())
	assert.Len(t, res.Entries(), 2)

	total := 0
	for _, n := range res.TypeCounts() {
		total += n
	}
	assert.Equal(t, 2, total)

	res, err = g.Search(context.Background(), &core.SearchQuery{
		Types: []string{"article"},
		Where: &core.Where{Column: "#article/priority", Op: "=", Value: "3"},
		Max:   10,
	}, supervisor)
	require.NoError(t, err)

	assert.False(t, res.Truncated())
	assert.Equal(t, []core.SearchEntry{{PK: core.PK{ID: 2, Version: 1}, TypeID: 11, CreatedBy: 7}}, res.Entries())
	assert.Equal(t, map[int64]int{11: 1}, res.TypeCounts())
}

func searchIDs(res *core.SearchResult) []int64 {
	var ids []int64
	for _, e := range res.Entries() {
		ids = append(ids, e.PK.ID)
	}
	return ids
}

func TestSearchDisjunction(t *testing.T) {
	g, _ := newTestEngine(t)

	res, err := g.Search(context.Background(), &core.SearchQuery{
		Types: []string{"article"},
		Where: &core.Where{Or: []*core.Where{
			{Column: "#article/priority", Op: "=", Value: "5"},
			{Column: "#article/priority", Op: "=", Value: "1"},
		}},
		Max: 10,
	}, supervisor)
	require.NoError(t, err)

	assert.False(t, res.Truncated())
	assert.ElementsMatch(t, []int64{1, 3}, searchIDs(res))
	assert.Equal(t, map[int64]int{10: 2}, res.TypeCounts())
}

func TestSearchTreeAllVersions(t *testing.T) {
	g, db := newTestEngine(t)

	_, err := db.Exec(`INSERT INTO FXS_TREE_LIVE (id, parent, ref, name, path, lft, rgt, depth) VALUES
  (1, NULL, NULL, 'root', '/', 1, 100, 0),
  (5, 1, NULL, 'news', '/news', 10, 20, 1),
  (7, 5, 1, 'alpha', '/news/alpha', 11, 12, 2)`)
	require.NoError(t, err)

	res, err := g.Search(context.Background(), &core.SearchQuery{
		Where:   &core.Where{Op: "is child of", Value: "/news"},
		Version: "all",
		Max:     10,
	}, supervisor)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, searchIDs(res))
}

func TestCompileIsCached(t *testing.T) {
	g, err := core.NewEngine(&core.Config{DBType: "mysql"}, nil, sdata.TestSchema())
	require.NoError(t, err)

	q := &core.Query{
		Select: []core.Column{{Name: "caption"}},
		From:   core.From{Type: "article", Alias: "a"},
		Where:  &core.Where{Column: "priority", Op: ">", Value: "1"},
	}

	sql1, err := g.Compile(context.Background(), q, supervisor)
	require.NoError(t, err)
	sql2, err := g.Compile(context.Background(), q, supervisor)
	require.NoError(t, err)
	assert.Equal(t, sql1, sql2)

	_, err = g.Compile(context.Background(), &core.Query{
		Select: []core.Column{{Name: "unknown"}},
		From:   core.From{Type: "article"},
	}, supervisor)
	assert.True(t, errors.Is(err, core.ErrInvalidQuery))
}

func TestReload(t *testing.T) {
	g, _ := newTestEngine(t)
	s1 := g.Schema()

	require.NoError(t, g.Reload(sdata.TestSchema()))
	assert.NotSame(t, s1, g.Schema())

	_, err := g.Compile(context.Background(), &core.Query{
		Select: []core.Column{{Name: "caption"}},
		From:   core.From{Type: "article"},
	}, supervisor)
	assert.NoError(t, err)
}

func TestNoDatabase(t *testing.T) {
	g, err := core.NewEngine(nil, nil, sdata.TestSchema())
	require.NoError(t, err)

	_, err = g.Query(context.Background(), &core.Query{
		Select: []core.Column{{Name: "caption"}},
		From:   core.From{Type: "article"},
	}, supervisor)

	var ee *core.ExecError
	require.True(t, errors.As(err, &ee))
	assert.True(t, errors.Is(err, core.ErrNoDatabase))
}
