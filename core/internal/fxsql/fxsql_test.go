package fxsql_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dosco/fxquery/core/internal/fxsql"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTree struct{}

func (fakeTree) NodeByPath(ctx context.Context, live bool, path string) (qcode.TreeNode, error) {
	if live {
		return qcode.TreeNode{ID: 6, Left: 30, Right: 40, Depth: 2, Live: true, Path: path}, nil
	}
	return qcode.TreeNode{ID: 5, Left: 10, Right: 20, Depth: 1, Path: path}, nil
}

func (fakeTree) Node(ctx context.Context, live bool, id int64) (qcode.TreeNode, error) {
	return qcode.TreeNode{ID: id, Left: 1, Right: 100, Live: live}, nil
}

var supervisor = &qcode.Ticket{UserID: 1, MandatorID: 1, GlobalSupervisor: true}

func compile(t *testing.T, q *qcode.SearchQuery, tk *qcode.Ticket) string {
	t.Helper()
	return compileFor(t, "generic", q, tk)
}

func compileFor(t *testing.T, dbType string, q *qcode.SearchQuery, tk *qcode.Ticket) string {
	t.Helper()

	s := sdata.TestSchema()

	qc, err := qcode.NewCompiler(s, qcode.Config{DefaultMaxRows: 100, Tree: fakeTree{}})
	require.NoError(t, err)

	search, err := qc.CompileSearch(context.Background(), q, tk)
	require.NoError(t, err)

	co := fxsql.NewCompiler(fxsql.Config{DBType: dbType, Schema: s})
	sql, err := co.CompileEx(search)
	require.NoError(t, err)
	return string(sql)
}

func TestSingleCondition(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{
		Types: []string{"article"},
		Where: &qcode.Where{Column: "#article/priority", Op: ">", Value: "3"},
	}, supervisor)

	exp := "SELECT * FROM (SELECT DISTINCT data.id,data.ver,main.tdef,main.created_by FROM (" +
		"SELECT DISTINCT cd.id,cd.ver,cd.lang FROM FX_CONTENT_DATA cd WHERE cd.FINT>3 " +
		"AND cd.assign IN (1002,1102) AND cd.ismax_ver=true LIMIT 10000 " +
		") data, FX_CONTENT main WHERE data.ver=main.ver AND data.id=main.id AND main.tdef IN (10,11)) data2"

	assert.Equal(t, exp, sql)
}

func TestConjunction(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{
		Where: &qcode.Where{And: []*qcode.Where{
			{Column: "created_by", Op: "=", Value: "7"},
			{Column: "caption", Op: "like", Value: "a%"},
		}},
		Max: 10,
	}, supervisor)

	assert.Contains(t, sql, "FROM (SELECT tbl1.id,tbl1.ver,tbl1.lang FROM\n")
	assert.Contains(t, sql, "(SELECT DISTINCT cd.id,cd.ver,null lang FROM FX_CONTENT cd WHERE cd.created_by=7 "+
		"AND cd.ismax_ver=true AND cd.tdef NOT IN (40) AND cd.mandator NOT IN (5) LIMIT 10000 ) tbl1,\n")
	assert.Contains(t, sql, "WHERE cd.FTEXT1024 LIKE 'a%' AND cd.tprop=100 AND cd.ismax_ver=true LIMIT 10000 ) tbl2")
	assert.Contains(t, sql, "\nWHERE tbl1.id=tbl2.id AND tbl1.ver=tbl2.ver AND (tbl1.lang=0 OR tbl1.lang IS NULL OR "+
		"tbl2.lang=0 OR tbl2.lang IS NULL OR tbl1.lang=tbl2.lang)")
	assert.NotContains(t, sql, "main.tdef IN")
	assert.True(t, strings.HasSuffix(sql, ") data2"))
}

func TestDisjunction(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{
		Where: &qcode.Where{Or: []*qcode.Where{
			{Column: "created_by", Op: "=", Value: "7"},
			{Column: "created_by", Op: "=", Value: "8"},
		}},
	}, supervisor)

	assert.Contains(t, sql, "FROM (SELECT * FROM (\nSELECT * FROM (SELECT DISTINCT cd.id")
	assert.Contains(t, sql, ") unInner1_1\nUNION\nSELECT * FROM (SELECT DISTINCT cd.id")
	assert.Contains(t, sql, ") unInner1_2) unInner1) data, FX_CONTENT main")
	assert.NotContains(t, sql, "\nUNION\n(")
}

func TestMissingValue(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{
		Types: []string{"article"},
		Where: &qcode.Where{Column: "#article/priority", Op: "is null"},
	}, supervisor)

	assert.Contains(t, sql, "SELECT DISTINCT ct.id,ct.ver,null lang FROM FX_CONTENT ct LEFT JOIN FX_CONTENT_DATA da "+
		"ON (ct.id=da.id AND ct.ver=da.ver AND da.assign IN (1002,1102)) WHERE da.tprop IS NULL "+
		"AND ct.ismax_ver=true AND ct.tdef NOT IN (40) AND ct.mandator NOT IN (5) AND ct.tdef=10 LIMIT 10000 ")
}

func TestFulltext(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{
		Where:    &qcode.Where{Column: "*", Op: "contains", Value: "hello"},
		Language: "de",
	}, supervisor)

	assert.Contains(t, sql, "SELECT DISTINCT ft.id,ft.ver,ft.lang FROM FX_CONTENT_DATA_FT ft, FX_CONTENT cd "+
		"WHERE cd.ver=ft.ver AND cd.id=ft.id AND UPPER(ft.value) LIKE '%HELLO%' AND ft.lang IN (0,2)")
}

func TestTreeAllVersions(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{
		Where:   &qcode.Where{Op: "is child of", Value: "/docs"},
		Version: "all",
	}, supervisor)

	assert.Contains(t, sql, "cd.id IN (SELECT tr.ref FROM FXS_TREE tr WHERE tr.lft>10 AND tr.rgt<20 "+
		"AND tr.ref IS NOT NULL) AND cd.mandator NOT IN (5) AND cd.tdef NOT IN (40) AND cd.ismax_ver=true\n UNION \n"+
		"SELECT DISTINCT cd.id")
	assert.Contains(t, sql, "(SELECT DISTINCT cd.id,cd.ver,null lang FROM FX_CONTENT cd WHERE cd.id IN (SELECT tr.ref FROM FXS_TREE tr")
	assert.Contains(t, sql, "cd.id IN (SELECT tr.ref FROM FXS_TREE_LIVE tr WHERE tr.lft>30 AND tr.rgt<40 "+
		"AND tr.ref IS NOT NULL) AND cd.mandator NOT IN (5) AND cd.tdef NOT IN (40) AND cd.islive_ver=true)")
}

func TestDirectChild(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{
		Where: &qcode.Where{Op: "is direct child of", Value: "/docs"},
	}, supervisor)

	assert.Contains(t, sql, "AND tr.ref IS NOT NULL AND tr.depth=2)")
	assert.NotContains(t, sql, "UNION")
}

func TestSecurity(t *testing.T) {
	tk := &qcode.Ticket{UserID: 7, MandatorID: 2, MandatorSupervisor: true}

	sql := compile(t, &qcode.SearchQuery{
		Where: &qcode.Where{Column: "created_by", Op: "=", Value: "7"},
	}, tk)

	assert.Contains(t, sql, ") data2\nWHERE mayReadInstance2(data2.id,data2.ver,7,2,true,false)")
}

func TestSelectAll(t *testing.T) {
	sql := compile(t, &qcode.SearchQuery{Types: []string{"article"}, Version: "live"}, supervisor)

	assert.Equal(t, "SELECT id,ver,tdef,created_by FROM FX_CONTENT data2 WHERE 1=1 AND data2.islive_ver=true "+
		"AND data2.tdef NOT IN (40) AND data2.mandator NOT IN (5) AND data2.tdef IN (10,11)", sql)
}

func TestSubqueryLimit(t *testing.T) {
	s := sdata.TestSchema()

	qc, err := qcode.NewCompiler(s, qcode.Config{})
	require.NoError(t, err)

	search, err := qc.CompileSearch(context.Background(), &qcode.SearchQuery{
		Where: &qcode.Where{Column: "created_by", Op: "=", Value: "7"},
	}, supervisor)
	require.NoError(t, err)

	co := fxsql.NewCompiler(fxsql.Config{Schema: s, SubqueryLimit: -1})
	sql, err := co.CompileEx(search)
	require.NoError(t, err)

	assert.NotContains(t, string(sql), "LIMIT")
}

func TestResultLimitByDialect(t *testing.T) {
	q := &qcode.SearchQuery{Types: []string{"article"}, Max: 10}

	for _, dbType := range []string{"mysql", "mariadb", "postgres", "sqlite"} {
		sql := compileFor(t, dbType, q, supervisor)
		assert.True(t, strings.HasSuffix(sql, " LIMIT 11"), dbType)
	}

	sql := compile(t, q, supervisor)
	assert.NotContains(t, sql, "LIMIT")
}
