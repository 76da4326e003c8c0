package psql_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dosco/fxquery/core/internal/psql"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTree struct{}

func (fakeTree) NodeByPath(ctx context.Context, live bool, path string) (qcode.TreeNode, error) {
	return qcode.TreeNode{ID: 5, Left: 10, Right: 20, Depth: 1, Live: live, Path: path}, nil
}

func (fakeTree) Node(ctx context.Context, live bool, id int64) (qcode.TreeNode, error) {
	return qcode.TreeNode{ID: id, Left: 1, Right: 100, Live: live}, nil
}

var supervisor = &qcode.Ticket{UserID: 1, MandatorID: 1, GlobalSupervisor: true}

func compile(t *testing.T, dbType string, q *qcode.Query, tk *qcode.Ticket) (string, psql.Metadata) {
	t.Helper()

	sql, md, err := tryCompile(dbType, q, tk)
	require.NoError(t, err)
	return sql, md
}

func tryCompile(dbType string, q *qcode.Query, tk *qcode.Ticket) (string, psql.Metadata, error) {
	s := sdata.TestSchema()

	qc, err := qcode.NewCompiler(s, qcode.Config{DefaultMaxRows: 100, Tree: fakeTree{}})
	if err != nil {
		return "", psql.Metadata{}, err
	}
	sel, err := qc.Compile(context.Background(), q, tk)
	if err != nil {
		return "", psql.Metadata{}, err
	}

	co := psql.NewCompiler(psql.Config{DBType: dbType, Schema: s})
	md, sql, err := co.CompileEx(sel)
	return string(sql), md, err
}

func TestSelectAll(t *testing.T) {
	sql, md := compile(t, "generic", &qcode.Query{
		Select: []qcode.Column{{Name: "caption"}, {Name: "cmis:objectId"}},
		From:   qcode.From{Type: "article", Alias: "a"},
	}, supervisor)

	exp := "SELECT (SELECT sub.FTEXT1024 FROM FX_CONTENT_DATA sub WHERE sub.id=filter.a_id AND sub.ver=filter.a_ver " +
		"AND sub.assign IN (1000,1100) AND (sub.lang=0 OR sub.ismldef=true) ORDER BY sub.ismldef LIMIT 1 ) AS c1,\n" +
		"filter.a_id AS c2\n" +
		"FROM\n" +
		"(SELECT DISTINCT a.id AS a_id, a.ver AS a_ver FROM FX_CONTENT a WHERE a.tdef IN (10,11) AND 1=1 AND a.ismax_ver=true) filter"

	assert.Equal(t, exp, sql)
	assert.Equal(t, 2, md.Width())
	require.Len(t, md.Columns(), 2)
	assert.Equal(t, "cmis:objectId", md.Columns()[1].Label)
}

func TestSelectAllSecurity(t *testing.T) {
	tk := &qcode.Ticket{UserID: 7, MandatorID: 1}

	sql, _ := compile(t, "generic", &qcode.Query{
		Select: []qcode.Column{{Name: "sku"}},
		From:   qcode.From{Type: "product", Alias: "p"},
	}, tk)

	assert.Contains(t, sql, "FROM FX_CONTENT p WHERE p.tdef IN (30) AND 1=0 AND p.ismax_ver=true")
}

func TestJoin(t *testing.T) {
	tk := &qcode.Ticket{UserID: 7, MandatorID: 1}

	sql, _ := compile(t, "generic", &qcode.Query{
		Select: []qcode.Column{{Table: "p", Name: "firstname"}, {Table: "a", Name: "caption"}},
		From: qcode.From{Type: "person", Alias: "p", Joins: []qcode.Join{{
			Type:  "article",
			Alias: "a",
			Left:  qcode.ColumnName{Table: "p", Name: "caption"},
			Right: qcode.ColumnName{Table: "a", Name: "caption"},
		}}},
		Where: &qcode.Where{And: []*qcode.Where{
			{Table: "p", Column: "firstname", Op: "=", Value: "x"},
			{Table: "a", Column: "priority", Op: ">", Value: "3"},
		}},
	}, tk)

	frags := []string{
		"(SELECT DISTINCT p.id AS p_id, p.ver AS p_ver, a.id AS a_id, a.ver AS a_ver\nFROM\nFX_CONTENT_DATA p, FX_CONTENT_DATA a, ",
		"(SELECT DISTINCT tbl_intersect_1.p_id, tbl_intersect_1.p_ver, tbl_intersect_2.a_id, tbl_intersect_2.a_ver FROM ",
		"(SELECT DISTINCT subp.id AS p_id, subp.ver AS p_ver, null AS a_id, null AS a_ver FROM FX_CONTENT_DATA subp " +
			"WHERE subp.FTEXT1024='x' AND subp.assign = 2000 AND subp.ismax_ver=true) tbl_intersect_1",
		"(SELECT DISTINCT null AS p_id, null AS p_ver, suba.id AS a_id, suba.ver AS a_ver FROM FX_CONTENT_DATA suba " +
			"WHERE suba.FINT>3 AND suba.assign IN (1002,1102) AND suba.ismax_ver=true) tbl_intersect_2) __conditions",
		" WHERE mayReadInstance2(p.id,p.ver,7,1,false,false) AND p.ismax_ver=true AND " +
			"mayReadInstance2(a.id,a.ver,7,1,false,false) AND a.ismax_ver=true AND " +
			"p.assign = 2002 AND a.assign IN (1000,1100) AND p.FTEXT1024 = a.FTEXT1024 AND ",
		"((__conditions.p_id IS NULL OR (p.id = __conditions.p_id AND p.ver = __conditions.p_ver)) AND " +
			"(__conditions.a_id IS NULL OR (a.id = __conditions.a_id AND a.ver = __conditions.a_ver)))",
	}
	for _, f := range frags {
		assert.Contains(t, sql, f)
	}
}

func TestInvalidJoin(t *testing.T) {
	_, _, err := tryCompile("generic", &qcode.Query{
		Select: []qcode.Column{{Table: "p", Name: "firstname"}},
		From: qcode.From{Type: "person", Alias: "p", Joins: []qcode.Join{{
			Type:  "article",
			Alias: "a",
			Left:  qcode.ColumnName{Table: "p", Name: "cmis:path"},
			Right: qcode.ColumnName{Table: "a", Name: "caption"},
		}}},
	}, supervisor)

	require.Error(t, err)
	assert.True(t, errors.Is(err, qcode.ErrInvalidQuery))
	assert.Contains(t, err.Error(), "p.cmis:path")
}

func TestUnion(t *testing.T) {
	sql, _ := compile(t, "generic", &qcode.Query{
		Select: []qcode.Column{{Name: "caption"}},
		From:   qcode.From{Type: "article", Alias: "a"},
		Where: &qcode.Where{Or: []*qcode.Where{
			{Column: "caption", Op: "=", Value: "a"},
			{Column: "priority", Op: "=", Value: "1"},
			{Column: "created_by", Op: "=", Value: "7"},
		}},
	}, supervisor)

	assert.Equal(t, 2, strings.Count(sql, "\nUNION\n"))
	assert.Contains(t, sql, ") tbl_union_1) __conditions")
	assert.Contains(t, sql, "FROM FX_CONTENT suba WHERE suba.created_by=7 AND suba.tdef IN (10,11) AND suba.ismax_ver=true)")
	assert.Contains(t, sql, "\nFROM\nFX_CONTENT a, (SELECT * FROM (\n")
	assert.Contains(t, sql, " WHERE 1=1 AND a.ismax_ver=true AND a.tdef IN (10,11) AND "+
		"((__conditions.a_id IS NULL OR (a.id = __conditions.a_id AND a.ver = __conditions.a_ver)))")
}

func TestConjunctionWithoutJoins(t *testing.T) {
	sql, _ := compile(t, "generic", &qcode.Query{
		Select: []qcode.Column{{Name: "caption"}},
		From:   qcode.From{Type: "article", Alias: "a"},
		Where: &qcode.Where{And: []*qcode.Where{
			{Column: "caption", Op: "like", Value: "a%", Func: "upper"},
			{Column: "priority", Op: "in", Values: []string{"1", "2"}},
		}},
	}, supervisor)

	assert.Contains(t, sql, "(SELECT tbl_intersect_1.a_id,tbl_intersect_1.a_ver FROM\n")
	assert.Contains(t, sql, "WHERE suba.UFTEXT1024 LIKE 'A%' AND suba.assign IN (1000,1100)")
	assert.Contains(t, sql, "WHERE suba.FINT IN (1,2) AND suba.assign IN (1002,1102)")
	assert.Contains(t, sql, "\nWHERE tbl_intersect_1.a_id=tbl_intersect_2.a_id AND tbl_intersect_1.a_ver=tbl_intersect_2.a_ver)")
}

func TestVersionFilterOnlyChangesFilterFragment(t *testing.T) {
	q := &qcode.Query{
		Select: []qcode.Column{{Name: "caption"}},
		From:   qcode.From{Type: "article", Alias: "a"},
		Where: &qcode.Where{And: []*qcode.Where{
			{Column: "priority", Op: ">", Value: "1"},
			{Column: "created_by", Op: "=", Value: "7"},
		}},
	}

	max, _ := compile(t, "generic", q, supervisor)

	q.Version = "live"
	live, _ := compile(t, "generic", q, supervisor)

	q.Version = "all"
	all, _ := compile(t, "generic", q, supervisor)

	assert.Equal(t, live, strings.ReplaceAll(max, "ismax_ver=true", "islive_ver=true"))

	stripped := max
	for _, a := range []string{"a", "suba"} {
		stripped = strings.ReplaceAll(stripped, " AND "+a+".ismax_ver=true", "")
	}
	assert.Equal(t, all, stripped)
	assert.NotContains(t, all, "_ver=true")
}

func TestConditionKinds(t *testing.T) {
	tests := []struct {
		name  string
		where *qcode.Where
		frag  string
	}{
		{"missing value", &qcode.Where{Column: "priority", Op: "is null"},
			"FROM FX_CONTENT suba WHERE suba.tdef IN (10,11) AND suba.ismax_ver=true AND " +
				"NOT EXISTS (SELECT 1 FROM FX_CONTENT_DATA suba_d WHERE suba_d.id=suba.id AND suba_d.ver=suba.ver AND suba_d.assign IN (1002,1102))"},
		{"present value", &qcode.Where{Column: "priority", Op: "is not null"},
			"WHERE suba.FINT IS NOT NULL AND suba.assign IN (1002,1102)"},
		{"folder", &qcode.Where{Op: "in_folder", Value: "/news"},
			"WHERE suba.id IN (SELECT tr.ref FROM FXS_TREE tr WHERE tr.lft>10 AND tr.rgt<20 AND tr.ref IS NOT NULL AND tr.depth=2)"},
		{"tree", &qcode.Where{Op: "in_tree", Value: "/news"},
			"tr.rgt<20 AND tr.ref IS NOT NULL) AND suba.tdef IN (10,11)"},
		{"fulltext", &qcode.Where{Op: "contains", Value: "foo"},
			"FROM FX_CONTENT_DATA_FT suba_ft, FX_CONTENT suba WHERE suba_ft.id=suba.id AND suba_ft.ver=suba.ver AND UPPER(suba_ft.value) LIKE '%FOO%'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _ := compile(t, "generic", &qcode.Query{
				Select: []qcode.Column{{Name: "caption"}},
				From:   qcode.From{Type: "article", Alias: "a"},
				Where:  tt.where,
			}, supervisor)
			assert.Contains(t, sql, tt.frag)
		})
	}
}

func TestPagingAndOrder(t *testing.T) {
	q := &qcode.Query{
		Select:  []qcode.Column{{Name: "caption"}, {Name: "priority"}},
		From:    qcode.From{Type: "article", Alias: "a"},
		OrderBy: []qcode.Order{{Column: "priority", Desc: true}, {Column: "caption"}},
		Start:   20,
		Max:     10,
	}

	generic, _ := compile(t, "generic", q, supervisor)
	assert.True(t, strings.HasSuffix(generic, ") filter\nORDER BY c2 DESC, c1"), generic)

	mysql, _ := compile(t, "mysql", q, supervisor)
	assert.True(t, strings.HasSuffix(mysql, "\nORDER BY c2 DESC, c1 LIMIT 20,10"), mysql)

	pg, _ := compile(t, "postgres", q, supervisor)
	assert.True(t, strings.HasSuffix(pg, " LIMIT 10 OFFSET 20"), pg)
}

func TestMultivaluedColumns(t *testing.T) {
	q := &qcode.Query{
		Select: []qcode.Column{{Name: "keywords"}, {Name: "caption"}},
		From:   qcode.From{Type: "article", Alias: "a"},
	}

	sql, md := compile(t, "generic", q, supervisor)
	assert.True(t, strings.HasPrefix(sql, "SELECT filter.a_id AS c1,\nfilter.a_ver AS c2,\n"), sql)
	assert.Equal(t, 3, md.Width())
	assert.Equal(t, psql.Column{Kind: qcode.KindColumnReference, Label: "keywords", Start: 0, Width: 2}, md.Columns()[0])
	assert.Equal(t, 2, md.Columns()[1].Start)

	sql, md = compile(t, "mysql", q, supervisor)
	assert.Contains(t, sql, "GROUP_CONCAT(sub.FTEXT1024 ORDER BY sub.pos SEPARATOR '|&#@')")
	assert.True(t, md.Columns()[0].Direct)
	assert.Equal(t, 2, md.Width())
}

func TestVirtualColumns(t *testing.T) {
	sql, md := compile(t, "mysql", &qcode.Query{
		Select: []qcode.Column{
			{Func: "score"},
			{Func: "row_number"},
			{Name: "cmis:path"},
			{Name: "cmis:parentId"},
			{Name: "cmis:objectTypeId"},
			{Name: "caption", Func: "lower", Alias: "lc"},
		},
		From:    qcode.From{Type: "article", Alias: "a"},
		Where:   &qcode.Where{Op: "contains", Value: "foo"},
		Version: "live",
	}, supervisor)

	assert.Contains(t, sql, "SELECT (SELECT MAX(MATCH (sub.value) AGAINST ('foo')) FROM FX_CONTENT_DATA_FT sub WHERE sub.id=filter.a_id AND sub.ver=filter.a_ver) AS c1,\n0 AS c2,\n")
	assert.Contains(t, sql, "(SELECT tr.path FROM FXS_TREE_LIVE tr WHERE tr.ref=filter.a_id ORDER BY tr.id LIMIT 1 ) AS c3")
	assert.Contains(t, sql, "pr.id=tr.parent")
	assert.Contains(t, sql, "(SELECT sub.tdef FROM FX_CONTENT sub WHERE sub.id=filter.a_id AND sub.ver=filter.a_ver) AS c5")
	assert.Contains(t, sql, "LOWER((SELECT sub.FTEXT1024 ")

	labels := make([]string, 0, len(md.Columns()))
	for _, c := range md.Columns() {
		labels = append(labels, c.Label)
	}
	assert.Equal(t, []string{"score", "rownr", "cmis:path", "cmis:parentId", "cmis:objectTypeId", "lc"}, labels)

	generic, _ := compile(t, "generic", &qcode.Query{
		Select: []qcode.Column{{Func: "score"}},
		From:   qcode.From{Type: "article", Alias: "a"},
		Where:  &qcode.Where{Op: "contains", Value: "foo"},
	}, supervisor)
	assert.True(t, strings.HasPrefix(generic, "SELECT 1 AS c1\n"), generic)
}

func TestFlatColumn(t *testing.T) {
	sql, _ := compile(t, "generic", &qcode.Query{
		Select: []qcode.Column{{Name: "lastname"}},
		From:   qcode.From{Type: "person", Alias: "p"},
		Where:  &qcode.Where{Column: "lastname", Op: "=", Value: "Doe"},
	}, supervisor)

	assert.Contains(t, sql, "(SELECT sub.FTEXT1024_1 FROM FX_FLAT_STORAGE sub WHERE sub.id=filter.p_id AND sub.ver=filter.p_ver "+
		"AND ((sub.typeid=20 AND sub.lvl=1 AND sub.lang=0)) LIMIT 1 ) AS c1")
	assert.Contains(t, sql, "FROM FX_FLAT_STORAGE subp WHERE subp.FTEXT1024_1='Doe' AND ((subp.typeid=20 AND subp.lvl=1 AND subp.lang=0)) AND subp.ismax_ver=true)")
}
