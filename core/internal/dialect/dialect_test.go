package dialect_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dosco/fxquery/core/internal/dialect"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buf struct {
	bytes.Buffer
}

func (b *buf) Write(s string) (int, error) {
	return b.Buffer.WriteString(s)
}

func types(t *testing.T, s *sdata.Schema, name string) []*sdata.Type {
	ty, err := s.TypeByName(name)
	require.NoError(t, err)
	return s.TypeTree(ty.ID)
}

func TestSecurityFilter(t *testing.T) {
	s := sdata.TestSchema()
	d := dialect.New("generic")

	tk := &qcode.Ticket{UserID: 7, MandatorID: 1, Grants: []qcode.Grant{
		{ACL: 2, Read: true},
		{ACL: 9, Read: true, Owner: true},
		{ACL: 10, Read: true},
	}}

	args := dialect.SecurityArgs{Schema: s, Ticket: tk, Alias: "a", ContentTable: true}

	args.Types = types(t, s, "person")
	assert.Equal(t, "(a.tdef=20)", d.SecurityFilter(args))

	args.Types = types(t, s, "product")
	assert.Equal(t, "((a.tdef=30 AND a.step IN (1)))", d.SecurityFilter(args))

	args.Types = types(t, s, "article")
	f := d.SecurityFilter(args)
	assert.True(t, strings.HasPrefix(f, "((a.tdef=10 AND (EXISTS(SELECT c.acl FROM FX_CONTENT c WHERE c.id=a.id AND c.ver=a.ver  AND c.acl IN (2,10) UNION"), f)
	assert.Contains(t, f, "OR (a.created_by=7 AND EXISTS(")
	assert.Contains(t, f, "ca.acl IN (9))")
	assert.Contains(t, f, " OR (a.tdef=11 AND ")

	tk.MandatorSupervisor = true
	args.Types = types(t, s, "person")
	assert.Equal(t, "(a.mandator=1 OR a.tdef=20)", d.SecurityFilter(args))

	args.ContentTable = false
	assert.Equal(t, "mayReadInstance2(a.id,a.ver,7,1,true,false)", d.SecurityFilter(args))

	tk.GlobalSupervisor = true
	assert.Equal(t, "1=1", d.SecurityFilter(args))
}

func TestSecurityFilterNothingReadable(t *testing.T) {
	s := sdata.TestSchema()
	d := dialect.New("mysql")

	f := d.SecurityFilter(dialect.SecurityArgs{
		Schema:       s,
		Ticket:       &qcode.Ticket{UserID: 3},
		Alias:        "x",
		Types:        types(t, s, "article"),
		ContentTable: true,
	})
	assert.Equal(t, "1=0", f)
}

func TestSecurityFilterPrivateType(t *testing.T) {
	s := sdata.TestSchema()
	d := dialect.New("generic")

	tk := &qcode.Ticket{UserID: 4, Grants: []qcode.Grant{{ACL: 2, Read: true, Owner: true}}}
	ty, err := s.TypeByName("news")
	require.NoError(t, err)

	f := d.SecurityFilter(dialect.SecurityArgs{
		Schema: s, Ticket: tk, Alias: "n", Types: []*sdata.Type{ty}, ContentTable: true,
	})
	assert.True(t, strings.HasPrefix(f, "((n.tdef=11 AND n.created_by=4 AND (n.created_by=4 AND EXISTS("), f)
}

func TestVersionFilter(t *testing.T) {
	d := dialect.New("generic")

	assert.Equal(t, "a.ismax_ver=true", d.VersionFilter("a", qcode.VersionMax))
	assert.Equal(t, "a.islive_ver=true", d.VersionFilter("a", qcode.VersionLive))
	assert.Equal(t, "", d.VersionFilter("a", qcode.VersionAll))
}

func TestAssignmentFilter(t *testing.T) {
	s := sdata.TestSchema()
	d := dialect.New("generic")

	a1, _ := s.Assignment(1000)
	a2, _ := s.Assignment(1100)
	flat, _ := s.Assignment(2001)
	group, _ := s.Assignment(3000)

	assert.Equal(t, "", d.AssignmentFilter(sdata.TableContent, "a", []*sdata.Assignment{a1}))
	assert.Equal(t, "a.assign = 1000", d.AssignmentFilter(sdata.TableContentData, "a", []*sdata.Assignment{a1}))
	assert.Equal(t, "a.assign IN (1000,1100)", d.AssignmentFilter(sdata.TableContentData, "a", []*sdata.Assignment{a1, a2}))
	assert.Equal(t, "((p.typeid=20 AND p.lvl=1 AND p.lang=0))",
		d.AssignmentFilter(sdata.TableContentDataFlat, "p", []*sdata.Assignment{flat}))
	assert.Equal(t, "((typeid=30 AND lvl=1 AND lang=0 AND group_assid=3010))",
		d.AssignmentFilter(sdata.TableContentDataFlat, "", []*sdata.Assignment{group}))
}

func TestSimpleFilters(t *testing.T) {
	d := dialect.New("generic")

	assert.Equal(t, "a.tdef IN (10,11)", d.TypeFilter("a.tdef", []int64{10, 11}))
	assert.Equal(t, "cd.mandator NOT IN (5)", d.MandatorFilter("cd", []int64{5}))
	assert.Equal(t, "", d.MandatorFilter("cd", nil))
	assert.Equal(t, "cd.tdef NOT IN (40)", d.DeactivatedTypeFilter("cd", []int64{40}))
	assert.Equal(t, "lang IN (0,2)", d.LanguageFilter("", 2))
	assert.Equal(t, "", d.LanguageFilter("", 0))
	assert.Equal(t, "", d.LimitSubquery(-1))
	assert.Equal(t, " LIMIT 10000 ", d.LimitSubquery(10000))
}

func TestCapabilitiesAndLimits(t *testing.T) {
	tests := []struct {
		db     string
		name   string
		caps   dialect.Capabilities
		limit  string
		emptyV string
	}{
		{"", "generic", dialect.Capabilities{}, "", "null"},
		{"sqlite", "sqlite", dialect.Capabilities{Paging: true}, " LIMIT 10 OFFSET 20", "null"},
		{"mysql", "mysql", dialect.Capabilities{Paging: true, FulltextScoring: true}, " LIMIT 20,10", "null"},
		{"mariadb", "mariadb", dialect.Capabilities{Paging: true, FulltextScoring: true}, " LIMIT 20,10", "null"},
		{"postgres", "postgres", dialect.Capabilities{Paging: true, FulltextScoring: true}, " LIMIT 10 OFFSET 20", "CAST(NULL AS INTEGER)"},
	}

	for _, tt := range tests {
		d := dialect.New(tt.db)
		assert.Equal(t, tt.name, d.Name())
		assert.Equal(t, tt.caps, d.Capabilities(), tt.name)
		assert.Equal(t, tt.emptyV, d.EmptyVersion(), tt.name)

		var w buf
		d.RenderLimit(&w, 20, 10)
		assert.Equal(t, tt.limit, w.String(), tt.name)
	}
}

func TestFulltextAndMultivalued(t *testing.T) {
	e := &qcode.PropertyEntry{Table: sdata.TableContentData, DataType: sdata.DTString1024}

	g := dialect.New("generic")
	assert.Equal(t, "UPPER(ft.value) LIKE '%FOO''S%'", g.FulltextPredicate("ft", "foo's"))
	assert.Equal(t, "", g.ScoreExpression("ft", "foo"))
	assert.False(t, g.DirectSelectMultivalued(e))

	m := dialect.New("mysql")
	assert.Equal(t, "MATCH (ft.value) AGAINST ('foo')", m.FulltextPredicate("ft", "foo"))
	assert.True(t, m.DirectSelectMultivalued(e))
	assert.Equal(t, "GROUP_CONCAT(sub.FTEXT1024 ORDER BY sub.pos SEPARATOR '|&#@')",
		m.MultivaluedConcat("sub.FTEXT1024", "sub.pos"))

	p := dialect.New("postgres")
	assert.Equal(t, "string_agg(CAST(sub.FINT AS TEXT), '|&#@' ORDER BY sub.pos)",
		p.MultivaluedConcat("sub.FINT", "sub.pos"))
	assert.False(t, p.DirectSelectMultivalued(&qcode.PropertyEntry{
		Table: sdata.TableContentData, DataType: sdata.DTBinary,
	}))
}
