package psql

import (
	"strings"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

// visitor collects the SELECT, FROM and WHERE fragments selecting the
// (id, version) tuples of all tables of a query. Aliases are prefixed
// so a visitor can be used in a subquery of another one.
type visitor struct {
	c      *compilerContext
	prefix string

	tables  []*qcode.SingleTable
	aliases map[*qcode.SingleTable]string
	conds   []string

	// the column each table is joined on
	joinColumns map[*qcode.SingleTable]*qcode.ColumnRef
	usesJoins   bool
}

func newVisitor(c *compilerContext, prefix string) *visitor {
	return &visitor{
		c:           c,
		prefix:      prefix,
		aliases:     make(map[*qcode.SingleTable]string),
		joinColumns: make(map[*qcode.SingleTable]*qcode.ColumnRef),
	}
}

// Visit walks a table reference. Joined tables are visited before
// their join condition so the security filters know about the join.
func (v *visitor) Visit(t qcode.TableRef) error {
	if _, ok := t.(*qcode.JoinedTable); ok {
		v.usesJoins = true
	}

	for _, st := range t.SingleTables() {
		v.visitSingle(st)
	}
	return v.visitJoins(t)
}

func (v *visitor) visitSingle(t *qcode.SingleTable) {
	alias := v.prefix + t.Alias
	v.tables = append(v.tables, t)
	v.aliases[t] = alias

	c := v.c
	v.conds = append(v.conds,
		c.dialect.SecurityFilter(c.securityArgs(t, alias, !v.usesJoins)),
		c.dialect.VersionFilter(alias, c.sel.Version))
}

func (v *visitor) visitJoins(t qcode.TableRef) error {
	jt, ok := t.(*qcode.JoinedTable)
	if !ok {
		return nil
	}
	if err := v.visitJoins(jt.First); err != nil {
		return err
	}

	col1, col2 := jt.FirstColumn, jt.SecondColumn

	switch {
	case !col1.Entry.Table.HasFilterTable():
		return errors.Wrapf(qcode.ErrInvalidQuery, "column %s cannot be used in a join", col1.Alias())
	case !col2.Entry.Table.HasFilterTable():
		return errors.Wrapf(qcode.ErrInvalidQuery, "column %s cannot be used in a join", col2.Alias())
	}

	v.addAssignmentConstraint(col1)
	v.addAssignmentConstraint(col2)
	v.conds = append(v.conds, v.joinColumn(col1)+" = "+v.joinColumn(col2))

	v.joinColumns[col1.Table] = col1
	v.joinColumns[col2.Table] = col2
	return nil
}

func (v *visitor) addAssignmentConstraint(col *qcode.ColumnRef) {
	f := v.c.dialect.AssignmentFilter(col.Entry.Table, v.prefix+col.Table.Alias, col.Entry.Assignments)
	if f != "" {
		v.conds = append(v.conds, f)
	}
}

func (v *visitor) joinColumn(col *qcode.ColumnRef) string {
	return v.prefix + col.Table.Alias + "." + col.Entry.FilterColumn
}

// Select returns the id and version columns of all tables.
func (v *visitor) Select() string {
	cols := make([]string, len(v.tables))
	for i, t := range v.tables {
		a := v.aliases[t]
		cols[i] = a + ".id AS " + t.IDColumn() + ", " + a + ".ver AS " + t.VersionColumn()
	}
	return strings.Join(cols, ", ")
}

// SelectForSingleTable selects the id and version columns of one table
// and placeholders for all others.
func (v *visitor) SelectForSingleTable(t *qcode.SingleTable, alias string) string {
	cols := make([]string, len(v.tables))
	for i, ot := range v.tables {
		if ot == t {
			cols[i] = alias + ".id AS " + t.IDColumn() + ", " + alias + ".ver AS " + t.VersionColumn()
		} else {
			cols[i] = v.c.dialect.EmptyID() + " AS " + ot.IDColumn() + ", " +
				v.c.dialect.EmptyVersion() + " AS " + ot.VersionColumn()
		}
	}
	return strings.Join(cols, ", ")
}

// From selects each table from the storage of its join column. A single
// table without joins selects from the main content table.
func (v *visitor) From() string {
	if !v.usesJoins && len(v.tables) == 1 {
		return sdata.TblContent + " " + v.aliases[v.tables[0]]
	}

	res := make([]string, len(v.tables))
	for i, t := range v.tables {
		if jc, ok := v.joinColumns[t]; ok {
			res[i] = jc.Entry.TableName + " " + v.aliases[t]
		} else {
			res[i] = sdata.TblContent + " " + v.aliases[t]
		}
	}
	return strings.Join(res, ", ")
}

// Conditions returns the security, version and join predicates. Tables
// selected from the main content table are also limited to their types.
func (v *visitor) Conditions() []string {
	res := append([]string(nil), v.conds...)
	for _, t := range v.tables {
		if _, ok := v.joinColumns[t]; !ok {
			res = append(res, v.c.dialect.TypeFilter(v.aliases[t]+".tdef", t.TypeIDs()))
		}
	}
	return res
}

func (v *visitor) Aliases() []string {
	res := make([]string, len(v.tables))
	for i, t := range v.tables {
		res[i] = v.aliases[t]
	}
	return res
}

func (v *visitor) Alias(t *qcode.SingleTable) (string, error) {
	a, ok := v.aliases[t]
	if !ok {
		return "", errors.Wrapf(qcode.ErrInternal, "unknown table %s", t.Alias)
	}
	return a, nil
}

func (v *visitor) UsesJoins() bool {
	return v.usesJoins
}

// OuterJoin links the selected tables to a view selecting their
// (id, version) tuples. A null id matches every row since conditions
// restrict single tables.
func (v *visitor) OuterJoin(viewAlias string) string {
	res := make([]string, len(v.tables))
	for i, t := range v.tables {
		a := v.aliases[t]
		res[i] = "(" + viewAlias + "." + t.IDColumn() + " IS NULL OR (" +
			a + ".id = " + viewAlias + "." + t.IDColumn() + " AND " +
			a + ".ver = " + viewAlias + "." + t.VersionColumn() + "))"
	}
	return "(" + strings.Join(res, " AND ") + ")"
}
