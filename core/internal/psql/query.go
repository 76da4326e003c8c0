//nolint:errcheck
package psql

import (
	"bytes"

	"github.com/dosco/fxquery/core/internal/cond"
	"github.com/dosco/fxquery/core/internal/dialect"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

const (
	filterAlias     = "filter"
	conditionsAlias = "__conditions"
	subPrefix       = "sub"
)

// Column describes where a result column is found in the SQL result
// set. Start is 0-based.
type Column struct {
	Kind  qcode.ColumnKind
	Label string
	Start int
	Width int

	// Direct is set for multi-valued properties selected as one
	// concatenated string
	Direct bool
}

type Metadata struct {
	columns []Column
	width   int
}

// Columns returns the result columns in SELECT order.
func (md Metadata) Columns() []Column {
	return md.columns
}

// Width is the number of SQL columns.
func (md Metadata) Width() int {
	return md.width
}

type compilerContext struct {
	md  *Metadata
	w   *bytes.Buffer
	sel *qcode.Select
	*Compiler
}

type Config struct {
	DBType string
	Schema *sdata.Schema
}

type Compiler struct {
	dialect dialect.Dialect
	s       *sdata.Schema
}

func NewCompiler(conf Config) *Compiler {
	return &Compiler{
		dialect: dialect.New(conf.DBType),
		s:       conf.Schema,
	}
}

func (co *Compiler) GetDialect() dialect.Dialect {
	return co.dialect
}

func (co *Compiler) CompileEx(sel *qcode.Select) (Metadata, []byte, error) {
	var w bytes.Buffer

	if md, err := co.Compile(&w, sel); err != nil {
		return md, nil, err
	} else {
		return md, w.Bytes(), nil
	}
}

// Compile writes the SQL of a resolved query: the result columns are
// selected from a filter view holding the (id, version) tuples of every
// matching row.
func (co *Compiler) Compile(w *bytes.Buffer, sel *qcode.Select) (Metadata, error) {
	var md Metadata

	if sel == nil {
		return md, errors.New("psql: select is nil")
	}
	if len(sel.Tables) == 0 {
		return md, errors.Wrap(qcode.ErrInvalidQuery, "no table selected")
	}

	c := &compilerContext{
		md:       &md,
		w:        w,
		sel:      sel,
		Compiler: co,
	}

	w.WriteString(`SELECT `)
	if err := c.renderColumns(); err != nil {
		return md, err
	}

	w.WriteString("\nFROM\n(")
	if err := c.renderFilter(); err != nil {
		return md, err
	}
	w.WriteString(`) `)
	w.WriteString(filterAlias)

	c.renderOrderBy()

	if co.dialect.Capabilities().Paging {
		co.dialect.RenderLimit(c, sel.StartRow, sel.MaxRows)
	}
	return md, nil
}

func (c *compilerContext) renderFilter() error {
	if c.sel.SelectAll() {
		c.renderTypeFilter(c.sel.Tables[0])
		return nil
	}

	joins, err := c.joinTables("")
	if err != nil {
		return err
	}

	c.w.WriteString(`SELECT DISTINCT `)
	c.w.WriteString(joins.Select())
	c.w.WriteString("\nFROM\n")
	c.w.WriteString(joins.From())

	conds := append([]string(nil), joins.Conditions()...)

	if c.sel.Filter != nil {
		c.w.WriteString(`, `)
		oj, err := c.renderConditions(joins)
		if err != nil {
			return err
		}
		conds = append(conds, oj)
	}

	if len(conds) != 0 {
		c.w.WriteString(` WHERE `)
		c.w.WriteString(and(conds...))
	}
	return nil
}

// renderTypeFilter selects all instances of a single table.
func (c *compilerContext) renderTypeFilter(t *qcode.SingleTable) {
	a := t.Alias

	c.w.WriteString(`SELECT DISTINCT `)
	c.w.WriteString(a + `.id AS ` + t.IDColumn() + `, ` + a + `.ver AS ` + t.VersionColumn())
	c.w.WriteString(` FROM ` + sdata.TblContent + ` ` + a + ` WHERE `)
	c.w.WriteString(and(
		c.dialect.TypeFilter(a+".tdef", t.TypeIDs()),
		c.dialect.SecurityFilter(c.securityArgs(t, a, true)),
		c.dialect.VersionFilter(a, c.sel.Version),
	))
}

// renderConditions writes the conditions table and returns the predicate
// joining it to the selected tables.
func (c *compilerContext) renderConditions(joins *visitor) (string, error) {
	sub, err := c.joinTables(subPrefix)
	if err != nil {
		return "", err
	}

	opts := cond.Options{
		Mode:         cond.Pairwise,
		Tables:       c.sel.Tables,
		EmptyID:      c.dialect.EmptyID(),
		EmptyVersion: c.dialect.EmptyVersion(),
		Naming: cond.Naming{
			ChildPrefix: "tbl_intersect_",
			UnionPrefix: "tbl_union_",
		},
	}

	if joins.UsesJoins() {
		opts.Mode = cond.Intersect
	} else {
		t := c.sel.Tables[0]
		opts.Naming.Columns = []string{t.IDColumn(), t.VersionColumn()}
	}

	b := cond.New(&leafBuilder{compilerContext: c, tables: sub}, opts)
	if _, err := b.Build(c.w, c.sel.Filter); err != nil {
		return "", err
	}
	c.w.WriteString(` ` + conditionsAlias)

	return joins.OuterJoin(conditionsAlias), nil
}

func (c *compilerContext) joinTables(prefix string) (*visitor, error) {
	v := newVisitor(c, prefix)
	if err := v.Visit(c.sel.From); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *compilerContext) securityArgs(t *qcode.SingleTable, alias string, contentTable bool) dialect.SecurityArgs {
	return dialect.SecurityArgs{
		Schema:       c.s,
		Ticket:       c.sel.Ticket,
		Alias:        alias,
		Types:        t.Types,
		ContentTable: contentTable,
	}
}

func (c *compilerContext) renderOrderBy() {
	if len(c.sel.OrderBy) == 0 {
		return
	}
	c.w.WriteString("\nORDER BY ")

	for i, ob := range c.sel.OrderBy {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		col := c.md.columns[ob.Column]
		c.w.WriteString(columnAlias(col.Start))
		if ob.Desc {
			c.w.WriteString(` DESC`)
		}
	}
}
