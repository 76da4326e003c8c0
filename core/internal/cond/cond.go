// Package cond compiles condition trees into nested subqueries. The
// target databases lack INTERSECT, so conjunctions are emulated by
// joining the subqueries of their children on the content identity.
// Disjunctions use UNION.
package cond

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/pkg/errors"
)

// Strategy renders leaf conditions.
type Strategy interface {
	// Leaf writes a parenthesized subquery selecting the rows matching
	// the condition and returns the table references it restricts.
	Leaf(w *bytes.Buffer, c *qcode.Cond) ([]*qcode.SingleTable, error)
}

type Mode int

const (
	// Intersect joins children on the id and version columns of every
	// table reference they touch and fills untouched references with
	// placeholders.
	Intersect Mode = iota

	// Pairwise joins every child to the first one on fixed key columns.
	Pairwise
)

// Naming holds the lexical conventions of a compiler.
type Naming struct {
	ChildPrefix string
	UnionPrefix string

	// Key columns of Pairwise mode
	Columns []string

	// LangColumn, when set, adds a language tolerant predicate in
	// Pairwise mode
	LangColumn string
}

type Options struct {
	Mode   Mode
	Naming Naming

	// Outer table references in FROM order. Required for Intersect.
	Tables []*qcode.SingleTable

	EmptyID      string
	EmptyVersion string
}

// Builder compiles one condition tree. It is not reusable.
type Builder struct {
	strategy Strategy
	opts     Options
	counter  int
}

type frame struct {
	aliases []string
	tables  [][]*qcode.SingleTable
}

func New(s Strategy, opts Options) *Builder {
	return &Builder{strategy: s, opts: opts}
}

// Build writes the subquery of the condition tree and returns the table
// references the tree restricts.
func (b *Builder) Build(w *bytes.Buffer, e qcode.Exp) ([]*qcode.SingleTable, error) {
	switch v := e.(type) {
	case *qcode.Cond:
		return b.strategy.Leaf(w, v)

	case *qcode.Brace:
		if v.Op == qcode.OpOr {
			return b.union(w, v)
		}
		if len(v.Children) < 2 {
			return nil, errors.Wrapf(qcode.ErrInvalidQuery,
				"AND condition requires at least two elements, got %d", len(v.Children))
		}
		if b.opts.Mode == Pairwise {
			return b.pairwise(w, v)
		}
		return b.intersect(w, v)
	}
	return nil, errors.Wrapf(qcode.ErrInternal, "unexpected condition %T", e)
}

func (b *Builder) nextAlias(prefix string) string {
	b.counter++
	return prefix + strconv.Itoa(b.counter)
}

func (b *Builder) union(w *bytes.Buffer, br *qcode.Brace) ([]*qcode.SingleTable, error) {
	var touched []*qcode.SingleTable
	alias := b.nextAlias(b.opts.Naming.UnionPrefix)

	// sqlite rejects parenthesized operands of a compound select so
	// every operand is selected from a derived table
	w.WriteString("(SELECT * FROM (\n")
	for i, c := range br.Children {
		if i != 0 {
			w.WriteString("\nUNION\n")
		}
		w.WriteString("SELECT * FROM ")
		tables, err := b.Build(w, c)
		if err != nil {
			return nil, err
		}
		w.WriteString(" ")
		w.WriteString(alias + "_" + strconv.Itoa(i+1))
		touched = mergeTables(touched, tables)
	}
	w.WriteString(") ")
	w.WriteString(alias)
	w.WriteString(")")

	return b.ordered(touched), nil
}

// children renders the children of a conjunction, recording the alias
// and touched tables of each.
func (b *Builder) children(br *qcode.Brace) (*frame, []string, error) {
	f := &frame{}
	sqls := make([]string, 0, len(br.Children))

	for _, c := range br.Children {
		var cw bytes.Buffer
		tables, err := b.Build(&cw, c)
		if err != nil {
			return nil, nil, err
		}
		f.aliases = append(f.aliases, b.nextAlias(b.opts.Naming.ChildPrefix))
		f.tables = append(f.tables, tables)
		sqls = append(sqls, cw.String())
	}
	return f, sqls, nil
}

func (b *Builder) intersect(w *bytes.Buffer, br *qcode.Brace) ([]*qcode.SingleTable, error) {
	f, sqls, err := b.children(br)
	if err != nil {
		return nil, err
	}

	// the first child touching a table selects its identity
	selected := make(map[*qcode.SingleTable]string)
	for i, tables := range f.tables {
		if len(tables) == 0 {
			return nil, errors.Wrapf(qcode.ErrInternal, "condition %s restricts no table", f.aliases[i])
		}
		for _, t := range tables {
			if !b.isOuter(t) {
				return nil, errors.Wrapf(qcode.ErrInternal, "table %s is not selected", t.Alias)
			}
			if _, ok := selected[t]; !ok {
				selected[t] = f.aliases[i]
			}
		}
	}

	w.WriteString("(SELECT DISTINCT ")
	for i, t := range b.opts.Tables {
		if i != 0 {
			w.WriteString(", ")
		}
		if a, ok := selected[t]; ok {
			w.WriteString(a + "." + t.IDColumn() + ", " + a + "." + t.VersionColumn())
		} else {
			w.WriteString(b.opts.EmptyID + " AS " + t.IDColumn() + ", " +
				b.opts.EmptyVersion + " AS " + t.VersionColumn())
		}
	}
	w.WriteString(" FROM ")

	for i, s := range sqls {
		if i != 0 {
			w.WriteString(", ")
		}
		w.WriteString(s)
		w.WriteString(" ")
		w.WriteString(f.aliases[i])
	}

	n := 0
	for i, alias := range f.aliases {
		for _, t := range f.tables[i] {
			sel := selected[t]
			if sel == alias {
				continue
			}
			if n == 0 {
				w.WriteString(" WHERE ")
			} else {
				w.WriteString(" AND ")
			}
			w.WriteString(sel + "." + t.IDColumn() + "=" + alias + "." + t.IDColumn() + " AND " +
				sel + "." + t.VersionColumn() + "=" + alias + "." + t.VersionColumn())
			n++
		}
	}
	w.WriteString(")")

	var touched []*qcode.SingleTable
	for _, t := range b.opts.Tables {
		if _, ok := selected[t]; ok {
			touched = append(touched, t)
		}
	}
	return touched, nil
}

func (b *Builder) pairwise(w *bytes.Buffer, br *qcode.Brace) ([]*qcode.SingleTable, error) {
	f, sqls, err := b.children(br)
	if err != nil {
		return nil, err
	}

	nm := b.opts.Naming
	first := f.aliases[0]

	cols := append([]string(nil), nm.Columns...)
	if nm.LangColumn != "" {
		cols = append(cols, nm.LangColumn)
	}

	w.WriteString("(SELECT ")
	for i, c := range cols {
		if i != 0 {
			w.WriteString(",")
		}
		w.WriteString(first + "." + c)
	}
	w.WriteString(" FROM\n")

	for i, s := range sqls {
		if i != 0 {
			w.WriteString(",\n")
		}
		w.WriteString(s)
		w.WriteString(" ")
		w.WriteString(f.aliases[i])
	}
	w.WriteString("\nWHERE ")

	var touched []*qcode.SingleTable
	touched = mergeTables(touched, f.tables[0])

	for i, alias := range f.aliases[1:] {
		if i != 0 {
			w.WriteString(" AND ")
		}
		var preds []string
		for _, c := range nm.Columns {
			preds = append(preds, first+"."+c+"="+alias+"."+c)
		}
		if l := nm.LangColumn; l != "" {
			preds = append(preds, "("+first+"."+l+"=0 OR "+first+"."+l+" IS NULL OR "+
				alias+"."+l+"=0 OR "+alias+"."+l+" IS NULL OR "+first+"."+l+"="+alias+"."+l+")")
		}
		w.WriteString(strings.Join(preds, " AND "))
		touched = mergeTables(touched, f.tables[i+1])
	}
	w.WriteString(")")

	return b.ordered(touched), nil
}

func (b *Builder) isOuter(t *qcode.SingleTable) bool {
	for _, o := range b.opts.Tables {
		if o == t {
			return true
		}
	}
	return false
}

// ordered sorts tables in FROM order when outer tables are known.
func (b *Builder) ordered(tables []*qcode.SingleTable) []*qcode.SingleTable {
	if len(b.opts.Tables) == 0 {
		return tables
	}
	var res []*qcode.SingleTable
	for _, t := range b.opts.Tables {
		for _, x := range tables {
			if x == t {
				res = append(res, t)
				break
			}
		}
	}
	return res
}

func mergeTables(dst, src []*qcode.SingleTable) []*qcode.SingleTable {
	for _, t := range src {
		found := false
		for _, d := range dst {
			if d == t {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, t)
		}
	}
	return dst
}
