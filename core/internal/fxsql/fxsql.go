//nolint:errcheck
// Package fxsql compiles legacy FxSQL searches. The filter selects the
// (id, ver, lang) tuples of every matching instance; the final statement
// joins them to FX_CONTENT and applies the security check per row.
package fxsql

import (
	"bytes"
	"strings"

	"github.com/dosco/fxquery/core/internal/cond"
	"github.com/dosco/fxquery/core/internal/dialect"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

const DefaultSubqueryLimit = 10000

// Columns of the final statement, in SELECT order.
var Columns = []string{"id", "ver", "tdef", "created_by"}

type Config struct {
	DBType string
	Schema *sdata.Schema

	// SubqueryLimit caps every condition subquery. Zero means the
	// default, a negative value disables the cap.
	SubqueryLimit int
}

type Compiler struct {
	dialect dialect.Dialect
	s       *sdata.Schema
	limit   int
}

type compilerContext struct {
	w      *bytes.Buffer
	search *qcode.Search
	*Compiler
}

func NewCompiler(conf Config) *Compiler {
	limit := conf.SubqueryLimit
	if limit == 0 {
		limit = DefaultSubqueryLimit
	}
	return &Compiler{
		dialect: dialect.New(conf.DBType),
		s:       conf.Schema,
		limit:   limit,
	}
}

func (co *Compiler) GetDialect() dialect.Dialect {
	return co.dialect
}

func (co *Compiler) CompileEx(s *qcode.Search) ([]byte, error) {
	var w bytes.Buffer

	if err := co.Compile(&w, s); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Compile writes the statement of a search. It selects at most one row
// beyond MaxRows so the caller can tell a truncated result.
func (co *Compiler) Compile(w *bytes.Buffer, s *qcode.Search) error {
	if s == nil {
		return errors.New("fxsql: search is nil")
	}
	if s.Ticket == nil {
		return errors.Wrap(qcode.ErrInternal, "search without ticket")
	}

	c := &compilerContext{w: w, search: s, Compiler: co}

	if s.Filter == nil {
		c.renderAll()
	} else if err := c.renderFiltered(); err != nil {
		return err
	}

	// without paging support the executor stops after MaxRows+1 rows
	if s.MaxRows >= 0 && c.dialect.Capabilities().Paging {
		c.dialect.RenderLimit(c, 0, s.MaxRows+1)
	}
	return nil
}

func (c *compilerContext) Write(s string) (int, error) {
	return c.w.WriteString(s)
}

func (c *compilerContext) WriteString(s string) (int, error) {
	return c.w.WriteString(s)
}

func (c *compilerContext) renderAll() {
	c.w.WriteString(`SELECT ` + strings.Join(Columns, ",") + ` FROM ` + sdata.TblContent + ` data2 WHERE `)
	c.w.WriteString(and(
		c.dialect.SecurityFilter(c.securityArgs()),
		c.dialect.VersionFilter("data2", c.search.Version),
		c.dialect.DeactivatedTypeFilter("data2", c.s.DeactivatedTypes()),
		c.dialect.MandatorFilter("data2", c.s.InactiveMandators()),
		c.typeFilter("data2"),
	))
}

func (c *compilerContext) renderFiltered() error {
	var fw bytes.Buffer

	b := cond.New(&leafBuilder{c}, cond.Options{
		Mode:         cond.Pairwise,
		EmptyID:      c.dialect.EmptyID(),
		EmptyVersion: c.dialect.EmptyVersion(),
		Naming: cond.Naming{
			ChildPrefix: "tbl",
			UnionPrefix: "unInner",
			Columns:     []string{"id", "ver"},
			LangColumn:  "lang",
		},
	})
	if _, err := b.Build(&fw, c.search.Filter); err != nil {
		return err
	}

	c.w.WriteString(`SELECT * FROM (SELECT DISTINCT data.id,data.ver,main.tdef,main.created_by FROM (`)
	c.w.WriteString(unwrap(fw.String()))
	c.w.WriteString(`) data, ` + sdata.TblContent + ` main WHERE `)
	c.w.WriteString(and(
		`data.ver=main.ver`,
		`data.id=main.id`,
		c.typeFilter("main")))
	c.w.WriteString(`) data2`)

	if !c.search.Ticket.GlobalSupervisor {
		c.w.WriteString("\nWHERE ")
		c.w.WriteString(c.dialect.SecurityFilter(c.securityArgs()))
	}
	return nil
}

// typeFilter limits an alias to the searched types and their subtypes.
func (c *compilerContext) typeFilter(alias string) string {
	if len(c.search.Types) == 0 {
		return ""
	}
	var ids []int64
	seen := make(map[int64]bool)

	for _, t := range c.search.Types {
		for _, st := range c.s.TypeTree(t.ID) {
			if !seen[st.ID] {
				seen[st.ID] = true
				ids = append(ids, st.ID)
			}
		}
	}
	return c.dialect.TypeFilter(alias+".tdef", ids)
}

func (c *compilerContext) securityArgs() dialect.SecurityArgs {
	return dialect.SecurityArgs{
		Schema: c.s,
		Ticket: c.search.Ticket,
		Alias:  "data2",
	}
}

func (c *compilerContext) subqueryLimit() string {
	if c.limit < 0 {
		return ""
	}
	return c.dialect.LimitSubquery(c.limit)
}

// unwrap removes the parentheses around a condition subquery.
func unwrap(s string) string {
	if len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')' {
		return s[1 : len(s)-1]
	}
	return s
}

func and(preds ...string) string {
	var sb strings.Builder
	for _, p := range preds {
		if p == "" {
			continue
		}
		if sb.Len() != 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(p)
	}
	return sb.String()
}
