package qcode

import (
	"context"
	"strings"

	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
	"golang.org/x/text/language"
)

// TreeResolver resolves folders of the edit (live=false) or live tree.
type TreeResolver interface {
	NodeByPath(ctx context.Context, live bool, path string) (TreeNode, error)
	Node(ctx context.Context, live bool, id int64) (TreeNode, error)
}

type Config struct {
	// Rows returned when a query does not set a maximum, negative
	// means unlimited
	DefaultMaxRows int

	Tree TreeResolver
}

// Compiler resolves structured queries against the environment.
type Compiler struct {
	s    *sdata.Schema
	conf Config
}

type compilerContext struct {
	*Compiler
	sel    *Select
	tables map[string]*SingleTable
	order  []*SingleTable
	legacy *Search
}

var cmisProperties = map[string]string{
	"cmis:objectid":             "ID",
	"cmis:objecttypeid":         "TYPEDEF",
	"cmis:createdby":            "CREATED_BY",
	"cmis:creationdate":         "CREATED_AT",
	"cmis:lastmodifiedby":       "MODIFIED_BY",
	"cmis:lastmodificationdate": "MODIFIED_AT",
	"cmis:name":                 "CAPTION",
}

func NewCompiler(s *sdata.Schema, conf Config) (*Compiler, error) {
	if s == nil {
		return nil, errors.New("qcode: environment schema is required")
	}
	return &Compiler{s: s, conf: conf}, nil
}

func (co *Compiler) Schema() *sdata.Schema {
	return co.s
}

// Compile resolves a query for the given ticket.
func (co *Compiler) Compile(ctx context.Context, q *Query, t *Ticket) (*Select, error) {
	var err error

	if q == nil {
		return nil, invalidf("query is nil")
	}
	if t == nil {
		t = &Ticket{}
	}
	if q.Start < 0 {
		return nil, invalidf("negative start row %d", q.Start)
	}

	sel := &Select{
		Ticket:   t,
		StartRow: q.Start,
		MaxRows:  co.maxRows(q.Max),
		Contains: make(map[string]string),
	}

	if sel.Version, err = ParseVersion(q.Version); err != nil {
		return nil, err
	}
	if sel.LanguageID, err = co.language(q.Language); err != nil {
		return nil, err
	}

	cc := &compilerContext{
		Compiler: co,
		sel:      sel,
		tables:   make(map[string]*SingleTable),
	}

	if sel.From, err = cc.compileFrom(q.From); err != nil {
		return nil, err
	}
	sel.Tables = cc.order

	if err := cc.compileColumns(q.Select); err != nil {
		return nil, err
	}

	if q.Where != nil {
		if sel.Filter, err = cc.compileWhere(ctx, q.Where); err != nil {
			return nil, err
		}
	}

	if err := cc.compileOrderBy(q.OrderBy); err != nil {
		return nil, err
	}
	return sel, nil
}

func (co *Compiler) maxRows(max int) int {
	if max > 0 {
		return max
	}
	if co.conf.DefaultMaxRows == 0 {
		return -1
	}
	return co.conf.DefaultMaxRows
}

// ParseVersion parses max, live or all. The empty string means max.
func ParseVersion(v string) (VersionFilter, error) {
	switch strings.ToLower(v) {
	case "", "max":
		return VersionMax, nil
	case "live":
		return VersionLive, nil
	case "all":
		return VersionAll, nil
	}
	return VersionMax, invalidf("unknown version filter %s", v)
}

func (co *Compiler) language(code string) (int64, error) {
	if code == "" {
		return sdata.SystemLanguage, nil
	}

	tag, err := language.Parse(code)
	if err != nil {
		return 0, invalidf("invalid language %s", code)
	}
	base, _ := tag.Base()

	l, err := co.s.LanguageByCode(base.String())
	if err != nil {
		return 0, invalidf("unknown language %s", code)
	}
	return l.ID, nil
}

func (cc *compilerContext) compileFrom(f From) (TableRef, error) {
	first, err := cc.singleTable(f.Type, f.Alias)
	if err != nil {
		return nil, err
	}

	var ref TableRef = first

	for _, j := range f.Joins {
		second, err := cc.singleTable(j.Type, j.Alias)
		if err != nil {
			return nil, err
		}
		left, err := cc.columnRef(j.Left.Table, j.Left.Name)
		if err != nil {
			return nil, err
		}
		right, err := cc.columnRef(j.Right.Table, j.Right.Name)
		if err != nil {
			return nil, err
		}
		ref = &JoinedTable{
			First:        ref,
			Second:       second,
			FirstColumn:  left,
			SecondColumn: right,
		}
	}
	return ref, nil
}

func (cc *compilerContext) singleTable(name, alias string) (*SingleTable, error) {
	if name == "" {
		return nil, invalidf("table name is required")
	}
	if alias == "" {
		alias = name
	}
	alias = strings.ToLower(alias)

	if !validAlias(alias) {
		return nil, invalidf("invalid table alias %s", alias)
	}
	if _, ok := cc.tables[alias]; ok {
		return nil, invalidf("duplicate table alias %s", alias)
	}

	t := &SingleTable{Alias: alias, Name: name}

	switch strings.ToLower(name) {
	case "root":
		t.Types = cc.s.AllTypes()

	case "document":
		for _, ty := range cc.s.AllTypes() {
			if !ty.Folder {
				t.Types = append(t.Types, ty)
			}
		}

	default:
		ty, err := cc.s.TypeByName(name)
		if err != nil {
			return nil, notFoundf("unknown type %s", name)
		}
		t.BaseType = ty
		t.Types = cc.s.TypeTree(ty.ID)
	}

	cc.tables[alias] = t
	cc.order = append(cc.order, t)
	return t, nil
}

func validAlias(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case c >= '0' && c <= '9' && i != 0:
		default:
			return false
		}
	}
	return s != ""
}

// tableFor returns the table named by the qualifier or the first table.
func (cc *compilerContext) tableFor(qualifier string) (*SingleTable, error) {
	if qualifier == "" {
		return cc.order[0], nil
	}
	if t, ok := cc.tables[strings.ToLower(qualifier)]; ok {
		return t, nil
	}
	return nil, invalidf("unknown table alias %s", qualifier)
}

func (cc *compilerContext) columnRef(qualifier, name string) (*ColumnRef, error) {
	if name == "" {
		return nil, invalidf("column name is required")
	}

	if qualifier != "" || len(cc.order) == 1 {
		t, err := cc.tableFor(qualifier)
		if err != nil {
			return nil, err
		}
		e, err := cc.propertyEntry(t, name)
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Table: t, Name: name, Entry: e}, nil
	}

	var ref *ColumnRef
	for _, t := range cc.order {
		e, err := cc.propertyEntry(t, name)
		if err != nil {
			continue
		}
		if ref != nil {
			return nil, invalidf("ambiguous column %s", name)
		}
		ref = &ColumnRef{Table: t, Name: name, Entry: e}
	}
	if ref == nil {
		return nil, invalidf("unknown property %s", name)
	}
	return ref, nil
}

func (cc *compilerContext) propertyEntry(t *SingleTable, name string) (*PropertyEntry, error) {
	if p, ok := cmisProperties[strings.ToLower(name)]; ok {
		name = p
	}

	if e := mainTableEntry(name); e != nil {
		return e, nil
	}

	switch strings.ToLower(name) {
	case "cmis:path", "cmis:parentid":
		return &PropertyEntry{Table: sdata.TableVirtual, DataType: sdata.DTString1024}, nil
	}

	asgs, err := cc.assignments(t, name)
	if err != nil {
		return nil, err
	}
	return newEntry(asgs), nil
}

func mainTableEntry(name string) *PropertyEntry {
	col, dt, ok := sdata.MainTableColumn(name)
	if !ok {
		return nil
	}
	return &PropertyEntry{
		Table:        sdata.TableContent,
		TableName:    sdata.TblContent,
		DataType:     dt,
		ReadColumns:  []string{col},
		FilterColumn: col,
	}
}

// assignments returns the assignments a property name references in a
// table: the base assignment first, then assignments derived from it.
func (cc *compilerContext) assignments(t *SingleTable, name string) ([]*sdata.Assignment, error) {
	inTable := make(map[int64]bool, len(t.Types))
	for _, ty := range t.Types {
		inTable[ty.ID] = true
	}

	if t.BaseType != nil {
		base, err := cc.s.AssignmentByAlias(t.BaseType.ID, name)
		if err != nil {
			return nil, invalidf("unknown property %s of type %s", name, t.BaseType.Name)
		}
		res := []*sdata.Assignment{base}
		for _, a := range cc.s.DerivedAssignments(base.ID) {
			if inTable[a.TypeID] {
				res = append(res, a)
			}
		}
		return res, nil
	}

	p, err := cc.s.Property(strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, invalidf("unknown property %s", name)
	}

	var res []*sdata.Assignment
	for _, a := range cc.s.PropertyAssignments(p.ID) {
		if inTable[a.TypeID] {
			res = append(res, a)
		}
	}
	if len(res) == 0 {
		return nil, invalidf("property %s is not assigned to %s", name, t.Name)
	}
	return res, nil
}

func newEntry(asgs []*sdata.Assignment) *PropertyEntry {
	base := asgs[0]
	p := base.Property()

	e := &PropertyEntry{
		Property:    p,
		DataType:    p.DataType,
		Assignments: asgs,
		MultiLang:   p.MultiLang,
	}

	for _, a := range asgs {
		if a.MultiValued() {
			e.MultiValued = true
		}
	}

	if base.Flat != nil {
		e.Table = sdata.TableContentDataFlat
		e.TableName = base.Flat.Storage
		e.ReadColumns = []string{base.Flat.Column}
	} else {
		e.Table = sdata.TableContentData
		e.TableName = sdata.TblContentData
		e.ReadColumns = p.DataType.ReadColumns()
	}
	e.FilterColumn = e.ReadColumns[0]
	return e
}

func (cc *compilerContext) compileColumns(cols []Column) error {
	if len(cols) == 0 {
		return invalidf("no columns selected")
	}

	for _, c := range cols {
		rc, err := cc.compileColumn(c)
		if err != nil {
			return err
		}
		cc.sel.Columns = append(cc.sel.Columns, rc)
	}
	return nil
}

func (cc *compilerContext) compileColumn(c Column) (ResultColumn, error) {
	label := c.Alias
	if label == "" {
		label = c.Name
	}

	switch fn := strings.ToUpper(c.Func); fn {
	case "SCORE":
		t, err := cc.tableFor(c.Table)
		if err != nil {
			return nil, err
		}
		if label == "" {
			label = "score"
		}
		return &Score{Table: t, Alias: label}, nil

	case "ROW_NUMBER":
		if label == "" {
			label = "rownr"
		}
		return &RowNumber{Alias: label}, nil

	case "UPPER", "LOWER":
		ref, err := cc.columnRef(c.Table, c.Name)
		if err != nil {
			return nil, err
		}
		if !ref.Entry.DataType.IsText() {
			return nil, invalidf("%s requires a text property, got %s", fn, c.Name)
		}
		f := FuncUpper
		if fn == "LOWER" {
			f = FuncLower
		}
		return &ColumnFunction{Func: f, Ref: ref, Alias: label}, nil

	case "":

	default:
		return nil, invalidf("unknown function %s", c.Func)
	}

	switch strings.ToLower(c.Name) {
	case "cmis:path":
		t, err := cc.tableFor(c.Table)
		if err != nil {
			return nil, err
		}
		return &ObjectPath{Table: t, Alias: label}, nil

	case "cmis:parentid":
		t, err := cc.tableFor(c.Table)
		if err != nil {
			return nil, err
		}
		return &ParentID{Table: t, Alias: label}, nil

	case "cmis:objecttypeid":
		t, err := cc.tableFor(c.Table)
		if err != nil {
			return nil, err
		}
		return &TypeID{Table: t, Alias: label}, nil
	}

	ref, err := cc.columnRef(c.Table, c.Name)
	if err != nil {
		return nil, err
	}
	return &ColumnReference{Ref: ref, Alias: label}, nil
}

func (cc *compilerContext) compileOrderBy(orders []Order) error {
	for _, o := range orders {
		i := cc.findColumn(o)
		if i == -1 {
			return invalidf("order by column %s must be selected", o.Column)
		}
		cc.sel.OrderBy = append(cc.sel.OrderBy, OrderBy{Column: i, Desc: o.Desc})
	}
	return nil
}

func (cc *compilerContext) findColumn(o Order) int {
	for i, c := range cc.sel.Columns {
		if o.Table == "" && strings.EqualFold(c.Label(), o.Column) {
			return i
		}
		cr, ok := c.(*ColumnReference)
		if !ok || !strings.EqualFold(cr.Ref.Name, o.Column) {
			continue
		}
		if o.Table == "" || strings.EqualFold(cr.Ref.Table.Alias, o.Table) {
			return i
		}
	}
	return -1
}
