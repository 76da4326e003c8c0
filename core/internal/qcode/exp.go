package qcode

import (
	"context"
	"strconv"
	"strings"

	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/dosco/fxquery/core/internal/util"
)

type wexp struct {
	w      *Where
	parent *Brace
}

// compileWhere converts the syntactic condition tree into an Exp tree.
// Braces with a single child are replaced by the child.
func (cc *compilerContext) compileWhere(ctx context.Context, where *Where) (Exp, error) {
	holder := &Brace{}
	st := util.NewStackInf()
	st.Push(wexp{w: where, parent: holder})

	for st.Len() != 0 {
		v := st.Pop().(wexp)
		w := v.w

		if w == nil {
			return nil, invalidf("empty condition")
		}

		if !w.isBrace() {
			c, err := cc.compileCond(ctx, w)
			if err != nil {
				return nil, err
			}
			v.parent.Children = append(v.parent.Children, c)
			continue
		}

		if len(w.And) != 0 && len(w.Or) != 0 {
			return nil, invalidf("condition mixes AND and OR")
		}
		if w.Column != "" || w.Op != "" {
			return nil, invalidf("condition on %s mixes a brace and a comparison", w.Column)
		}

		b := &Brace{Op: OpAnd}
		children := w.And
		if len(w.Or) != 0 {
			b.Op = OpOr
			children = w.Or
		}
		v.parent.Children = append(v.parent.Children, b)

		for i := len(children) - 1; i >= 0; i-- {
			st.Push(wexp{w: children[i], parent: b})
		}
	}

	return normalize(holder.Children[0])
}

func normalize(e Exp) (Exp, error) {
	b, ok := e.(*Brace)
	if !ok {
		return e, nil
	}

	switch len(b.Children) {
	case 0:
		return nil, invalidf("empty %s condition", b.Op)
	case 1:
		return normalize(b.Children[0])
	}

	for i, c := range b.Children {
		nc, err := normalize(c)
		if err != nil {
			return nil, err
		}
		b.Children[i] = nc
	}
	return b, nil
}

func parseComparator(op string) (Comparator, CondKind, error) {
	switch strings.ToUpper(strings.Join(strings.Fields(op), " ")) {
	case "=", "==":
		return CmpEq, CondCompare, nil
	case "<>", "!=":
		return CmpNe, CondCompare, nil
	case "<":
		return CmpLt, CondCompare, nil
	case "<=":
		return CmpLe, CondCompare, nil
	case ">":
		return CmpGt, CondCompare, nil
	case ">=":
		return CmpGe, CondCompare, nil
	case "LIKE":
		return CmpLike, CondLike, nil
	case "NOT LIKE":
		return CmpNotLike, CondLike, nil
	case "IN":
		return CmpIn, CondIn, nil
	case "NOT IN":
		return CmpNotIn, CondIn, nil
	case "IS NULL":
		return CmpIsNull, CondNull, nil
	case "IS NOT NULL":
		return CmpIsNotNull, CondNull, nil
	case "CONTAINS":
		return CmpContains, CondContains, nil
	case "IN_FOLDER", "IS DIRECT CHILD OF":
		return CmpDirectChildOf, CondTree, nil
	case "IN_TREE", "IS CHILD OF":
		return CmpChildOf, CondTree, nil
	}
	return 0, 0, invalidf("unknown comparator %s", op)
}

func (cc *compilerContext) compileCond(ctx context.Context, w *Where) (*Cond, error) {
	cmp, kind, err := parseComparator(w.Op)
	if err != nil {
		return nil, err
	}

	c := &Cond{Kind: kind, Comparator: cmp}

	switch kind {
	case CondContains:
		if w.Value == "" {
			return nil, invalidf("CONTAINS requires a search text")
		}
		c.Text = w.Value
		c.Literals = []string{quote(w.Value)}

		if cc.legacy == nil {
			if c.Table, err = cc.tableFor(w.Table); err != nil {
				return nil, err
			}
			if prev, ok := cc.sel.Contains[c.Table.Alias]; ok {
				cc.sel.Contains[c.Table.Alias] = prev + " " + w.Value
			} else {
				cc.sel.Contains[c.Table.Alias] = w.Value
			}
		}
		return c, nil

	case CondTree:
		if cc.legacy == nil {
			if c.Table, err = cc.tableFor(w.Table); err != nil {
				return nil, err
			}
		}
		if c.TreeNodes, err = cc.treeNodes(ctx, w.Value); err != nil {
			return nil, err
		}
		return c, nil
	}

	var ref *ColumnRef
	if cc.legacy != nil {
		ref, err = cc.legacyColumn(w.Column)
	} else {
		ref, err = cc.columnRef(w.Table, w.Column)
	}
	if err != nil {
		return nil, err
	}
	c.Column = ref
	c.Table = ref.Table

	switch strings.ToUpper(w.Func) {
	case "":
		c.Upper = cc.legacy != nil && cc.legacy.IgnoreCase && ref.Entry.DataType.IsText()
	case "UPPER":
		if !ref.Entry.DataType.IsText() {
			return nil, invalidf("UPPER requires a text property, got %s", ref.Alias())
		}
		c.Upper = true
	default:
		return nil, invalidf("function %s is not supported in conditions", w.Func)
	}

	if err := checkComparator(ref.Entry, cmp, ref.Alias()); err != nil {
		return nil, err
	}

	var values []string
	switch kind {
	case CondNull:
	case CondIn:
		values = w.Values
		if len(values) == 0 && w.Value != "" {
			values = strings.Split(w.Value, ",")
		}
		if len(values) == 0 {
			return nil, invalidf("%s requires values", strings.TrimSpace(cmp.SQL()))
		}
	default:
		values = []string{w.Value}
	}

	for _, v := range values {
		lit, err := cc.encodeLiteral(ref.Entry, v, c.Upper)
		if err != nil {
			return nil, err
		}
		c.Literals = append(c.Literals, lit)
	}
	return c, nil
}

// treeNodes resolves a folder reference (node id or path) in the trees
// selected by the version filter.
func (cc *compilerContext) treeNodes(ctx context.Context, ref string) ([]TreeNode, error) {
	if cc.conf.Tree == nil {
		return nil, invalidf("tree conditions require a tree engine")
	}
	if ref == "" {
		return nil, invalidf("tree condition requires a folder")
	}

	var live []bool
	switch cc.version() {
	case VersionLive:
		live = []bool{true}
	case VersionAll:
		live = []bool{false, true}
	default:
		live = []bool{false}
	}

	nodes := make([]TreeNode, 0, len(live))
	for _, l := range live {
		var n TreeNode
		var err error

		if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
			n, err = cc.conf.Tree.Node(ctx, l, id)
		} else {
			n, err = cc.conf.Tree.NodeByPath(ctx, l, ref)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (cc *compilerContext) version() VersionFilter {
	if cc.legacy != nil {
		return cc.legacy.Version
	}
	return cc.sel.Version
}

// legacyColumn resolves FxSQL column references: "#TYPE/ALIAS" or
// "#<assignment id>" reference an assignment, anything else a property
// or system column.
func (cc *compilerContext) legacyColumn(name string) (*ColumnRef, error) {
	if name == "" {
		return nil, invalidf("column name is required")
	}

	if !strings.HasPrefix(name, "#") {
		if e := mainTableEntry(name); e != nil {
			return &ColumnRef{Name: name, Entry: e}, nil
		}
		p, err := cc.s.Property(name)
		if err != nil {
			return nil, invalidf("unknown property %s", name)
		}
		return &ColumnRef{Name: name, Entry: &PropertyEntry{
			Table:        sdata.TableContentData,
			TableName:    sdata.TblContentData,
			DataType:     p.DataType,
			Property:     p,
			ReadColumns:  p.DataType.ReadColumns(),
			FilterColumn: p.DataType.ReadColumns()[0],
			MultiLang:    p.MultiLang,
		}}, nil
	}

	a, err := cc.legacyAssignment(name[1:])
	if err != nil {
		return nil, err
	}
	p := a.Property()

	return &ColumnRef{Name: name, Entry: &PropertyEntry{
		Table:        sdata.TableContentData,
		TableName:    sdata.TblContentData,
		DataType:     p.DataType,
		Property:     p,
		Assignments:  append([]*sdata.Assignment{a}, cc.s.DerivedAssignments(a.ID)...),
		ReadColumns:  p.DataType.ReadColumns(),
		FilterColumn: p.DataType.ReadColumns()[0],
		MultiValued:  a.MultiValued(),
		MultiLang:    p.MultiLang,
	}}, nil
}

func (cc *compilerContext) legacyAssignment(ref string) (*sdata.Assignment, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		a, err := cc.s.Assignment(id)
		if err != nil {
			return nil, notFoundf("unknown assignment %d", id)
		}
		return a, nil
	}

	typeName, alias, ok := strings.Cut(ref, "/")
	if !ok {
		if len(cc.legacy.Types) != 1 {
			return nil, invalidf("assignment %s must be qualified by its type", ref)
		}
		typeName, alias = cc.legacy.Types[0].Name, ref
	}

	t, err := cc.s.TypeByName(typeName)
	if err != nil {
		return nil, notFoundf("unknown type %s", typeName)
	}
	a, err := cc.s.AssignmentByAlias(t.ID, alias)
	if err != nil {
		return nil, notFoundf("unknown assignment %s", ref)
	}
	return a, nil
}

// CompileSearch resolves a legacy FxSQL search.
func (co *Compiler) CompileSearch(ctx context.Context, q *SearchQuery, t *Ticket) (*Search, error) {
	var err error

	if q == nil {
		return nil, invalidf("search is nil")
	}
	if t == nil {
		t = &Ticket{}
	}

	s := &Search{
		MaxRows:    co.maxRows(q.Max),
		IgnoreCase: q.IgnoreCase,
		Ticket:     t,
	}

	if s.Version, err = ParseVersion(q.Version); err != nil {
		return nil, err
	}
	if s.LanguageID, err = co.language(q.Language); err != nil {
		return nil, err
	}

	for _, name := range q.Types {
		ty, err := co.s.TypeByName(name)
		if err != nil {
			return nil, notFoundf("unknown type %s", name)
		}
		s.Types = append(s.Types, ty)
	}

	if q.Where == nil {
		return s, nil
	}

	cc := &compilerContext{Compiler: co, legacy: s}

	if s.Filter, err = cc.compileWhere(ctx, q.Where); err != nil {
		return nil, err
	}
	return s, nil
}
