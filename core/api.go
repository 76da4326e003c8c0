// Package core compiles CMIS queries and legacy FxSQL searches over a
// content repository into SQL, executes them and decodes the typed
// result sets.
package core

import (
	"context"
	"database/sql"
	"io"
	"sync/atomic"

	"github.com/dosco/fxquery/core/internal/cmisql"
	"github.com/dosco/fxquery/core/internal/dialect"
	"github.com/dosco/fxquery/core/internal/fxsql"
	"github.com/dosco/fxquery/core/internal/psql"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

type (
	Query       = qcode.Query
	SearchQuery = qcode.SearchQuery
	Column      = qcode.Column
	From        = qcode.From
	Join        = qcode.Join
	ColumnName  = qcode.ColumnName
	Where       = qcode.Where
	Order       = qcode.Order
	Ticket      = qcode.Ticket
	Grant       = qcode.Grant
	PK          = qcode.PK
	TreeNode    = qcode.TreeNode
	Schema      = sdata.Schema
)

// LoadSchema reads a YAML environment description.
func LoadSchema(r io.Reader) (*Schema, error) {
	return sdata.LoadSchema(r)
}

// ParseQuery parses CMIS SQL text.
func ParseQuery(text string) (*Query, error) {
	return cmisql.Parse(text)
}

// ParsePK parses "id.version" or a bare "id".
func ParsePK(s string) (PK, error) {
	return qcode.ParsePK(s)
}

type engine struct {
	conf          *Config
	db            *sql.DB
	log           *zap.Logger
	trace         Tracer
	schema        *sdata.Schema
	dbtype        string
	qcodeCompiler *qcode.Compiler
	psqlCompiler  *psql.Compiler
	fxsqlCompiler *fxsql.Compiler
	content       ContentEngine
	tree          TreeEngine
	cache         *stmtCache
	opts          []Option
}

// Engine is safe for concurrent use. Reload swaps the environment
// without blocking running queries.
type Engine struct {
	atomic.Value
}

type Option func(*engine) error

// NewEngine creates a query engine for the database and environment.
// Without options content and tree lookups read the repository tables
// of db.
func NewEngine(conf *Config, db *sql.DB, schema *Schema, options ...Option) (g *Engine, err error) {
	g = &Engine{}
	if err = g.newEngine(conf, db, schema, options...); err != nil {
		return nil, err
	}
	return
}

func (g *Engine) newEngine(conf *Config, db *sql.DB, schema *Schema, options ...Option) (err error) {
	if conf == nil {
		conf = &Config{}
	}
	if schema == nil {
		return errors.New("core: environment schema is required")
	}
	if err = conf.Validate(); err != nil {
		return
	}

	e := &engine{
		conf:   conf,
		db:     db,
		log:    zap.NewNop(),
		trace:  &tracer{},
		schema: schema,
		dbtype: conf.dbType(),
		opts:   options,
	}

	// ordering of these initializer matter, do not re-order!

	if err = e.initCache(); err != nil {
		return
	}

	for _, op := range options {
		if err = op(e); err != nil {
			return
		}
	}

	if e.db != nil {
		if e.tree == nil {
			e.tree = NewSQLTreeEngine(e.db, e.dbtype, conf.TreeCacheTTL)
		}
		if e.content == nil {
			e.content = NewSQLContentEngine(e.db, e.dbtype, schema)
		}
	}

	if err = e.initCompilers(); err != nil {
		return
	}

	g.Store(e)
	return
}

func (e *engine) initCompilers() (err error) {
	qconf := qcode.Config{DefaultMaxRows: e.conf.DefaultMaxRows}
	if e.tree != nil {
		qconf.Tree = e.tree
	}

	if e.qcodeCompiler, err = qcode.NewCompiler(e.schema, qconf); err != nil {
		return
	}

	e.psqlCompiler = psql.NewCompiler(psql.Config{
		DBType: e.dbtype,
		Schema: e.schema,
	})

	e.fxsqlCompiler = fxsql.NewCompiler(fxsql.Config{
		DBType:        e.dbtype,
		Schema:        e.schema,
		SubqueryLimit: e.conf.SubqueryLimit,
	})
	return
}

func (e *engine) dialect() dialect.Dialect {
	return e.psqlCompiler.GetDialect()
}

// OptionSetLogger sets the logger. Compiled SQL is logged at debug
// level when the config enables debug.
func OptionSetLogger(log *zap.Logger) Option {
	return func(e *engine) error {
		if log == nil {
			return errors.New("core: logger is nil")
		}
		e.log = log
		return nil
	}
}

// OptionSetTrace sets the tracer wrapping compile and execute calls
func OptionSetTrace(trace Tracer) Option {
	return func(e *engine) error {
		e.trace = trace
		return nil
	}
}

// OptionSetContentEngine sets the loader of multi-valued property values
func OptionSetContentEngine(ce ContentEngine) Option {
	return func(e *engine) error {
		e.content = ce
		return nil
	}
}

// OptionSetTreeEngine sets the resolver of folder conditions
func OptionSetTreeEngine(te TreeEngine) Option {
	return func(e *engine) error {
		e.tree = te
		return nil
	}
}

// Reload rebuilds the engine for a changed environment. The compiled
// statement cache starts empty.
func (g *Engine) Reload(schema *Schema) error {
	e := g.Load().(*engine)
	return g.newEngine(e.conf, e.db, schema, e.opts...)
}

// Schema returns the current environment.
func (g *Engine) Schema() *Schema {
	return g.Load().(*engine).schema
}

// Compile returns the SQL of a CMIS query.
func (g *Engine) Compile(c context.Context, q *Query, t *Ticket) (string, error) {
	e := g.Load().(*engine)

	c, span := e.spanStart(c, "Compile Query")
	defer span.End()

	st, err := e.compileQuery(c, q, t)
	if err != nil {
		span.Error(err)
		return "", err
	}
	return st.sql, nil
}

// Query compiles and executes a CMIS query.
func (g *Engine) Query(c context.Context, q *Query, t *Ticket) (*Result, error) {
	e := g.Load().(*engine)
	return e.query(c, q, t)
}

// QueryText parses, compiles and executes CMIS SQL text.
func (g *Engine) QueryText(c context.Context, text string, t *Ticket) (*Result, error) {
	q, err := cmisql.Parse(text)
	if err != nil {
		return nil, err
	}
	return g.Query(c, q, t)
}

// CompileSearch returns the SQL of a legacy FxSQL search.
func (g *Engine) CompileSearch(c context.Context, q *SearchQuery, t *Ticket) (string, error) {
	e := g.Load().(*engine)

	c, span := e.spanStart(c, "Compile Search")
	defer span.End()

	st, err := e.compileSearch(c, q, t)
	if err != nil {
		span.Error(err)
		return "", err
	}
	return st.sql, nil
}

// Search compiles and executes a legacy FxSQL search.
func (g *Engine) Search(c context.Context, q *SearchQuery, t *Ticket) (*SearchResult, error) {
	e := g.Load().(*engine)
	return e.search(c, q, t)
}

func (e *engine) compileQuery(c context.Context, q *Query, t *Ticket) (*stmt, error) {
	compile := func() (*stmt, error) {
		sel, err := e.qcodeCompiler.Compile(c, q, t)
		if err != nil {
			return nil, err
		}
		md, b, err := e.psqlCompiler.CompileEx(sel)
		if err != nil {
			return nil, err
		}
		return &stmt{sql: string(b), sel: sel, md: md}, nil
	}

	if q == nil || !cacheable(q.Where) {
		return compile()
	}
	st, _, err := e.cache.get(stmtKey{Kind: "query", DBType: e.dbtype, Query: q, Ticket: t}, compile)
	return st, err
}

func (e *engine) compileSearch(c context.Context, q *SearchQuery, t *Ticket) (*stmt, error) {
	compile := func() (*stmt, error) {
		s, err := e.qcodeCompiler.CompileSearch(c, q, t)
		if err != nil {
			return nil, err
		}
		b, err := e.fxsqlCompiler.CompileEx(s)
		if err != nil {
			return nil, err
		}
		return &stmt{sql: string(b), search: s}, nil
	}

	if q == nil || !cacheable(q.Where) {
		return compile()
	}
	st, _, err := e.cache.get(stmtKey{Kind: "search", DBType: e.dbtype, Query: q, Ticket: t}, compile)
	return st, err
}

func (e *engine) query(c context.Context, q *Query, t *Ticket) (res *Result, err error) {
	id := xid.New().String()
	log := e.log.With(zap.String("request_id", id))

	c, span := e.spanStart(c, "Execute Query")
	span.SetAttributesString(StringAttr{Name: "request.id", Value: id})
	defer func() {
		if err != nil {
			span.Error(err)
		}
		span.End()
	}()

	st, err := e.compileQuery(c, q, t)
	if err != nil {
		return nil, err
	}
	if e.conf.Debug {
		log.Debug("compiled query", zap.String("sql", st.sql))
	}

	skip, limit := st.sel.StartRow, st.sel.MaxRows
	if e.dialect().Capabilities().Paging {
		skip, limit = 0, -1
	}

	rows, err := e.execute(c, st.sql, skip, limit)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}

	if res, err = e.decode(st, rows); err != nil {
		log.Error("decoding failed", zap.Error(err))
		return nil, err
	}
	if err = e.postProcess(c, st, res); err != nil {
		log.Error("post-processing failed", zap.Error(err))
		return nil, err
	}
	res.sql = st.sql
	return res, nil
}
