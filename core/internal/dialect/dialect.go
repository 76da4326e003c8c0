package dialect

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
)

// Capabilities describe optional features of a backend. They are fixed
// per dialect.
type Capabilities struct {
	// Fulltext conditions produce a relevance score
	FulltextScoring bool

	// Scores are already in the range 0..1
	NormalizedFulltextScore bool

	// Row offset and limit are applied by the database
	Paging bool
}

type Context interface {
	Write(s string) (int, error)
	WriteString(s string) (int, error)
}

// SecurityArgs are the inputs of the security filter of one table.
type SecurityArgs struct {
	Schema *sdata.Schema
	Ticket *qcode.Ticket
	Alias  string
	Types  []*sdata.Type

	// ContentTable is true when the alias selects from FX_CONTENT and
	// its ACL columns are available
	ContentTable bool
}

type Dialect interface {
	Name() string
	Capabilities() Capabilities

	// Placeholders selected for table references a conjunction does
	// not touch.
	EmptyID() string
	EmptyVersion() string

	SecurityFilter(args SecurityArgs) string
	VersionFilter(alias string, v qcode.VersionFilter) string
	TypeFilter(column string, typeIDs []int64) string
	AssignmentFilter(table sdata.TableType, alias string, asgs []*sdata.Assignment) string
	MandatorFilter(alias string, inactive []int64) string
	DeactivatedTypeFilter(alias string, ids []int64) string
	LanguageFilter(alias string, lang int64) string

	RenderLimit(ctx Context, start, max int)
	LimitSubquery(limit int) string

	FulltextPredicate(alias, text string) string
	ScoreExpression(alias, text string) string

	DirectSelectMultivalued(e *qcode.PropertyEntry) bool
	MultivaluedConcat(column, orderBy string) string
	MultivaluedSeparator() string

	// PrepareConnection sets up a connection before a query is run on it.
	PrepareConnection(ctx context.Context, conn *sql.Conn, timeout time.Duration) error
}

// New returns the dialect for a database type. Unknown types get the
// generic dialect.
func New(dbType string) Dialect {
	switch strings.ToLower(dbType) {
	case "mysql":
		return &MySQLDialect{}
	case "mariadb":
		return &MariaDBDialect{}
	case "postgres", "postgresql":
		return &PostgresDialect{}
	case "sqlite", "sqlite3":
		return &SQLiteDialect{}
	default:
		return &GenericDialect{}
	}
}
