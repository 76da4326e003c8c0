package dialect

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
)

// MultivaluedSeparator joins the values of a directly selected
// multi-valued property.
const MultivaluedSeparator = "|&#@"

// GenericDialect targets databases without paging, fulltext scoring or
// aggregate string functions. The other dialects embed it.
type GenericDialect struct{}

func (d *GenericDialect) Name() string {
	return "generic"
}

func (d *GenericDialect) Capabilities() Capabilities {
	return Capabilities{}
}

func (d *GenericDialect) EmptyID() string {
	return "null"
}

func (d *GenericDialect) EmptyVersion() string {
	return "null"
}

func prefix(alias string) string {
	if alias == "" {
		return ""
	}
	return alias + "."
}

func joinIDs(ids []int64) string {
	var sb strings.Builder
	for i, id := range ids {
		if i != 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	return sb.String()
}

func (d *GenericDialect) SecurityFilter(args SecurityArgs) string {
	return securityFilter(args)
}

// securityFilter restricts an alias to the instances the ticket may
// read. Without FX_CONTENT columns the per instance check is delegated
// to the database function mayReadInstance2.
func securityFilter(args SecurityArgs) string {
	t := args.Ticket
	a := prefix(args.Alias)
	uid := strconv.FormatInt(t.UserID, 10)

	if t.GlobalSupervisor {
		return "1=1"
	}

	if !args.ContentTable {
		return "mayReadInstance2(" + a + "id," + a + "ver," + uid + "," +
			strconv.FormatInt(t.MandatorID, 10) + "," +
			strconv.FormatBool(t.MandatorSupervisor) + "," +
			strconv.FormatBool(t.GlobalSupervisor) + ")"
	}

	var terms []string

	if t.MandatorSupervisor {
		terms = append(terms, a+"mandator="+strconv.FormatInt(t.MandatorID, 10))
	}

	for _, ty := range args.Types {
		if term, ok := typeSecurity(args, ty, a, uid); ok {
			terms = append(terms, term)
		}
	}

	if len(terms) == 0 {
		return "1=0"
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}

func typeSecurity(args SecurityArgs, ty *sdata.Type, a, uid string) (string, bool) {
	t := args.Ticket
	tdef := a + "tdef=" + strconv.FormatInt(ty.ID, 10)

	if !ty.UsePermissions() {
		return tdef, true
	}

	parts := []string{tdef}

	if ty.UseTypePermissions {
		readable := t.MayReadACL(ty.ACL, 0)
		private := t.MayReadACL(ty.ACL, t.UserID)
		if !readable && !private {
			return "", false
		}
		if !readable {
			parts = append(parts, a+"created_by="+uid)
		}
	}

	if ty.UseInstancePermissions {
		p, ok := privateOr(a, uid,
			instanceFilter(a, t.ReadableACLs(false)),
			instanceFilter(a, t.ReadableACLs(true)))
		if !ok {
			return "", false
		}
		parts = append(parts, p)
	}

	if ty.UseStepPermissions {
		var steps, private []int64
		for _, st := range args.Schema.WorkflowSteps(ty.WorkflowID) {
			switch {
			case t.MayReadACL(st.ACL, 0):
				steps = append(steps, st.ID)
			case t.MayReadACL(st.ACL, t.UserID):
				private = append(private, st.ID)
			}
		}
		p, ok := privateOr(a, uid, stepFilter(a, steps), stepFilter(a, private))
		if !ok {
			return "", false
		}
		parts = append(parts, p)
	}

	return "(" + strings.Join(parts, " AND ") + ")", true
}

// privateOr combines a general and an owner-only predicate.
func privateOr(a, uid, readable, private string) (string, bool) {
	switch {
	case readable == "" && private == "":
		return "", false
	case private == "":
		return readable, true
	case readable == "":
		return "(" + a + "created_by=" + uid + " AND " + private + ")", true
	}
	return "(" + readable + " OR (" + a + "created_by=" + uid + " AND " + private + "))", true
}

func instanceFilter(a string, acls []int64) string {
	if len(acls) == 0 {
		return ""
	}
	ids := joinIDs(acls)
	return "EXISTS(SELECT c.acl FROM " + sdata.TblContent + " c WHERE c.id=" + a + "id AND c.ver=" + a +
		"ver  AND c.acl IN (" + ids + ") UNION SELECT ca.acl FROM " + sdata.TblContentACLs +
		" ca WHERE ca.id=" + a + "id AND ca.ver=" + a + "ver AND ca.acl IN (" + ids + "))"
}

func stepFilter(a string, steps []int64) string {
	if len(steps) == 0 {
		return ""
	}
	return a + "step IN (" + joinIDs(steps) + ")"
}

func (d *GenericDialect) VersionFilter(alias string, v qcode.VersionFilter) string {
	switch v {
	case qcode.VersionLive:
		return prefix(alias) + "islive_ver=true"
	case qcode.VersionAll:
		return ""
	}
	return prefix(alias) + "ismax_ver=true"
}

func (d *GenericDialect) TypeFilter(column string, typeIDs []int64) string {
	if len(typeIDs) == 0 {
		return "1=0"
	}
	return column + " IN (" + joinIDs(typeIDs) + ")"
}

func (d *GenericDialect) AssignmentFilter(table sdata.TableType, alias string, asgs []*sdata.Assignment) string {
	a := prefix(alias)

	switch table {
	case sdata.TableContentData, sdata.TableFulltext:
		switch len(asgs) {
		case 0:
			return ""
		case 1:
			return a + "assign = " + strconv.FormatInt(asgs[0].ID, 10)
		}
		ids := make([]int64, len(asgs))
		for i, as := range asgs {
			ids[i] = as.ID
		}
		return a + "assign IN (" + joinIDs(ids) + ")"

	case sdata.TableContentDataFlat:
		var terms []string
		for _, as := range asgs {
			if as.Flat == nil {
				continue
			}
			terms = append(terms, flatFilter(a, as))
		}
		if len(terms) == 0 {
			return ""
		}
		return "(" + strings.Join(terms, " OR ") + ")"
	}
	return ""
}

func flatFilter(a string, as *sdata.Assignment) string {
	var sb strings.Builder
	sb.WriteString("(" + a + "typeid=" + strconv.FormatInt(as.TypeID, 10))
	sb.WriteString(" AND " + a + "lvl=" + strconv.Itoa(as.Flat.Level))
	if !as.Property().MultiLang {
		sb.WriteString(" AND " + a + "lang=" + strconv.FormatInt(sdata.SystemLanguage, 10))
	}
	if as.Flat.GroupAssignmentID != 0 {
		sb.WriteString(" AND " + a + "group_assid=" + strconv.FormatInt(as.Flat.GroupAssignmentID, 10))
	}
	sb.WriteString(")")
	return sb.String()
}

func (d *GenericDialect) MandatorFilter(alias string, inactive []int64) string {
	if len(inactive) == 0 {
		return ""
	}
	return prefix(alias) + "mandator NOT IN (" + joinIDs(inactive) + ")"
}

func (d *GenericDialect) DeactivatedTypeFilter(alias string, ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	return prefix(alias) + "tdef NOT IN (" + joinIDs(ids) + ")"
}

func (d *GenericDialect) LanguageFilter(alias string, lang int64) string {
	if lang == sdata.SystemLanguage {
		return ""
	}
	return prefix(alias) + "lang IN (" + strconv.FormatInt(sdata.SystemLanguage, 10) + "," +
		strconv.FormatInt(lang, 10) + ")"
}

// RenderLimit is a no-op, paging is done by the executor.
func (d *GenericDialect) RenderLimit(ctx Context, start, max int) {}

func (d *GenericDialect) LimitSubquery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(limit) + " "
}

func (d *GenericDialect) FulltextPredicate(alias, text string) string {
	return "UPPER(" + prefix(alias) + "value) LIKE " + squote("%"+strings.ToUpper(text)+"%")
}

func (d *GenericDialect) ScoreExpression(alias, text string) string {
	return ""
}

func (d *GenericDialect) DirectSelectMultivalued(e *qcode.PropertyEntry) bool {
	return false
}

func (d *GenericDialect) MultivaluedConcat(column, orderBy string) string {
	return column
}

func (d *GenericDialect) MultivaluedSeparator() string {
	return MultivaluedSeparator
}

func (d *GenericDialect) PrepareConnection(ctx context.Context, conn *sql.Conn, timeout time.Duration) error {
	return nil
}

func squote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// directMultivalued reports if a property can be aggregated into a
// single string column.
func directMultivalued(e *qcode.PropertyEntry) bool {
	if e.Table != sdata.TableContentData {
		return false
	}
	switch e.DataType {
	case sdata.DTBinary, sdata.DTSelectMany, sdata.DTDateRange, sdata.DTDateTimeRange:
		return false
	}
	return true
}
