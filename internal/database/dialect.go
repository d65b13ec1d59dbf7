package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/dblens/internal/errs"
)

// Dialect captures the few syntax differences between the SQL backends.
// It is a plain value handed to the SQL backends and the select builder.
type Dialect struct {
	Name string

	// Quote wraps identifiers: " for ANSI, ` for MySQL.
	Quote string

	// Numbered placeholders ($1, $2, …) instead of ?.
	Numbered bool
}

var (
	DialectPostgres = Dialect{Name: "postgres", Quote: `"`, Numbered: true}
	DialectMySQL    = Dialect{Name: "mysql", Quote: "`"}
	DialectSQLite   = Dialect{Name: "sqlite", Quote: `"`}
)

// QuoteIdent quotes a single identifier, doubling any embedded quote
// character. This safely handles reserved words and mixed-case names.
func (d Dialect) QuoteIdent(name string) string {
	q := d.Quote
	if q == "" {
		q = `"`
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// QuoteQualified quotes a possibly schema-qualified name such as
// "public.users" part by part.
func (d Dialect) QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// Placeholder returns the parameter marker for the 1-based position n.
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// LimitClause renders a literal LIMIT/OFFSET suffix. Non-positive values
// are omitted.
func (d Dialect) LimitClause(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	} else if offset > 0 {
		sb.WriteString(d.unbounded())
	}
	if offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", offset)
	}
	return sb.String()
}

// unbounded is the LIMIT needed before a bare OFFSET. MySQL and SQLite do
// not accept OFFSET on its own.
func (d Dialect) unbounded() string {
	switch d.Name {
	case "mysql":
		return " LIMIT 18446744073709551615"
	case "sqlite":
		return " LIMIT -1"
	default:
		return ""
	}
}

var (
	readOnlyKeywords = map[string]bool{
		"SELECT": true, "SHOW": true, "DESCRIBE": true, "DESC": true,
		"EXPLAIN": true, "WITH": true, "PRAGMA": true, "VALUES": true, "TABLE": true,
	}
	schemaKeywords = map[string]bool{
		"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true,
		"RENAME": true, "COMMENT": true,
	}
	// rowlessKeywords start statements that never produce a result set
	// unless they carry RETURNING.
	rowlessKeywords = map[string]bool{
		"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true,
		"MERGE": true, "UPSERT": true, "LOAD": true, "SET": true, "USE": true,
		"BEGIN": true, "START": true, "COMMIT": true, "ROLLBACK": true,
		"SAVEPOINT": true, "RELEASE": true, "GRANT": true, "REVOKE": true,
		"LOCK": true, "UNLOCK": true, "VACUUM": true, "REINDEX": true,
		"ATTACH": true, "DETACH": true, "FLUSH": true, "KILL": true,
	}
)

// firstKeyword returns the upper-cased first word of q, skipping leading
// whitespace, opening parentheses, line comments and block comments.
func firstKeyword(q string) string {
	for {
		q = strings.TrimLeft(q, " \t\r\n(")
		switch {
		case strings.HasPrefix(q, "--"), strings.HasPrefix(q, "#"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q, "*/")
			if i < 0 {
				return ""
			}
			q = q[i+2:]
		default:
			end := strings.IndexFunc(q, func(r rune) bool {
				return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
			})
			if end < 0 {
				end = len(q)
			}
			return strings.ToUpper(q[:end])
		}
	}
}

// IsReadOnlyQuery reports whether q starts with a statement that only reads.
func IsReadOnlyQuery(q string) bool {
	return readOnlyKeywords[firstKeyword(q)]
}

// IsSchemaModifying reports whether q is a DDL statement.
func IsSchemaModifying(q string) bool {
	return schemaKeywords[firstKeyword(q)]
}

// returnsRows reports whether q may produce a result set. Only statements
// known to be rowless are executed without scanning, so CALL, CHECK TABLE
// and the like keep their output.
func returnsRows(q string) bool {
	kw := firstKeyword(q)
	if kw == "" {
		return true
	}
	if schemaKeywords[kw] {
		return false
	}
	return !rowlessKeywords[kw] || hasReturning(q)
}

var returningPattern = regexp.MustCompile(`(?i)\bRETURNING\b`)

func hasReturning(q string) bool {
	return returningPattern.MatchString(q)
}

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string, they are always
// passed as args.
//
// Usage:
//
//	sql, args, err := Select("users", DialectPostgres).
//	    Columns("id", "name", "email").
//	    Where("active", "=", true).
//	    OrderBy("created_at", Desc).
//	    Limit(20).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a WHERE condition combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice. Unknown WHERE
// operators and negative limits are validation errors.
func (b *SelectBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errs.Invalid("table", "required")
	}

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.dialect.QuoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.QuoteQualified(b.table))

	var args []any
	argIdx := 1

	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			op := strings.ToUpper(w.op)
			if !validOps[op] {
				return "", nil, errs.Invalid("where", fmt.Sprintf("unsupported operator %q", w.op))
			}
			if op == "ILIKE" && b.dialect.Name != "postgres" {
				op = "LIKE"
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", b.dialect.QuoteIdent(w.column), op, b.dialect.Placeholder(argIdx)))
			args = append(args, w.value)
			argIdx++
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", b.dialect.QuoteIdent(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		if *b.limit < 0 {
			return "", nil, errs.Invalid("limit", "must not be negative")
		}
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.dialect.Placeholder(argIdx))
		args = append(args, *b.limit)
		argIdx++
	}

	if b.offset != nil {
		if *b.offset < 0 {
			return "", nil, errs.Invalid("offset", "must not be negative")
		}
		if b.limit == nil {
			sb.WriteString(b.dialect.unbounded())
		}
		sb.WriteString(" OFFSET ")
		sb.WriteString(b.dialect.Placeholder(argIdx))
		args = append(args, *b.offset)
	}

	return sb.String(), args, nil
}
