package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect identifies the SQL flavour behind a Store.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) String() string {
	return d.DriverName()
}

// Rebind rewrites ? placeholders into $n for Postgres. Question marks inside
// single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var schemaTypes = map[Dialect]*strings.Replacer{
	DialectSQLite: strings.NewReplacer(
		"{{ts}}", "DATETIME",
		"{{money}}", "NUMERIC",
		"{{bool}}", "INTEGER",
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
	),
	DialectPostgres: strings.NewReplacer(
		"{{ts}}", "TIMESTAMPTZ",
		"{{money}}", "NUMERIC(14,2)",
		"{{bool}}", "BOOLEAN",
		"{{serial}}", "BIGSERIAL PRIMARY KEY",
	),
}

func (d Dialect) expandSchema(sql string) string {
	return schemaTypes[d].Replace(sql)
}

// TableExists reports whether a table is visible to the current connection.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	var err error
	switch s.dialect {
	case DialectPostgres:
		err = s.queryRow(ctx,
			`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`,
			table).Scan(&n)
	default:
		err = s.queryRow(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`,
			table).Scan(&n)
	}
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return n > 0, nil
}

// TableColumns returns the lowercased column names of a table. A missing
// table yields an empty set, not an error.
func (s *Store) TableColumns(ctx context.Context, table string) (map[string]bool, error) {
	cols := make(map[string]bool)
	switch s.dialect {
	case DialectPostgres:
		rows, err := s.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?`,
			table)
		if err != nil {
			return nil, fmt.Errorf("table columns %s: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("scan column: %w", err)
			}
			cols[strings.ToLower(name)] = true
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("table columns %s: iterate: %w", table, err)
		}
	default:
		if !validIdent.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
		rows, err := s.conn.QueryContext(ctx, `SELECT name FROM pragma_table_info('`+table+`')`)
		if err != nil {
			return nil, fmt.Errorf("table columns %s: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("scan column: %w", err)
			}
			cols[strings.ToLower(name)] = true
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("table columns %s: iterate: %w", table, err)
		}
	}
	return cols, nil
}

var validIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SchemaErrorKind classifies driver errors caused by schema drift.
type SchemaErrorKind int

const (
	SchemaErrorNone SchemaErrorKind = iota
	SchemaErrorMissingColumn
	SchemaErrorMissingTable
	SchemaErrorPermission
)

func (k SchemaErrorKind) String() string {
	switch k {
	case SchemaErrorMissingColumn:
		return "missing_column"
	case SchemaErrorMissingTable:
		return "missing_table"
	case SchemaErrorPermission:
		return "permission_denied"
	default:
		return "none"
	}
}

var (
	sqliteNoColumn = regexp.MustCompile(`no such column: ([A-Za-z0-9_."]+)`)
	sqliteNoTable  = regexp.MustCompile(`no such table: ([A-Za-z0-9_."]+)`)
	pgColumn       = regexp.MustCompile(`column "?([A-Za-z0-9_."]+)"? does not exist`)
	pgRelation     = regexp.MustCompile(`relation "([A-Za-z0-9_."]+)" does not exist`)
	pgPermission   = regexp.MustCompile(`permission denied for (?:table|relation) ([A-Za-z0-9_."]+)`)
)

// ClassifySchemaError reports whether err was caused by a missing column, a
// missing table or a missing privilege, and the object it names when the
// driver says so. Tables lose their schema prefix; columns keep the table
// alias they were referenced with ("f.category").
func ClassifySchemaError(err error) (SchemaErrorKind, string) {
	if err == nil {
		return SchemaErrorNone, ""
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42703":
			return SchemaErrorMissingColumn, columnName(firstMatch(pgColumn, pqErr.Message))
		case "42P01":
			return SchemaErrorMissingTable, lastSegment(firstMatch(pgRelation, pqErr.Message))
		case "42501":
			return SchemaErrorPermission, lastSegment(firstMatch(pgPermission, pqErr.Message))
		}
		return SchemaErrorNone, ""
	}

	msg := err.Error()
	switch {
	case sqliteNoColumn.MatchString(msg):
		return SchemaErrorMissingColumn, columnName(firstMatch(sqliteNoColumn, msg))
	case sqliteNoTable.MatchString(msg):
		return SchemaErrorMissingTable, lastSegment(firstMatch(sqliteNoTable, msg))
	case pgColumn.MatchString(msg):
		return SchemaErrorMissingColumn, columnName(firstMatch(pgColumn, msg))
	case pgRelation.MatchString(msg):
		return SchemaErrorMissingTable, lastSegment(firstMatch(pgRelation, msg))
	case strings.Contains(strings.ToLower(msg), "permission denied"):
		return SchemaErrorPermission, lastSegment(firstMatch(pgPermission, msg))
	}
	return SchemaErrorNone, ""
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func lastSegment(name string) string {
	name = strings.Trim(name, `"`)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(strings.Trim(name, `"`))
}

func columnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, `"`, ""))
}
