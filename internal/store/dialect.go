package store

import (
	"strconv"
	"strings"
)

// Dialect selects driver and placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DialectFor picks the dialect for a DSN.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// DriverName returns the database/sql driver name.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// Rebind rewrites "?" placeholders to "$1, $2, …" for PostgreSQL. Queries
// must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DDL adapts a schema statement. The shared DDL only uses types both
// engines accept, so there is nothing to rewrite beyond comments.
func (d Dialect) DDL(stmt string) string {
	var lines []string
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
