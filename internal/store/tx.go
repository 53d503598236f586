package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Tx is a store transaction with generic column-map row access.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
	log     *zap.Logger
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx, dialect: s.dialect, log: s.log}, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op, so it is safe to defer.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

var identRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRE.MatchString(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Find returns the rows of table whose columns equal match. A nil value
// matches NULL. An empty match returns every row.
func (t *Tx) Find(ctx context.Context, table string, match map[string]any) ([]map[string]any, error) {
	return findRows(ctx, t.tx, t.dialect, table, match)
}

func findRows(ctx context.Context, q querier, d Dialect, table string, match map[string]any) ([]map[string]any, error) {
	cols := sortedKeys(match)
	if err := checkIdent(append(cols, table)...); err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	var (
		where []string
		args  []any
	)
	for _, c := range cols {
		if match[c] == nil {
			where = append(where, c+" IS NULL")
			continue
		}
		where = append(where, c+" = ?")
		args = append(args, match[c])
	}
	query := "SELECT * FROM " + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := q.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	defer rows.Close()
	return scanMaps(rows)
}

// scanMaps reads every row into a column map. Byte slices become strings.
func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Insert writes one row.
func (t *Tx) Insert(ctx context.Context, table string, row map[string]any) error {
	cols := sortedKeys(row)
	if len(cols) == 0 {
		return fmt.Errorf("insert %s: no columns", table)
	}
	if err := checkIdent(append(cols, table)...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholderList(len(cols)) + ")"
	if _, err := t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update sets changes on the row with the given id.
func (t *Tx) Update(ctx context.Context, table, id string, changes map[string]any) error {
	cols := sortedKeys(changes)
	if len(cols) == 0 {
		return nil
	}
	if err := checkIdent(append(cols, table)...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c + " = ?"
		args = append(args, changes[c])
	}
	args = append(args, id)
	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Delete removes rows by id.
func (t *Tx) Delete(ctx context.Context, table string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := checkIdent(table); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	query := "DELETE FROM " + table + " WHERE id IN (" + placeholderList(len(ids)) + ")"
	if _, err := t.tx.ExecContext(ctx, t.dialect.Rebind(query), stringsToArgs(ids)...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func (t *Tx) Savepoint(ctx context.Context, name string) error {
	return t.exec(ctx, "SAVEPOINT ", name)
}

func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	return t.exec(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

func (t *Tx) Release(ctx context.Context, name string) error {
	return t.exec(ctx, "RELEASE SAVEPOINT ", name)
}

func (t *Tx) exec(ctx context.Context, verb, name string) error {
	if err := checkIdent(name); err != nil {
		return fmt.Errorf("%s: %w", strings.TrimSpace(verb), err)
	}
	if _, err := t.tx.ExecContext(ctx, verb+name); err != nil {
		return fmt.Errorf("%s%s: %w", verb, name, err)
	}
	return nil
}
