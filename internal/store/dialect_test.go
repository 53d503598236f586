package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Postgres, DialectFor("postgres://u@localhost/docket"))
	assert.Equal(t, Postgres, DialectFor("postgresql://u@localhost/docket"))
	assert.Equal(t, SQLite, DialectFor("/tmp/docket.db"))
	assert.Equal(t, "pgx", Postgres.DriverName())
	assert.Equal(t, "sqlite3", SQLite.DriverName())
}

func TestRebind(t *testing.T) {
	t.Parallel()
	q := "SELECT * FROM bills WHERE a = ? AND b IN (?,?)"
	assert.Equal(t, "SELECT * FROM bills WHERE a = $1 AND b IN ($2,$3)", Postgres.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
}

func TestDDL_StripsComments(t *testing.T) {
	t.Parallel()
	got := SQLite.DDL("-- Bills\n\nCREATE TABLE x (id TEXT)")
	assert.Equal(t, "\nCREATE TABLE x (id TEXT)", got)
}

// newMockStore returns a postgres-dialect Store backed by sqlmock.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres), mock
}

func TestPostgres_TxStatements(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT rec_0")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM people WHERE birth_date IS NULL AND jurisdiction_id = $1 AND name = $2")).
		WithArgs(testJurisdiction, "Adam Smith").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("ocd-person/1", "Adam Smith"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO person_sources (id, note, person_id, url) VALUES ($1,$2,$3,$4)")).
		WithArgs("src1", nil, "ocd-person/1", "http://example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE people SET gender = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("female", "later", "ocd-person/1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM person_names WHERE id IN ($1,$2)")).
		WithArgs("n1", "n2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("RELEASE SAVEPOINT rec_0")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Savepoint(ctx, "rec_0"))
	rows, err := tx.Find(ctx, "people", map[string]any{
		"jurisdiction_id": testJurisdiction, "name": "Adam Smith", "birth_date": nil,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ocd-person/1", rows[0]["id"])

	require.NoError(t, tx.Insert(ctx, "person_sources", map[string]any{
		"id": "src1", "person_id": "ocd-person/1", "url": "http://example.com", "note": nil,
	}))
	require.NoError(t, tx.Update(ctx, "people", "ocd-person/1", map[string]any{"gender": "female", "updated_at": "later"}))
	require.NoError(t, tx.Delete(ctx, "person_names", "n1", "n2"))
	require.NoError(t, tx.Release(ctx, "rec_0"))
	require.NoError(t, tx.Commit())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StoreErrorWrapped(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	ctx := context.Background()
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bills (id) VALUES ($1)")).WillReturnError(boom)
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.Insert(ctx, "bills", map[string]any{"id": "ocd-bill/1"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "insert bills")
	require.NoError(t, tx.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BillByKeyNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bills WHERE jurisdiction_id = $1 AND legislative_session = $2 AND identifier = $3")).
		WithArgs(testJurisdiction, "1900", "HB 9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	b, err := s.BillByKey(context.Background(), testJurisdiction, "1900", "HB 9")
	require.NoError(t, err)
	assert.Nil(t, b)
	require.NoError(t, mock.ExpectationsWereMet())
}
