package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJurisdiction = "ocd-jurisdiction/country:us/state:ex/government"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// withTx runs fn in a transaction and commits it.
func withTx(t *testing.T, s *Store, fn func(tx *Tx)) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	fn(tx)
	require.NoError(t, tx.Commit())
}

func insert(t *testing.T, tx *Tx, table string, row map[string]any) {
	t.Helper()
	require.NoError(t, tx.Insert(context.Background(), table, row))
}

// seedBill inserts a jurisdiction, session, organization and one bill.
func seedBill(t *testing.T, s *Store) {
	t.Helper()
	now := "2026-01-01T00:00:00Z"
	withTx(t, s, func(tx *Tx) {
		insert(t, tx, "jurisdictions", map[string]any{
			"id": testJurisdiction, "name": "Example", "created_at": now, "updated_at": now,
		})
		insert(t, tx, "legislative_sessions", map[string]any{
			"id": "s1900", "jurisdiction_id": testJurisdiction, "identifier": "1900", "name": "1900",
		})
		insert(t, tx, "organizations", map[string]any{
			"id": "ocd-organization/house", "jurisdiction_id": testJurisdiction, "name": "House",
			"classification": "lower", "chamber": "lower", "created_at": now, "updated_at": now,
		})
		insert(t, tx, "bills", map[string]any{
			"id": "ocd-bill/1", "jurisdiction_id": testJurisdiction, "legislative_session": "1900",
			"legislative_session_id": "s1900", "identifier": "HB 1", "title": "Axe & Tack Tax Act",
			"classification": `["bill"]`, "from_organization_id": "ocd-organization/house",
			"created_at": now, "updated_at": now,
		})
	})
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range Tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Generic row access
// =============================================================================

func TestTx_InsertFindUpdateDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	seedBill(t, s)

	withTx(t, s, func(tx *Tx) {
		insert(t, tx, "bill_sources", map[string]any{"id": "src1", "bill_id": "ocd-bill/1", "url": "http://a", "note": nil})
		insert(t, tx, "bill_sources", map[string]any{"id": "src2", "bill_id": "ocd-bill/1", "url": "http://b", "note": "x"})

		rows, err := tx.Find(ctx, "bill_sources", map[string]any{"bill_id": "ocd-bill/1", "note": nil})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "src1", rows[0]["id"])
		assert.Nil(t, rows[0]["note"])

		require.NoError(t, tx.Update(ctx, "bill_sources", "src1", map[string]any{"note": "updated"}))
		require.NoError(t, tx.Delete(ctx, "bill_sources", "src2"))
	})

	sources, err := s.Sources(ctx, "bill_sources", "bill_id", "ocd-bill/1")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "updated", sources[0].Note)
}

func TestTx_FindEmptyMatchReturnsAll(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedBill(t, s)
	rows, err := s.Find(context.Background(), "organizations", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "House", rows[0]["name"])
}

func TestTx_UpdateWithoutChangesIsNoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	withTx(t, s, func(tx *Tx) {
		require.NoError(t, tx.Update(context.Background(), "bills", "missing", nil))
		require.NoError(t, tx.Delete(context.Background(), "bills"))
	})
}

func TestTx_SavepointRollback(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	seedBill(t, s)

	withTx(t, s, func(tx *Tx) {
		require.NoError(t, tx.Savepoint(ctx, "rec_0"))
		insert(t, tx, "bill_titles", map[string]any{"id": "t1", "bill_id": "ocd-bill/1", "title": "kept"})
		require.NoError(t, tx.Release(ctx, "rec_0"))

		require.NoError(t, tx.Savepoint(ctx, "rec_1"))
		insert(t, tx, "bill_titles", map[string]any{"id": "t2", "bill_id": "ocd-bill/1", "title": "dropped"})
		require.NoError(t, tx.RollbackTo(ctx, "rec_1"))
		require.NoError(t, tx.Release(ctx, "rec_1"))
	})

	titles, err := s.Titles(ctx, "ocd-bill/1")
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, "kept", titles[0].Title)
}

func TestTx_RollbackAfterCommitIsNoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())
}

func TestTx_RejectsBadIdentifiers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Find(ctx, "bills; DROP TABLE bills", nil)
	require.Error(t, err)
	require.Error(t, tx.Insert(ctx, "bills", map[string]any{"id = 1 --": "x"}))
	require.Error(t, tx.Savepoint(ctx, "bad name"))
}

func TestNaturalKeyIndex_NullBirthDate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	row := func(id string) map[string]any {
		return map[string]any{
			"id": id, "jurisdiction_id": testJurisdiction, "name": "Adam Smith",
			"created_at": "now", "updated_at": "now",
		}
	}
	require.NoError(t, tx.Insert(ctx, "people", row("p1")))
	require.Error(t, tx.Insert(ctx, "people", row("p2")), "NULL birth dates must not bypass the unique key")
}

// =============================================================================
// Typed readers
// =============================================================================

func TestBillByKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	seedBill(t, s)

	b, err := s.BillByKey(ctx, testJurisdiction, "1900", "HB 1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "ocd-bill/1", b.ID)
	assert.Equal(t, []string{"bill"}, b.Classification)
	assert.Nil(t, b.Subject)

	missing, err := s.BillByKey(ctx, testJurisdiction, "1900", "HB 2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestActions_StoredOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	seedBill(t, s)

	withTx(t, s, func(tx *Tx) {
		for _, a := range []struct {
			id   string
			ord  int
			desc string
		}{{"a2", 2, "third"}, {"a0", 0, "first"}, {"a1", 1, "second"}} {
			insert(t, tx, "bill_actions", map[string]any{
				"id": a.id, "bill_id": "ocd-bill/1", "ord": a.ord, "description": a.desc,
				"date": "1900-04-01", "classification": `["passage"]`,
				"organization_id": "ocd-organization/house",
			})
		}
		insert(t, tx, "bill_action_related_entities", map[string]any{
			"id": "re1", "action_id": "a1", "name": "Adam Smith", "entity_type": "person",
		})
	})

	actions, err := s.Actions(ctx, "ocd-bill/1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, "first", actions[0].Description)
	assert.Equal(t, "second", actions[1].Description)
	assert.Equal(t, "third", actions[2].Description)
	assert.Equal(t, []string{"passage"}, actions[0].Classification)
	assert.Equal(t, ptr("ocd-organization/house"), actions[0].OrganizationID)

	related, err := s.RelatedEntities(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Nil(t, related[0].PersonID)
}

func TestSponsorships_PrimaryFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	seedBill(t, s)

	withTx(t, s, func(tx *Tx) {
		insert(t, tx, "bill_sponsorships", map[string]any{
			"id": "sp1", "bill_id": "ocd-bill/1", "name": "Zed", "entity_type": "person",
			"classification": "cosponsor", "is_primary": 0,
		})
		insert(t, tx, "bill_sponsorships", map[string]any{
			"id": "sp2", "bill_id": "ocd-bill/1", "name": "Adam Smith", "entity_type": "person",
			"classification": "sponsor", "is_primary": 1,
		})
	})

	sps, err := s.Sponsorships(ctx, "ocd-bill/1")
	require.NoError(t, err)
	require.Len(t, sps, 2)
	assert.Equal(t, "Adam Smith", sps[0].Name)
	assert.True(t, sps[0].Primary)
	assert.False(t, sps[1].Primary)
	assert.Nil(t, sps[1].PersonID)
}

func TestDocumentsAndLinks(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	seedBill(t, s)

	withTx(t, s, func(tx *Tx) {
		insert(t, tx, "bill_versions", map[string]any{"id": "v1", "bill_id": "ocd-bill/1", "note": "introduced"})
		insert(t, tx, "bill_version_links", map[string]any{
			"id": "l1", "version_id": "v1", "url": "http://example.com/hb1.pdf", "media_type": "application/pdf",
		})
	})

	versions, err := s.Versions(ctx, "ocd-bill/1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	links, err := s.VersionLinks(ctx, versions[0].ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "application/pdf", links[0].MediaType)

	docs, err := s.Documents(ctx, "ocd-bill/1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReaders_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	j, err := s.JurisdictionByID(ctx, "ocd-jurisdiction/none")
	require.NoError(t, err)
	assert.Nil(t, j)
	o, err := s.OrganizationByID(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, o)
	p, err := s.PersonByID(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCountRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedBill(t, s)
	n, err := s.CountRows(context.Background(), "bills")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.CountRows(context.Background(), "bills where 1=1")
	require.Error(t, err)
}

// =============================================================================
// Import runs
// =============================================================================

func TestImportRuns_LastImport(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	none, err := s.LastImport(ctx, testJurisdiction)
	require.NoError(t, err)
	assert.Nil(t, none)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	first := &ImportRun{JurisdictionID: testJurisdiction, StartedAt: base, FinishedAt: base.Add(time.Second), Created: 3}
	second := &ImportRun{JurisdictionID: testJurisdiction, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + 500*time.Millisecond), Unchanged: 3}
	require.NoError(t, s.InsertImportRun(ctx, first))
	require.NoError(t, s.InsertImportRun(ctx, second))
	assert.NotEmpty(t, first.ID)

	last, err := s.LastImport(ctx, testJurisdiction)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, 3, last.Unchanged)
	assert.True(t, second.FinishedAt.Equal(last.FinishedAt))
}

func TestLists(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[]", MarshalList(nil))
	assert.Equal(t, `["a","b"]`, MarshalList([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, UnmarshalList(`["a","b"]`))
	assert.Nil(t, UnmarshalList(""))
	assert.Nil(t, UnmarshalList("null"))
}
