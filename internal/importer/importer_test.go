package importer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/docket/internal/graph"
	"github.com/jward/docket/internal/resolve"
	"github.com/jward/docket/internal/store"
	"github.com/jward/docket/scrape"
)

const testJurisdiction = "ocd-jurisdiction/country:us/state:ex/government"

var lookupTables = map[string]struct {
	table  string
	scoped bool
}{
	scrape.TypeJurisdiction: {"jurisdictions", false},
	scrape.TypeOrganization: {"organizations", true},
	scrape.TypePerson:       {"people", true},
	scrape.TypeBill:         {"bills", true},
	SessionType:             {"legislative_sessions", true},
}

// txLookup matches pseudo ids inside the current transaction.
type txLookup struct {
	tx Tx
}

func (l *txLookup) LookupID(ctx context.Context, entityType string, key map[string]any) (string, error) {
	tgt := lookupTables[entityType]
	match := maps.Clone(key)
	if tgt.scoped {
		match[ScopeColumn] = testJurisdiction
	}
	rows, err := l.tx.Find(ctx, tgt.table, match)
	if err != nil {
		return "", err
	}
	if len(rows) != 1 {
		return "", fmt.Errorf("%w: %d rows", resolve.ErrDanglingReference, len(rows))
	}
	return rows[0]["id"].(string), nil
}

type fixture struct {
	t      *testing.T
	st     *store.Store
	lookup *txLookup
	res    *resolve.Session
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lookup := &txLookup{}
	return &fixture{t: t, st: newTestStore(t), lookup: lookup, res: resolve.NewSession(lookup)}
}

func fixedClock() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }

// tryImport runs one importer in its own transaction, committing on
// success and rolling back on error.
func (f *fixture) tryImport(schema Schema, opts []Option, recs ...Record) (*Result, error) {
	f.t.Helper()
	ctx := context.Background()
	tx, err := f.st.Begin(ctx)
	require.NoError(f.t, err)
	f.lookup.tx = tx
	imp := New(schema, testJurisdiction, append([]Option{WithClock(fixedClock)}, opts...)...)
	res, err := imp.ImportData(ctx, tx, f.res, recs)
	if err != nil {
		require.NoError(f.t, tx.Rollback())
		return res, err
	}
	require.NoError(f.t, tx.Commit())
	return res, nil
}

func (f *fixture) mustImport(schema Schema, recs ...Record) *Result {
	f.t.Helper()
	res, err := f.tryImport(schema, nil, recs...)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) count(table string) int {
	f.t.Helper()
	n, err := f.st.CountRows(context.Background(), table)
	require.NoError(f.t, err)
	return n
}

func outcomes(res *Result) []Outcome {
	out := make([]Outcome, len(res.Items))
	for i, it := range res.Items {
		out[i] = it.Outcome
	}
	return out
}

// seed imports the jurisdiction with sessions 1899 and 1900, the
// legislature and its House.
func (f *fixture) seed() (house string) {
	f.t.Helper()
	j := scrape.NewJurisdiction(testJurisdiction, "Example", "http://example.com")
	j.AddSession("1899", "")
	j.AddSession("1900", "")
	f.mustImport(JurisdictionSchema(), j)

	leg := scrape.NewOrganization("Example Legislature", "legislature")
	h := scrape.NewOrganization("House", "lower")
	h.Chamber = "lower"
	res := f.mustImport(OrganizationSchema(), leg, h)
	require.Equal(f.t, []Outcome{Created, Created}, outcomes(res))
	return res.Items[1].ID
}

// =============================================================================
// Create, update, unchanged
// =============================================================================

func TestImport_CreateThenUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	p := scrape.NewPerson("Adam Smith")
	p.AddSource("http://example.com/adam", "")
	res := f.mustImport(PersonSchema(), p)
	require.Len(t, res.Items, 1)
	assert.Equal(t, Created, res.Items[0].Outcome)
	assert.True(t, resolve.IsStableID(scrape.TypePerson, res.Items[0].ID))
	assert.Equal(t, "name=Adam Smith birth_date=<nil>", res.Items[0].Key)

	again := scrape.NewPerson("Adam Smith")
	again.AddSource("http://example.com/adam", "")
	res2 := f.mustImport(PersonSchema(), again)
	assert.Equal(t, []Outcome{Unchanged}, outcomes(res2))
	assert.Equal(t, res.Items[0].ID, res2.Items[0].ID)
	assert.Equal(t, 1, f.count("people"))
	assert.Equal(t, 1, f.count("person_sources"))
}

func TestImport_UpdateOnlyChangedColumns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	p := scrape.NewPerson("Adam Smith")
	p.Image = "http://example.com/adam.jpg"
	id := f.mustImport(PersonSchema(), p).Items[0].ID

	// Absent image must survive; gender is new.
	p2 := scrape.NewPerson("Adam Smith")
	p2.Gender = "male"
	res := f.mustImport(PersonSchema(), p2)
	assert.Equal(t, []Outcome{Updated}, outcomes(res))

	got, err := f.st.PersonByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/adam.jpg", got.Image)
	assert.Equal(t, "male", got.Gender)
}

func TestImport_ChildCollectionReflectsLatest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	p := scrape.NewPerson("Adam Smith")
	p.AddSource("http://a", "")
	p.AddSource("http://b", "")
	id := f.mustImport(PersonSchema(), p).Items[0].ID

	p2 := scrape.NewPerson("Adam Smith")
	p2.AddSource("http://b", "primary")
	p2.AddSource("http://c", "")
	res := f.mustImport(PersonSchema(), p2)
	assert.Equal(t, []Outcome{Updated}, outcomes(res))

	sources, err := f.st.Sources(context.Background(), "person_sources", "person_id", id)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "http://b", sources[0].URL)
	assert.Equal(t, "primary", sources[0].Note)
	assert.Equal(t, "http://c", sources[1].URL)
}

func TestImport_AppendOnlySessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	j := scrape.NewJurisdiction(testJurisdiction, "Example", "http://example.com")
	j.AddSession("1901", "")
	res := f.mustImport(JurisdictionSchema(), j)
	assert.Equal(t, []Outcome{Updated}, outcomes(res))
	assert.Equal(t, testJurisdiction, res.Items[0].ID)

	sessions, err := f.st.Sessions(context.Background(), testJurisdiction)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "1899", sessions[0].Identifier)
	assert.Equal(t, "1901", sessions[2].Identifier)
}

// =============================================================================
// Duplicates within a batch
// =============================================================================

func TestImport_IdenticalDuplicateIsUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	a := scrape.NewPerson("Adam Smith")
	b := scrape.NewPerson("Adam Smith")
	res := f.mustImport(PersonSchema(), a, b)
	assert.Equal(t, []Outcome{Created, Unchanged}, outcomes(res))
	assert.Equal(t, res.Items[0].ID, res.Items[1].ID)

	ids := res.IDs()
	assert.Equal(t, ids[a.ID], ids[b.ID])

	// Both temporary ids resolve.
	id, err := f.res.Resolve(context.Background(), scrape.TypePerson, b.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Items[0].ID, id)
}

func TestImport_ConflictingDuplicateFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	a := scrape.NewPerson("Adam Smith")
	b := scrape.NewPerson("Adam Smith")
	b.Gender = "male"
	res := f.mustImport(PersonSchema(), a, b)
	assert.Equal(t, []Outcome{Created, Failed}, outcomes(res))
	require.ErrorIs(t, res.Items[1].Err, ErrNaturalKeyConflict)

	var recErr *RecordError
	require.ErrorAs(t, res.Items[1].Err, &recErr)
	assert.Equal(t, scrape.TypePerson, recErr.Type)
	assert.Equal(t, b.ID, recErr.LocalID)
	assert.Equal(t, 1, f.count("people"))
}

// =============================================================================
// References
// =============================================================================

func TestImport_MembershipResolvesTemporaryIDs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	house := f.seed()

	p := scrape.NewPerson("Adam Smith")
	personID := f.mustImport(PersonSchema(), p).Items[0].ID

	m := scrape.NewMembership(p.ID, house, "member")
	res := f.mustImport(MembershipSchema(), m)
	require.Equal(t, []Outcome{Created}, outcomes(res))

	ms, err := f.st.MembershipsByPerson(context.Background(), personID)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, house, ms[0].OrganizationID)
}

func TestImport_DanglingRequiredReferenceFailsRecordOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	house := f.seed()

	p := scrape.NewPerson("Adam Smith")
	f.mustImport(PersonSchema(), p)

	bad := scrape.NewMembership("not-a-person", house, "member")
	good := scrape.NewMembership(p.ID, house, "member")
	res := f.mustImport(MembershipSchema(), bad, good)
	assert.Equal(t, []Outcome{Failed, Created}, outcomes(res))
	require.ErrorIs(t, res.Items[0].Err, resolve.ErrDanglingReference)

	var refErr *resolve.ReferenceError
	require.ErrorAs(t, res.Items[0].Err, &refErr)
	assert.Equal(t, "not-a-person", refErr.Ref)
	assert.Equal(t, 1, f.count("memberships"))
}

func TestImport_AtomicStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	house := f.seed()

	p := scrape.NewPerson("Adam Smith")
	f.mustImport(PersonSchema(), p)

	good := scrape.NewMembership(p.ID, house, "member")
	bad := scrape.NewMembership("not-a-person", house, "member")
	res, err := f.tryImport(MembershipSchema(), []Option{WithAtomic(true)}, good, bad)
	require.ErrorIs(t, err, resolve.ErrDanglingReference)
	assert.Equal(t, []Outcome{Created, Failed}, outcomes(res))
	assert.Zero(t, f.count("memberships"), "caller rolled back the transaction")
}

func TestImport_PassThroughResolver(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	house := f.seed()
	p := scrape.NewPerson("Adam Smith")
	personID := f.mustImport(PersonSchema(), p).Items[0].ID

	ctx := context.Background()
	tx, err := f.st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	imp := New(MembershipSchema(), testJurisdiction)
	res, err := imp.ImportData(ctx, tx, resolve.PassThrough{}, []Record{scrape.NewMembership(personID, house, "member")})
	require.NoError(t, err)
	assert.Equal(t, []Outcome{Created}, outcomes(res))
}

// =============================================================================
// Same-type ordering
// =============================================================================

func TestImport_ParentsBeforeChildren(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	house := f.seed()

	senate := scrape.NewOrganization("Senate", "upper")
	senate.Chamber = "upper"
	committee := scrape.NewOrganization("Finance", "committee")
	committee.ParentID = senate.ID
	sub := scrape.NewOrganization("Taxation", "committee")
	sub.ParentID = committee.ID
	houseFinance := scrape.NewOrganization("Finance", "committee")
	houseFinance.ParentID = house

	res := f.mustImport(OrganizationSchema(), sub, committee, houseFinance, senate)
	require.Len(t, res.Items, 4)
	assert.Equal(t, []int{2, 3, 1, 0}, []int{res.Items[0].Index, res.Items[1].Index, res.Items[2].Index, res.Items[3].Index})
	for _, it := range res.Items {
		assert.Equal(t, Created, it.Outcome, it.LocalID)
	}

	ids := res.IDs()
	got, err := f.st.OrganizationByID(context.Background(), ids[sub.ID])
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, ids[committee.ID], *got.ParentID)

	hf, err := f.st.OrganizationByID(context.Background(), ids[houseFinance.ID])
	require.NoError(t, err)
	assert.Equal(t, house, *hf.ParentID)
}

func TestImport_ParentCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	a := scrape.NewOrganization("A", "committee")
	b := scrape.NewOrganization("B", "committee")
	a.ParentID = b.ID
	b.ParentID = a.ID

	_, err := f.tryImport(OrganizationSchema(), nil, a, b)
	require.ErrorIs(t, err, graph.ErrCyclicGraph)
}

// =============================================================================
// Failures & cancellation
// =============================================================================

func TestImport_InvalidRecordReported(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()

	res := f.mustImport(PersonSchema(), scrape.NewPerson(""), scrape.NewPerson("Adam Smith"))
	require.Len(t, res.Items, 2)
	assert.Equal(t, Failed, res.Items[0].Outcome)
	assert.ErrorIs(t, res.Items[0].Err, scrape.ErrInvalid)
	assert.Equal(t, Created, res.Items[1].Outcome)
}

func TestImport_WrongRecordType(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()
	res := f.mustImport(PersonSchema(), scrape.NewOrganization("House", "lower"))
	require.Len(t, res.Items, 1)
	assert.Equal(t, Failed, res.Items[0].Outcome)
}

func TestImport_Cancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx, err := f.st.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = New(PersonSchema(), testJurisdiction).ImportData(ctx, tx, f.res, []Record{scrape.NewPerson("Adam Smith")})
	require.ErrorIs(t, err, context.Canceled)
}

// failingTx fails inserts into one table.
type failingTx struct {
	*store.Tx
	table string
}

func (f failingTx) Insert(ctx context.Context, table string, row map[string]any) error {
	if table == f.table {
		return errors.New("disk full")
	}
	return f.Tx.Insert(ctx, table, row)
}

func TestImport_StoreFailureRollsBackRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()
	ctx := context.Background()

	tx, err := f.st.Begin(ctx)
	require.NoError(t, err)
	f.lookup.tx = tx

	withSource := scrape.NewPerson("Adam Smith")
	withSource.AddSource("http://example.com", "")
	plain := scrape.NewPerson("Jane Doe")

	res, err := New(PersonSchema(), testJurisdiction).ImportData(ctx, failingTx{Tx: tx, table: "person_sources"}, f.res,
		[]Record{withSource, plain})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, []Outcome{Failed, Created}, outcomes(res))
	require.ErrorIs(t, res.Items[0].Err, ErrStoreFailure)
	people, err := f.st.People(ctx, testJurisdiction)
	require.NoError(t, err)
	require.Len(t, people, 1, "the failed person's row was rolled back")
	assert.Equal(t, "Jane Doe", people[0].Name)
}

// =============================================================================
// Logging
// =============================================================================

func TestImport_LogsFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	house := f.seed()
	core, logs := observer.New(zap.WarnLevel)

	_, err := f.tryImport(MembershipSchema(), []Option{WithLogger(zap.New(core))},
		scrape.NewMembership("nobody", house, "member"))
	require.NoError(t, err)

	entries := logs.FilterMessage("record failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, scrape.TypeMembership, entries[0].LoggerName)
	assert.Contains(t, entries[0].ContextMap()["error"], "nobody")
}

func TestImport_LogsChangedColumns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed()
	f.mustImport(PersonSchema(), scrape.NewPerson("Adam Smith"))
	core, logs := observer.New(zap.DebugLevel)

	p := scrape.NewPerson("Adam Smith")
	p.Gender = "male"
	_, err := f.tryImport(PersonSchema(), []Option{WithLogger(zap.New(core))}, p)
	require.NoError(t, err)

	entries := logs.FilterMessage("record changed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["diff"], "male")
	assert.Equal(t, "name=Adam Smith birth_date=<nil>", entries[0].ContextMap()["key"])
}
