package docket

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/jward/docket/internal/importer"
	"github.com/jward/docket/internal/pipeline"
	"github.com/jward/docket/internal/runtime"
	"github.com/jward/docket/internal/store"
	"github.com/jward/docket/scrape"
)

// ErrJurisdictionMismatch is returned by Import when the batch carries a
// jurisdiction other than the one being imported.
var ErrJurisdictionMismatch = errors.New("jurisdiction mismatch")

// Engine ties the store, the transform runtime and the import pipeline
// together.
type Engine struct {
	store      *store.Store
	runtime    *runtime.Runtime
	log        *zap.Logger
	scriptsDir string
	scriptsFS  fs.FS

	atomicRun   bool
	atomicTypes map[string]bool
	workers     int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by the store, runtime and importers.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithAtomicRun imports every entity type in one transaction. The first
// failed record rolls back the whole run.
func WithAtomicRun(atomic bool) Option {
	return func(e *Engine) { e.atomicRun = atomic }
}

// WithAtomicTypes makes the importers of the given types stop at their first
// failed record, rolling back that type's transaction.
func WithAtomicTypes(types ...string) Option {
	return func(e *Engine) {
		for _, t := range types {
			e.atomicTypes[t] = true
		}
	}
}

// WithScriptsDir sets the directory holding transform scripts.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) { e.scriptsDir = dir }
}

// WithScriptsFS loads transform scripts from fsys instead of the scripts
// directory. This allows embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) { e.scriptsFS = fsys }
}

// WithWorkers bounds the goroutines ImportDir uses to decode files. Zero
// means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New opens and migrates the store named by dsn and builds the transform
// runtime.
func New(dsn string, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:         zap.NewNop(),
		atomicTypes: make(map[string]bool),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for t := range e.atomicTypes {
		if !knownType(t) {
			return nil, fmt.Errorf("docket: atomic type %q: %w", t, pipeline.ErrUnknownType)
		}
	}

	s, err := store.NewStore(dsn, store.WithLogger(e.log))
	if err != nil {
		return nil, fmt.Errorf("docket: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("docket: migrate: %w", err)
	}
	e.store = s

	rtOpts := []runtime.RuntimeOption{runtime.WithLogger(e.log)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = runtime.NewRuntime(e.scriptsDir, rtOpts...)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a QueryBuilder over the Engine's store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

func knownType(t string) bool {
	for _, s := range importer.Schemas() {
		if s.Type == t {
			return true
		}
	}
	return false
}

// pipeline builds the importers for one jurisdiction.
func (e *Engine) pipeline(jurisdictionID string) (*pipeline.Pipeline, error) {
	p := pipeline.New(
		pipeline.WithLogger(e.log),
		pipeline.WithAtomicRun(e.atomicRun),
		pipeline.WithTarget(importer.SessionType, pipeline.Target{Table: "legislative_sessions", Jurisdiction: jurisdictionID}),
		pipeline.WithTarget(scrape.TypePerson, pipeline.Target{Names: &pipeline.NameTable{Table: "person_names", ParentColumn: "person_id"}}),
		pipeline.WithTarget(scrape.TypeOrganization, pipeline.Target{Names: &pipeline.NameTable{Table: "organization_names", ParentColumn: "organization_id"}}),
	)
	for _, s := range importer.Schemas() {
		imp := importer.New(s, jurisdictionID,
			importer.WithLogger(e.log),
			importer.WithAtomic(e.atomicRun || e.atomicTypes[s.Type]),
			importer.WithClock(e.now),
		)
		if err := p.Register(imp); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ImportOrder returns the entity types in import order without opening a
// store.
func ImportOrder() ([]string, error) {
	e := &Engine{log: zap.NewNop(), atomicTypes: make(map[string]bool), now: time.Now}
	return e.Order()
}

// Order returns the entity types in the order Import processes them.
func (e *Engine) Order() ([]string, error) {
	p, err := e.pipeline("")
	if err != nil {
		return nil, err
	}
	return p.Order()
}

func (e *Engine) begin(ctx context.Context) (pipeline.Tx, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Import transforms and imports one batch for jurisdictionID. Every
// jurisdiction record in the batch must carry that id. A completed run is
// recorded in import_runs; the report is returned even when the run stops
// early.
func (e *Engine) Import(ctx context.Context, jurisdictionID string, b *scrape.Batch) (*Report, error) {
	if jurisdictionID == "" {
		return nil, fmt.Errorf("docket: import: %w: no jurisdiction given", ErrJurisdictionMismatch)
	}
	if b == nil {
		b = &scrape.Batch{}
	}
	for _, j := range b.Jurisdictions {
		if j.ID != jurisdictionID {
			return nil, fmt.Errorf("docket: import: %w: batch has %s, importing %s", ErrJurisdictionMismatch, j.ID, jurisdictionID)
		}
	}

	started := e.now()
	b, err := e.runtime.TransformBatch(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("docket: transform: %w", err)
	}

	p, err := e.pipeline(jurisdictionID)
	if err != nil {
		return nil, fmt.Errorf("docket: %w", err)
	}
	records := make(map[string][]importer.Record)
	for typ, recs := range b.Records() {
		for _, rec := range recs {
			records[typ] = append(records[typ], rec)
		}
	}

	report, err := p.Run(ctx, pipeline.BeginnerFunc(e.begin), records)
	if err != nil {
		return report, fmt.Errorf("docket: %w", err)
	}

	run := &ImportRun{
		JurisdictionID: jurisdictionID,
		StartedAt:      started,
		FinishedAt:     e.now(),
		Created:        report.Count(Created),
		Updated:        report.Count(Updated),
		Unchanged:      report.Count(Unchanged),
		Failed:         report.Count(Failed),
	}
	if err := e.store.InsertImportRun(ctx, run); err != nil {
		return report, fmt.Errorf("docket: %w", err)
	}
	e.log.Named("engine").Info("import finished",
		zap.String("jurisdiction", jurisdictionID),
		zap.String("run", run.ID),
		zap.Int("created", run.Created),
		zap.Int("updated", run.Updated),
		zap.Int("unchanged", run.Unchanged),
		zap.Int("failed", run.Failed),
	)
	return report, nil
}

// ImportDir loads every "<type>_*.json" file in dir and imports the batch.
func (e *Engine) ImportDir(ctx context.Context, jurisdictionID, dir string) (*Report, error) {
	b, err := scrape.LoadDir(ctx, dir, e.workers)
	if err != nil {
		return nil, fmt.Errorf("docket: %w", err)
	}
	e.log.Debug("batch loaded", zap.String("dir", dir), zap.Int("records", b.Len()))
	return e.Import(ctx, jurisdictionID, b)
}

// LastImport returns the most recent recorded run for jurisdictionID, or nil.
func (e *Engine) LastImport(ctx context.Context, jurisdictionID string) (*ImportRun, error) {
	return e.store.LastImport(ctx, jurisdictionID)
}
