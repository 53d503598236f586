// Package pipeline runs the importers of every entity type in dependency
// order against one store, sharing a single resolver session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jward/docket/internal/graph"
	"github.com/jward/docket/internal/importer"
	"github.com/jward/docket/internal/resolve"
)

var (
	// ErrCyclicDependency wraps graph.ErrCyclicGraph when importer
	// dependencies form a cycle.
	ErrCyclicDependency = errors.New("cyclic importer dependency")
	// ErrUnknownDependency is returned when an importer depends on a type
	// nobody registered.
	ErrUnknownDependency = errors.New("unknown importer dependency")
	// ErrUnknownType is returned when Run receives records of an
	// unregistered type.
	ErrUnknownType = errors.New("no importer for entity type")
	// ErrDuplicateImporter is returned by Register for a second importer of
	// the same type.
	ErrDuplicateImporter = errors.New("importer already registered")
)

// Tx is a store transaction usable by importers.
type Tx interface {
	importer.Tx
	Commit() error
	Rollback() error
}

// Beginner starts store transactions.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// BeginnerFunc adapts a function to Beginner.
type BeginnerFunc func(ctx context.Context) (Tx, error)

func (f BeginnerFunc) Begin(ctx context.Context) (Tx, error) { return f(ctx) }

// Pipeline orders and runs importers.
type Pipeline struct {
	importers map[string]*importer.Importer
	types     []string // registration order
	targets   map[string]Target
	atomicRun bool
	log       *zap.Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithAtomicRun runs every type in one transaction. Any failed record or
// error rolls back the whole run.
func WithAtomicRun(atomic bool) Option {
	return func(p *Pipeline) { p.atomicRun = atomic }
}

// WithTarget registers a lookup table for pseudo ids of entityType that no
// importer writes directly, such as legislative sessions.
func WithTarget(entityType string, t Target) Option {
	return func(p *Pipeline) { p.targets[entityType] = t }
}

// New returns an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		importers: make(map[string]*importer.Importer),
		targets:   make(map[string]Target),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.Named("pipeline")
	return p
}

// Register adds an importer. Its table becomes the lookup target for
// pseudo ids of its type.
func (p *Pipeline) Register(imp *importer.Importer) error {
	typ := imp.Type()
	if _, dup := p.importers[typ]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateImporter, typ)
	}
	p.importers[typ] = imp
	p.types = append(p.types, typ)

	s := imp.Schema()
	t := Target{Table: s.Table}
	if s.Scoped {
		t.Jurisdiction = imp.Jurisdiction()
	}
	if prev, ok := p.targets[typ]; ok {
		t.Names = prev.Names
	}
	p.targets[typ] = t
	return nil
}

// Order returns the entity types in import order. Types with no dependency
// between them keep registration order.
func (p *Pipeline) Order() ([]string, error) {
	g := graph.New[string]()
	for _, typ := range p.types {
		g.AddNode(typ)
	}
	for _, typ := range p.types {
		for _, dep := range p.importers[typ].DependsOn() {
			if _, ok := p.importers[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, typ, dep)
			}
			g.AddEdge(typ, dep)
		}
	}
	order, err := g.Order()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCyclicDependency, err)
	}
	return order, nil
}

// Run imports records type by type. Each type commits in its own
// transaction unless the pipeline is run-atomic, in which case a type with a
// failed record stops the run. The report covers every type processed,
// including the one that failed.
func (p *Pipeline) Run(ctx context.Context, db Beginner, records map[string][]importer.Record) (*Report, error) {
	order, err := p.Order()
	if err != nil {
		return nil, err
	}
	for typ := range records {
		if _, ok := p.importers[typ]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
		}
	}

	report := &Report{Started: p.now()}
	lookup := &stageLookup{targets: p.targets}
	session := resolve.NewSession(lookup)

	var runTx Tx
	if p.atomicRun {
		if runTx, err = db.Begin(ctx); err != nil {
			return report, fmt.Errorf("%w: begin: %w", importer.ErrStoreFailure, err)
		}
		defer runTx.Rollback()
	}

	for _, typ := range order {
		recs := records[typ]
		if len(recs) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tx := runTx
		if tx == nil {
			if tx, err = db.Begin(ctx); err != nil {
				return report, fmt.Errorf("%w: begin %s: %w", importer.ErrStoreFailure, typ, err)
			}
		}
		lookup.tx = tx

		start := p.now()
		p.log.Info("importing", zap.String("type", typ), zap.Int("records", len(recs)))
		result, err := p.importers[typ].ImportData(ctx, tx, session, recs)
		if result != nil {
			report.Results = append(report.Results, result)
		}
		if err == nil && runTx != nil {
			if failed := result.Failures(); len(failed) > 0 {
				err = failed[0].Err
				if err == nil {
					err = fmt.Errorf("%s record %s failed", typ, failed[0].LocalID)
				}
			}
		}
		if err != nil {
			if runTx == nil {
				tx.Rollback()
			}
			p.log.Error("import aborted", zap.String("type", typ), zap.Error(err))
			return report, fmt.Errorf("import %s: %w", typ, err)
		}
		if runTx == nil {
			if err := tx.Commit(); err != nil {
				return report, fmt.Errorf("%w: commit %s: %w", importer.ErrStoreFailure, typ, err)
			}
		}
		p.log.Info("imported",
			zap.String("type", typ),
			zap.Int("created", result.Count(importer.Created)),
			zap.Int("updated", result.Count(importer.Updated)),
			zap.Int("unchanged", result.Count(importer.Unchanged)),
			zap.Int("failed", result.Count(importer.Failed)),
			zap.Duration("elapsed", p.now().Sub(start)),
		)
	}

	if runTx != nil {
		if err := runTx.Commit(); err != nil {
			return report, fmt.Errorf("%w: commit: %w", importer.ErrStoreFailure, err)
		}
	}
	report.Finished = p.now()
	return report, nil
}
