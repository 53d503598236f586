// Package importer reconciles scrape records of one entity type with the
// store. Each Importer is configured by a Schema describing the target
// table, its natural key, its references and its child collections.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jward/docket/internal/graph"
	"github.com/jward/docket/internal/resolve"
)

// Tx is the slice of a store transaction the importer needs. Rows are plain
// column maps; a nil value in a Find match means IS NULL.
type Tx interface {
	Find(ctx context.Context, table string, match map[string]any) ([]map[string]any, error)
	Insert(ctx context.Context, table string, row map[string]any) error
	Update(ctx context.Context, table, id string, changes map[string]any) error
	Delete(ctx context.Context, table string, ids ...string) error
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
}

// Declarer is implemented by resolvers that accept new id assignments.
type Declarer interface {
	Declare(entityType, ref, id string)
}

// Importer imports records of a single entity type.
type Importer struct {
	schema       Schema
	jurisdiction string
	atomic       bool
	log          *zap.Logger
	now          func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.log = l }
}

// WithAtomic makes ImportData stop and return an error at the first failed
// record. The caller is expected to roll back the transaction.
func WithAtomic(atomic bool) Option {
	return func(im *Importer) { im.atomic = atomic }
}

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// New returns an Importer for schema. jurisdiction scopes natural-key
// matching for scoped schemas.
func New(schema Schema, jurisdiction string, opts ...Option) *Importer {
	im := &Importer{
		schema:       schema,
		jurisdiction: jurisdiction,
		log:          zap.NewNop(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(im)
	}
	im.log = im.log.Named(schema.Type)
	return im
}

// Type returns the entity type handled by the importer.
func (im *Importer) Type() string { return im.schema.Type }

// DependsOn returns the entity types that must be imported first.
func (im *Importer) DependsOn() []string { return im.schema.DependsOn }

// Schema returns the importer's configuration.
func (im *Importer) Schema() Schema { return im.schema }

// Jurisdiction returns the jurisdiction the importer writes into.
func (im *Importer) Jurisdiction() string { return im.jurisdiction }

// pendingRef is a deferred reference waiting for the rest of the batch.
type pendingRef struct {
	table  string
	rowID  string
	column string
	typ    string
	ref    string
}

type seenKey struct {
	id   string
	hash string
}

// run carries the state of one ImportData call.
type run struct {
	tx       Tx
	res      resolve.Resolver
	seen     map[string]seenKey
	deferred []pendingRef
}

// ImportData reconciles records with the store inside tx. Per-record
// failures are reported in the Result; the returned error is non-nil only
// when the context is cancelled, the store fails outside a record, or the
// importer is atomic and a record failed.
func (im *Importer) ImportData(ctx context.Context, tx Tx, res resolve.Resolver, records []Record) (*Result, error) {
	result := &Result{Type: im.schema.Type}
	r := &run{tx: tx, res: res, seen: make(map[string]seenKey)}

	entities := make([]*Entity, len(records))
	for i, rec := range records {
		ent, err := im.prepare(rec)
		if err != nil {
			item := Item{Index: i, Outcome: Failed, Err: &RecordError{Type: im.schema.Type, Err: err}}
			if ent != nil {
				item.LocalID = ent.LocalID
				item.Err = &RecordError{Type: im.schema.Type, LocalID: ent.LocalID, Err: err}
			}
			result.Items = append(result.Items, item)
			im.log.Warn("invalid record", zap.Int("index", i), zap.Error(err))
			if im.atomic {
				return result, item.Err
			}
			continue
		}
		entities[i] = ent
	}

	order, err := im.order(entities)
	if err != nil {
		return result, err
	}

	for n, i := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item := im.importOne(ctx, r, n, i, entities[i])
		result.Items = append(result.Items, item)
		if item.Outcome == Failed {
			if errors.Is(item.Err, context.Canceled) || errors.Is(item.Err, context.DeadlineExceeded) {
				return result, item.Err
			}
			if im.atomic {
				return result, item.Err
			}
		}
	}

	if err := im.resolveDeferred(ctx, r); err != nil {
		return result, err
	}

	im.log.Debug("imported",
		zap.Int("created", result.Count(Created)),
		zap.Int("updated", result.Count(Updated)),
		zap.Int("unchanged", result.Count(Unchanged)),
		zap.Int("failed", result.Count(Failed)),
	)
	return result, nil
}

func (im *Importer) prepare(rec Record) (*Entity, error) {
	if rec == nil {
		return nil, errors.New("nil record")
	}
	if t := rec.EntityType(); t != im.schema.Type {
		return nil, fmt.Errorf("record of type %q given to %s importer", t, im.schema.Type)
	}
	if im.schema.Prepare == nil {
		return nil, fmt.Errorf("%s importer has no Prepare function", im.schema.Type)
	}
	ent, err := im.schema.Prepare(rec)
	if err != nil {
		return ent, err
	}
	for col := range ent.Values {
		if !im.schema.allowed(col) {
			return ent, fmt.Errorf("unknown column %q", col)
		}
	}
	return ent, nil
}

// order returns entity indexes so that records referencing another record
// of the same batch through ParentRef come after it. Nil entries (records
// that failed to prepare) are skipped.
func (im *Importer) order(entities []*Entity) ([]int, error) {
	if im.schema.ParentRef == "" {
		var out []int
		for i, e := range entities {
			if e != nil {
				out = append(out, i)
			}
		}
		return out, nil
	}

	byLocal := make(map[string]int)
	g := graph.New[int]()
	for i, e := range entities {
		if e == nil {
			continue
		}
		g.AddNode(i)
		if e.LocalID != "" {
			byLocal[e.LocalID] = i
		}
	}
	for i, e := range entities {
		if e == nil {
			continue
		}
		if parent, ok := byLocal[e.Refs[im.schema.ParentRef]]; ok {
			g.AddEdge(i, parent)
		}
	}
	order, err := g.Order()
	if err != nil {
		return nil, fmt.Errorf("order %s records by %s: %w", im.schema.Type, im.schema.ParentRef, err)
	}
	return order, nil
}

func (im *Importer) importOne(ctx context.Context, r *run, n, index int, ent *Entity) Item {
	item := Item{Index: index, LocalID: ent.LocalID}
	fail := func(err error) Item {
		item.Outcome = Failed
		item.Err = &RecordError{Type: im.schema.Type, LocalID: ent.LocalID, Key: item.Key, Err: err}
		im.log.Warn("record failed",
			zap.String("local_id", ent.LocalID),
			zap.String("key", item.Key),
			zap.Error(err),
		)
		return item
	}

	sp := fmt.Sprintf("rec_%d", n)
	if err := r.tx.Savepoint(ctx, sp); err != nil {
		return fail(storeErr("savepoint", err))
	}

	var pending []pendingRef
	id, outcome, err := im.apply(ctx, r, ent, &item, &pending)
	if err != nil {
		if rbErr := r.tx.RollbackTo(ctx, sp); rbErr != nil {
			err = errors.Join(err, storeErr("rollback to savepoint", rbErr))
		} else if relErr := r.tx.Release(ctx, sp); relErr != nil {
			err = errors.Join(err, storeErr("release savepoint", relErr))
		}
		return fail(err)
	}
	if err := r.tx.Release(ctx, sp); err != nil {
		return fail(storeErr("release savepoint", err))
	}

	r.deferred = append(r.deferred, pending...)
	item.ID = id
	item.Outcome = outcome
	im.log.Debug("record imported",
		zap.String("local_id", ent.LocalID),
		zap.String("id", id),
		zap.String("outcome", string(outcome)),
	)
	return item
}

// apply writes one record. It returns the stable id and the outcome.
func (im *Importer) apply(ctx context.Context, r *run, ent *Entity, item *Item, pending *[]pendingRef) (string, Outcome, error) {
	s := im.schema
	values := make(map[string]any, len(ent.Values)+len(s.Refs)+1)
	for k, v := range ent.Values {
		values[k] = v
	}
	if s.Scoped {
		values[ScopeColumn] = im.jurisdiction
	}
	if s.KeepLocalID {
		values["id"] = ent.LocalID
	}

	var self []pendingRef
	for _, rs := range s.Refs {
		ref, given := ent.Refs[rs.Column]
		id, ok, err := im.resolveRef(ctx, r.res, rs, ref, given)
		if err != nil {
			return "", Failed, err
		}
		switch {
		case ok:
			values[rs.Column] = id
		case given:
			values[rs.Column] = nil
			if rs.Deferred {
				self = append(self, pendingRef{table: s.Table, column: rs.Column, typ: rs.Type, ref: ref})
			}
		}
	}

	key := project(values, s.NaturalKey)
	item.Key = describeKey(values, s.NaturalKey)
	keyStr := fmt.Sprint(key)
	hash := fingerprint(values, ent)
	if prev, ok := r.seen[keyStr]; ok {
		if prev.hash != hash {
			return "", Failed, fmt.Errorf("%w: %s already imported in this batch as %s with different content",
				ErrNaturalKeyConflict, item.Key, prev.id)
		}
		im.declare(r.res, ent, values, prev.id)
		return prev.id, Unchanged, nil
	}

	var (
		id      string
		outcome Outcome
	)
	rows, err := r.tx.Find(ctx, s.Table, key)
	if err != nil {
		return "", Failed, storeErr("find "+s.Table, err)
	}
	switch len(rows) {
	case 0:
		id = ent.LocalID
		if !s.KeepLocalID || id == "" {
			id = resolve.StableIDPrefix(s.Type) + uuid.NewString()
		}
		now := im.now().UTC().Format(time.RFC3339)
		values["id"] = id
		values["created_at"] = now
		values["updated_at"] = now
		if err := r.tx.Insert(ctx, s.Table, storable(values)); err != nil {
			return "", Failed, storeErr("insert "+s.Table, err)
		}
		for _, spec := range s.Children {
			if _, err := im.reconcile(ctx, r, spec, id, ent.Children[spec.Name], pending); err != nil {
				return "", Failed, err
			}
		}
		outcome = Created
	case 1:
		existing := rows[0]
		id, _ = existing["id"].(string)
		changes := changedColumns(values, existing)
		changed := len(changes) > 0
		for _, spec := range s.Children {
			c, err := im.reconcile(ctx, r, spec, id, ent.Children[spec.Name], pending)
			if err != nil {
				return "", Failed, err
			}
			changed = changed || c
		}
		if len(changes) > 0 {
			im.log.Debug("record changed",
				zap.String("id", id),
				zap.String("key", item.Key),
				zap.String("diff", cmp.Diff(project(existing, keysOf(changes)), changes)),
			)
		}
		if changed {
			changes["updated_at"] = im.now().UTC().Format(time.RFC3339)
			if err := r.tx.Update(ctx, s.Table, id, changes); err != nil {
				return "", Failed, storeErr("update "+s.Table, err)
			}
			outcome = Updated
		} else {
			outcome = Unchanged
		}
	default:
		return "", Failed, fmt.Errorf("%w: %d stored %s records match %s", ErrNaturalKeyConflict, len(rows), s.Type, item.Key)
	}

	for i := range self {
		self[i].rowID = id
	}
	*pending = append(*pending, self...)
	r.seen[keyStr] = seenKey{id: id, hash: hash}
	im.declare(r.res, ent, values, id)
	return id, outcome, nil
}

// declare registers the new id under the scrape id and under the pseudo id
// built from the natural key, so later references of either form resolve.
func (im *Importer) declare(res resolve.Resolver, ent *Entity, values map[string]any, id string) {
	d, ok := res.(Declarer)
	if !ok {
		return
	}
	d.Declare(im.schema.Type, ent.LocalID, id)
	fields := make(map[string]any)
	for _, col := range im.schema.NaturalKey {
		if col == ScopeColumn {
			continue
		}
		if v := values[col]; v != nil {
			fields[col] = v
		}
	}
	if len(fields) > 0 {
		d.Declare(im.schema.Type, resolve.PseudoID(fields), id)
	}
}

// resolveRef applies the policy of rs. ok reports whether a stable id was
// found; err is set only when the record must fail.
func (im *Importer) resolveRef(ctx context.Context, res resolve.Resolver, rs RefSpec, ref string, given bool) (string, bool, error) {
	if !given || ref == "" {
		if rs.Policy == Required {
			return "", false, &resolve.ReferenceError{Type: rs.Type, Ref: ref, Err: resolve.ErrDanglingReference}
		}
		return "", false, nil
	}
	id, err := res.Resolve(ctx, rs.Type, ref)
	if err == nil {
		return id, true, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStoreFailure) {
		return "", false, err
	}
	if rs.Policy == Unlinked {
		level := im.log.Warn
		if rs.Deferred {
			level = im.log.Debug
		}
		level("reference left unlinked",
			zap.String("column", rs.Column),
			zap.String("type", rs.Type),
			zap.String("ref", ref),
			zap.Error(err),
		)
		return "", false, nil
	}
	return "", false, err
}

// resolveDeferred retries references that did not resolve while the batch
// was being imported.
func (im *Importer) resolveDeferred(ctx context.Context, r *run) error {
	for _, p := range r.deferred {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := r.res.Resolve(ctx, p.typ, p.ref)
		if err != nil {
			im.log.Warn("deferred reference left unlinked",
				zap.String("table", p.table),
				zap.String("column", p.column),
				zap.String("ref", p.ref),
				zap.Error(err),
			)
			continue
		}
		if err := r.tx.Update(ctx, p.table, p.rowID, map[string]any{p.column: id}); err != nil {
			return storeErr("link deferred reference", err)
		}
	}
	r.deferred = nil
	return nil
}
