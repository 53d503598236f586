package importer

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// preparedRow is a child entry with its references resolved.
type preparedRow struct {
	values   map[string]any
	entity   *Entity
	deferred []pendingRef
}

// prepareRows resolves the references of child entries.
func (im *Importer) prepareRows(ctx context.Context, r *run, spec ChildSpec, entries []*Entity) ([]preparedRow, error) {
	rows := make([]preparedRow, 0, len(entries))
	for _, e := range entries {
		row := preparedRow{values: make(map[string]any, len(spec.Columns)+len(spec.Refs)), entity: e}
		for _, col := range spec.Columns {
			row.values[col] = e.Values[col]
		}
		for col := range e.Values {
			if !slices.Contains(spec.Columns, col) {
				return nil, fmt.Errorf("%s: unknown column %q", spec.Name, col)
			}
		}
		for _, rs := range spec.Refs {
			ref, given := e.Refs[rs.Column]
			id, ok, err := im.resolveRef(ctx, r.res, rs, ref, given)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", spec.Name, err)
			}
			row.values[rs.Column] = nil
			switch {
			case ok:
				row.values[rs.Column] = id
			case given && rs.Deferred:
				row.deferred = append(row.deferred, pendingRef{table: spec.Table, column: rs.Column, typ: rs.Type, ref: ref})
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// reconcile brings the children of parentID in spec.Table in line with
// entries. It reports whether anything was written.
func (im *Importer) reconcile(ctx context.Context, r *run, spec ChildSpec, parentID string, entries []*Entity, pending *[]pendingRef) (bool, error) {
	next, err := im.prepareRows(ctx, r, spec, entries)
	if err != nil {
		return false, err
	}
	old, err := r.tx.Find(ctx, spec.Table, map[string]any{spec.ParentColumn: parentID})
	if err != nil {
		return false, storeErr("find "+spec.Table, err)
	}

	if spec.Ordered {
		return im.reconcileOrdered(ctx, r, spec, parentID, old, next, pending)
	}
	return im.reconcileSet(ctx, r, spec, parentID, old, next, pending)
}

// reconcileOrdered leaves the collection alone when the sequence is
// identical and otherwise replaces it.
func (im *Importer) reconcileOrdered(ctx context.Context, r *run, spec ChildSpec, parentID string, old []map[string]any, next []preparedRow, pending *[]pendingRef) (bool, error) {
	slices.SortFunc(old, func(a, b map[string]any) int {
		ai, _ := normalize(a[OrderColumn]).(int64)
		bi, _ := normalize(b[OrderColumn]).(int64)
		return int(ai - bi)
	})

	if len(old) == len(next) {
		same := true
		var kept []pendingRef
		for i := range next {
			if !sameColumns(next[i].values, old[i], spec.allColumns()) {
				same = false
				break
			}
			id, _ := old[i]["id"].(string)
			eq, err := im.subtreeEqual(ctx, r, spec.Children, id, next[i].entity)
			if err != nil {
				return false, err
			}
			if !eq {
				same = false
				break
			}
			for _, p := range next[i].deferred {
				p.rowID = id
				kept = append(kept, p)
			}
		}
		if same {
			*pending = append(*pending, kept...)
			return false, nil
		}
	}

	if err := im.deleteRows(ctx, r.tx, spec, rowIDs(old)); err != nil {
		return false, err
	}
	for i, row := range next {
		if err := im.insertRow(ctx, r, spec, parentID, row, i, pending); err != nil {
			return false, err
		}
	}
	return true, nil
}

// reconcileSet matches entries by identity as a multiset. Matched entries
// get their mutable columns and nested collections updated, new entries are
// inserted and stale ones removed unless the collection is append-only.
func (im *Importer) reconcileSet(ctx context.Context, r *run, spec ChildSpec, parentID string, old []map[string]any, next []preparedRow, pending *[]pendingRef) (bool, error) {
	identity := spec.identity()
	mutable := spec.mutable()
	matched := make([]bool, len(old))
	changed := false

	for _, row := range next {
		hit := -1
		for j, o := range old {
			if !matched[j] && sameColumns(row.values, o, identity) {
				hit = j
				break
			}
		}
		if hit < 0 {
			if err := im.insertRow(ctx, r, spec, parentID, row, 0, pending); err != nil {
				return false, err
			}
			changed = true
			continue
		}

		matched[hit] = true
		id, _ := old[hit]["id"].(string)
		for _, p := range row.deferred {
			p.rowID = id
			*pending = append(*pending, p)
		}
		if len(mutable) > 0 {
			upd := changedColumns(pick(row.values, mutable), old[hit])
			if len(upd) > 0 {
				if err := r.tx.Update(ctx, spec.Table, id, upd); err != nil {
					return false, storeErr("update "+spec.Table, err)
				}
				changed = true
			}
		}
		for _, cs := range spec.Children {
			c, err := im.reconcile(ctx, r, cs, id, row.entity.Children[cs.Name], pending)
			if err != nil {
				return false, err
			}
			changed = changed || c
		}
	}

	if spec.AppendOnly {
		return changed, nil
	}
	var stale []map[string]any
	for j, o := range old {
		if !matched[j] {
			stale = append(stale, o)
		}
	}
	if len(stale) > 0 {
		if err := im.deleteRows(ctx, r.tx, spec, rowIDs(stale)); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

func (im *Importer) insertRow(ctx context.Context, r *run, spec ChildSpec, parentID string, row preparedRow, ord int, pending *[]pendingRef) error {
	id := uuid.NewString()
	values := make(map[string]any, len(row.values)+3)
	for k, v := range row.values {
		values[k] = v
	}
	values["id"] = id
	values[spec.ParentColumn] = parentID
	if spec.Ordered {
		values[OrderColumn] = ord
	}
	if err := r.tx.Insert(ctx, spec.Table, storable(values)); err != nil {
		return storeErr("insert "+spec.Table, err)
	}
	for _, p := range row.deferred {
		p.rowID = id
		*pending = append(*pending, p)
	}
	for _, cs := range spec.Children {
		nested, err := im.prepareRows(ctx, r, cs, row.entity.Children[cs.Name])
		if err != nil {
			return err
		}
		for i, n := range nested {
			if err := im.insertRow(ctx, r, cs, id, n, i, pending); err != nil {
				return err
			}
		}
	}
	return nil
}

// subtreeEqual compares the stored collections below parentID with the
// collections of e.
func (im *Importer) subtreeEqual(ctx context.Context, r *run, specs []ChildSpec, parentID string, e *Entity) (bool, error) {
	for _, cs := range specs {
		stored, err := r.tx.Find(ctx, cs.Table, map[string]any{cs.ParentColumn: parentID})
		if err != nil {
			return false, storeErr("find "+cs.Table, err)
		}
		next, err := im.prepareRows(ctx, r, cs, e.Children[cs.Name])
		if err != nil {
			return false, err
		}
		if len(stored) != len(next) {
			return false, nil
		}
		if cs.Ordered {
			slices.SortFunc(stored, func(a, b map[string]any) int {
				ai, _ := normalize(a[OrderColumn]).(int64)
				bi, _ := normalize(b[OrderColumn]).(int64)
				return int(ai - bi)
			})
		}
		used := make([]bool, len(stored))
		for i, n := range next {
			hit := -1
			for j, s := range stored {
				if used[j] || (cs.Ordered && j != i) {
					continue
				}
				if sameColumns(n.values, s, cs.allColumns()) {
					hit = j
					break
				}
			}
			if hit < 0 {
				return false, nil
			}
			used[hit] = true
			id, _ := stored[hit]["id"].(string)
			eq, err := im.subtreeEqual(ctx, r, cs.Children, id, n.entity)
			if err != nil || !eq {
				return false, err
			}
		}
	}
	return true, nil
}

// deleteRows removes rows of spec.Table and everything below them.
func (im *Importer) deleteRows(ctx context.Context, tx Tx, spec ChildSpec, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, cs := range spec.Children {
		var below []string
		for _, id := range ids {
			rows, err := tx.Find(ctx, cs.Table, map[string]any{cs.ParentColumn: id})
			if err != nil {
				return storeErr("find "+cs.Table, err)
			}
			below = append(below, rowIDs(rows)...)
		}
		if err := im.deleteRows(ctx, tx, cs, below); err != nil {
			return err
		}
	}
	if err := tx.Delete(ctx, spec.Table, ids...); err != nil {
		return storeErr("delete "+spec.Table, err)
	}
	im.log.Debug("removed stale entries", zap.String("table", spec.Table), zap.Int("count", len(ids)))
	return nil
}

func rowIDs(rows []map[string]any) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func pick(values map[string]any, cols []string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c] = values[c]
	}
	return out
}
