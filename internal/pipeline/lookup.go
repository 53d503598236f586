package pipeline

import (
	"context"
	"fmt"
	"maps"

	"github.com/jward/docket/internal/importer"
	"github.com/jward/docket/internal/resolve"
)

// Target says where pseudo ids of one entity type are looked up.
type Target struct {
	Table string
	// Jurisdiction restricts matches to one jurisdiction when set.
	Jurisdiction string
	// Names, when set, is consulted for {"name": …} pseudo ids that match
	// no primary name.
	Names *NameTable
}

// NameTable holds alternate names of a target's records.
type NameTable struct {
	Table        string
	ParentColumn string
}

// stageLookup matches pseudo ids against the store inside the transaction
// of the stage currently running.
type stageLookup struct {
	tx      importer.Tx
	targets map[string]Target
}

func (l *stageLookup) LookupID(ctx context.Context, entityType string, key map[string]any) (string, error) {
	t, ok := l.targets[entityType]
	if !ok {
		return "", fmt.Errorf("no lookup table for %s", entityType)
	}
	if l.tx == nil {
		return "", fmt.Errorf("lookup %s outside a transaction", entityType)
	}
	match := maps.Clone(key)
	if t.Jurisdiction != "" {
		match[importer.ScopeColumn] = t.Jurisdiction
	}
	rows, err := l.tx.Find(ctx, t.Table, match)
	if err != nil {
		return "", fmt.Errorf("%w: lookup %s: %w", importer.ErrStoreFailure, entityType, err)
	}
	ids := idsOf(rows)
	if len(ids) == 0 && t.Names != nil {
		if ids, err = l.byOtherName(ctx, t, key); err != nil {
			return "", err
		}
	}
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return "", fmt.Errorf("%w: no %s matches %v", resolve.ErrDanglingReference, entityType, key)
	default:
		return "", fmt.Errorf("%w: %d %s records match %v", resolve.ErrDanglingReference, len(ids), entityType, key)
	}
}

// byOtherName resolves {"name": X} through the alternate names table.
func (l *stageLookup) byOtherName(ctx context.Context, t Target, key map[string]any) ([]string, error) {
	name, ok := key["name"]
	if !ok || len(key) != 1 {
		return nil, nil
	}
	rows, err := l.tx.Find(ctx, t.Names.Table, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("%w: lookup other names: %w", importer.ErrStoreFailure, err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, row := range rows {
		parent, _ := row[t.Names.ParentColumn].(string)
		if parent == "" || seen[parent] {
			continue
		}
		seen[parent] = true
		match := map[string]any{"id": parent}
		if t.Jurisdiction != "" {
			match[importer.ScopeColumn] = t.Jurisdiction
		}
		owners, err := l.tx.Find(ctx, t.Table, match)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup other names: %w", importer.ErrStoreFailure, err)
		}
		ids = append(ids, idsOf(owners)...)
	}
	return ids, nil
}

func idsOf(rows []map[string]any) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
