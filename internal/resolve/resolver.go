// Package resolve turns scrape-local references into stable identifiers.
//
// A reference is one of:
//   - a stable id ("ocd-bill/…"), returned once the record is known to exist;
//   - a temporary id assigned by the scraper, valid for one batch;
//   - a pseudo id, "~" followed by a JSON object of natural-key fields,
//     matched against records already in the store.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrDanglingReference is returned when a reference matches no declared or
// persisted record.
var ErrDanglingReference = errors.New("dangling reference")

// ReferenceError carries the entity type and reference that failed.
type ReferenceError struct {
	Type string
	Ref  string
	Err  error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("resolve %s %q: %v", e.Type, e.Ref, e.Err)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// Resolver is the capability importers depend on.
type Resolver interface {
	Resolve(ctx context.Context, entityType, ref string) (string, error)
}

// PassThrough resolves every reference to itself. It decouples importer tests
// from real id assignment.
type PassThrough struct{}

func (PassThrough) Resolve(_ context.Context, _ string, ref string) (string, error) {
	return ref, nil
}

// Lookup finds the stable id of the single persisted record of entityType
// whose columns match key. It returns ErrDanglingReference (wrapped) when no
// record or more than one record matches.
type Lookup interface {
	LookupID(ctx context.Context, entityType string, key map[string]any) (string, error)
}

// Session is the resolver shared by all importers of one pipeline run. It is
// not safe for concurrent use.
type Session struct {
	lookup   Lookup
	declared map[string]map[string]string // entity type -> ref -> id
}

// NewSession returns a Session that falls back to lookup for pseudo ids. A
// nil lookup disables store matching.
func NewSession(lookup Lookup) *Session {
	return &Session{
		lookup:   lookup,
		declared: make(map[string]map[string]string),
	}
}

// Declare records that ref now resolves to id. Pseudo ids are canonicalised
// so that key order doesn't matter.
func (s *Session) Declare(entityType, ref, id string) {
	if ref == "" {
		return
	}
	if IsPseudoID(ref) {
		if canon, err := canonical(ref); err == nil {
			ref = canon
		}
	}
	m, ok := s.declared[entityType]
	if !ok {
		m = make(map[string]string)
		s.declared[entityType] = m
	}
	m[ref] = id
}

// Declared reports how many references were declared for entityType.
func (s *Session) Declared(entityType string) int {
	return len(s.declared[entityType])
}

// Resolve implements Resolver.
func (s *Session) Resolve(ctx context.Context, entityType, ref string) (string, error) {
	if ref == "" {
		return "", &ReferenceError{Type: entityType, Ref: ref, Err: ErrDanglingReference}
	}
	if IsStableID(entityType, ref) {
		return s.resolveStable(ctx, entityType, ref)
	}

	key := ref
	if IsPseudoID(ref) {
		canon, err := canonical(ref)
		if err != nil {
			return "", &ReferenceError{Type: entityType, Ref: ref, Err: err}
		}
		key = canon
	}
	if id, ok := s.declared[entityType][key]; ok {
		return id, nil
	}
	if !IsPseudoID(ref) || s.lookup == nil {
		return "", &ReferenceError{Type: entityType, Ref: ref, Err: ErrDanglingReference}
	}

	fields, _ := ParsePseudoID(key)
	id, err := s.lookup.LookupID(ctx, entityType, fields)
	if err != nil {
		return "", &ReferenceError{Type: entityType, Ref: ref, Err: err}
	}
	s.Declare(entityType, key, id)
	return id, nil
}

// resolveStable confirms that a stable id names a persisted record the
// lookup can see. Without a lookup the id is trusted as is.
func (s *Session) resolveStable(ctx context.Context, entityType, ref string) (string, error) {
	if id, ok := s.declared[entityType][ref]; ok {
		return id, nil
	}
	if s.lookup == nil {
		return ref, nil
	}
	id, err := s.lookup.LookupID(ctx, entityType, map[string]any{"id": ref})
	if err != nil {
		return "", &ReferenceError{Type: entityType, Ref: ref, Err: err}
	}
	s.Declare(entityType, ref, id)
	return id, nil
}

// StableIDPrefix returns the id prefix for records of entityType.
func StableIDPrefix(entityType string) string {
	return "ocd-" + strings.ReplaceAll(entityType, "_", "-") + "/"
}

// IsStableID reports whether ref is already a stable id for entityType.
func IsStableID(entityType, ref string) bool {
	return strings.HasPrefix(ref, StableIDPrefix(entityType))
}

// IsPseudoID reports whether ref is a "~{…}" natural-key reference.
func IsPseudoID(ref string) bool {
	return strings.HasPrefix(ref, "~{")
}

// PseudoID builds a pseudo id from natural-key fields. json.Marshal sorts map
// keys, so equal keys produce equal strings.
func PseudoID(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return "~" + string(b)
}

// ParsePseudoID decodes the natural-key fields of a pseudo id.
func ParsePseudoID(ref string) (map[string]any, error) {
	if !IsPseudoID(ref) {
		return nil, fmt.Errorf("not a pseudo id: %q", ref)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(ref[1:]), &fields); err != nil {
		return nil, fmt.Errorf("parse pseudo id %q: %w", ref, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty pseudo id %q", ref)
	}
	return fields, nil
}

func canonical(ref string) (string, error) {
	fields, err := ParsePseudoID(ref)
	if err != nil {
		return "", err
	}
	return PseudoID(fields), nil
}
