package importer

import (
	"errors"
	"fmt"
)

var (
	// ErrNaturalKeyConflict is returned when two records of one batch share
	// a natural key but differ in content, or when the store holds more
	// than one record for a key.
	ErrNaturalKeyConflict = errors.New("natural key conflict")
	// ErrStoreFailure wraps errors returned by the store.
	ErrStoreFailure = errors.New("store failure")
)

// RecordError locates a failed record.
type RecordError struct {
	Type    string
	LocalID string
	Key     string
	Err     error
}

func (e *RecordError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Type, e.LocalID, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Type, e.LocalID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

// Outcome is the per-record result of an import.
type Outcome string

const (
	Created   Outcome = "created"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
	Failed    Outcome = "failed"
)

// Item reports one processed record.
type Item struct {
	Index   int // position in the input
	LocalID string
	ID      string
	Key     string
	Outcome Outcome
	Err     error
}

// Result reports every record processed by one ImportData call, in
// processing order.
type Result struct {
	Type  string
	Items []Item
}

// Count returns the number of items with outcome o.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == o {
			n++
		}
	}
	return n
}

// Failures returns the failed items.
func (r *Result) Failures() []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Outcome == Failed {
			out = append(out, it)
		}
	}
	return out
}

// IDs maps scrape ids to stable ids for every successful record.
func (r *Result) IDs() map[string]string {
	ids := make(map[string]string, len(r.Items))
	for _, it := range r.Items {
		if it.Outcome != Failed && it.LocalID != "" {
			ids[it.LocalID] = it.ID
		}
	}
	return ids
}
