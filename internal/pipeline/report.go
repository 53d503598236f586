package pipeline

import (
	"time"

	"github.com/jward/docket/internal/importer"
)

// Report aggregates the results of one Run in processing order.
type Report struct {
	Results  []*importer.Result
	Started  time.Time
	Finished time.Time
}

// Result returns the result for entityType, or nil.
func (r *Report) Result(entityType string) *importer.Result {
	for _, res := range r.Results {
		if res.Type == entityType {
			return res
		}
	}
	return nil
}

// Count sums outcome o over every type.
func (r *Report) Count(o importer.Outcome) int {
	n := 0
	for _, res := range r.Results {
		n += res.Count(o)
	}
	return n
}

// Totals returns the count of every outcome.
func (r *Report) Totals() map[importer.Outcome]int {
	return map[importer.Outcome]int{
		importer.Created:   r.Count(importer.Created),
		importer.Updated:   r.Count(importer.Updated),
		importer.Unchanged: r.Count(importer.Unchanged),
		importer.Failed:    r.Count(importer.Failed),
	}
}

// Failures lists every failed item across types.
func (r *Report) Failures() []importer.Item {
	var out []importer.Item
	for _, res := range r.Results {
		out = append(out, res.Failures()...)
	}
	return out
}

// Types returns the processed entity types in order.
func (r *Report) Types() []string {
	types := make([]string, len(r.Results))
	for i, res := range r.Results {
		types[i] = res.Type
	}
	return types
}
