package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Batch is one scrape run's output.
type Batch struct {
	Jurisdictions []*Jurisdiction
	Organizations []*Organization
	People        []*Person
	Memberships   []*Membership
	Bills         []*Bill
}

// Add appends rec to the matching slice.
func (b *Batch) Add(rec Record) error {
	switch r := rec.(type) {
	case *Jurisdiction:
		b.Jurisdictions = append(b.Jurisdictions, r)
	case *Organization:
		b.Organizations = append(b.Organizations, r)
	case *Person:
		b.People = append(b.People, r)
	case *Membership:
		b.Memberships = append(b.Memberships, r)
	case *Bill:
		b.Bills = append(b.Bills, r)
	default:
		return fmt.Errorf("scrape: unsupported record %T", rec)
	}
	return nil
}

// Records returns the batch grouped by entity type, in insertion order.
func (b *Batch) Records() map[string][]Record {
	out := make(map[string][]Record)
	for _, r := range b.Jurisdictions {
		out[TypeJurisdiction] = append(out[TypeJurisdiction], r)
	}
	for _, r := range b.Organizations {
		out[TypeOrganization] = append(out[TypeOrganization], r)
	}
	for _, r := range b.People {
		out[TypePerson] = append(out[TypePerson], r)
	}
	for _, r := range b.Memberships {
		out[TypeMembership] = append(out[TypeMembership], r)
	}
	for _, r := range b.Bills {
		out[TypeBill] = append(out[TypeBill], r)
	}
	return out
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Jurisdictions) + len(b.Organizations) + len(b.People) + len(b.Memberships) + len(b.Bills)
}

// newRecord returns an empty record for a file name prefix.
func newRecord(entityType string) (Record, bool) {
	switch entityType {
	case TypeJurisdiction:
		return &Jurisdiction{}, true
	case TypeOrganization:
		return &Organization{}, true
	case TypePerson:
		return &Person{}, true
	case TypeMembership:
		return &Membership{}, true
	case TypeBill:
		return &Bill{}, true
	}
	return nil, false
}

// fileType returns the entity type encoded in a "<type>_<id>.json" name.
func fileType(name string) (string, bool) {
	if filepath.Ext(name) != ".json" {
		return "", false
	}
	typ, _, ok := strings.Cut(name, "_")
	if !ok {
		return "", false
	}
	if _, known := newRecord(typ); !known {
		return "", false
	}
	return typ, true
}

// LoadDir decodes every "<type>_*.json" file in dir. Files are parsed by up
// to workers goroutines (GOMAXPROCS when workers < 1); records are added in
// file name order, which is scrape order for directories written by
// WriteDir. Other files are ignored.
func LoadDir(ctx context.Context, dir string, workers int) (*Batch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scrape: read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := fileType(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	records := make([]Record, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := decodeFile(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &Batch{}
	for _, rec := range records {
		if err := b.Add(rec); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func decodeFile(path string) (Record, error) {
	typ, _ := fileType(filepath.Base(path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	rec, err := Decode(typ, data)
	if err != nil {
		return nil, fmt.Errorf("scrape: decode %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// Decode parses the JSON form of a record of entityType.
func Decode(entityType string, data []byte) (Record, error) {
	rec, ok := newRecord(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// WriteDir writes every record to dir as "<type>_<seq>_<id>.json". seq is
// the record's zero-padded position within its type so LoadDir restores the
// batch order. The file name id has "/" replaced so stable jurisdiction ids
// make valid names.
func (b *Batch) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("scrape: create dir: %w", err)
	}
	for _, recs := range b.Records() {
		for i, rec := range recs {
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return fmt.Errorf("scrape: encode %s %s: %w", rec.EntityType(), rec.LocalID(), err)
			}
			id := strings.NewReplacer("/", "-", ":", "-").Replace(rec.LocalID())
			name := fmt.Sprintf("%s_%08d_%s.json", rec.EntityType(), i, id)
			if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
				return fmt.Errorf("scrape: write %s: %w", name, err)
			}
		}
	}
	return nil
}
