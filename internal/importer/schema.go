package importer

import "slices"

// Policy says what happens when a reference can't be resolved.
type Policy int

const (
	// Required references must be present and must resolve; otherwise the
	// record fails.
	Required Policy = iota
	// Optional references may be absent, but a reference that is given must
	// resolve.
	Optional
	// Unlinked references leave the foreign key NULL when they don't
	// resolve. Descriptive columns (a sponsor's name) keep the fallback.
	Unlinked
)

func (p Policy) String() string {
	switch p {
	case Required:
		return "required"
	case Optional:
		return "optional"
	case Unlinked:
		return "unlinked"
	}
	return "unknown"
}

// RefSpec declares a single-valued reference stored in Column.
type RefSpec struct {
	Column string
	Type   string
	Policy Policy
	// Deferred references that fail to resolve are retried once every
	// record of the batch has been imported.
	Deferred bool
}

// ChildSpec declares a child collection stored in its own table.
type ChildSpec struct {
	Name         string // key in Entity.Children
	Table        string
	ParentColumn string
	Columns      []string
	Refs         []RefSpec
	// Key lists the identity columns used to match old and new entries.
	// Empty means every column and reference column.
	Key []string
	// Ordered collections keep an "ord" column and are rewritten
	// wholesale whenever the sequence changes.
	Ordered bool
	// AppendOnly collections never delete entries missing from the batch.
	AppendOnly bool
	Children   []ChildSpec
}

// OrderColumn stores the position of entries in ordered collections.
const OrderColumn = "ord"

func (c ChildSpec) refColumns() []string {
	cols := make([]string, len(c.Refs))
	for i, r := range c.Refs {
		cols[i] = r.Column
	}
	return cols
}

// allColumns returns scalar and reference columns.
func (c ChildSpec) allColumns() []string {
	return append(slices.Clone(c.Columns), c.refColumns()...)
}

func (c ChildSpec) identity() []string {
	if len(c.Key) > 0 {
		return c.Key
	}
	return c.allColumns()
}

func (c ChildSpec) mutable() []string {
	id := c.identity()
	var cols []string
	for _, col := range c.allColumns() {
		if !slices.Contains(id, col) {
			cols = append(cols, col)
		}
	}
	return cols
}

// Schema configures an Importer for one entity type.
type Schema struct {
	Type  string
	Table string
	// Scoped records carry a jurisdiction_id column and are matched within
	// the importing jurisdiction.
	Scoped     bool
	NaturalKey []string
	Columns    []string
	Refs       []RefSpec
	Children   []ChildSpec
	DependsOn  []string
	// ParentRef names a reference column pointing at another record of the
	// same type. Records are imported parents first.
	ParentRef string
	// KeepLocalID persists records under the scrape id instead of minting
	// a new one. Used for jurisdictions, whose ids are already stable.
	KeepLocalID bool
	Prepare     func(rec Record) (*Entity, error)
}

// ScopeColumn holds the jurisdiction of scoped records.
const ScopeColumn = "jurisdiction_id"

func (s Schema) allowed(col string) bool {
	if col == ScopeColumn && s.Scoped {
		return true
	}
	if slices.Contains(s.NaturalKey, col) || slices.Contains(s.Columns, col) {
		return true
	}
	for _, r := range s.Refs {
		if r.Column == col {
			return true
		}
	}
	return false
}

// Entity is the schema-neutral form of a scrape record or child entry.
type Entity struct {
	LocalID  string
	Values   map[string]any
	Refs     map[string]string
	Children map[string][]*Entity
}

// NewEntity returns an Entity with its maps allocated.
func NewEntity(localID string) *Entity {
	return &Entity{
		LocalID:  localID,
		Values:   make(map[string]any),
		Refs:     make(map[string]string),
		Children: make(map[string][]*Entity),
	}
}

// Set stores v under col unless v is the zero value of its type, so that
// absent scrape fields don't overwrite persisted data.
func (e *Entity) Set(col string, v any) *Entity {
	switch x := v.(type) {
	case nil:
		return e
	case string:
		if x == "" {
			return e
		}
	case []string:
		if len(x) == 0 {
			return e
		}
	}
	e.Values[col] = v
	return e
}

// Put stores v under col unconditionally.
func (e *Entity) Put(col string, v any) *Entity {
	e.Values[col] = v
	return e
}

// Ref records a reference for col. Empty references are ignored.
func (e *Entity) Ref(col, ref string) *Entity {
	if ref != "" {
		e.Refs[col] = ref
	}
	return e
}

// Add appends a child entry to the named collection.
func (e *Entity) Add(collection string, child *Entity) *Entity {
	e.Children[collection] = append(e.Children[collection], child)
	return e
}

// Record is anything with an entity type. The scrape package types
// implement it.
type Record interface {
	EntityType() string
}
