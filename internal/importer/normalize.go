package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// normalize maps a Go value onto the small set of types the store returns:
// nil, int64, float64 and string. Lists and maps become JSON text.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return normalize(float64(x))
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case []string:
		if x == nil {
			x = []string{}
		}
		b, _ := json.Marshal(x)
		return string(b)
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// project returns the normalized values of cols in row. Missing columns are
// nil.
func project(row map[string]any, cols []string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c] = normalize(row[c])
	}
	return out
}

func sameColumns(a, b map[string]any, cols []string) bool {
	return cmp.Equal(project(a, cols), project(b, cols))
}

// changedColumns returns the columns of next whose normalized value differs
// from current.
func changedColumns(next, current map[string]any) map[string]any {
	changes := make(map[string]any)
	for col, v := range next {
		nv := normalize(v)
		if !cmp.Equal(nv, normalize(current[col])) {
			changes[col] = nv
		}
	}
	return changes
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func storable(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = normalize(v)
	}
	return out
}

// describeKey renders natural-key values in column order for reports.
func describeKey(values map[string]any, cols []string) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == ScopeColumn {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", c, normalize(values[c])))
	}
	return strings.Join(parts, " ")
}

// fingerprint hashes the content of a prepared entity so that duplicate
// records in one batch can be told apart from conflicting ones.
func fingerprint(values map[string]any, e *Entity) string {
	h := sha256.New()
	writeEntity(h, values, e)
	return hex.EncodeToString(h.Sum(nil))
}

type writer interface{ Write([]byte) (int, error) }

func writeEntity(w writer, values map[string]any, e *Entity) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "v:%s=%v;", k, normalize(values[k]))
	}
	refs := make([]string, 0, len(e.Refs))
	for k := range e.Refs {
		refs = append(refs, k)
	}
	sort.Strings(refs)
	for _, k := range refs {
		fmt.Fprintf(w, "r:%s=%s;", k, e.Refs[k])
	}
	names := make([]string, 0, len(e.Children))
	for k := range e.Children {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "c:%s[", name)
		for _, child := range e.Children[name] {
			writeEntity(w, child.Values, child)
			fmt.Fprint(w, "|")
		}
		fmt.Fprint(w, "]")
	}
}
