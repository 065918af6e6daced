package agent

import "sort"

// Well-known metadata field names.
const (
	FieldTimeStart   = "time_start"
	FieldTimeEnd     = "time_end"
	FieldTimezone    = "timezone"
	FieldUsername    = "username"
	FieldPod         = "pod"
	FieldNamespace   = "namespace"
	FieldIdentifiers = "identifiers"
)

// DefaultFields returns the metadata fields recognized when none are configured.
func DefaultFields() []string {
	return []string{
		FieldTimeStart,
		FieldTimeEnd,
		FieldTimezone,
		FieldUsername,
		FieldPod,
		FieldNamespace,
		FieldIdentifiers,
	}
}

// FieldSet is the fixed set of metadata field names a run may record.
// The zero value recognizes nothing.
type FieldSet struct {
	names map[string]struct{}
	order []string
}

// NewFieldSet creates a field set. Duplicates and empty names are ignored.
func NewFieldSet(names ...string) FieldSet {
	fs := FieldSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := fs.names[n]; ok {
			continue
		}
		fs.names[n] = struct{}{}
		fs.order = append(fs.order, n)
	}
	return fs
}

// Has reports whether name is a recognized field.
func (f FieldSet) Has(name string) bool {
	_, ok := f.names[name]
	return ok
}

// Names returns the field names in declaration order.
func (f FieldSet) Names() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Len returns the number of recognized fields.
func (f FieldSet) Len() int {
	return len(f.order)
}

// MergePolicy decides how a contribution treats fields already present.
type MergePolicy int

const (
	// MergeLatestWins overwrites existing values with the newest contribution.
	MergeLatestWins MergePolicy = iota
	// MergeFillMissing only sets fields that have no value yet.
	MergeFillMissing
)

// Metadata maps field names to extracted values.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text returns the value of a field if it is a string.
func (m Metadata) Text(field string) (string, bool) {
	v, ok := m[field].(string)
	return v, ok
}

// MergeOutcome lists what happened to each contributed field.
type MergeOutcome struct {
	Applied  []string
	Skipped  []string // already present under MergeFillMissing
	Rejected []string // not in the field set
}

// merge folds contrib into m. Nil and empty-string values never clear a field.
func (m Metadata) merge(fields FieldSet, contrib map[string]any, policy MergePolicy) MergeOutcome {
	var out MergeOutcome
	keys := make([]string, 0, len(contrib))
	for k := range contrib {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := contrib[k]
		if !fields.Has(k) {
			out.Rejected = append(out.Rejected, k)
			continue
		}
		if isEmptyValue(v) {
			out.Skipped = append(out.Skipped, k)
			continue
		}
		if _, exists := m[k]; exists && policy == MergeFillMissing {
			out.Skipped = append(out.Skipped, k)
			continue
		}
		m[k] = v
		out.Applied = append(out.Applied, k)
	}
	return out
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	default:
		return false
	}
}
