package filter

import (
	"sort"
	"strings"

	"ctgov-compliance-be/pkg/schema"
)

// Value is a typed predicate bound to one schema field.
type Value struct {
	Kind string   `json:"kind"`
	Text string   `json:"text,omitempty"` // text and date fields
	Set  []string `json:"set,omitempty"`  // multi-valued enum fields
}

// Spec is the canonical, validated representation of a query over the
// compliance schema. Absent fields are unconstrained; a key can only be
// present if the Schema Registry allows it.
type Spec struct {
	fields map[string]Value
}

// NewSpec returns an empty (fully unconstrained) spec.
func NewSpec() *Spec {
	return &Spec{fields: make(map[string]Value)}
}

// Get returns the predicate for field, if constrained.
func (s *Spec) Get(field string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.fields[field]
	return v, ok
}

// Text returns the text/date value for field, or "" when unconstrained.
func (s *Spec) Text(field string) string {
	v, _ := s.Get(field)
	return v.Text
}

// Set returns the enum set for field, or nil when unconstrained.
func (s *Spec) Set(field string) []string {
	v, _ := s.Get(field)
	return v.Set
}

// Fields returns the constrained field names in a stable order.
func (s *Spec) Fields() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the spec constrains nothing.
func (s *Spec) IsEmpty() bool {
	return s == nil || len(s.fields) == 0
}

// Clone returns a deep copy.
func (s *Spec) Clone() *Spec {
	out := NewSpec()
	if s == nil {
		return out
	}
	for name, v := range s.fields {
		cp := v
		if v.Set != nil {
			cp.Set = append([]string(nil), v.Set...)
		}
		out.fields[name] = cp
	}
	return out
}

// put stores a predicate. Callers inside this package guarantee the field
// exists in the registry; put panics otherwise so the invariant cannot rot
// silently.
func (s *Spec) put(field string, v Value) {
	if !schema.IsAllowed(field) {
		panic("filter: attempt to set unregistered field " + field)
	}
	s.fields[field] = v
}

// Merge lays next over prior: fields re-mentioned in next overwrite the
// prior predicate; everything else persists. Neither input is mutated and
// the operation is idempotent.
func Merge(prior, next *Spec) *Spec {
	out := prior.Clone()
	if next == nil {
		return out
	}
	for name, v := range next.fields {
		cp := v
		if v.Set != nil {
			cp.Set = append([]string(nil), v.Set...)
		}
		out.fields[name] = cp
	}
	return out
}

// Equal reports whether two specs constrain the same fields identically.
func Equal(a, b *Spec) bool {
	af, bf := a.Fields(), b.Fields()
	if len(af) != len(bf) {
		return false
	}
	for i, name := range af {
		if bf[i] != name {
			return false
		}
		va, _ := a.Get(name)
		vb, _ := b.Get(name)
		if va.Kind != vb.Kind || va.Text != vb.Text {
			return false
		}
		if strings.Join(va.Set, ",") != strings.Join(vb.Set, ",") {
			return false
		}
	}
	return true
}
