package filter

import "fmt"

// DiagnosticKind classifies a non-fatal issue found while building a spec.
type DiagnosticKind string

const (
	// DiagUnknownField: candidate key is not in the Schema Registry. The key
	// is dropped, the rest of the request proceeds.
	DiagUnknownField DiagnosticKind = "UNKNOWN_FIELD"

	// DiagDroppedValue: an enum candidate contained tokens outside the fixed
	// value set. The bad tokens are dropped, valid ones are kept.
	DiagDroppedValue DiagnosticKind = "DROPPED_VALUE"

	// DiagValidation: structurally malformed value (e.g. non-date in a date
	// slot). Fatal to that single field only.
	DiagValidation DiagnosticKind = "VALIDATION"
)

// Diagnostic is surfaced to the user as a soft caveat; it never fails the
// request on its own.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Field  string         `json:"field"`
	Value  string         `json:"value,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case DiagUnknownField:
		return fmt.Sprintf("ignored unknown field %q", d.Field)
	case DiagDroppedValue:
		return fmt.Sprintf("dropped unrecognized value %q for %s", d.Value, d.Field)
	case DiagValidation:
		return fmt.Sprintf("could not use %s: %s", d.Field, d.Detail)
	default:
		return fmt.Sprintf("%s on %s", d.Kind, d.Field)
	}
}
