package filter

import (
	"sort"
	"strings"

	"ctgov-compliance-be/pkg/schema"
)

// Build validates and normalizes raw extracted candidates into a Spec.
// Every issue short of a programming error is reported as a Diagnostic and
// scoped to its own field: unknown keys are dropped, unrecognized enum
// tokens are dropped value-by-value, malformed dates invalidate only the
// date slot they arrived in. The returned Spec never contains a key absent
// from the Schema Registry.
func Build(candidates map[string]string) (*Spec, []Diagnostic) {
	spec := NewSpec()
	var diags []Diagnostic

	// Stable iteration so diagnostics come out in a deterministic order.
	keys := make([]string, 0, len(candidates))
	for k := range candidates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := candidates[key]

		field, ok := schema.Lookup(key)
		if !ok {
			diags = append(diags, Diagnostic{Kind: DiagUnknownField, Field: key, Value: raw})
			continue
		}

		if field.Kind == schema.KindEnum && field.Multi {
			kept, dropped := intersectEnum(field, raw)
			for _, bad := range dropped {
				diags = append(diags, Diagnostic{Kind: DiagDroppedValue, Field: key, Value: bad})
			}
			if len(kept) > 0 {
				spec.put(key, Value{Kind: field.Kind, Set: kept})
			}
			continue
		}

		normalized, err := schema.Validate(key, raw)
		if err != nil {
			diags = append(diags, Diagnostic{Kind: DiagValidation, Field: key, Value: raw, Detail: err.Error()})
			continue
		}
		spec.put(key, Value{Kind: field.Kind, Text: normalized})
	}

	diags = append(diags, enforceDateShape(spec)...)

	return spec, diags
}

// intersectEnum keeps candidate tokens that belong to the enum, preserving
// the enum's own order and deduplicating.
func intersectEnum(field schema.Field, raw string) (kept, dropped []string) {
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		token := strings.ToLower(strings.TrimSpace(part))
		if token == "" {
			continue
		}
		if _, err := schema.Validate(field.Name, token); err != nil {
			dropped = append(dropped, token)
			continue
		}
		seen[token] = true
	}
	for _, allowed := range field.Enum {
		if seen[allowed] {
			kept = append(kept, allowed)
		}
	}
	return kept, dropped
}

// enforceDateShape drops half-formed date constraints: a date without its
// date_type tag is not executable, and a dangling date_type constrains
// nothing.
func enforceDateShape(spec *Spec) []Diagnostic {
	_, hasFrom := spec.Get(schema.FieldDateFrom)
	_, hasTo := spec.Get(schema.FieldDateTo)
	_, hasType := spec.Get(schema.FieldDateType)

	var diags []Diagnostic
	switch {
	case (hasFrom || hasTo) && !hasType:
		for _, f := range []string{schema.FieldDateFrom, schema.FieldDateTo} {
			if _, ok := spec.Get(f); ok {
				delete(spec.fields, f)
				diags = append(diags, Diagnostic{
					Kind: DiagValidation, Field: f,
					Detail: "date range requires a date_type (start, completion or due)",
				})
			}
		}
	case hasType && !hasFrom && !hasTo:
		delete(spec.fields, schema.FieldDateType)
		diags = append(diags, Diagnostic{
			Kind: DiagValidation, Field: schema.FieldDateType,
			Detail: "date_type given without date_from or date_to",
		})
	}
	return diags
}
