package schema

import (
	"fmt"
	"strings"
	"time"
)

// Field kinds
const (
	KindText = "text"
	KindEnum = "enum"
	KindDate = "date"
)

// Allow-listed filter fields. Nothing outside this package encodes field
// names as literals.
const (
	FieldTitle            = "title"
	FieldNCTID            = "nct_id"
	FieldOrganization     = "organization"
	FieldUserEmail        = "user_email"
	FieldDateType         = "date_type"
	FieldDateFrom         = "date_from"
	FieldDateTo           = "date_to"
	FieldComplianceStatus = "compliance_status"
)

// date_type values
const (
	DateTypeStart      = "start"
	DateTypeCompletion = "completion"
	DateTypeDue        = "due"
)

// compliance_status values
const (
	StatusCompliant   = "compliant"
	StatusIncompliant = "incompliant"
)

// Field describes one filterable column of the compliance dashboard.
type Field struct {
	Name string
	Kind string
	Enum []string // allowed values when Kind == KindEnum
	// Multi indicates an enum field that accepts a set of values
	Multi bool
}

var catalog = map[string]Field{
	FieldTitle:        {Name: FieldTitle, Kind: KindText},
	FieldNCTID:        {Name: FieldNCTID, Kind: KindText},
	FieldOrganization: {Name: FieldOrganization, Kind: KindText},
	FieldUserEmail:    {Name: FieldUserEmail, Kind: KindText},
	FieldDateType: {
		Name: FieldDateType,
		Kind: KindEnum,
		Enum: []string{DateTypeStart, DateTypeCompletion, DateTypeDue},
	},
	FieldDateFrom: {Name: FieldDateFrom, Kind: KindDate},
	FieldDateTo:   {Name: FieldDateTo, Kind: KindDate},
	FieldComplianceStatus: {
		Name:  FieldComplianceStatus,
		Kind:  KindEnum,
		Enum:  []string{StatusCompliant, StatusIncompliant},
		Multi: true,
	},
}

// IsAllowed reports whether field is part of the fixed filter vocabulary.
func IsAllowed(field string) bool {
	_, ok := catalog[field]
	return ok
}

// Lookup returns the catalog entry for field.
func Lookup(field string) (Field, bool) {
	f, ok := catalog[field]
	return f, ok
}

// Fields returns the catalog in a stable order.
func Fields() []Field {
	ordered := []string{
		FieldTitle, FieldNCTID, FieldOrganization, FieldUserEmail,
		FieldDateType, FieldDateFrom, FieldDateTo, FieldComplianceStatus,
	}
	out := make([]Field, 0, len(ordered))
	for _, name := range ordered {
		out = append(out, catalog[name])
	}
	return out
}

// Validate normalizes a single raw value against the field's type rules.
// Date fields accept only ISO "YYYY-MM-DD"; relative phrases must be resolved
// by the extractor before this stage. Enum fields accept a single token.
func Validate(field, raw string) (string, error) {
	f, ok := catalog[field]
	if !ok {
		return "", fmt.Errorf("unknown field: %s", field)
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("empty value for field %s", field)
	}

	switch f.Kind {
	case KindText:
		return value, nil

	case KindDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return "", fmt.Errorf("field %s: %q is not an ISO date (YYYY-MM-DD)", field, value)
		}
		return value, nil

	case KindEnum:
		token := strings.ToLower(value)
		for _, allowed := range f.Enum {
			if token == allowed {
				return token, nil
			}
		}
		return "", fmt.Errorf("field %s: %q is not one of %s", field, value, strings.Join(f.Enum, "|"))

	default:
		return "", fmt.Errorf("field %s has unsupported kind %s", field, f.Kind)
	}
}

// Describe renders the registry as a compact summary suitable for the
// LLM extraction prompt.
func Describe() string {
	var b strings.Builder
	b.WriteString("Available filter fields:\n")
	for _, f := range Fields() {
		switch f.Kind {
		case KindText:
			b.WriteString(fmt.Sprintf("- %s: free text (substring match)\n", f.Name))
		case KindDate:
			b.WriteString(fmt.Sprintf("- %s: ISO date YYYY-MM-DD\n", f.Name))
		case KindEnum:
			if f.Multi {
				b.WriteString(fmt.Sprintf("- %s: one or more of [%s], comma separated\n", f.Name, strings.Join(f.Enum, ", ")))
			} else {
				b.WriteString(fmt.Sprintf("- %s: one of [%s]\n", f.Name, strings.Join(f.Enum, ", ")))
			}
		}
	}
	b.WriteString("Rules: date_from/date_to require date_type. Any other field name is rejected.\n")
	return b.String()
}
