package schema

import (
	"strings"
	"testing"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		field string
		want  bool
	}{
		{"title", true},
		{"nct_id", true},
		{"organization", true},
		{"user_email", true},
		{"date_type", true},
		{"date_from", true},
		{"date_to", true},
		{"compliance_status", true},
		{"sponsor", false},
		{"phase", false},
		{"", false},
		{"Title", false}, // field names are exact
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := IsAllowed(tt.field); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		raw     string
		want    string
		wantErr bool
	}{
		{"text passes through", "title", "diabetes study", "diabetes study", false},
		{"text trimmed", "organization", "  Acme  ", "Acme", false},
		{"empty text rejected", "title", "   ", "", true},
		{"iso date accepted", "date_from", "2023-01-15", "2023-01-15", false},
		{"relative phrase rejected", "date_from", "last week", "", true},
		{"year only rejected", "date_to", "2023", "", true},
		{"impossible date rejected", "date_to", "2023-13-40", "", true},
		{"date type start", "date_type", "start", "start", false},
		{"date type normalized", "date_type", "Due", "due", false},
		{"date type unknown", "date_type", "enrollment", "", true},
		{"status compliant", "compliance_status", "compliant", "compliant", false},
		{"status unknown", "compliance_status", "pending", "", true},
		{"unknown field", "sponsor", "Acme", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.field, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q, %q) error = %v, wantErr %v", tt.field, tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Validate(%q, %q) = %q, want %q", tt.field, tt.raw, got, tt.want)
			}
		})
	}
}

func TestDescribeListsEveryField(t *testing.T) {
	desc := Describe()
	for _, f := range Fields() {
		if !strings.Contains(desc, f.Name) {
			t.Errorf("Describe() missing field %s", f.Name)
		}
	}
}
