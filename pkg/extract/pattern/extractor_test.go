package pattern

import (
	"context"
	"strings"
	"testing"
	"time"

	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/refdata"
)

func fixedClock() time.Time {
	return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
}

func newTestExtractor(orgs, emails []string) *Extractor {
	return NewExtractor(refdata.NewStatic(orgs, emails), fixedClock, nil)
}

func TestExtractOverdueForOrganization(t *testing.T) {
	e := newTestExtractor([]string{"Acme Clinical", "Beta Research"}, nil)

	res, err := e.Extract(context.Background(), extract.Request{Message: "show me overdue trials for Acme Clinical"})
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsClarification() {
		t.Fatalf("unexpected clarification: %q", res.Clarification)
	}

	spec := res.Spec
	if got := spec.Set("compliance_status"); len(got) != 1 || got[0] != "incompliant" {
		t.Errorf("compliance_status = %v, want [incompliant]", got)
	}
	if spec.Text("organization") != "Acme Clinical" {
		t.Errorf("organization = %q, want Acme Clinical", spec.Text("organization"))
	}
	if spec.Text("date_type") != "due" {
		t.Errorf("date_type = %q, want due", spec.Text("date_type"))
	}
	if spec.Text("date_to") != "2024-06-14" {
		t.Errorf("date_to = %q, want yesterday (2024-06-14)", spec.Text("date_to"))
	}
	if _, ok := spec.Get("date_from"); ok {
		t.Error("overdue must leave the lower bound open")
	}
	if _, ok := spec.Get("title"); ok {
		t.Errorf("no title expected once keywords and the organization are consumed, got %q", spec.Text("title"))
	}
}

func TestExtractNCTIdentifierOnly(t *testing.T) {
	e := newTestExtractor(nil, nil)

	res, err := e.Extract(context.Background(), extract.Request{Message: "nct12345678"})
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsClarification() {
		t.Fatalf("unexpected clarification: %q", res.Clarification)
	}

	if got := res.Spec.Text("nct_id"); got != "NCT12345678" {
		t.Errorf("nct_id = %q, want uppercased NCT12345678", got)
	}
	if fields := res.Spec.Fields(); len(fields) != 1 {
		t.Errorf("fields = %v, want only nct_id", fields)
	}
}

func TestExtractAmbiguousOrganizationAsksToChoose(t *testing.T) {
	e := newTestExtractor([]string{"Mercy West", "Mercy East"}, nil)

	res, err := e.Extract(context.Background(), extract.Request{Message: "compliant trials for mercy"})
	if err != nil {
		t.Fatal(err)
	}

	if !res.NeedsClarification() {
		t.Fatal("equal-length reference matches must trigger a clarification, not a guess")
	}
	for _, name := range []string{"Mercy East", "Mercy West"} {
		if !strings.Contains(res.Clarification, name) {
			t.Errorf("clarification %q should list %s", res.Clarification, name)
		}
	}
	if res.Spec != nil {
		t.Error("no final spec on a clarification turn")
	}
	if got := res.Partial.Set("compliance_status"); len(got) != 1 || got[0] != "compliant" {
		t.Errorf("partial should keep the unambiguous status, got %v", got)
	}
}

func TestExtractRelativeDatePhrases(t *testing.T) {
	e := newTestExtractor(nil, nil)

	cases := []struct {
		message  string
		dateType string
		from     string
		to       string
	}{
		{"trials completed in the last 30 days", "completion", "2024-05-16", "2024-06-15"},
		{"what is due in the next 7 days", "due", "2024-06-15", "2024-06-22"},
		{"anything due soon", "due", "2024-06-15", "2024-07-15"},
		{"recent completions", "completion", "2024-05-16", "2024-06-15"},
		{"trials started after 2023", "start", "2023-01-01", ""},
		{"trials completed before 2022", "completion", "", "2022-12-31"},
	}

	for _, tc := range cases {
		res, err := e.Extract(context.Background(), extract.Request{Message: tc.message})
		if err != nil {
			t.Fatalf("%q: %v", tc.message, err)
		}
		if res.NeedsClarification() {
			t.Fatalf("%q: unexpected clarification %q", tc.message, res.Clarification)
		}
		spec := res.Spec
		if got := spec.Text("date_type"); got != tc.dateType {
			t.Errorf("%q: date_type = %q, want %q", tc.message, got, tc.dateType)
		}
		if got := spec.Text("date_from"); got != tc.from {
			t.Errorf("%q: date_from = %q, want %q", tc.message, got, tc.from)
		}
		if got := spec.Text("date_to"); got != tc.to {
			t.Errorf("%q: date_to = %q, want %q", tc.message, got, tc.to)
		}
	}
}

func TestExtractExplicitDateOverridesOverdueWindow(t *testing.T) {
	e := newTestExtractor(nil, nil)

	res, err := e.Extract(context.Background(), extract.Request{Message: "overdue trials due in the next 14 days"})
	if err != nil {
		t.Fatal(err)
	}

	spec := res.Spec
	if spec.Text("date_from") != "2024-06-15" || spec.Text("date_to") != "2024-06-29" {
		t.Errorf("explicit phrase should win: got %q..%q", spec.Text("date_from"), spec.Text("date_to"))
	}
	if got := spec.Set("compliance_status"); len(got) != 1 || got[0] != "incompliant" {
		t.Errorf("compliance_status = %v, want [incompliant]", got)
	}
}

func TestExtractQuotedTitle(t *testing.T) {
	e := newTestExtractor(nil, nil)

	res, err := e.Extract(context.Background(), extract.Request{Message: `find trials titled "Cardiac Outcomes"`})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Spec.Text("title"); got != "Cardiac Outcomes" {
		t.Errorf("title = %q, want the quoted phrase verbatim", got)
	}
}

func TestExtractNoCandidatesAsksGenerically(t *testing.T) {
	e := newTestExtractor(nil, nil)

	res, err := e.Extract(context.Background(), extract.Request{Message: "show me the trials please"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.NeedsClarification() {
		t.Fatalf("filler-only message should re-prompt, got spec %v", res.Spec.Fields())
	}
}

func TestExtractMergesOntoPrior(t *testing.T) {
	e := newTestExtractor([]string{"Acme Clinical"}, nil)
	ctx := context.Background()

	first, err := e.Extract(ctx, extract.Request{Message: "trials for Acme Clinical"})
	if err != nil {
		t.Fatal(err)
	}

	second, err := e.Extract(ctx, extract.Request{
		Message: "only the incompliant ones",
		Prior:   first.Spec,
	})
	if err != nil {
		t.Fatal(err)
	}

	if second.Spec.Text("organization") != "Acme Clinical" {
		t.Error("prior organization must persist across turns")
	}
	if got := second.Spec.Set("compliance_status"); len(got) != 1 || got[0] != "incompliant" {
		t.Errorf("compliance_status = %v, want [incompliant]", got)
	}

	again, err := e.Extract(ctx, extract.Request{
		Message: "only the incompliant ones",
		Prior:   second.Spec,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !filter.Equal(second.Spec, again.Spec) {
		t.Error("repeating the same refinement must not change the spec")
	}
}

func TestExtractPriorUntouchedOnClarification(t *testing.T) {
	e := newTestExtractor([]string{"Mercy West", "Mercy East"}, nil)
	ctx := context.Background()

	prior, _ := filter.Build(map[string]string{"title": "hypertension"})
	res, err := e.Extract(ctx, extract.Request{Message: "show mercy", Prior: prior})
	if err != nil {
		t.Fatal(err)
	}

	if !res.NeedsClarification() {
		t.Fatal("expected clarification")
	}
	if prior.Text("title") != "hypertension" {
		t.Error("Extract must not mutate the prior spec")
	}
	if res.Partial.Text("title") != "hypertension" {
		t.Error("partial must carry the prior's fields forward")
	}
}
