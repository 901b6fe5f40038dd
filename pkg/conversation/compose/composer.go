package compose

import (
	"fmt"
	"log"
	"strings"

	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/schema"
)

// WelcomeMessage opens every fresh conversation.
const WelcomeMessage = "Hi! I can help you filter clinical trials. " +
	"Ask by organization, NCT number, compliance status, title or dates, " +
	"for example: \"overdue trials for Acme\" or \"trials completed in the last 30 days\"."

// Composer renders assistant turns. All output is assembled from the
// validated spec and diagnostics; no model is involved, so a reply never
// claims a filter the engine did not actually apply.
type Composer struct {
	logger *log.Logger
}

func NewComposer(logger *log.Logger) *Composer {
	return &Composer{logger: logger}
}

// Reply builds the turn for an accepted extraction: a restatement of the
// active filter, the match count when available, and caveats for anything
// that was dropped along the way.
func (c *Composer) Reply(spec *filter.Spec, diags []filter.Diagnostic, count *int64) string {
	var b strings.Builder
	b.WriteString(c.Summarize(spec))

	if count != nil {
		if *count == 1 {
			b.WriteString("\n\n1 trial matches the current filters.")
		} else {
			b.WriteString(fmt.Sprintf("\n\n%d trials match the current filters.", *count))
		}
	}

	if caveats := renderCaveats(diags); caveats != "" {
		b.WriteString("\n\n")
		b.WriteString(caveats)
	}
	return b.String()
}

// Clarify builds the turn for a clarification: the extractor's question
// verbatim, plus any caveats from the partial extraction.
func (c *Composer) Clarify(question string, diags []filter.Diagnostic) string {
	if caveats := renderCaveats(diags); caveats != "" {
		return question + "\n\n" + caveats
	}
	return question
}

// Summarize restates the active filter in plain language so the user can
// verify what the engine understood.
func (c *Composer) Summarize(spec *filter.Spec) string {
	if spec == nil || spec.IsEmpty() {
		return "No filters are active. Showing all trials."
	}

	var parts []string
	if v := spec.Text(schema.FieldOrganization); v != "" {
		parts = append(parts, fmt.Sprintf("organization %q", v))
	}
	if v := spec.Text(schema.FieldUserEmail); v != "" {
		parts = append(parts, fmt.Sprintf("responsible user %s", v))
	}
	if v := spec.Text(schema.FieldNCTID); v != "" {
		parts = append(parts, fmt.Sprintf("NCT number %s", v))
	}
	if v := spec.Text(schema.FieldTitle); v != "" {
		parts = append(parts, fmt.Sprintf("title containing %q", v))
	}
	if statuses := spec.Set(schema.FieldComplianceStatus); len(statuses) > 0 {
		parts = append(parts, "compliance status "+strings.Join(statuses, " or "))
	}
	if dates := summarizeDates(spec); dates != "" {
		parts = append(parts, dates)
	}

	return "Filtering trials by " + strings.Join(parts, ", ") + "."
}

func summarizeDates(spec *filter.Spec) string {
	dateType := spec.Text(schema.FieldDateType)
	if dateType == "" {
		return ""
	}

	label := dateType + " date"
	switch dateType {
	case schema.DateTypeStart:
		label = "start date"
	case schema.DateTypeCompletion:
		label = "completion date"
	case schema.DateTypeDue:
		label = "due date"
	}

	from := spec.Text(schema.FieldDateFrom)
	to := spec.Text(schema.FieldDateTo)
	switch {
	case from != "" && to != "":
		return fmt.Sprintf("%s between %s and %s", label, from, to)
	case from != "":
		return fmt.Sprintf("%s on or after %s", label, from)
	case to != "":
		return fmt.Sprintf("%s on or before %s", label, to)
	}
	return ""
}

func renderCaveats(diags []filter.Diagnostic) string {
	if len(diags) == 0 {
		return ""
	}
	var notes []string
	for _, d := range diags {
		switch d.Kind {
		case filter.DiagUnknownField:
			notes = append(notes, fmt.Sprintf("ignored unrecognized field %q", d.Field))
		case filter.DiagDroppedValue:
			notes = append(notes, fmt.Sprintf("dropped unsupported value %q for %s", d.Value, d.Field))
		default:
			if d.Detail != "" {
				notes = append(notes, fmt.Sprintf("skipped %s (%s)", d.Field, d.Detail))
			} else {
				notes = append(notes, fmt.Sprintf("skipped %s", d.Field))
			}
		}
	}
	return "Note: " + strings.Join(notes, "; ") + "."
}
