package llmassist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/llm"
	"ctgov-compliance-be/pkg/schema"
)

const malformedReprompt = "I had trouble reading that request. Could you rephrase it? " +
	"For example: \"overdue trials for Acme\" or \"trials completed in the last 30 days\"."

const systemPromptTemplate = `You extract clinical-trial search filters from user messages.

Today's date is %s.

%s

Respond with ONLY a JSON object, no prose, in this exact shape:
{"filters": {"field_name": "value", ...}, "clarification": ""}

Rules:
- Use only the field names listed above. Never invent fields.
- Resolve every relative date ("last month", "next week") to absolute YYYY-MM-DD values.
- "overdue" or "late" means compliance_status incompliant with date_type "due" and date_to before today.
- If the request is too vague to produce any filter, leave "filters" empty and put a short question in "clarification".
- The user may be refining earlier filters; only output the fields the new message mentions.`

// Extractor delegates field extraction to a language model. Whatever the
// model returns is treated as untrusted candidate input: it passes through
// the same validation as the rule-based path, so hallucinated fields and
// values never reach a spec.
type Extractor struct {
	provider llm.Provider
	timeout  time.Duration
	now      func() time.Time
	logger   *log.Logger
}

var _ extract.Extractor = &Extractor{}

func NewExtractor(provider llm.Provider, timeout time.Duration, now func() time.Time, logger *log.Logger) *Extractor {
	return &Extractor{provider: provider, timeout: timeout, now: now, logger: logger}
}

type modelOutput struct {
	Filters       map[string]any `json:"filters"`
	Clarification string         `json:"clarification"`
}

func (e *Extractor) Extract(ctx context.Context, req extract.Request) (*extract.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.provider.Chat(ctx, e.buildMessages(req), llm.WithTemperature(0.0))
	if err != nil {
		return nil, &extract.TransportError{Err: err}
	}

	var out modelOutput
	if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), &out); jsonErr != nil {
		if e.logger != nil {
			e.logger.Printf("[WARN] Model returned unparseable output (%v), asking user to rephrase", jsonErr)
		}
		return &extract.Result{
			Clarification: malformedReprompt,
			Partial:       req.Prior.Clone(),
		}, nil
	}

	spec, diags := filter.Build(stringify(out.Filters))
	merged := filter.Merge(req.Prior, spec)

	if out.Clarification != "" {
		return &extract.Result{
			Clarification: out.Clarification,
			Partial:       merged,
			Diagnostics:   diags,
		}, nil
	}

	if spec.IsEmpty() {
		return &extract.Result{
			Clarification: malformedReprompt,
			Partial:       req.Prior.Clone(),
			Diagnostics:   diags,
		}, nil
	}

	if e.logger != nil {
		e.logger.Printf("[LLM] Extracted fields %v (%d diagnostic(s))", merged.Fields(), len(diags))
	}
	return &extract.Result{Spec: merged, Diagnostics: diags}, nil
}

func (e *Extractor) buildMessages(req extract.Request) []llm.Message {
	messages := []llm.Message{{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptTemplate, e.now().Format("2006-01-02"), schema.Describe()),
	}}
	messages = append(messages, req.History...)

	content := req.Message
	if req.Prior != nil && !req.Prior.IsEmpty() {
		content = fmt.Sprintf("Current filters: %s\n\n%s", describeSpec(req.Prior), req.Message)
	}
	messages = append(messages, llm.Message{Role: "user", Content: content})
	return messages
}

func describeSpec(spec *filter.Spec) string {
	parts := make([]string, 0, len(spec.Fields()))
	for _, name := range spec.Fields() {
		v, _ := spec.Get(name)
		if len(v.Set) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(v.Set, "|")))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, v.Text))
	}
	return strings.Join(parts, ", ")
}

// stringify flattens the model's JSON values into the candidate map the
// validator expects. Arrays become comma lists, scalars are printed, nested
// objects are dropped (the validator would reject them anyway).
func stringify(filters map[string]any) map[string]string {
	candidates := make(map[string]string, len(filters))
	for key, value := range filters {
		switch v := value.(type) {
		case string:
			candidates[key] = v
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			candidates[key] = strings.Join(parts, ",")
		case map[string]any:
			continue
		default:
			candidates[key] = fmt.Sprint(v)
		}
	}
	return candidates
}

// extractJSON pulls the outermost JSON object out of a response that may be
// wrapped in code fences or prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
