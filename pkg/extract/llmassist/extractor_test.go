package llmassist

import (
	"context"
	"errors"
	"testing"
	"time"

	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/llm"
)

type fakeProvider struct {
	reply string
	err   error

	gotMessages []llm.Message
}

func (f *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.gotMessages = history
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func fixedClock() time.Time {
	return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
}

func newTestExtractor(p llm.Provider) *Extractor {
	return NewExtractor(p, 5*time.Second, fixedClock, nil)
}

func TestExtractParsesFencedJSON(t *testing.T) {
	fake := &fakeProvider{reply: "Here you go:\n```json\n" +
		`{"filters": {"organization": "Acme Clinical", "compliance_status": "incompliant"}, "clarification": ""}` +
		"\n```"}
	e := newTestExtractor(fake)

	res, err := e.Extract(context.Background(), extract.Request{Message: "overdue acme trials"})
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsClarification() {
		t.Fatalf("unexpected clarification: %q", res.Clarification)
	}
	if res.Spec.Text("organization") != "Acme Clinical" {
		t.Errorf("organization = %q", res.Spec.Text("organization"))
	}
	if got := res.Spec.Set("compliance_status"); len(got) != 1 || got[0] != "incompliant" {
		t.Errorf("compliance_status = %v", got)
	}
}

func TestExtractRevalidatesModelOutput(t *testing.T) {
	// Hallucinated fields and bogus values must be stripped, never stored.
	fake := &fakeProvider{reply: `{"filters": {"title": "cardiac", "sponsor_secret": "x", "date_type": "completion", "date_from": "sometime"}, "clarification": ""}`}
	e := newTestExtractor(fake)

	res, err := e.Extract(context.Background(), extract.Request{Message: "cardiac trials"})
	if err != nil {
		t.Fatal(err)
	}

	spec := res.Spec
	if spec.Text("title") != "cardiac" {
		t.Errorf("title = %q", spec.Text("title"))
	}
	if _, ok := spec.Get("sponsor_secret"); ok {
		t.Error("unregistered field must not survive validation")
	}
	if _, ok := spec.Get("date_from"); ok {
		t.Error("non-ISO date must be dropped")
	}
	if len(res.Diagnostics) < 2 {
		t.Errorf("diagnostics = %+v, want reports for the dropped field and value", res.Diagnostics)
	}
}

func TestExtractMalformedOutputAsksToRephrase(t *testing.T) {
	fake := &fakeProvider{reply: "Sure! The filters you want are organization=Acme."}
	e := newTestExtractor(fake)

	prior, _ := filter.Build(map[string]string{"title": "covid"})
	res, err := e.Extract(context.Background(), extract.Request{Message: "gibberish", Prior: prior})
	if err != nil {
		t.Fatal(err)
	}

	if !res.NeedsClarification() {
		t.Fatal("unparseable model output must turn into a clarification, not an error")
	}
	if res.Partial.Text("title") != "covid" {
		t.Error("prior filters must be preserved through a failed parse")
	}
}

func TestExtractProviderFailureIsTransport(t *testing.T) {
	fake := &fakeProvider{err: errors.New("connection refused")}
	e := newTestExtractor(fake)

	_, err := e.Extract(context.Background(), extract.Request{Message: "anything"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !extract.IsTransport(err) {
		t.Errorf("err = %v, want a transport error", err)
	}
}

func TestExtractModelClarificationPassedVerbatim(t *testing.T) {
	fake := &fakeProvider{reply: `{"filters": {}, "clarification": "Which organization did you mean?"}`}
	e := newTestExtractor(fake)

	res, err := e.Extract(context.Background(), extract.Request{Message: "show my trials"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Clarification != "Which organization did you mean?" {
		t.Errorf("clarification = %q, want the model's question verbatim", res.Clarification)
	}
}

func TestExtractSendsPriorAndHistory(t *testing.T) {
	fake := &fakeProvider{reply: `{"filters": {"compliance_status": "compliant"}, "clarification": ""}`}
	e := newTestExtractor(fake)

	prior, _ := filter.Build(map[string]string{"organization": "Acme"})
	history := []llm.Message{
		{Role: "user", Content: "trials for Acme"},
		{Role: "assistant", Content: "Filtering by organization Acme."},
	}

	res, err := e.Extract(context.Background(), extract.Request{
		Message: "just the compliant ones",
		Prior:   prior,
		History: history,
	})
	if err != nil {
		t.Fatal(err)
	}

	// system + 2 history turns + current message
	if len(fake.gotMessages) != 4 {
		t.Fatalf("sent %d messages, want 4", len(fake.gotMessages))
	}
	if fake.gotMessages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", fake.gotMessages[0].Role)
	}

	if res.Spec.Text("organization") != "Acme" {
		t.Error("prior organization must persist after the merge")
	}
}
