package extract

import (
	"context"
	"errors"
	"fmt"

	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/llm"
)

// Request is the input to one extraction attempt. Prior is the spec the new
// message refines (nil for a fresh conversation). History is consumed only
// by the LLM strategy; the deterministic one ignores it.
type Request struct {
	Message string
	Prior   *filter.Spec
	History []llm.Message
}

// Result is either a complete spec or a request for clarification, never
// both. Diagnostics accompany either outcome.
type Result struct {
	// Spec is set when extraction resolved a complete filter.
	Spec *filter.Spec

	// Clarification, when non-empty, means more input is required. Partial
	// then holds whatever was understood so far, to be merged against on the
	// next turn.
	Clarification string
	Partial       *filter.Spec

	Diagnostics []filter.Diagnostic
}

// NeedsClarification reports whether the result asks the user for more input.
func (r *Result) NeedsClarification() bool {
	return r.Clarification != ""
}

// Extractor turns free text into a Result. Implementations must be safe for
// concurrent use; the two strategies (pattern and LLM) share this contract
// and callers never inspect which one they hold.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// TransportError marks a failure reaching the extraction backend (network,
// timeout, upstream 5xx). The strategy selector treats it as the trigger for
// a one-shot deterministic fallback; every other error is surfaced as-is.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("extractor transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
