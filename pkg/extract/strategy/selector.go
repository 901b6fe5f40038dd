package strategy

import (
	"context"
	"log"

	"ctgov-compliance-be/pkg/extract"
)

// Selector picks between the deterministic and LLM extraction strategies per
// request. The deterministic path is the anchor: when the LLM path cannot be
// reached it answers instead, once, within the same request. The caller
// learns which path actually produced the result, so responses never claim
// an LLM was involved when it was not.
type Selector struct {
	deterministic extract.Extractor
	llm           extract.Extractor
	logger        *log.Logger
}

func NewSelector(deterministic, llm extract.Extractor, logger *log.Logger) *Selector {
	return &Selector{deterministic: deterministic, llm: llm, logger: logger}
}

// LLMAvailable reports whether an LLM strategy is configured at all.
func (s *Selector) LLMAvailable() bool {
	return s.llm != nil
}

// Resolve runs the requested strategy. llmUsed reports the strategy that
// produced the returned result, not the one that was asked for.
func (s *Selector) Resolve(ctx context.Context, useLLM bool, req extract.Request) (result *extract.Result, llmUsed bool, err error) {
	if !useLLM || s.llm == nil {
		result, err = s.deterministic.Extract(ctx, req)
		return result, false, err
	}

	result, err = s.llm.Extract(ctx, req)
	if err == nil {
		return result, true, nil
	}
	if !extract.IsTransport(err) {
		return nil, false, err
	}

	if s.logger != nil {
		s.logger.Printf("[WARN] LLM extraction unreachable (%v), falling back to pattern rules", err)
	}
	result, err = s.deterministic.Extract(ctx, req)
	return result, false, err
}
