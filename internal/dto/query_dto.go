package dto

import (
	"time"

	"github.com/google/uuid"
)

type SendMessageRequest struct {
	SessionId uuid.UUID `json:"session_id" validate:"required"`
	Message   string    `json:"message" validate:"required,max=2000"`
	UseLLM    bool      `json:"use_llm"`
}

type SendMessageResponse struct {
	SessionId uuid.UUID `json:"session_id"`
	// Accepted is true when the turn resolved to an executable filter,
	// false when the engine asked for clarification instead.
	Accepted bool   `json:"accepted"`
	Reply    string `json:"reply"`
	State    string `json:"state"`
	// UseLLM reports the strategy that actually produced this turn. It is
	// false on a deterministic fallback even when the request asked for LLM.
	UseLLM      bool           `json:"use_llm"`
	Filter      *FilterDTO     `json:"filter,omitempty"`
	Diagnostics []DiagnosticDTO `json:"diagnostics,omitempty"`
	MatchCount  *int64         `json:"match_count,omitempty"`
}

type FilterDTO struct {
	Title            string   `json:"title,omitempty"`
	NctId            string   `json:"nct_id,omitempty"`
	Organization     string   `json:"organization,omitempty"`
	UserEmail        string   `json:"user_email,omitempty"`
	ComplianceStatus []string `json:"compliance_status,omitempty"`
	DateType         string   `json:"date_type,omitempty"`
	DateFrom         string   `json:"date_from,omitempty"`
	DateTo           string   `json:"date_to,omitempty"`
}

type DiagnosticDTO struct {
	Kind   string `json:"kind"`
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type ResetSessionRequest struct {
	SessionId uuid.UUID `json:"session_id" validate:"required"`
	UseLLM    bool      `json:"use_llm"`
}

type ResetSessionResponse struct {
	SessionId uuid.UUID `json:"session_id"`
	Reply     string    `json:"reply"`
	State     string    `json:"state"`
	// UseLLM reports the mode the fresh session actually runs in; false when
	// LLM extraction was requested but no provider is configured.
	UseLLM bool `json:"use_llm"`
}

type GetHistoryResponse struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
