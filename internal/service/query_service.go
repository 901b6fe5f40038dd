package service

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ctgov-compliance-be/internal/dto"
	"ctgov-compliance-be/internal/pkg/logger"
	"ctgov-compliance-be/internal/pkg/serverutils"
	"ctgov-compliance-be/internal/repository/contract"
	"ctgov-compliance-be/internal/repository/memory"
	"ctgov-compliance-be/internal/repository/specification"
	"ctgov-compliance-be/pkg/conversation/compose"
	"ctgov-compliance-be/pkg/conversation/state"
	"ctgov-compliance-be/pkg/events"
	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/extract/strategy"
	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/llm"
	"ctgov-compliance-be/pkg/schema"
	"ctgov-compliance-be/pkg/store"
)

// historyWindow caps how many turns are replayed into the LLM prompt.
const historyWindow = 10

// IQueryService defines the conversation engine interface
type IQueryService interface {
	SendMessage(ctx context.Context, request *dto.SendMessageRequest) (*dto.SendMessageResponse, error)
	ResetSession(ctx context.Context, request *dto.ResetSessionRequest) (*dto.ResetSessionResponse, error)
	GetHistory(ctx context.Context, sessionId uuid.UUID) ([]*dto.GetHistoryResponse, error)
}

// queryService coordinates extraction, conversation state and the audit
// trail. Extraction runs outside the session lock; the session version
// detects writers that slipped in while it ran.
type queryService struct {
	sessionRepo *memory.SessionRepository
	selector    *strategy.Selector
	trialRepo   contract.TrialRepository
	auditPub    *events.Publisher
	sysLogger   logger.ILogger
	now         func() time.Time

	stateManager *state.Manager
	composer     *compose.Composer
}

// NewQueryService creates the conversation engine with all domain components
func NewQueryService(
	sessionRepo *memory.SessionRepository,
	selector *strategy.Selector,
	trialRepo contract.TrialRepository,
	auditPub *events.Publisher,
	sysLogger logger.ILogger,
	now func() time.Time,
) IQueryService {
	engineLogger := initEngineLogger()

	return &queryService{
		sessionRepo:  sessionRepo,
		selector:     selector,
		trialRepo:    trialRepo,
		auditPub:     auditPub,
		sysLogger:    sysLogger,
		now:          now,
		stateManager: state.NewManager(engineLogger),
		composer:     compose.NewComposer(engineLogger),
	}
}

func initEngineLogger() *log.Logger {
	logPath := filepath.Join(".", "logs", "query_engine.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, "[QUERY] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}

func (qs *queryService) SendMessage(ctx context.Context, request *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	id := request.SessionId.String()
	mu := qs.sessionRepo.Lock(id)

	mu.Lock()
	sess := qs.getOrCreate(id, request.UseLLM)
	sess = qs.ensureMode(sess, request.UseLLM)
	snapshot := sess.Clone()
	mu.Unlock()

	// Slow work happens unlocked so one stuck LLM call cannot freeze the
	// session for other requests.
	result, llmUsed, err := qs.resolve(ctx, request, snapshot)
	if err != nil {
		// Session state is untouched, so the user can simply retry.
		qs.sysLogger.Error("QUERY", "Extraction failed", map[string]interface{}{
			"session_id": id, "error": err.Error(),
		})
		return rejectedTurn(request.SessionId, snapshot.State), nil
	}
	reply, accepted, count := qs.composeReply(ctx, result)

	mu.Lock()
	current, found := qs.sessionRepo.Get(id)
	if !found {
		// Expired while extracting; the snapshot is the only truth left.
		current = snapshot
	}
	if current.Version != snapshot.Version {
		// Another turn committed underneath us. Re-extract once against the
		// new state, then give up rather than guess.
		fresh := current.Clone()
		mu.Unlock()

		result, llmUsed, err = qs.resolve(ctx, request, fresh)
		if err != nil {
			qs.sysLogger.Error("QUERY", "Extraction failed", map[string]interface{}{
				"session_id": id, "error": err.Error(),
			})
			return rejectedTurn(request.SessionId, fresh.State), nil
		}
		reply, accepted, count = qs.composeReply(ctx, result)

		mu.Lock()
		current, found = qs.sessionRepo.Get(id)
		if !found {
			current = fresh
		}
		if current.Version != fresh.Version {
			mu.Unlock()
			return nil, serverutils.NewConflictError("Session is handling another message, please retry")
		}
	}

	committed := current.Clone()
	now := qs.now()
	committed.AppendTurn(store.RoleUser, request.Message, now)
	qs.stateManager.Apply(committed, result)
	committed.AppendTurn(store.RoleAssistant, reply, now)
	committed.Version++
	qs.sessionRepo.Save(committed)

	sessionState := committed.State
	filterDTO := toFilterDTO(committed.Filter)
	mu.Unlock()

	qs.audit(id, result, llmUsed)
	qs.sysLogger.Info("QUERY", "Turn committed", map[string]interface{}{
		"session_id": id, "accepted": accepted, "llm_used": llmUsed, "state": sessionState,
	})

	return &dto.SendMessageResponse{
		SessionId:   request.SessionId,
		Accepted:    accepted,
		Reply:       reply,
		State:       sessionState,
		UseLLM:      llmUsed,
		Filter:      filterDTO,
		Diagnostics: toDiagnosticDTOs(result.Diagnostics),
		MatchCount:  count,
	}, nil
}

func (qs *queryService) ResetSession(ctx context.Context, request *dto.ResetSessionRequest) (*dto.ResetSessionResponse, error) {
	id := request.SessionId.String()
	mu := qs.sessionRepo.Lock(id)
	mu.Lock()
	defer mu.Unlock()

	llmUsed := request.UseLLM && qs.selector.LLMAvailable()
	version := uint64(0)
	if existing, found := qs.sessionRepo.Get(id); found {
		version = existing.Version
	}

	fresh := &store.Session{ID: id, Mode: store.ModeFor(llmUsed), State: store.StateIdle, Version: version + 1}
	fresh.AppendTurn(store.RoleAssistant, compose.WelcomeMessage, qs.now())
	qs.sessionRepo.Save(fresh)

	if qs.auditPub != nil {
		qs.auditPub.Publish(events.NewSessionReset(id, "user_request"))
	}
	qs.sysLogger.Info("QUERY", "Session reset", map[string]interface{}{"session_id": id})

	return &dto.ResetSessionResponse{
		SessionId: request.SessionId,
		Reply:     compose.WelcomeMessage,
		State:     fresh.State,
		UseLLM:    llmUsed,
	}, nil
}

func (qs *queryService) GetHistory(ctx context.Context, sessionId uuid.UUID) ([]*dto.GetHistoryResponse, error) {
	id := sessionId.String()
	mu := qs.sessionRepo.Lock(id)

	// Read under the session lock; commits from other requests mutate the
	// cached session's fields under the same lock.
	mu.Lock()
	sess, found := qs.sessionRepo.Get(id)
	if !found {
		mu.Unlock()
		return nil, serverutils.NewNotFoundError("Session not found")
	}
	turns := append([]store.Turn(nil), sess.Turns...)
	mu.Unlock()

	history := make([]*dto.GetHistoryResponse, 0, len(turns))
	for _, turn := range turns {
		history = append(history, &dto.GetHistoryResponse{
			Role:      turn.Role,
			Text:      turn.Text,
			CreatedAt: turn.CreatedAt,
		})
	}
	return history, nil
}

// getOrCreate must be called with the session lock held.
func (qs *queryService) getOrCreate(id string, useLLM bool) *store.Session {
	if sess, found := qs.sessionRepo.Get(id); found {
		return sess
	}
	sess := &store.Session{ID: id, Mode: store.ModeFor(useLLM), State: store.StateIdle}
	sess.AppendTurn(store.RoleAssistant, compose.WelcomeMessage, qs.now())
	qs.sessionRepo.Save(sess)
	return sess
}

// ensureMode discards all conversational context when the caller switches
// extraction modes; filters and history never leak between modes. Must be
// called with the session lock held. The stored pointer is never mutated in
// place; readers outside the lock may still hold it.
func (qs *queryService) ensureMode(sess *store.Session, useLLM bool) *store.Session {
	mode := store.ModeFor(useLLM)
	if sess.Mode == mode {
		return sess
	}

	cleared := sess.Clone()
	qs.stateManager.TransitionToIdle(cleared)
	cleared.Mode = mode
	cleared.AppendTurn(store.RoleAssistant, compose.WelcomeMessage, qs.now())
	cleared.Version++
	qs.sessionRepo.Save(cleared)

	if qs.auditPub != nil {
		qs.auditPub.Publish(events.NewSessionReset(cleared.ID, "mode_switch"))
	}
	qs.sysLogger.Info("QUERY", "Extraction mode switched, session cleared", map[string]interface{}{
		"session_id": cleared.ID, "mode": mode,
	})
	return cleared
}

func (qs *queryService) resolve(ctx context.Context, request *dto.SendMessageRequest, snapshot *store.Session) (*extract.Result, bool, error) {
	return qs.selector.Resolve(ctx, request.UseLLM, extract.Request{
		Message: request.Message,
		Prior:   snapshot.PriorFilter(),
		History: llmHistory(snapshot),
	})
}

// rejectedTurn is the reply for a turn that never committed; nothing about
// the session changed, so the user can retry as-is.
func rejectedTurn(sessionId uuid.UUID, state string) *dto.SendMessageResponse {
	return &dto.SendMessageResponse{
		SessionId: sessionId,
		Accepted:  false,
		Reply:     "I wasn't able to process that request. Please try again.",
		State:     state,
		UseLLM:    false,
	}
}

func (qs *queryService) composeReply(ctx context.Context, result *extract.Result) (reply string, accepted bool, count *int64) {
	if result.NeedsClarification() {
		return qs.composer.Clarify(result.Clarification, result.Diagnostics), false, nil
	}
	count = qs.countMatches(ctx, result.Spec)
	return qs.composer.Reply(result.Spec, result.Diagnostics, count), true, count
}

// countMatches is best effort: the turn still succeeds when the trial store
// is down or not configured.
func (qs *queryService) countMatches(ctx context.Context, spec *filter.Spec) *int64 {
	if qs.trialRepo == nil || spec == nil {
		return nil
	}
	count, err := qs.trialRepo.Count(ctx, specification.FromFilter(spec)...)
	if err != nil {
		qs.sysLogger.Warn("QUERY", "Trial count unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return &count
}

func (qs *queryService) audit(sessionID string, result *extract.Result, llmUsed bool) {
	if qs.auditPub == nil {
		return
	}
	if result.NeedsClarification() {
		qs.auditPub.Publish(events.NewClarificationAsked(sessionID, llmUsed))
		return
	}
	qs.auditPub.Publish(events.NewQueryAccepted(sessionID, result.Spec.Fields(), llmUsed))
}

func llmHistory(sess *store.Session) []llm.Message {
	turns := sess.Turns
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	history := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == store.RoleAssistant {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: turn.Text})
	}
	return history
}

func toFilterDTO(spec *filter.Spec) *dto.FilterDTO {
	if spec == nil || spec.IsEmpty() {
		return nil
	}
	return &dto.FilterDTO{
		Title:            spec.Text(schema.FieldTitle),
		NctId:            spec.Text(schema.FieldNCTID),
		Organization:     spec.Text(schema.FieldOrganization),
		UserEmail:        spec.Text(schema.FieldUserEmail),
		ComplianceStatus: spec.Set(schema.FieldComplianceStatus),
		DateType:         spec.Text(schema.FieldDateType),
		DateFrom:         spec.Text(schema.FieldDateFrom),
		DateTo:           spec.Text(schema.FieldDateTo),
	}
}

func toDiagnosticDTOs(diags []filter.Diagnostic) []dto.DiagnosticDTO {
	if len(diags) == 0 {
		return nil
	}
	out := make([]dto.DiagnosticDTO, 0, len(diags))
	for _, d := range diags {
		out = append(out, dto.DiagnosticDTO{
			Kind:   string(d.Kind),
			Field:  d.Field,
			Value:  d.Value,
			Detail: d.Detail,
		})
	}
	return out
}
