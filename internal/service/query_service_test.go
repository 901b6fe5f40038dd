package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctgov-compliance-be/internal/dto"
	"ctgov-compliance-be/internal/repository/memory"
	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/extract/strategy"
	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/store"
)

type fakeExtractor struct {
	fn    func(req extract.Request) (*extract.Result, error)
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, req extract.Request) (*extract.Result, error) {
	f.calls++
	return f.fn(req)
}

type noopLogger struct{}

func (noopLogger) Debug(string, string, map[string]interface{}) {}
func (noopLogger) Info(string, string, map[string]interface{})  {}
func (noopLogger) Warn(string, string, map[string]interface{})  {}
func (noopLogger) Error(string, string, map[string]interface{}) {}
func (noopLogger) Sync() error                                  { return nil }

func newService(det, llm extract.Extractor, repo *memory.SessionRepository) IQueryService {
	sel := strategy.NewSelector(det, llm, nil)
	return NewQueryService(repo, sel, nil, nil, noopLogger{}, func() time.Time {
		return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	})
}

func TestSendMessageAcceptedTurn(t *testing.T) {
	repo := memory.NewSessionRepository()
	det := &fakeExtractor{fn: func(req extract.Request) (*extract.Result, error) {
		spec, _ := filter.Build(map[string]string{"organization": "Acme"})
		return &extract.Result{Spec: filter.Merge(req.Prior, spec)}, nil
	}}
	svc := newService(det, nil, repo)

	sessionId := uuid.New()
	res, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "trials for Acme",
	})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.False(t, res.UseLLM)
	assert.Equal(t, store.StateResolved, res.State)
	require.NotNil(t, res.Filter)
	assert.Equal(t, "Acme", res.Filter.Organization)
	assert.Contains(t, res.Reply, `"Acme"`)

	sess, found := repo.Get(sessionId.String())
	require.True(t, found)
	// welcome + user + assistant
	assert.Len(t, sess.Turns, 3)
	assert.Equal(t, store.RoleUser, sess.Turns[1].Role)
}

func TestSendMessageClarificationParksPartial(t *testing.T) {
	repo := memory.NewSessionRepository()
	partial, _ := filter.Build(map[string]string{"compliance_status": "compliant"})
	det := &fakeExtractor{fn: func(req extract.Request) (*extract.Result, error) {
		return &extract.Result{Clarification: "Which organization?", Partial: partial}, nil
	}}
	svc := newService(det, nil, repo)

	sessionId := uuid.New()
	res, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "compliant trials for mercy",
	})
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, store.StateAwaiting, res.State)
	assert.Equal(t, "Which organization?", res.Reply)
	assert.Nil(t, res.Filter, "no active filter until the clarification resolves")

	sess, _ := repo.Get(sessionId.String())
	require.NotNil(t, sess.Partial)
	assert.Equal(t, []string{"compliant"}, sess.Partial.Set("compliance_status"))
}

func TestSendMessageLLMFallbackReportsHonestly(t *testing.T) {
	repo := memory.NewSessionRepository()
	det := &fakeExtractor{fn: func(req extract.Request) (*extract.Result, error) {
		spec, _ := filter.Build(map[string]string{"title": "cardiac"})
		return &extract.Result{Spec: spec}, nil
	}}
	llm := &fakeExtractor{fn: func(req extract.Request) (*extract.Result, error) {
		return nil, &extract.TransportError{Err: errors.New("timeout")}
	}}
	svc := newService(det, llm, repo)

	sessionId := uuid.New()
	res, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "cardiac trials",
		UseLLM:    true,
	})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.False(t, res.UseLLM, "fallback turns must not claim LLM involvement")

	// The session stays in LLM mode; the fallback was for this turn only.
	sess, _ := repo.Get(sessionId.String())
	assert.Equal(t, store.ModeLLM, sess.Mode)
}

func TestSendMessageModeSwitchClearsContext(t *testing.T) {
	repo := memory.NewSessionRepository()
	det := &fakeExtractor{fn: func(req extract.Request) (*extract.Result, error) {
		spec, _ := filter.Build(map[string]string{"organization": "Acme"})
		return &extract.Result{Spec: filter.Merge(req.Prior, spec)}, nil
	}}
	llm := &fakeExtractor{fn: func(req extract.Request) (*extract.Result, error) {
		require.Nil(t, req.Prior, "prior filter must not survive a mode switch")
		require.Len(t, req.History, 1, "only the fresh welcome turn should remain")
		spec, _ := filter.Build(map[string]string{"title": "cardiac"})
		return &extract.Result{Spec: spec}, nil
	}}
	svc := newService(det, llm, repo)

	sessionId := uuid.New()
	_, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "trials for Acme",
	})
	require.NoError(t, err)

	res, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "cardiac trials",
		UseLLM:    true,
	})
	require.NoError(t, err)

	require.NotNil(t, res.Filter)
	assert.Empty(t, res.Filter.Organization, "old mode's filter must not leak through")
	assert.Equal(t, "cardiac", res.Filter.Title)
}

func TestSendMessageRetriesOnceOnConcurrentCommit(t *testing.T) {
	repo := memory.NewSessionRepository()
	sessionId := uuid.New()

	det := &fakeExtractor{}
	det.fn = func(req extract.Request) (*extract.Result, error) {
		if det.calls == 1 {
			// Simulate a second writer committing while extraction ran.
			sess, _ := repo.Get(sessionId.String())
			bumped := sess.Clone()
			bumped.Version++
			repo.Save(bumped)
		}
		spec, _ := filter.Build(map[string]string{"title": "x"})
		return &extract.Result{Spec: spec}, nil
	}
	svc := newService(det, nil, repo)

	res, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "x trials",
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 2, det.calls, "a stale snapshot must trigger exactly one re-extraction")
}

func TestSendMessageRetryExtractionErrorRejectsTurn(t *testing.T) {
	repo := memory.NewSessionRepository()
	sessionId := uuid.New()

	det := &fakeExtractor{}
	det.fn = func(req extract.Request) (*extract.Result, error) {
		if det.calls == 1 {
			sess, _ := repo.Get(sessionId.String())
			bumped := sess.Clone()
			bumped.Version++
			repo.Save(bumped)
			spec, _ := filter.Build(map[string]string{"title": "x"})
			return &extract.Result{Spec: spec}, nil
		}
		return nil, errors.New("extractor broke")
	}
	svc := newService(det, nil, repo)

	res, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "x trials",
	})
	require.NoError(t, err, "an extraction failure on the retry is not a transport error to the caller")
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reply, "wasn't able to process")

	// Nothing committed; the user's message never entered the history.
	sess, found := repo.Get(sessionId.String())
	require.True(t, found)
	assert.Len(t, sess.Turns, 1)
}

func TestConcurrentHistoryDuringModeSwitches(t *testing.T) {
	repo := memory.NewSessionRepository()
	ok := func(req extract.Request) (*extract.Result, error) {
		spec, _ := filter.Build(map[string]string{"organization": "Acme"})
		return &extract.Result{Spec: spec}, nil
	}
	svc := newService(&fakeExtractor{fn: ok}, &fakeExtractor{fn: ok}, repo)

	sessionId := uuid.New()
	_, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "trials for Acme",
	})
	require.NoError(t, err)

	// Mode switches rewrite the stored session while readers page through the
	// history; both sides must go through the session lock.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(useLLM bool) {
			defer wg.Done()
			// Conflicting turns may be rejected with 409, which is fine here.
			_, _ = svc.SendMessage(context.Background(), &dto.SendMessageRequest{
				SessionId: sessionId,
				Message:   "trials for Acme",
				UseLLM:    useLLM,
			})
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_, _ = svc.GetHistory(context.Background(), sessionId)
		}()
	}
	wg.Wait()

	history, err := svc.GetHistory(context.Background(), sessionId)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestResetSessionDropsEverything(t *testing.T) {
	repo := memory.NewSessionRepository()
	det := &fakeExtractor{fn: func(req extract.Request) (*extract.Result, error) {
		spec, _ := filter.Build(map[string]string{"organization": "Acme"})
		return &extract.Result{Spec: filter.Merge(req.Prior, spec)}, nil
	}}
	svc := newService(det, nil, repo)

	sessionId := uuid.New()
	_, err := svc.SendMessage(context.Background(), &dto.SendMessageRequest{
		SessionId: sessionId,
		Message:   "trials for Acme",
	})
	require.NoError(t, err)

	resetRes, err := svc.ResetSession(context.Background(), &dto.ResetSessionRequest{SessionId: sessionId})
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, resetRes.State)
	assert.False(t, resetRes.UseLLM)

	sess, found := repo.Get(sessionId.String())
	require.True(t, found)
	assert.Nil(t, sess.Filter)
	assert.Nil(t, sess.Partial)
	assert.Len(t, sess.Turns, 1, "only the fresh welcome turn survives a reset")

	history, err := svc.GetHistory(context.Background(), sessionId)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.RoleAssistant, history[0].Role)
}

func TestResetSessionAppliesRequestedMode(t *testing.T) {
	repo := memory.NewSessionRepository()
	noop := func(extract.Request) (*extract.Result, error) {
		return &extract.Result{}, nil
	}
	svc := newService(&fakeExtractor{fn: noop}, &fakeExtractor{fn: noop}, repo)

	sessionId := uuid.New()
	res, err := svc.ResetSession(context.Background(), &dto.ResetSessionRequest{SessionId: sessionId, UseLLM: true})
	require.NoError(t, err)
	assert.True(t, res.UseLLM)

	sess, found := repo.Get(sessionId.String())
	require.True(t, found)
	assert.Equal(t, store.ModeLLM, sess.Mode)

	// Without a configured provider the request degrades to deterministic.
	bare := newService(&fakeExtractor{fn: noop}, nil, memory.NewSessionRepository())
	res, err = bare.ResetSession(context.Background(), &dto.ResetSessionRequest{SessionId: uuid.New(), UseLLM: true})
	require.NoError(t, err)
	assert.False(t, res.UseLLM)
}

func TestGetHistoryUnknownSession(t *testing.T) {
	svc := newService(&fakeExtractor{fn: func(extract.Request) (*extract.Result, error) {
		return &extract.Result{}, nil
	}}, nil, memory.NewSessionRepository())

	_, err := svc.GetHistory(context.Background(), uuid.New())
	assert.Error(t, err)
}
