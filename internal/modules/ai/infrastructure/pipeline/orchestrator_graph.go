package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/memory"
	"SecAssist/internal/modules/ai/infrastructure/plugins"
	"SecAssist/internal/modules/ai/infrastructure/privacy"
	"SecAssist/internal/modules/ai/infrastructure/queue"
	"SecAssist/internal/modules/ai/infrastructure/synthesis"
	"SecAssist/pkg/util"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

// orchestratorState threaded through the graph nodes
type orchestratorState struct {
	Req        *ProcessRequest
	Start      time.Time
	SessionID  string
	NewSession bool
	UserMsg    *conversation.Message
	Window     *conversation.ContextWindow
	Decision   intent.Decision
	Selected   []intent.HandlerDescriptor
	Outcomes   []intent.HandlerOutcome
	Synth      *synthesis.Result
	Text       string
	Timing     map[string]int64

	Err     error // failed before any handler ran: nothing else is written
	ExecErr error // every handler failed: an error notice is persisted
}

const maxSessionIDLen = 32

func (st *orchestratorState) stage(name string, start time.Time) {
	st.Timing[name] = time.Since(start).Milliseconds()
}

// Node 1: PersistUser - resolve the session and store the redacted user message
func (p *OrchestratorPipeline) persistUserNode(ctx context.Context, req *ProcessRequest, _ ...any) (*orchestratorState, error) {
	st := &orchestratorState{Req: req, Start: time.Now(), Timing: map[string]int64{}}
	defer st.stage("persist_user", st.Start)

	userID := strings.TrimSpace(req.UserID)
	query := strings.TrimSpace(req.Query)
	if userID == "" {
		st.Err = errors.New("user_id is required")
		return st, nil
	}
	if query == "" {
		st.Err = conversation.ErrEmptyQuery
		return st, nil
	}

	st.SessionID = strings.TrimSpace(req.SessionID)
	if st.SessionID == "" {
		st.SessionID = util.GenerateID("SS")
	}
	if len(st.SessionID) > maxSessionIDLen {
		st.Err = fmt.Errorf("%w: invalid session id", conversation.ErrSessionNotFound)
		return st, nil
	}

	redacted, tags := p.redactor.Ingest(query)
	msg := &conversation.Message{
		SessionId: st.SessionID,
		UserId:    userID,
		Role:      conversation.RoleUser,
		Content:   redacted,
		Category:  conversation.DefaultCategory,
	}
	if p.redactor.RetainRaw(tags) {
		msg.RawContent = query
	}
	meta := map[string]any{}
	if len(tags) > 0 {
		meta[conversation.MetaPIIFlags] = privacy.JoinTags(tags)
	}
	msg.SetMetadata(meta)

	unlock, err := p.locker.Lock(ctx, st.SessionID)
	if err != nil {
		st.Err = fmt.Errorf("lock session: %w", err)
		return st, nil
	}
	defer unlock()

	sess, err := p.sessions.GetSession(ctx, st.SessionID)
	if err != nil {
		st.Err = fmt.Errorf("%w: get session: %w", conversation.ErrStoreUnavailable, err)
		return st, nil
	}
	switch {
	case sess == nil:
		sess = &conversation.Session{
			SessionId: st.SessionID,
			UserId:    userID,
			Status:    conversation.SessionStatusActive,
		}
		if err := p.sessions.CreateSession(ctx, sess); err != nil {
			st.Err = fmt.Errorf("%w: create session: %w", conversation.ErrStoreUnavailable, err)
			return st, nil
		}
		st.NewSession = true
	case sess.UserId != userID:
		st.Err = conversation.ErrAccessDenied
		return st, nil
	case sess.IsClosed():
		st.Err = conversation.ErrSessionClosed
		return st, nil
	}

	msg.CreatedAt = time.Now()
	if err := p.messages.AppendMessage(ctx, msg); err != nil {
		st.Err = fmt.Errorf("%w: append user message: %w", conversation.ErrStoreUnavailable, err)
		return st, nil
	}
	st.UserMsg = msg
	if !st.NewSession {
		if err := p.sessions.TouchSession(ctx, st.SessionID); err != nil {
			zlog.Warn("orchestrator touch session failed", zap.String("session_id", st.SessionID), zap.Error(err))
		}
	}

	zlog.Info("orchestrator persist user done",
		zap.String("session_id", st.SessionID),
		zap.Bool("new_session", st.NewSession),
		zap.Int64("message_id", msg.Id),
		zap.Int("pii_categories", len(tags)))
	return st, nil
}

// Node 2: BuildContext - token-bounded window, the current message included
func (p *OrchestratorPipeline) buildContextNode(ctx context.Context, st *orchestratorState, _ ...any) (*orchestratorState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}
	start := time.Now()
	defer st.stage("context", start)

	w, err := p.window.Build(ctx, st.SessionID, p.opts.TokenBudget)
	if err != nil {
		// history is advisory: answer the current message alone
		zlog.Warn("orchestrator build context failed", zap.String("session_id", st.SessionID), zap.Error(err))
		w = &conversation.ContextWindow{
			SessionID:  st.SessionID,
			Messages:   []*conversation.Message{st.UserMsg},
			TokenCount: memory.EstimateTokens(st.UserMsg.Content),
			Budget:     p.opts.TokenBudget,
		}
	}
	st.Window = w

	zlog.Info("orchestrator build context done",
		zap.String("session_id", st.SessionID),
		zap.Int("messages", len(w.Messages)),
		zap.Int("tokens", w.TokenCount),
		zap.Int("dropped", w.Dropped),
		zap.Int("compressed", w.Compressed),
		zap.Bool("over_budget", w.OverBudget))
	return st, nil
}

// Node 3: Classify - intent + gate, recorded on the user message
func (p *OrchestratorPipeline) classifyNode(ctx context.Context, st *orchestratorState, _ ...any) (*orchestratorState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}
	start := time.Now()
	defer st.stage("classify", start)

	st.Decision = p.classifier.Classify(ctx, st.UserMsg.Content, st.Window)
	in := st.Decision.Intent

	meta := map[string]any{
		conversation.MetaIntent:     string(in.Tag),
		conversation.MetaConfidence: in.Confidence,
		conversation.MetaRoute:      string(st.Decision.Route),
	}
	if len(in.Entities) > 0 {
		meta[conversation.MetaEntities] = strings.Join(in.Entities, ",")
	}
	if err := p.messages.MergeMetadata(ctx, st.UserMsg.Id, meta); err != nil {
		zlog.Warn("orchestrator record classification failed", zap.Int64("message_id", st.UserMsg.Id), zap.Error(err))
	}
	if err := p.messages.SetCategory(ctx, st.UserMsg.Id, categoryFor(in.Tag)); err != nil {
		zlog.Warn("orchestrator set category failed", zap.Int64("message_id", st.UserMsg.Id), zap.Error(err))
	}
	st.UserMsg.Category = categoryFor(in.Tag)

	zlog.Info("orchestrator classify done",
		zap.String("session_id", st.SessionID),
		zap.String("intent", string(in.Tag)),
		zap.Float64("confidence", in.Confidence),
		zap.String("route", string(st.Decision.Route)),
		zap.Int("attempts", st.Decision.Attempts),
		zap.Bool("fallback", st.Decision.Fallback))
	return st, nil
}

// Node 4: Select
func (p *OrchestratorPipeline) selectNode(ctx context.Context, st *orchestratorState, _ ...any) (*orchestratorState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}
	st.Selected = p.registry.Select(st.Decision.Intent)
	names := make([]string, 0, len(st.Selected))
	for _, h := range st.Selected {
		names = append(names, h.Name)
	}
	zlog.Info("orchestrator select done",
		zap.String("session_id", st.SessionID),
		zap.Strings("handlers", names))
	return st, nil
}

// Node 5: Execute
func (p *OrchestratorPipeline) executeNode(ctx context.Context, st *orchestratorState, _ ...any) (*orchestratorState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}
	start := time.Now()
	defer st.stage("execute", start)

	req := &plugins.HandlerRequest{
		UserID:    st.UserMsg.UserId,
		SessionID: st.SessionID,
		Query:     st.UserMsg.Content,
		Intent:    st.Decision.Intent,
		Window:    st.Window,
	}
	outcomes, err := p.coordinator.Execute(ctx, st.Selected, req)
	st.Outcomes = outcomes
	if err != nil {
		st.ExecErr = err
	}
	return st, nil
}

// Node 6: Synthesize
func (p *OrchestratorPipeline) synthesizeNode(ctx context.Context, st *orchestratorState, _ ...any) (*orchestratorState, error) {
	if st == nil || st.Err != nil || st.ExecErr != nil {
		return st, nil
	}
	start := time.Now()
	defer st.stage("synthesize", start)

	res, err := p.synthesizer.Synthesize(ctx, st.UserMsg.Content, st.Outcomes)
	if err != nil {
		st.ExecErr = err
		return st, nil
	}
	st.Synth = res
	st.Text = res.Text
	if st.Decision.LowConfidence() && strings.TrimSpace(p.opts.LowConfidenceNote) != "" {
		st.Text = st.Text + "\n\n" + p.opts.LowConfidenceNote
	}

	zlog.Info("orchestrator synthesize done",
		zap.String("session_id", st.SessionID),
		zap.Strings("handlers", res.Handlers),
		zap.Int("sources", len(res.Sources)),
		zap.Bool("fallback", res.Fallback))
	return st, nil
}

// Node 7: Respond - persist the assistant turn and assemble the result
func (p *OrchestratorPipeline) respondNode(ctx context.Context, st *orchestratorState, _ ...any) (*ProcessResult, error) {
	if st == nil {
		return &ProcessResult{Err: fmt.Errorf("nil state")}, nil
	}
	res := &ProcessResult{
		SessionID:             st.SessionID,
		Intent:                st.Decision.Intent.Tag,
		Confidence:            st.Decision.Intent.Confidence,
		Route:                 st.Decision.Route,
		LowConfidence:         st.Decision.LowConfidence(),
		ClarificationRequired: st.Decision.ClarificationRequired(),
		Outcomes:              summarizeOutcomes(st.Outcomes),
		Timing:                st.Timing,
	}
	if st.UserMsg != nil {
		res.UserMessageID = st.UserMsg.Id
	}
	if st.Err != nil {
		res.Err = st.Err
		p.finish(st, res, "error")
		return res, nil
	}

	meta := map[string]any{
		conversation.MetaIntent:     string(st.Decision.Intent.Tag),
		conversation.MetaConfidence: st.Decision.Intent.Confidence,
		conversation.MetaRoute:      string(st.Decision.Route),
		conversation.MetaLatencyMs:  time.Since(st.Start).Milliseconds(),
	}
	status := "ok"
	switch {
	case st.Decision.ClarificationRequired():
		res.Text = p.opts.ClarificationPrompt
		meta[conversation.MetaClarification] = true
		status = "clarify"
	case st.ExecErr != nil:
		res.Text = p.opts.ErrorNotice
		res.Err = st.ExecErr
		meta[conversation.MetaError] = true
		status = "failed"
	default:
		res.Text = st.Text
		res.HandlersUsed = st.Synth.Handlers
		res.Sources = st.Synth.Sources
		res.SynthesisFallback = st.Synth.Fallback
		meta[conversation.MetaHandlers] = strings.Join(st.Synth.Handlers, ",")
		if st.Decision.LowConfidence() {
			meta[conversation.MetaLowConfidence] = true
		}
	}

	start := time.Now()
	assistantMsg, err := p.persistAssistant(ctx, st, res.Text, meta)
	st.stage("persist_assistant", start)
	if err != nil {
		res.Degraded = true
		if status == "ok" {
			status = "degraded"
		}
		zlog.Error("orchestrator persist assistant failed",
			zap.String("session_id", st.SessionID),
			zap.Error(err))
	} else {
		res.AssistantMessageID = assistantMsg.Id
	}

	p.enqueueIndexing(ctx, st.UserMsg, assistantMsg)
	p.finish(st, res, status)
	return res, nil
}

// persistAssistant writes on a detached context: the notice of a timed-out
// request must still land after the user message it answers.
func (p *OrchestratorPipeline) persistAssistant(ctx context.Context, st *orchestratorState, text string, meta map[string]any) (*conversation.Message, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StoreTimeout)
	defer cancel()

	redacted, tags := p.redactor.Ingest(text)
	msg := &conversation.Message{
		SessionId: st.SessionID,
		UserId:    st.UserMsg.UserId,
		Role:      conversation.RoleAssistant,
		Content:   redacted,
		Category:  categoryFor(st.Decision.Intent.Tag),
	}
	if p.redactor.RetainRaw(tags) {
		msg.RawContent = text
	}
	if len(tags) > 0 {
		meta[conversation.MetaPIIFlags] = privacy.JoinTags(tags)
	}
	msg.SetMetadata(meta)

	unlock, err := p.locker.Lock(wctx, st.SessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	msg.CreatedAt = time.Now()
	if err := p.messages.AppendMessage(wctx, msg); err != nil {
		return nil, fmt.Errorf("%w: append assistant message: %w", conversation.ErrStoreUnavailable, err)
	}
	return msg, nil
}

// enqueueIndexing hands both turns to the embedding worker; failures only cost
// recall freshness and are recovered by a session reindex.
func (p *OrchestratorPipeline) enqueueIndexing(ctx context.Context, msgs ...*conversation.Message) {
	if p.enqueuer == nil {
		return
	}
	jobs := make([]queue.EmbeddingJob, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Id <= 0 {
			continue
		}
		jobs = append(jobs, queue.EmbeddingJob{MessageID: m.Id, SessionID: m.SessionId, UserID: m.UserId})
	}
	if len(jobs) == 0 {
		return
	}
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.enqueuer.Enqueue(qctx, jobs...); err != nil {
		zlog.Warn("orchestrator enqueue indexing failed", zap.String("session_id", jobs[0].SessionID), zap.Error(err))
	}
}

func (p *OrchestratorPipeline) finish(st *orchestratorState, res *ProcessResult, status string) {
	elapsed := time.Since(st.Start)
	res.TimingMs = elapsed.Milliseconds()
	p.metrics.ObserveRequest(routeLabel(res.Route), status, elapsed)

	zlog.Info("orchestrator request done",
		zap.String("session_id", st.SessionID),
		zap.String("route", routeLabel(res.Route)),
		zap.String("status", status),
		zap.Strings("handlers", res.HandlersUsed),
		zap.Bool("degraded", res.Degraded),
		zap.Int64("total_ms", res.TimingMs))
}
