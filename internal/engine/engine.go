// Package engine is the orchestration core. One HandleTurn call takes a
// user utterance through the decide, tool-dispatch, respond loop and
// returns a finalized reply plus any audio units produced along the way.
// Provider failures are absorbed by the resilience layer and surface as
// a degraded reply, never as an error, so the turn is always answered
// unless the caller cancels it.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"voxagent/internal/convstate"
	"voxagent/internal/domain"
	"voxagent/internal/events"
	"voxagent/internal/metrics"
	"voxagent/internal/resilience"
	"voxagent/internal/stream"
	"voxagent/internal/tool"
)

const defaultMaxChainDepth = 5

const (
	degradedReply   = "I'm sorry, I'm having trouble thinking right now. Please try again in a moment."
	chainDepthReply = "I wasn't able to complete this request after several steps. Could you try rephrasing it?"
)

// Unit is one streamed utterance: its text and, when a synthesizer is
// configured, the audio produced for it.
type Unit struct {
	Text  string
	Audio []byte
}

// TurnResult is the finalized outcome of one conversational turn.
type TurnResult struct {
	SessionID string
	Reply     string
	Units     []Unit
	Degraded  bool
}

// Config wires the engine's collaborators.
type Config struct {
	Provider    domain.LLMProvider
	Transcriber domain.Transcriber // optional, required only for voice turns
	Synthesizer domain.Synthesizer // optional, enables audio units
	Registry    *tool.Registry
	Sessions    *SessionManager
	Transcripts domain.TranscriptStore // optional
	Bus         *events.Bus            // optional

	// FallbackModel, when set, is retried once in place of the default
	// model after a resource-exhausted provider failure.
	FallbackModel string
	// Streaming selects the token-stream path when the provider
	// supports it, letting synthesis start before generation finishes.
	Streaming     bool
	MaxChainDepth int
	Retry         resilience.Options
	Logger        *slog.Logger
}

type Engine struct {
	provider    domain.LLMProvider
	streamer    domain.StreamingLLMProvider // nil when unsupported or disabled
	transcriber domain.Transcriber
	synthesizer domain.Synthesizer
	registry    *tool.Registry
	sessions    *SessionManager
	transcripts domain.TranscriptStore
	bus         *events.Bus

	fallbackModel string
	maxChainDepth int
	retry         resilience.Options
	logger        *slog.Logger
}

func New(cfg Config) *Engine {
	if cfg.MaxChainDepth <= 0 {
		cfg.MaxChainDepth = defaultMaxChainDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{
		provider:      cfg.Provider,
		transcriber:   cfg.Transcriber,
		synthesizer:   cfg.Synthesizer,
		registry:      cfg.Registry,
		sessions:      cfg.Sessions,
		transcripts:   cfg.Transcripts,
		bus:           cfg.Bus,
		fallbackModel: cfg.FallbackModel,
		maxChainDepth: cfg.MaxChainDepth,
		retry:         cfg.Retry,
		logger:        cfg.Logger,
	}
	if cfg.Streaming {
		if s, ok := cfg.Provider.(domain.StreamingLLMProvider); ok {
			e.streamer = s
		}
	}
	if e.retry.Logger == nil {
		e.retry.Logger = cfg.Logger
	}
	return e
}

// HandleVoiceTurn transcribes audio and runs the resulting text through
// HandleTurn. Transcription failures are real errors; there is nothing
// to answer when the utterance itself was not understood.
func (e *Engine) HandleVoiceTurn(ctx context.Context, sessionID string, audio io.Reader, filename string) (*TurnResult, error) {
	if e.transcriber == nil {
		return nil, errors.New("no transcriber configured")
	}
	// Buffer once so a retried attempt re-reads from the start.
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, err
	}
	tr, err := resilience.Do(ctx, func(ctx context.Context) (*domain.Transcription, error) {
		return e.transcriber.Transcribe(ctx, bytes.NewReader(data), filename)
	}, nil, e.retry)
	if err != nil {
		return nil, err
	}
	return e.HandleTurn(ctx, sessionID, tr.Text)
}

// HandleTurn processes one user utterance to completion. It returns an
// error only for empty input or caller cancellation; every provider or
// tool failure is converted into a user-visible reply.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, errors.New("empty user text")
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// One in-flight turn per session. Other sessions proceed freely.
	sess.mu.Lock()
	defer sess.mu.Unlock()

	metrics.TurnsTotal.Inc()
	e.emit(events.TurnStarted, sess.ID, map[string]any{"text": userText})

	userMsg := domain.Message{Role: domain.RoleUser, Content: userText}
	if err := sess.Context.Append(ctx, userMsg); err != nil {
		return nil, err
	}
	// A message stating a preference is kept through pruning so the
	// model keeps seeing it verbatim, not only as extracted state.
	if len(convstate.ExtractPreferences(userText)) > 0 {
		sess.Context.MarkLastImportant()
	}
	e.record(ctx, sess.ID, userMsg)
	sess.Tracker.ObserveUserMessage(userText)

	result := &TurnResult{SessionID: sess.ID}
	defs := e.registry.Definitions()

	depth := 0
	for ; depth < e.maxChainDepth; depth++ {
		req := domain.ChatRequest{Messages: sess.Context.Snapshot(0), Tools: defs}

		resp, units, err := e.decide(ctx, sess.ID, req)
		result.Units = append(result.Units, units...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return e.degrade(ctx, sess, result, err)
		}

		assistant := domain.Message{
			Role:      domain.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		if err := sess.Context.Append(ctx, assistant); err != nil {
			return nil, err
		}
		e.record(ctx, sess.ID, assistant)

		if !resp.HasToolCalls() {
			result.Reply = resp.Content
			return e.finalize(ctx, sess, result)
		}
		if err := e.dispatchCalls(ctx, sess, resp.ToolCalls); err != nil {
			return nil, err
		}
	}

	// The model kept chaining tools past the configured depth.
	e.logger.Warn("chain depth exceeded", "session", sess.ID, "depth", depth)
	result.Reply = chainDepthReply
	result.Degraded = true
	e.appendReply(ctx, sess, result)
	return e.finalize(ctx, sess, result)
}

// decide runs one model call through the resilience layer. In streaming
// mode it drains the token stream into synthesized utterance units; a
// mid-stream failure is recovered by promoting the text received so far
// to the model's answer, provided any arrived.
func (e *Engine) decide(ctx context.Context, sessionID string, req domain.ChatRequest) (*domain.ChatResponse, []Unit, error) {
	fallback := e.fallbackOp(req)

	if e.streamer == nil {
		resp, err := resilience.DoWithFallback(ctx, countRetries(e, sessionID, func(ctx context.Context) (*domain.ChatResponse, error) {
			return e.provider.Complete(ctx, req)
		}), fallback, nil, e.retry)
		return resp, nil, err
	}

	// Retry only covers opening the stream. Once tokens flow, units may
	// already have been spoken, so a mid-stream failure is not retried.
	ts, err := resilience.Do(ctx, countRetries(e, sessionID, func(ctx context.Context) (domain.TokenStream, error) {
		return e.streamer.Stream(ctx, req)
	}), nil, e.retry)
	if err != nil {
		if fallback == nil || resilience.DefaultClassifier(err) != resilience.ResourceExhausted {
			return nil, nil, err
		}
		resp, fbErr := fallback(ctx)
		if fbErr != nil {
			return nil, nil, err
		}
		return resp, nil, nil
	}

	pipe := stream.NewPipeline(ts, nil)
	defer pipe.Close()

	var units []Unit
	var text strings.Builder
	for {
		unit, err := pipe.Next(ctx)
		if err == io.EOF {
			return pipe.Response(), units, nil
		}
		if err != nil {
			if text.Len() == 0 {
				return nil, units, err
			}
			e.logger.Warn("stream failed mid-response, keeping partial reply",
				"session", sessionID, "err", err)
			return &domain.ChatResponse{Content: text.String(), FinishReason: "error"}, units, nil
		}
		text.WriteString(unit)
		units = append(units, e.speak(ctx, sessionID, unit))
	}
}

// countRetries wraps a provider operation so every attempt after the
// first shows up in metrics and on the event bus.
func countRetries[T any](e *Engine, sessionID string, op func(context.Context) (T, error)) func(context.Context) (T, error) {
	attempts := 0
	return func(ctx context.Context) (T, error) {
		attempts++
		if attempts > 1 {
			metrics.LLMRetriesTotal.Inc()
			e.emit(events.ProviderRetried, sessionID, map[string]any{"attempt": attempts})
		}
		metrics.LLMRequestsTotal.Inc()
		start := time.Now()
		result, err := op(ctx)
		metrics.LLMLatency.Observe(time.Since(start).Seconds())
		return result, err
	}
}

func (e *Engine) fallbackOp(req domain.ChatRequest) func(context.Context) (*domain.ChatResponse, error) {
	if e.fallbackModel == "" {
		return nil
	}
	fbReq := req
	fbReq.Model = e.fallbackModel
	return func(ctx context.Context) (*domain.ChatResponse, error) {
		metrics.LLMRequestsTotal.Inc()
		return e.provider.Complete(ctx, fbReq)
	}
}

// speak synthesizes one utterance unit. Synthesis failure degrades that
// unit to text only; the turn keeps going.
func (e *Engine) speak(ctx context.Context, sessionID, text string) Unit {
	unit := Unit{Text: text}
	if e.synthesizer != nil {
		audio, err := e.synthesizer.Synthesize(ctx, text)
		if err != nil {
			e.logger.Warn("synthesis failed", "session", sessionID, "err", err)
		} else {
			unit.Audio = audio
		}
	}
	metrics.UtteranceUnits.Inc()
	e.emit(events.UtteranceUnit, sessionID, map[string]any{"text": text})
	return unit
}

// dispatchCalls executes the model's tool calls sequentially in the
// order requested. When the caller cancels mid-dispatch, every call not
// yet executed still gets a failure result message so the transcript
// never carries a tool call without its paired result.
func (e *Engine) dispatchCalls(ctx context.Context, sess *Session, calls []domain.ToolCall) error {
	for i, call := range calls {
		if ctx.Err() != nil {
			for _, skipped := range calls[i:] {
				res := domain.ToolResult{
					ToolName:  skipped.Name,
					Arguments: skipped.Arguments,
					Error:     "canceled before execution",
				}
				e.appendToolResult(ctx, sess, skipped, res)
			}
			return ctx.Err()
		}

		e.emit(events.ToolDispatched, sess.ID, map[string]any{"tool": call.Name})
		metrics.ToolDispatches.Inc()
		start := time.Now()
		res := e.registry.Dispatch(ctx, call)
		metrics.ToolLatency.Observe(time.Since(start).Seconds())
		if !res.Success {
			metrics.ToolFailures.Inc()
		}
		e.emit(events.ToolCompleted, sess.ID, map[string]any{"tool": call.Name, "success": res.Success})
		e.appendToolResult(ctx, sess, call, res)
	}
	return nil
}

func (e *Engine) appendToolResult(ctx context.Context, sess *Session, call domain.ToolCall, res domain.ToolResult) {
	msg := domain.Message{
		Role:       domain.RoleTool,
		Content:    res.Text(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
	if err := sess.Context.Append(ctx, msg); err != nil {
		e.logger.Warn("failed to append tool result", "session", sess.ID, "err", err)
	}
	e.record(ctx, sess.ID, msg)
}

// degrade answers a turn whose model call failed past the retry policy.
func (e *Engine) degrade(ctx context.Context, sess *Session, result *TurnResult, cause error) (*TurnResult, error) {
	e.logger.Error("model call exhausted, answering degraded", "session", sess.ID, "err", cause)
	metrics.DegradedTurns.Inc()
	e.emit(events.TurnDegraded, sess.ID, map[string]any{"err": cause.Error()})

	result.Reply = degradedReply
	result.Degraded = true
	e.appendReply(ctx, sess, result)
	return e.finalize(ctx, sess, result)
}

// appendReply records an engine-authored assistant reply (degraded or
// chain-depth) in the context and transcript.
func (e *Engine) appendReply(ctx context.Context, sess *Session, result *TurnResult) {
	msg := domain.Message{Role: domain.RoleAssistant, Content: result.Reply}
	if err := sess.Context.Append(ctx, msg); err != nil {
		e.logger.Warn("failed to append reply", "session", sess.ID, "err", err)
	}
	e.record(ctx, sess.ID, msg)
}

// finalize persists conversation state and closes out the turn. When no
// units were streamed the whole reply is synthesized as a single unit.
func (e *Engine) finalize(ctx context.Context, sess *Session, result *TurnResult) (*TurnResult, error) {
	if len(result.Units) == 0 && result.Reply != "" && e.synthesizer != nil {
		result.Units = append(result.Units, e.speak(ctx, sess.ID, result.Reply))
	}
	if result.Reply == "" && len(result.Units) > 0 {
		var b strings.Builder
		for _, u := range result.Units {
			b.WriteString(u.Text)
		}
		result.Reply = b.String()
	}

	if err := sess.Tracker.Persist(context.WithoutCancel(ctx)); err != nil {
		// In-memory state stays authoritative for this process.
		e.logger.Warn("state persist failed", "session", sess.ID, "err", err)
	} else {
		e.emit(events.StateSaved, sess.ID, nil)
	}

	e.emit(events.TurnFinished, sess.ID, map[string]any{
		"reply":    result.Reply,
		"degraded": result.Degraded,
	})
	return result, nil
}

// record appends one finalized message to the durable transcript. Best
// effort: a persistence failure never blocks the turn, and a canceled
// turn still records what it produced.
func (e *Engine) record(ctx context.Context, sessionID string, msg domain.Message) {
	if e.transcripts == nil {
		return
	}
	rec := domain.TurnRecord{
		SessionID:  sessionID,
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		ToolName:   msg.ToolName,
		CreatedAt:  time.Now(),
	}
	if len(msg.ToolCalls) > 0 {
		if data, err := json.Marshal(msg.ToolCalls); err == nil {
			rec.ToolCalls = string(data)
		}
	}
	if err := e.transcripts.AppendMessage(context.WithoutCancel(ctx), sessionID, rec); err != nil {
		e.logger.Warn("transcript append failed", "session", sessionID, "err", err)
	}
}

func (e *Engine) emit(eventType, sessionID string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(events.Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}
