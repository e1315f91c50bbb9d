package chat

import (
	"context"
	"fmt"
	"html"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/duochat/internal/models"
	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"
)

// LLM streams a chat completion as events. A failure to obtain the stream, or to keep reading it,
// is yielded as an error and ends the sequence.
type LLM interface {
	Chat(ctx context.Context, req goopenai.ChatCompletionRequest) iter.Seq2[models.StreamEvent, error]
}

// Renderer converts markdown text to an HTML fragment.
type Renderer interface {
	Render(text string) (string, error)
}

// Recorder keeps a record of finished pane turns.
type Recorder interface {
	RecordTurn(ctx context.Context, rec models.TurnRecord) error
}

// Endpoint binds a pane to the model behind it.
type Endpoint struct {
	LLM          LLM
	SystemPrompt string
}

// Config holds the collaborators and tuning of a Session. View, Renderer, Basic and RAG are
// required; everything else has a default.
type Config struct {
	Basic Endpoint
	RAG   Endpoint

	View     View
	Renderer Renderer
	// Recorder may be nil.
	Recorder Recorder

	Params models.RequestParams
	// DisplayInterval is the RAG pane's minimum time between renders. Zero means
	// DefaultDisplayInterval.
	DisplayInterval time.Duration
	// NewScheduler creates the scheduler of one RAG turn. Nil means Immediate.
	NewScheduler func() Scheduler
	// Now is the clock used for throttling and turn records. Nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

type pane struct {
	name      Pane
	llm       LLM
	conv      *models.Conversation
	throttled bool
}

// Session is the chat controller. It owns one conversation per endpoint and runs each submitted
// turn against the basic endpoint first and the RAG endpoint second.
type Session struct {
	// turnMu serializes turns, so panes and their histories are only ever written by one turn.
	turnMu sync.Mutex

	panes []*pane

	view            View
	md              Renderer
	recorder        Recorder
	params          models.RequestParams
	displayInterval time.Duration
	newScheduler    func() Scheduler
	now             func() time.Time

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewSession creates a Session with both conversations seeded by their system prompts.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Basic.LLM == nil || cfg.RAG.LLM == nil {
		return nil, fmt.Errorf("both basic and rag endpoints are required")
	}
	if cfg.View == nil {
		return nil, fmt.Errorf("view is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}

	s := &Session{
		panes: []*pane{
			{name: PaneBasic, llm: cfg.Basic.LLM, conv: models.NewConversation(cfg.Basic.SystemPrompt)},
			{name: PaneRAG, llm: cfg.RAG.LLM, conv: models.NewConversation(cfg.RAG.SystemPrompt), throttled: true},
		},
		view:            cfg.View,
		md:              cfg.Renderer,
		recorder:        cfg.Recorder,
		params:          cfg.Params,
		displayInterval: cfg.DisplayInterval,
		newScheduler:    cfg.NewScheduler,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}

	if s.params == (models.RequestParams{}) {
		s.params = models.DefaultRequestParams()
	}
	if s.displayInterval == 0 {
		s.displayInterval = DefaultDisplayInterval
	}
	if s.newScheduler == nil {
		s.newScheduler = func() Scheduler { return Immediate{} }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("module", "chat"))

	return s, nil
}

// History returns the messages of the given pane's conversation, or nil for an unknown pane.
func (s *Session) History(name Pane) []models.Message {
	for _, p := range s.panes {
		if p.name == name {
			return p.conv.Messages()
		}
	}
	return nil
}

// Panes returns the pane names in the order turns run against them.
func (s *Session) Panes() []Pane {
	names := make([]Pane, len(s.panes))
	for i, p := range s.panes {
		names[i] = p.name
	}
	return names
}

// SubmitTurn runs one turn for message. Blank input is ignored and reported as false.
//
// The user message is shown in and appended to both panes before any endpoint is called. Then the
// basic endpoint's turn runs to completion, and only after it has resolved, successfully or not,
// does the RAG endpoint's turn start. A failing endpoint shows an error bubble in its own pane and
// leaves the other pane untouched.
func (s *Session) SubmitTurn(ctx context.Context, message string) bool {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return false
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.logger.Info("Processing new user query", slog.Int("length", len(msg)))

	userHTML := s.renderOrEscape(msg)
	for _, p := range s.panes {
		s.appendBubble(p.name, Bubble{ID: bubbleID(), Kind: BubbleUser, HTML: userHTML})
	}
	for _, p := range s.panes {
		p.conv.AppendUser(msg)
	}

	for _, p := range s.panes {
		s.runPane(ctx, p, msg)
	}

	s.logger.Info("Query processing complete")
	return true
}

func (s *Session) runPane(ctx context.Context, p *pane, prompt string) {
	logger := s.logger.With(slog.String("pane", string(p.name)))
	logger.Info("Sending request")

	rec := models.TurnRecord{
		ID:        uuid.New().String(),
		Pane:      string(p.name),
		Prompt:    prompt,
		StartedAt: s.now(),
	}

	text, placeholder, err := s.streamPane(ctx, p, logger)
	rec.Duration = s.now().Sub(rec.StartedAt)

	if err != nil {
		logger.Error("Endpoint turn failed", slog.String(errLoggerKey, err.Error()))
		errBubble := Bubble{
			ID:   bubbleID(),
			Kind: BubbleError,
			HTML: s.renderOrEscape("Error: " + err.Error()),
		}
		if placeholder != "" {
			errBubble.ID = placeholder
			s.replaceBubble(p.name, errBubble)
		} else {
			s.appendBubble(p.name, errBubble)
		}
		rec.Error = err.Error()
	} else {
		p.conv.AppendAssistant(text)
		rec.Response = text
		logger.Info("Response complete", slog.Int("length", len(text)))
	}

	if s.recorder != nil {
		if err := s.recorder.RecordTurn(ctx, rec); err != nil {
			logger.Error("Failed to record turn", slog.String(errLoggerKey, err.Error()))
		}
	}
}

// streamPane consumes one endpoint stream into the pane's bot bubble and returns the accumulated
// text. The stream is complete on the [DONE] sentinel or when the body ends without one.
//
// On failure, the second result is the id of a bot bubble that was shown but never received
// content, or empty.
func (s *Session) streamPane(ctx context.Context, p *pane, logger *slog.Logger) (string, string, error) {
	req := p.conv.RequestPayload(s.params)
	id := bubbleID()

	render := func(text string) {
		if err := s.view.UpdateBubble(p.name, id, s.renderOrEscape(text)); err != nil {
			logger.Error("Failed to update bubble", slog.String(errLoggerKey, err.Error()))
		}
	}

	shown := false
	show := func(loading bool) {
		if shown {
			return
		}
		shown = true
		s.appendBubble(p.name, Bubble{ID: id, Kind: BubbleBot, Loading: loading})
	}

	var (
		sched    Scheduler
		throttle *Throttle
	)
	if p.throttled {
		show(true)
		sched = s.newScheduler()
		defer sched.Stop()
		throttle = NewThrottle(s.displayInterval, s.now)
	}

	var sb strings.Builder
	var streamErr error
	for ev, err := range p.llm.Chat(ctx, req) {
		if err != nil {
			streamErr = err
			break
		}

		if ev.Kind == models.EventDone {
			break
		}
		if ev.Kind == models.EventUnparseable {
			logger.Debug("Skipping incomplete chunk")
			continue
		}

		show(false)
		sb.WriteString(ev.Delta)
		snapshot := sb.String()
		if p.throttled {
			sched.Schedule(func() {
				throttle.Notify(snapshot, render)
			})
			continue
		}
		render(snapshot)
	}

	if p.throttled {
		sched.Stop()
		if sb.Len() > 0 || streamErr == nil {
			throttle.Flush(sb.String(), render)
		}
	}
	if streamErr != nil {
		if shown && sb.Len() == 0 {
			return "", id, streamErr
		}
		return "", "", streamErr
	}

	show(false)
	return sb.String(), "", nil
}

func (s *Session) appendBubble(name Pane, b Bubble) {
	if err := s.view.AppendBubble(name, b); err != nil {
		s.logger.Error("Failed to append bubble",
			slog.String("pane", string(name)),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (s *Session) replaceBubble(name Pane, b Bubble) {
	if err := s.view.ReplaceBubble(name, b); err != nil {
		s.logger.Error("Failed to replace bubble",
			slog.String("pane", string(name)),
			slog.String(errLoggerKey, err.Error()))
	}
}

// renderOrEscape renders markdown, falling back to the escaped plain text.
func (s *Session) renderOrEscape(text string) string {
	out, err := s.md.Render(text)
	if err != nil {
		s.logger.Error("Failed to render markdown", slog.String(errLoggerKey, err.Error()))
		return html.EscapeString(text)
	}
	return out
}

func bubbleID() string {
	return "msg-" + uuid.New().String()
}
