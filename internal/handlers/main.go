package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	duochat "github.com/MegaGrindStone/duochat"
	"github.com/MegaGrindStone/duochat/internal/chat"
	"github.com/MegaGrindStone/duochat/internal/models"
	"golang.org/x/time/rate"
)

// Session runs chat turns and exposes the per-pane histories.
type Session interface {
	SubmitTurn(ctx context.Context, message string) bool
	History(pane chat.Pane) []models.Message
	Panes() []chat.Pane
}

// Renderer converts markdown text to an HTML fragment.
type Renderer interface {
	Render(text string) (string, error)
}

// HealthChecker probes one upstream endpoint.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) error
}

// Transcript lists recorded turns.
type Transcript interface {
	Turns(ctx context.Context) ([]models.TurnRecord, error)
}

// Options holds the optional collaborators of Main.
type Options struct {
	Probes []HealthChecker
	// Transcript may be nil, in which case the transcript endpoint answers 404.
	Transcript Transcript
	// SubmitsPerMinute limits accepted chat submissions. Zero means unlimited.
	SubmitsPerMinute int
}

// Main handles the core functionality of the chat application: the page, message submission, the
// server-sent event stream and the diagnostic endpoints.
type Main struct {
	broadcaster *Broadcaster
	templates   *template.Template

	session    Session
	renderer   Renderer
	probes     []HealthChecker
	transcript Transcript

	submitLimiter *rate.Limiter

	// turnCtx outlives the request that submitted a turn and is cancelled on shutdown.
	turnCtx     context.Context
	cancelTurns context.CancelFunc
	turns       *sync.WaitGroup

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance. The broadcaster must be the same chat.View the session
// publishes to.
func NewMain(
	session Session,
	broadcaster *Broadcaster,
	renderer Renderer,
	opts Options,
	logger *slog.Logger,
) (Main, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return Main{}, err
	}

	limit := rate.Inf
	burst := 1
	if opts.SubmitsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.SubmitsPerMinute))
		burst = opts.SubmitsPerMinute
	}

	turnCtx, cancel := context.WithCancel(context.Background())

	return Main{
		broadcaster:   broadcaster,
		templates:     tmpl,
		session:       session,
		renderer:      renderer,
		probes:        opts.Probes,
		transcript:    opts.Transcript,
		submitLimiter: rate.NewLimiter(limit, burst),
		turnCtx:       turnCtx,
		cancelTurns:   cancel,
		turns:         &sync.WaitGroup{},
		logger:        logger.With(slog.String("module", "main")),
	}, nil
}

func parseTemplates() (*template.Template, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	return template.ParseFS(
		duochat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
}

// Shutdown cancels turns still streaming, waits for them to return and closes the event stream of
// every client. If ctx ends before the turns do, the broadcaster is shut down anyway and ctx's error
// is returned.
func (m Main) Shutdown(ctx context.Context) error {
	m.cancelTurns()

	done := make(chan struct{})
	go func() {
		m.turns.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("turns still running: %w", ctx.Err())
	}

	if err := m.broadcaster.Shutdown(ctx); err != nil {
		return err
	}
	return waitErr
}
