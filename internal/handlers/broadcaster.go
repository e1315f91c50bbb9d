package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/duochat/internal/chat"
	"github.com/tmaxmax/go-sse"
)

// Broadcaster is the browser-facing chat.View. Every bubble change is published as a server-sent
// event on the topic of its pane, carrying the HTML the page has to insert or replace.
type Broadcaster struct {
	sseSrv    *sse.Server
	templates *template.Template

	logger *slog.Logger
}

type bubbleEvent struct {
	Pane string `json:"pane"`
	ID   string `json:"id"`
	HTML string `json:"html"`
}

type bubble struct {
	ID      string
	Kind    string
	Content template.HTML
	Loading bool
}

// SSE event types for bubble updates.
const (
	appendEventType  = "append"
	updateEventType  = "update"
	replaceEventType = "replace"
)

// NewBroadcaster creates a Broadcaster. Clients subscribe to both panes unless the request asks for
// a single one with the "pane" query parameter.
func NewBroadcaster(logger *slog.Logger) (*Broadcaster, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				switch pane := chat.Pane(s.Req.URL.Query().Get("pane")); pane {
				case chat.PaneBasic, chat.PaneRAG:
					topics = append(topics, paneTopic(pane))
				default:
					topics = append(topics, paneTopic(chat.PaneBasic), paneTopic(chat.PaneRAG))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates: tmpl,
		logger:    logger.With(slog.String("module", "broadcaster")),
	}, nil
}

func paneTopic(pane chat.Pane) string {
	return fmt.Sprintf("pane-%s", pane)
}

// AppendBubble publishes a new bubble to the pane.
func (b *Broadcaster) AppendBubble(pane chat.Pane, bb chat.Bubble) error {
	html, err := b.renderBubble(bb)
	if err != nil {
		return err
	}
	return b.publish(appendEventType, pane, bubbleEvent{Pane: string(pane), ID: bb.ID, HTML: html})
}

// UpdateBubble publishes replacement content for an existing bubble.
func (b *Broadcaster) UpdateBubble(pane chat.Pane, id string, html string) error {
	return b.publish(updateEventType, pane, bubbleEvent{Pane: string(pane), ID: id, HTML: html})
}

// ReplaceBubble publishes a whole new element for the bubble with the same id.
func (b *Broadcaster) ReplaceBubble(pane chat.Pane, bb chat.Bubble) error {
	html, err := b.renderBubble(bb)
	if err != nil {
		return err
	}
	return b.publish(replaceEventType, pane, bubbleEvent{Pane: string(pane), ID: bb.ID, HTML: html})
}

func (b *Broadcaster) renderBubble(bb chat.Bubble) (string, error) {
	var sb strings.Builder
	err := b.templates.ExecuteTemplate(&sb, "message", bubble{
		ID:      bb.ID,
		Kind:    string(bb.Kind),
		Content: template.HTML(bb.HTML),
		Loading: bb.Loading,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute message template: %w", err)
	}
	return sb.String(), nil
}

func (b *Broadcaster) publish(typ string, pane chat.Pane, ev bubbleEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := sse.Message{Type: sse.Type(typ)}
	msg.AppendData(string(data))

	b.logger.Debug("Publish", slog.String("type", typ), slog.String("pane", string(pane)))

	if err := b.sseSrv.Publish(&msg, paneTopic(pane)); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", typ, err)
	}
	return nil
}

// ServeHTTP subscribes the client to bubble events.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.sseSrv.ServeHTTP(w, r)
}

// Shutdown broadcasts a close message to all connected clients and waits up to 5 seconds for
// connections to terminate. After the timeout, any remaining connections are forcefully closed.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// An event without data is never dispatched by the browser
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = b.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return b.sseSrv.Shutdown(ctx)
}
