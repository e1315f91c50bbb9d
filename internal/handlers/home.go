package handlers

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/duochat/internal/chat"
	"github.com/MegaGrindStone/duochat/internal/models"
	"github.com/google/uuid"
)

type pane struct {
	Name     string
	Title    string
	Messages []bubble
}

type homePageData struct {
	Panes []pane
}

var paneTitles = map[chat.Pane]string{
	chat.PaneBasic: "Basic model",
	chat.PaneRAG:   "RAG-enhanced model",
}

// HandleHome renders the chat page with the current history of both panes. System messages are not
// shown.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var data homePageData
	for _, name := range m.session.Panes() {
		p := pane{
			Name:  string(name),
			Title: paneTitles[name],
		}

		for _, msg := range m.session.History(name) {
			if msg.Role == models.RoleSystem {
				continue
			}

			kind := chat.BubbleBot
			if msg.Role == models.RoleUser {
				kind = chat.BubbleUser
			}

			content, err := m.renderer.Render(msg.Content)
			if err != nil {
				m.logger.Error("Failed to render message",
					slog.String("pane", string(name)),
					slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			p.Messages = append(p.Messages, bubble{
				ID:      "msg-" + uuid.New().String(),
				Kind:    string(kind),
				Content: template.HTML(content),
			})
		}

		data.Panes = append(data.Panes, p)
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
