package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MegaGrindStone/duochat/internal/models"
	"github.com/MegaGrindStone/duochat/internal/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEndpointChat(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range strings.SplitAfter(helloStream, "\n") {
			_, _ = io.WriteString(w, line)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	conv := models.NewConversation("sys")
	conv.AppendUser("hi")

	e := services.NewEndpoint("basic", srv.URL, "", srv.Client(), discardLogger())
	if e.Name() != "basic" {
		t.Errorf("Name() = %q, want %q", e.Name(), "basic")
	}

	var text string
	done := false
	for ev, err := range e.Chat(context.Background(), conv.RequestPayload(models.DefaultRequestParams())) {
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		switch ev.Kind {
		case models.EventContent:
			text += ev.Delta
		case models.EventDone:
			done = true
		}
	}

	if text != "Hello" || !done {
		t.Errorf("Chat() text = %q done = %v, want %q and done", text, done, "Hello")
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody["stream"] != true || gotBody["model"] != "phi-4" {
		t.Errorf("request body = %v, want streaming phi-4 request", gotBody)
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("request messages = %v, want system and user", gotBody["messages"])
	}
}

func TestEndpointChatHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := services.NewEndpoint("basic", srv.URL, "", srv.Client(), discardLogger())

	var errs []error
	events := 0
	for ev, err := range e.Chat(context.Background(), models.NewConversation("s").RequestPayload(models.DefaultRequestParams())) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = ev
		events++
	}

	if events != 0 {
		t.Errorf("events = %d, want none before the status error", events)
	}
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}

	var statusErr *services.HTTPStatusError
	if !errors.As(errs[0], &statusErr) {
		t.Fatalf("error = %v, want *HTTPStatusError", errs[0])
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", statusErr.Code)
	}
	if !strings.Contains(statusErr.Error(), "500") {
		t.Errorf("Error() = %q, want to contain 500", statusErr.Error())
	}
	if !strings.Contains(statusErr.Body, "model crashed") {
		t.Errorf("Body = %q, want server message", statusErr.Body)
	}
}

func TestEndpointChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := services.NewEndpoint("rag", url, "", nil, discardLogger())

	for _, err := range e.Chat(context.Background(), models.NewConversation("s").RequestPayload(models.DefaultRequestParams())) {
		var netErr *services.NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("error = %v, want *NetworkError", err)
		}
		return
	}
	t.Fatal("Chat() yielded nothing, want a network error")
}

func TestEndpointHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name       string
		healthURL  string
		wantErr    bool
		wantStatus int
	}{
		{name: "Healthy", healthURL: srv.URL + "/health"},
		{name: "Unavailable", healthURL: srv.URL + "/down", wantErr: true, wantStatus: http.StatusServiceUnavailable},
		{name: "Not configured", healthURL: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := services.NewEndpoint("basic", srv.URL, tt.healthURL, srv.Client(), discardLogger())
			err := e.Health(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Health() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantStatus != 0 {
				var statusErr *services.HTTPStatusError
				if !errors.As(err, &statusErr) || statusErr.Code != tt.wantStatus {
					t.Errorf("Health() error = %v, want status %d", err, tt.wantStatus)
				}
			}
		})
	}
}
