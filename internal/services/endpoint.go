package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/duochat/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// Endpoint is a client for one OpenAI-compatible chat-completions URL. The completions URL is the
// only thing called during a turn; the health URL is there for diagnostics.
type Endpoint struct {
	name      string
	url       string
	healthURL string

	client *http.Client

	logger *slog.Logger
}

// maxDrainBytes bounds how much of an unread body is discarded before closing it, so a connection
// can be reused without waiting on a server that keeps writing.
const maxDrainBytes = 4 << 10

const errLoggerKey = "err"

// NewEndpoint creates an Endpoint. A nil client means http.DefaultClient.
func NewEndpoint(name, url, healthURL string, client *http.Client, logger *slog.Logger) Endpoint {
	if client == nil {
		client = http.DefaultClient
	}
	return Endpoint{
		name:      name,
		url:       url,
		healthURL: healthURL,
		client:    client,
		logger:    logger.With(slog.String("module", "endpoint"), slog.String("endpoint", name)),
	}
}

// Name returns the endpoint name given at construction.
func (e Endpoint) Name() string {
	return e.name
}

// Chat sends the request and streams the response as events. A transport failure is yielded as
// *NetworkError and a non-success status as *HTTPStatusError, both before any event. Unparseable
// chunks are logged here and passed on; they never end the sequence.
func (e Endpoint) Chat(ctx context.Context, req goopenai.ChatCompletionRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		resp, err := e.doRequest(ctx, req)
		if err != nil {
			yield(models.StreamEvent{}, err)
			return
		}
		defer func() {
			_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
			resp.Body.Close()
		}()

		e.logger.Debug("Receiving streamed response")

		for ev, err := range ReadEvents(resp.Body) {
			if err != nil {
				yield(models.StreamEvent{}, err)
				return
			}
			if ev.Kind == models.EventUnparseable {
				e.logger.Warn("Skipping unparseable chunk",
					slog.String("raw", ev.Raw),
					slog.String(errLoggerKey, ev.Err.Error()))
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (e Endpoint) doRequest(ctx context.Context, req goopenai.ChatCompletionRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	e.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrainBytes))
		resp.Body.Close()
		return nil, &HTTPStatusError{Code: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}

// Health probes the health URL. Any 2xx answer is healthy.
func (e Endpoint) Health(ctx context.Context) error {
	if e.healthURL == "" {
		return errors.New("no health url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.healthURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{Code: resp.StatusCode}
	}
	return nil
}
