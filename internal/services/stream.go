package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/MegaGrindStone/duochat/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// ReadEvents parses a completions stream into events. Bytes go through one stateful UTF-8 decoder
// for the whole body, so a multi-byte character split across reads is reassembled rather than
// corrupted, and lines are only parsed once complete, so a payload straddling two reads is decoded
// whole.
//
// Lines that don't carry the "data: " marker are ignored. The sequence stops after yielding
// EventDone for the [DONE] sentinel. Reaching the end of the body without a sentinel simply ends
// the sequence. A read failure is yielded as *StreamReadError and ends the sequence.
func ReadEvents(r io.Reader) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		br := bufio.NewReader(transform.NewReader(r, unicode.UTF8.NewDecoder()))
		for {
			line, err := br.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				yield(models.StreamEvent{}, &StreamReadError{Err: err})
				return
			}
			eof := err != nil

			if ev, ok := parseLine(line); ok {
				if !yield(ev, nil) {
					return
				}
				if ev.Kind == models.EventDone {
					return
				}
			}

			if eof {
				return
			}
		}
	}
}

// parseLine turns a single line into an event. It reports false for lines that produce nothing:
// blank lines, lines without the data marker and chunks without content.
func parseLine(line string) (models.StreamEvent, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return models.StreamEvent{}, false
	}

	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return models.StreamEvent{}, false
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return models.StreamEvent{}, false
	}

	if payload == doneSentinel {
		return models.StreamEvent{Kind: models.EventDone}, true
	}

	var chunk goopenai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return models.StreamEvent{
			Kind: models.EventUnparseable,
			Raw:  payload,
			Err:  &ParseWarning{Payload: payload, Err: err},
		}, true
	}

	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return models.StreamEvent{}, false
	}

	return models.StreamEvent{
		Kind:  models.EventContent,
		Delta: chunk.Choices[0].Delta.Content,
	}, true
}
