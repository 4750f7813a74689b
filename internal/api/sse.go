package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/namescout/namescout/internal/models"
)

// sseSink streams orchestrator events as server-sent events. Write errors mean
// the client disconnected; the orchestrator treats them as abandonment.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Start(_ context.Context) error {
	return s.send("start", map[string]string{"status": "generating"})
}

func (s *sseSink) Suggestions(_ context.Context, ev models.SuggestionsEvent) error {
	return s.send("suggestions", ev)
}

func (s *sseSink) Complete(_ context.Context, resp models.SuggestionResponse) error {
	return s.send("complete", resp)
}

func (s *sseSink) Error(_ context.Context, apiErr *models.APIError) error {
	return s.send("error", apiErr)
}
