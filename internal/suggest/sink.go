package suggest

import (
	"context"

	"github.com/namescout/namescout/internal/models"
)

// EventSink receives orchestrator progress. The streaming API backs it with
// an SSE writer; batch mode uses a BufferSink and reads the outcome at the
// end. A sink error means the consumer is gone and aborts the loop.
type EventSink interface {
	Start(ctx context.Context) error
	Suggestions(ctx context.Context, ev models.SuggestionsEvent) error
	Complete(ctx context.Context, resp models.SuggestionResponse) error
	Error(ctx context.Context, apiErr *models.APIError) error
}

// BufferSink discards intermediate events; batch callers read the Outcome
// returned by Run instead.
type BufferSink struct{}

func (BufferSink) Start(context.Context) error                                { return nil }
func (BufferSink) Suggestions(context.Context, models.SuggestionsEvent) error { return nil }
func (BufferSink) Complete(context.Context, models.SuggestionResponse) error  { return nil }
func (BufferSink) Error(context.Context, *models.APIError) error              { return nil }
