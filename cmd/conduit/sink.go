package main

import (
	"context"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/pkg/extract"
	"github.com/ajitpratap0/conduit/pkg/logger"
	"github.com/ajitpratap0/conduit/pkg/notify"
)

// jsonSink writes every delivered record or batch as one JSON line
type jsonSink struct {
	mu  sync.Mutex
	enc *gojson.Encoder
}

func newJSONSink(w io.Writer) *jsonSink {
	return &jsonSink{enc: gojson.NewEncoder(w)}
}

func (s *jsonSink) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(v)
}

// records emits each record of a chunk on its own line
func (s *jsonSink) records(_ context.Context, chunk extract.Chunk) error {
	for _, rec := range chunk {
		if err := s.write(rec); err != nil {
			return err
		}
	}
	return nil
}

// chunks emits whole chunks
func (s *jsonSink) chunks(_ context.Context, chunk extract.Chunk) error {
	return s.write(chunk)
}

func (s *jsonSink) batch(event string) notify.BatchHandler {
	return func(ctx context.Context, scope notify.Scope, batch []notify.Notification) error {
		logger.WithContext(ctx).Debug("sink.batch", zap.String("event", event), zap.Int("size", len(batch)))
		return s.write(map[string]any{
			"event": event,
			"scope": scope,
			"batch": batch,
		})
	}
}

func (s *jsonSink) event(ctx context.Context, scope notify.Scope, payload notify.EventPayload) error {
	logger.WithContext(ctx).Debug("sink.event", zap.String("event", payload.Subject))
	return s.write(map[string]any{
		"event":   payload.Subject,
		"scope":   scope,
		"payload": payload,
	})
}
