package sinks

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
)

// LogSink mirrors the event stream onto the structured logger. With JSON
// logging enabled the run's console output doubles as an event stream, which
// is how the headless mode surfaces progress to wrappers.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Write logs the full serialized envelope under a single field.
func (s *LogSink) Write(evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	s.logger.Info(evt.Name,
		zap.Int64("seq", evt.Seq),
		zap.ByteString("envelope", payload),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
