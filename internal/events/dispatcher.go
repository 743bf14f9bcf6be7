package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink consumes individual events. Implementations must be safe for repeated
// calls; errors are logged by the dispatcher, never propagated to emitters.
type Sink interface {
	Write(evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes events; Dispatcher satisfies this interface so run phases
// can stay agnostic about where events end up.
type Emitter interface {
	Emit(name string, fields Fields)
}

// Dispatcher assigns sequence numbers, stamps the envelope, and fans events
// out to registered sinks. Emission never fails: a sink error is logged and
// swallowed so one broken consumer cannot abort the run.
type Dispatcher struct {
	runID  string
	logger *zap.Logger
	sinks  []Sink
	mu     sync.Mutex
	seq    int64
	now    func() time.Time
}

// NewDispatcher builds a dispatcher for one run.
func NewDispatcher(runID string, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		runID:  runID,
		logger: logger,
		sinks:  append([]Sink(nil), sinks...),
		now:    time.Now,
	}
}

// Emit stamps and writes one event. Safe for concurrent use; the sequence
// number is assigned under the same mutex that orders sink writes, so file
// sink order always matches Seq order.
func (d *Dispatcher) Emit(name string, fields Fields) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	evt := Event{
		Seq:           d.seq,
		RunID:         d.runID,
		TS:            d.now(),
		SchemaVersion: SchemaVersion,
		ToolVersion:   ToolVersion,
		Name:          name,
		Fields:        fields,
	}
	for _, sink := range d.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Write(evt); err != nil {
			d.logger.Warn("event sink write failed",
				zap.String("event", name), zap.Error(err))
		}
	}
}

// Count reports how many events have been emitted so far.
func (d *Dispatcher) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// Close flushes and closes every sink.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, sink := range d.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
