package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	events []Event
	err    error
	closed bool
}

func (s *memorySink) Write(evt Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *memorySink) Close(context.Context) error {
	s.closed = true
	return nil
}

func TestEmitStampsEnvelope(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher("run-42", zap.NewNop(), sink)

	d.Emit(NameStart, Fields{"url": "https://site.test"})
	d.Emit(NamePhaseStart, Fields{"phase": "clone"})
	d.Emit(NameSummaryFinal, Fields{"exit_code": 0})

	require.Len(t, sink.events, 3)
	for i, evt := range sink.events {
		assert.Equal(t, int64(i+1), evt.Seq, "seq is 1-based and strictly increasing")
		assert.Equal(t, "run-42", evt.RunID)
		assert.Equal(t, SchemaVersion, evt.SchemaVersion)
		assert.Equal(t, ToolVersion, evt.ToolVersion)
	}
	assert.Equal(t, int64(3), d.Count())
}

func TestEmitNeverFails(t *testing.T) {
	broken := &memorySink{err: errors.New("disk full")}
	healthy := &memorySink{}
	d := NewDispatcher("run-1", zap.NewNop(), broken, healthy)

	d.Emit(NameStart, nil)
	d.Emit(NameSummary, Fields{"success": true})

	assert.Len(t, healthy.events, 2, "a broken sink cannot starve the others")
}

func TestMarshalFlattensFields(t *testing.T) {
	evt := Event{
		Seq:           7,
		RunID:         "run-1",
		TS:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SchemaVersion: SchemaVersion,
		ToolVersion:   ToolVersion,
		Name:          NamePhaseEnd,
		Fields:        Fields{"phase": "clone", "seconds": 1.5, "seq": 999},
	}

	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(payload, &obj))
	assert.EqualValues(t, 7, obj["seq"], "envelope keys win on collision")
	assert.Equal(t, "phase_end", obj["event"])
	assert.Equal(t, "clone", obj["phase"])
	assert.EqualValues(t, 1.5, obj["seconds"])
	assert.Equal(t, "2026-03-01T12:00:00Z", obj["ts"])
}

func TestEmitConcurrentKeepsSinkOrder(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher("run-1", zap.NewNop(), sink)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Emit(NamePhaseStart, Fields{"phase": "clone"})
		}()
	}
	wg.Wait()

	require.Len(t, sink.events, 100)
	for i, evt := range sink.events {
		assert.Equal(t, int64(i+1), evt.Seq, "sink write order must match seq order")
	}
	assert.Equal(t, int64(100), d.Count())
}

func TestCloseClosesSinks(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher("run-1", zap.NewNop(), sink)
	require.NoError(t, d.Close(context.Background()))
	assert.True(t, sink.closed)
}
