package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
)

func sampleEvent(seq int64, name string, fields events.Fields) events.Event {
	return events.Event{
		Seq:           seq,
		RunID:         "run-1",
		TS:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SchemaVersion: events.SchemaVersion,
		ToolVersion:   events.ToolVersion,
		Name:          name,
		Fields:        fields,
	}
}

func TestFileSinkWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.ndjson")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(sampleEvent(1, events.NameStart, events.Fields{"url": "https://site.test"})))
	require.NoError(t, sink.Write(sampleEvent(2, events.NameSummaryFinal, events.Fields{"exit_code": 0})))
	require.NoError(t, sink.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		lines = append(lines, obj)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.EqualValues(t, 1, lines[0]["seq"])
	assert.Equal(t, "start", lines[0]["event"])
	assert.Equal(t, "https://site.test", lines[0]["url"])
	assert.EqualValues(t, 2, lines[1]["seq"])
	assert.Equal(t, "summary_final", lines[1]["event"])
}

func TestFileSinkFlushesEveryWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close(context.Background())

	require.NoError(t, sink.Write(sampleEvent(1, events.NamePhaseStart, events.Fields{"phase": "clone"})))

	// Readable before Close: a crashed run must leave a usable prefix.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &obj))
	assert.Equal(t, "phase_start", obj["event"])
}

func TestFileSinkAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")

	first, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, first.Write(sampleEvent(1, events.NameStart, nil)))
	require.NoError(t, first.Close(context.Background()))

	second, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, second.Write(sampleEvent(2, events.NameCanceled, nil)))
	require.NoError(t, second.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
