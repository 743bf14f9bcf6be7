// Package events implements the ordered, versioned event stream emitted
// during a clone run. Events are newline-delimited JSON objects; consumers
// must tolerate unknown fields.
package events

import (
	"encoding/json"
	"time"
)

// SchemaVersion is bumped whenever the event envelope gains incompatible
// structure. Additive fields do not bump it.
const SchemaVersion = 2

// ToolVersion identifies the emitting build in every envelope.
const ToolVersion = "2.0.0"

// Well-known event names.
const (
	NameStart            = "start"
	NamePhaseStart       = "phase_start"
	NamePhaseEnd         = "phase_end"
	NamePhaseSkipped     = "phase_skipped"
	NamePageRendered     = "page_rendered"
	NameCapture          = "capture"
	NameRegexWarning     = "regex_warning"
	NameMirrorAdjustment = "mirror_adjustment"
	NamePluginError      = "plugin_error"
	NameCanceled         = "canceled"
	NameSummary          = "summary"
	NameSummaryFinal     = "summary_final"
)

// Fields carries event-specific payload keys merged into the envelope.
type Fields map[string]any

// Event is one envelope on the stream. Seq is 1-based and strictly
// increasing per run; emission order is the total order and Seq is the
// tie-break for consumers that need strict ordering.
type Event struct {
	Seq           int64
	RunID         string
	TS            time.Time
	SchemaVersion int
	ToolVersion   string
	Name          string
	Fields        Fields
}

// MarshalJSON flattens the envelope and the event-specific fields into a
// single JSON object. Envelope keys win on collision.
func (e Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Fields)+6)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["seq"] = e.Seq
	obj["run_id"] = e.RunID
	obj["ts"] = e.TS.UTC().Format(time.RFC3339Nano)
	obj["schema_version"] = e.SchemaVersion
	obj["tool_version"] = e.ToolVersion
	obj["event"] = e.Name
	return json.Marshal(obj)
}
