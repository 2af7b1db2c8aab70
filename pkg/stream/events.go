// Package stream turns a pipeline run into newline-delimited JSON events.
package stream

import (
	"github.com/ravi-parthasarathy/codecrew/pkg/agents"
	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
)

// EventType identifies the kind of stream event.
type EventType string

const (
	EventAgentStart EventType = "agent_start"
	EventAgentChunk EventType = "agent_chunk"
	EventAgentDone  EventType = "agent_done"
	EventAgentError EventType = "agent_error"
	EventComplete   EventType = "complete"
)

// Terminal reports whether t ends a stream.
func (t EventType) Terminal() bool { return t == EventAgentError || t == EventComplete }

// Event is one line of the stream. Which fields are set depends on Type.
type Event struct {
	Type    EventType    `json:"type"`
	Agent   agents.Stage `json:"agent,omitempty"`
	Data    string       `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	// Summary is set on the complete event only; its fields are inlined.
	*Summary
}

// Summary is the full result of a successful run, as carried by the complete
// event and the aggregate HTTP response.
type Summary struct {
	GeneratedCode string `json:"generatedCode"`
	ReviewReport  string `json:"reviewReport"`
	// RefinedCode is omitted when no refinement ran; readers fall back to
	// GeneratedCode.
	RefinedCode       string `json:"refinedCode,omitempty"`
	RefinementApplied bool   `json:"refinementApplied"`
	Documentation     string `json:"documentation"`
}

// SummaryOf builds the Summary of a finished run.
func SummaryOf(out *pipeline.Outcome) *Summary {
	s := &Summary{
		GeneratedCode:     out.GeneratedCode,
		ReviewReport:      out.ReviewReport,
		RefinementApplied: out.RefinementApplied,
		Documentation:     out.Documentation,
	}
	if out.RefinementApplied {
		s.RefinedCode = out.RefinedCode
	}
	return s
}
