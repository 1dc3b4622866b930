// Package ai talks to the assistant backend that analyzes technician audio
// and video. It offers a realtime channel when the backend supports one and
// batch analysis endpoints for the buffered fallback path.
package ai

import (
	"context"
	"errors"
)

// ErrLiveUnavailable is returned by OpenLive when no realtime endpoint is
// configured. Callers fall back to buffered batch analysis.
var ErrLiveUnavailable = errors.New("ai: live channel not configured")

// Analysis is the structured result of a batch audio or frame analysis.
type Analysis struct {
	Text           string   `json:"text"`
	SafetyFlags    []string `json:"safetyFlags,omitempty"`
	DetectedFaults []string `json:"detectedFaults,omitempty"`
	NeedsClarity   bool     `json:"needsClarity,omitempty"`
	ClarityRequest string   `json:"clarityRequest,omitempty"`
}

// AudioInput carries one buffered utterance for batch analysis.
type AudioInput struct {
	Data       []byte `json:"audio"`
	MimeType   string `json:"mimeType"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Context    string `json:"context,omitempty"`
}

// FrameInput carries one video frame for batch analysis.
type FrameInput struct {
	Data     []byte `json:"frame"`
	MimeType string `json:"mimeType"`
	Context  string `json:"context,omitempty"`
}

// EventKind discriminates realtime channel events.
type EventKind string

const (
	EventTextChunk    EventKind = "text_chunk"
	EventTurnComplete EventKind = "turn_complete"
	EventTranscript   EventKind = "transcript"
	EventError        EventKind = "error"
)

// LiveEvent is one event read from the realtime channel.
type LiveEvent struct {
	Kind    EventKind
	Text    string
	Role    string
	IsFinal bool
	Err     error
}

// LiveChannel is an open realtime session with the assistant backend.
// Events closes when the channel is torn down.
type LiveChannel interface {
	SendAudio(ctx context.Context, data []byte, mimeType string, sampleRate int) error
	SendFrame(ctx context.Context, data []byte, mimeType string) error
	FinalizeTurn(ctx context.Context) error
	Interrupt(ctx context.Context) error
	Events() <-chan LiveEvent
	Close() error
}

// Service is the assistant backend used by the gateway.
type Service interface {
	OpenLive(ctx context.Context, sessionID string) (LiveChannel, error)
	AnalyzeAudio(ctx context.Context, input AudioInput) (*Analysis, error)
	AnalyzeFrame(ctx context.Context, input FrameInput) (*Analysis, error)
}
