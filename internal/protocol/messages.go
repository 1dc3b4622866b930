// Package protocol defines the realtime gateway wire protocol: typed
// inbound client messages with strict validation, and outbound frames.
package protocol

// Inbound message type discriminators.
const (
	TypeJoinSession       = "join_session"
	TypeVideoFrame        = "video_frame"
	TypeAudio             = "audio"
	TypeAudioStreamEnd    = "audio_stream_end"
	TypeInterrupt         = "interrupt"
	TypeInspectionContext = "inspection_context"
)

// Outbound message type discriminators.
const (
	TypeConnected           = "connected"
	TypeGeminiResponse      = "gemini_response"
	TypeGeminiResponseChunk = "gemini_response_chunk"
	TypeLiveTranscript      = "live_transcript"
	TypeError               = "error"
)

// Message is a validated inbound client message.
type Message interface {
	MessageType() string
}

// JoinSession binds an application-level session label to the connection.
type JoinSession struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (JoinSession) MessageType() string { return TypeJoinSession }

// VideoFrame carries one base64-encoded camera frame.
type VideoFrame struct {
	Type      string `json:"type"`
	Frame     string `json:"frame"`
	Timestamp int64  `json:"timestamp"`
}

func (VideoFrame) MessageType() string { return TypeVideoFrame }

// Audio carries one base64-encoded audio chunk, optionally with a
// client-side transcript.
type Audio struct {
	Type       string `json:"type"`
	Audio      string `json:"audio"`
	MimeType   string `json:"mimeType,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

func (Audio) MessageType() string { return TypeAudio }

// AudioStreamEnd signals the end of an audio turn.
type AudioStreamEnd struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (AudioStreamEnd) MessageType() string { return TypeAudioStreamEnd }

// Interrupt cancels the in-flight model turn.
type Interrupt struct {
	Type string `json:"type"`
}

func (Interrupt) MessageType() string { return TypeInterrupt }

// InspectionContext binds the connection to a business record.
type InspectionContext struct {
	Type         string `json:"type"`
	InspectionID string `json:"inspectionId"`
}

func (InspectionContext) MessageType() string { return TypeInspectionContext }

// Connected is sent once post-handshake.
type Connected struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// NewConnected builds the post-handshake greeting frame.
func NewConnected(clientID string) Connected {
	return Connected{Type: TypeConnected, ClientID: clientID}
}

// GeminiResponse is a complete analysis response forwarded to the client.
type GeminiResponse struct {
	Type           string   `json:"type"`
	Text           string   `json:"text"`
	SafetyFlags    []string `json:"safetyFlags,omitempty"`
	DetectedFaults []string `json:"detectedFaults,omitempty"`
	NeedsClarity   bool     `json:"needsClarity,omitempty"`
	ClarityRequest string   `json:"clarityRequest,omitempty"`
}

// NewTextResponse builds a plain text response frame.
func NewTextResponse(text string) GeminiResponse {
	return GeminiResponse{Type: TypeGeminiResponse, Text: text}
}

// GeminiResponseChunk is one streamed partial of a response.
type GeminiResponseChunk struct {
	Type      string `json:"type"`
	TextChunk string `json:"textChunk"`
}

// NewResponseChunk builds a streamed partial frame.
func NewResponseChunk(chunk string) GeminiResponseChunk {
	return GeminiResponseChunk{Type: TypeGeminiResponseChunk, TextChunk: chunk}
}

// LiveTranscript attributes a transcript fragment to a speaker.
type LiveTranscript struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// NewLiveTranscript builds a transcript frame.
func NewLiveTranscript(speaker, text string) LiveTranscript {
	return LiveTranscript{Type: TypeLiveTranscript, Speaker: speaker, Text: text}
}

// ErrorMessage is a structured error reply; it never closes the
// connection by itself.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error frame.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}
