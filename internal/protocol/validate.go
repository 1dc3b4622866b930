package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field length constraints from the protocol contract.
const (
	minSessionIDLen    = 1
	maxSessionIDLen    = 128
	minFrameLen        = 32
	minAudioLen        = 16
	minInspectionIDLen = 1
	maxInspectionIDLen = 128
)

// ValidationError describes a rejected inbound message. The gateway
// replies with an error frame and keeps the connection open.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Parse validates raw bytes as an inbound protocol message. Unknown types
// and schema violations return a *ValidationError; no state is changed by
// a rejected message.
func Parse(raw []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, invalid("malformed message: not valid JSON")
	}

	switch envelope.Type {
	case TypeJoinSession:
		var msg JoinSession
		if err := strictDecode(raw, &msg); err != nil {
			return nil, err
		}
		if n := len(msg.SessionID); n < minSessionIDLen || n > maxSessionIDLen {
			return nil, invalid("join_session: sessionId must be %d-%d characters", minSessionIDLen, maxSessionIDLen)
		}
		return msg, nil

	case TypeVideoFrame:
		var msg VideoFrame
		if err := strictDecode(raw, &msg); err != nil {
			return nil, err
		}
		if len(msg.Frame) < minFrameLen {
			return nil, invalid("video_frame: frame must be at least %d characters", minFrameLen)
		}
		if msg.Timestamp < 0 {
			return nil, invalid("video_frame: timestamp must not be negative")
		}
		return msg, nil

	case TypeAudio:
		var msg Audio
		if err := strictDecode(raw, &msg); err != nil {
			return nil, err
		}
		if len(msg.Audio) < minAudioLen {
			return nil, invalid("audio: audio must be at least %d characters", minAudioLen)
		}
		if msg.SampleRate < 0 {
			return nil, invalid("audio: sampleRate must not be negative")
		}
		if msg.Timestamp < 0 {
			return nil, invalid("audio: timestamp must not be negative")
		}
		return msg, nil

	case TypeAudioStreamEnd:
		var msg AudioStreamEnd
		if err := strictDecode(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Timestamp < 0 {
			return nil, invalid("audio_stream_end: timestamp must not be negative")
		}
		return msg, nil

	case TypeInterrupt:
		var msg Interrupt
		if err := strictDecode(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeInspectionContext:
		var msg InspectionContext
		if err := strictDecode(raw, &msg); err != nil {
			return nil, err
		}
		if n := len(msg.InspectionID); n < minInspectionIDLen || n > maxInspectionIDLen {
			return nil, invalid("inspection_context: inspectionId must be %d-%d characters", minInspectionIDLen, maxInspectionIDLen)
		}
		return msg, nil

	case "":
		return nil, invalid("malformed message: missing type")

	default:
		return nil, invalid("unknown message type %q", envelope.Type)
	}
}

func strictDecode(raw []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return invalid("malformed message: %v", err)
	}
	return nil
}
