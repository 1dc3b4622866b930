// Package gateway runs the realtime websocket surface: one Session per
// connected technician, a Registry of live sessions, and a Router that
// validates, rate-limits, and dispatches inbound messages.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fieldlink/internal/ai"
)

// Conn is the subset of a websocket connection a session needs. The
// concrete type is *websocket.Conn; tests substitute fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one connected client.
type Session struct {
	ClientID string
	JoinedAt time.Time

	conn    Conn
	writeMu sync.Mutex

	mu           sync.Mutex
	sessionLabel string
	inspectionID string
	live         ai.LiveChannel

	audioChunks [][]byte
	audioMime   string
	sampleRate  int
}

// NewSession wraps a connection. ClientID is assigned by the server.
func NewSession(clientID string, conn Conn, joinedAt time.Time) *Session {
	return &Session{ClientID: clientID, JoinedAt: joinedAt, conn: conn}
}

// Send marshals msg and writes it as one text frame. Safe for concurrent
// use; the connection's write side is serialized here.
func (s *Session) Send(msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode outbound frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// SetLabel records the application-level session label from join_session.
func (s *Session) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLabel = label
}

// Label returns the joined session label, empty before join_session.
func (s *Session) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLabel
}

// SetInspection binds the connection to an inspection record.
func (s *Session) SetInspection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspectionID = id
}

// Inspection returns the bound inspection ID, empty before
// inspection_context.
func (s *Session) Inspection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inspectionID
}

// SetLive attaches the realtime channel. A nil channel means the session
// runs in buffered fallback mode.
func (s *Session) SetLive(live ai.LiveChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Live returns the realtime channel, nil in fallback mode.
func (s *Session) Live() ai.LiveChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// BufferAudio appends one decoded chunk for the fallback path. The mime
// type and sample rate of the first chunk win for the whole turn.
func (s *Session) BufferAudio(chunk []byte, mimeType string, sampleRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audioChunks) == 0 {
		s.audioMime = mimeType
		s.sampleRate = sampleRate
	}
	s.audioChunks = append(s.audioChunks, chunk)
}

// DrainAudio concatenates and clears the buffered turn. Returns ok=false
// when nothing was buffered.
func (s *Session) DrainAudio() (data []byte, mimeType string, sampleRate int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audioChunks) == 0 {
		return nil, "", 0, false
	}
	total := 0
	for _, chunk := range s.audioChunks {
		total += len(chunk)
	}
	data = make([]byte, 0, total)
	for _, chunk := range s.audioChunks {
		data = append(data, chunk...)
	}
	mimeType, sampleRate = s.audioMime, s.sampleRate
	s.audioChunks, s.audioMime, s.sampleRate = nil, "", 0
	return data, mimeType, sampleRate, true
}

// BufferedChunks reports how many audio chunks are waiting for flush.
func (s *Session) BufferedChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audioChunks)
}
