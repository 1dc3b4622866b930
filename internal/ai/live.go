package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"fieldlink/internal/logging"
)

// wsConn is the subset of a websocket connection the live channel uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type dialFunc func(ctx context.Context, url string, header http.Header) (wsConn, error)

func defaultDial(ctx context.Context, url string, header http.Header) (wsConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// liveMessage is the upstream realtime wire format, both directions.
type liveMessage struct {
	Type       string `json:"type"`
	Data       string `json:"data,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Text       string `json:"text,omitempty"`
	Role       string `json:"role,omitempty"`
	IsFinal    bool   `json:"isFinal,omitempty"`
	Message    string `json:"message,omitempty"`
}

type liveChannel struct {
	conn   wsConn
	events chan LiveEvent
	logger *slog.Logger

	writeMu sync.Mutex
	once    sync.Once
}

var _ LiveChannel = (*liveChannel)(nil)

// OpenLive dials the realtime endpoint for one session. Returns
// ErrLiveUnavailable when no live URL is configured.
func (c *Client) OpenLive(ctx context.Context, sessionID string) (LiveChannel, error) {
	if c.liveURL == "" {
		return nil, ErrLiveUnavailable
	}
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	header.Set("X-Session-ID", sessionID)

	conn, err := c.dial(ctx, c.liveURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}
	ch := &liveChannel{
		conn:   conn,
		events: make(chan LiveEvent, 32),
		logger: c.logger.With(logging.String(logging.FieldSessionLabel, sessionID)),
	}
	go ch.readLoop()
	return ch, nil
}

func (ch *liveChannel) readLoop() {
	defer close(ch.events)
	for {
		_, raw, err := ch.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ch.events <- LiveEvent{Kind: EventError, Err: err}
			}
			return
		}
		var msg liveMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			ch.logger.Warn("discarding malformed live event", logging.Error(err))
			continue
		}
		switch msg.Type {
		case "text_chunk":
			ch.events <- LiveEvent{Kind: EventTextChunk, Text: msg.Text}
		case "turn_complete":
			ch.events <- LiveEvent{Kind: EventTurnComplete, Text: msg.Text}
		case "transcript":
			ch.events <- LiveEvent{Kind: EventTranscript, Text: msg.Text, Role: msg.Role, IsFinal: msg.IsFinal}
		case "error":
			ch.events <- LiveEvent{Kind: EventError, Err: fmt.Errorf("live backend: %s", msg.Message)}
		default:
			ch.logger.Debug("ignoring unknown live event type",
				logging.String(logging.FieldEventType, msg.Type))
		}
	}
}

func (ch *liveChannel) send(ctx context.Context, msg liveMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode live message: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return ch.conn.WriteMessage(websocket.TextMessage, raw)
}

func (ch *liveChannel) SendAudio(ctx context.Context, data []byte, mimeType string, sampleRate int) error {
	return ch.send(ctx, liveMessage{
		Type:       "audio",
		Data:       base64.StdEncoding.EncodeToString(data),
		MimeType:   mimeType,
		SampleRate: sampleRate,
	})
}

func (ch *liveChannel) SendFrame(ctx context.Context, data []byte, mimeType string) error {
	return ch.send(ctx, liveMessage{
		Type:     "frame",
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	})
}

func (ch *liveChannel) FinalizeTurn(ctx context.Context) error {
	return ch.send(ctx, liveMessage{Type: "turn_end"})
}

func (ch *liveChannel) Interrupt(ctx context.Context) error {
	return ch.send(ctx, liveMessage{Type: "interrupt"})
}

func (ch *liveChannel) Events() <-chan LiveEvent {
	return ch.events
}

func (ch *liveChannel) Close() error {
	var err error
	ch.once.Do(func() {
		ch.writeMu.Lock()
		_ = ch.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ch.writeMu.Unlock()
		err = ch.conn.Close()
	})
	return err
}
