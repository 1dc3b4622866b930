package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"fieldlink/internal/config"
)

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testAIConfig() config.AI {
	return config.AI{
		AnalyzeURL:     "https://assist.example.com/v1",
		APIKey:         "test-key",
		RequestTimeout: 5,
	}
}

func TestAnalyzeAudio(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	client := NewClient(testAIConfig(), nil, WithHTTPClient(doerFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		capturedBody, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{
			"text": "The valve looks corroded.",
			"safetyFlags": ["corrosion"],
			"detectedFaults": ["valve_seal"],
			"needsClarity": false
		}`), nil
	})))

	audio := []byte("pcm-audio-bytes")
	analysis, err := client.AnalyzeAudio(context.Background(), AudioInput{
		Data:       audio,
		MimeType:   "audio/pcm",
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatalf("AnalyzeAudio: %v", err)
	}
	if analysis.Text != "The valve looks corroded." {
		t.Errorf("text = %q", analysis.Text)
	}
	if len(analysis.SafetyFlags) != 1 || analysis.SafetyFlags[0] != "corrosion" {
		t.Errorf("safety flags = %v", analysis.SafetyFlags)
	}

	if captured.URL.Path != "/v1/analyze/audio" {
		t.Errorf("path = %q", captured.URL.Path)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer test-key" {
		t.Errorf("authorization = %q", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if payload["audio"] != base64.StdEncoding.EncodeToString(audio) {
		t.Error("audio not base64 encoded in payload")
	}
	if payload["sampleRate"] != float64(16000) {
		t.Errorf("sampleRate = %v", payload["sampleRate"])
	}
}

func TestAnalyzeFrame(t *testing.T) {
	client := NewClient(testAIConfig(), nil, WithHTTPClient(doerFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/analyze/frame" {
			t.Errorf("path = %q", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"text":"Gauge reads 42 psi."}`), nil
	})))

	analysis, err := client.AnalyzeFrame(context.Background(), FrameInput{
		Data:     bytes.Repeat([]byte{0xff}, 64),
		MimeType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if analysis.Text != "Gauge reads 42 psi." {
		t.Errorf("text = %q", analysis.Text)
	}
}

func TestAnalyzeBackendError(t *testing.T) {
	client := NewClient(testAIConfig(), nil, WithHTTPClient(doerFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `{"error":"upstream"}`), nil
	})))

	_, err := client.AnalyzeAudio(context.Background(), AudioInput{Data: []byte("x"), MimeType: "audio/pcm"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected HTTP 502 error, got %v", err)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	client := NewClient(testAIConfig(), nil, WithHTTPClient(doerFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for empty input")
		return nil, nil
	})))
	if _, err := client.AnalyzeAudio(context.Background(), AudioInput{}); err == nil {
		t.Error("empty audio should be rejected")
	}
	if _, err := client.AnalyzeFrame(context.Background(), FrameInput{}); err == nil {
		t.Error("empty frame should be rejected")
	}
}

func TestOpenLiveUnconfigured(t *testing.T) {
	client := NewClient(config.AI{AnalyzeURL: "https://assist.example.com"}, nil)
	_, err := client.OpenLive(context.Background(), "session-1")
	if !errors.Is(err, ErrLiveUnavailable) {
		t.Fatalf("err = %v, want ErrLiveUnavailable", err)
	}
}

// fakeWSConn replays scripted inbound frames and records outbound writes.
type fakeWSConn struct {
	inbound [][]byte
	writes  [][]byte
	closed  bool
}

func (c *fakeWSConn) ReadMessage() (int, []byte, error) {
	if len(c.inbound) == 0 {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	msg := c.inbound[0]
	c.inbound = c.inbound[1:]
	return websocket.TextMessage, msg, nil
}

func (c *fakeWSConn) WriteMessage(_ int, data []byte) error {
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeWSConn) Close() error {
	c.closed = true
	return nil
}

func TestLiveChannelEvents(t *testing.T) {
	conn := &fakeWSConn{inbound: [][]byte{
		[]byte(`{"type":"transcript","text":"check the valve","role":"user","isFinal":true}`),
		[]byte(`{"type":"text_chunk","text":"Looking at"}`),
		[]byte(`{"type":"text_chunk","text":" the valve now."}`),
		[]byte(`{"type":"turn_complete"}`),
		[]byte(`{"type":"unknown_kind"}`),
	}}
	cfg := testAIConfig()
	cfg.LiveURL = "wss://assist.example.com/live"
	client := NewClient(cfg, nil, WithDialer(func(ctx context.Context, url string, header http.Header) (wsConn, error) {
		if got := header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		return conn, nil
	}))

	ch, err := client.OpenLive(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}

	var events []LiveEvent
	for ev := range ch.Events() {
		events = append(events, ev)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(events), events)
	}
	if events[0].Kind != EventTranscript || !events[0].IsFinal || events[0].Role != "user" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Kind != EventTextChunk || events[1].Text != "Looking at" {
		t.Errorf("second event = %+v", events[1])
	}
	if events[3].Kind != EventTurnComplete {
		t.Errorf("fourth event = %+v", events[3])
	}
}

func TestLiveChannelSendAndClose(t *testing.T) {
	conn := &fakeWSConn{}
	cfg := testAIConfig()
	cfg.LiveURL = "wss://assist.example.com/live"
	client := NewClient(cfg, nil, WithDialer(func(ctx context.Context, url string, header http.Header) (wsConn, error) {
		return conn, nil
	}))

	ch, err := client.OpenLive(context.Background(), "session-2")
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}
	ctx := context.Background()
	if err := ch.SendAudio(ctx, []byte("pcm"), "audio/pcm", 16000); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := ch.FinalizeTurn(ctx); err != nil {
		t.Fatalf("FinalizeTurn: %v", err)
	}
	if err := ch.Interrupt(ctx); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !conn.closed {
		t.Error("underlying connection not closed")
	}

	var first liveMessage
	if err := json.Unmarshal(conn.writes[0], &first); err != nil {
		t.Fatalf("decode first write: %v", err)
	}
	if first.Type != "audio" || first.SampleRate != 16000 {
		t.Errorf("first write = %+v", first)
	}
	// Closing again is a no-op.
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
