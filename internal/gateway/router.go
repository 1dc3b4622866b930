package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"fieldlink/internal/ai"
	"fieldlink/internal/logging"
	"fieldlink/internal/protocol"
	"fieldlink/internal/ratelimit"
)

const (
	speakerUser      = "user"
	speakerAssistant = "assistant"

	apologyText = "Sorry, I hit a problem processing that. Please try again."
)

// IntentHandler consumes final user transcripts and returns spoken replies.
type IntentHandler interface {
	HandleTranscript(ctx context.Context, clientID, transcript string) []string
	SetInspection(clientID, inspectionID string)
	ClearClient(clientID string)
}

// Router validates, rate-limits, and dispatches inbound session messages.
type Router struct {
	registry *Registry
	limiter  *ratelimit.Limiter
	assist   ai.Service
	intents  IntentHandler
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter wires the router over its collaborators. intents may be nil
// when voice intent handling is disabled.
func NewRouter(registry *Registry, limiter *ratelimit.Limiter, assist ai.Service, intents IntentHandler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Router{
		registry: registry,
		limiter:  limiter,
		assist:   assist,
		intents:  intents,
		logger:   logger.With(logging.String(logging.FieldComponent, "gateway")),
		now:      time.Now,
	}
}

// WithClock overrides the router's time source. Test hook.
func (rt *Router) WithClock(now func() time.Time) *Router {
	rt.now = now
	return rt
}

// HandleConnect registers the session, greets the client, and opens the
// realtime channel when the backend supports one. Without a realtime
// endpoint the session runs in buffered fallback mode.
func (rt *Router) HandleConnect(ctx context.Context, sess *Session) {
	rt.registry.Add(sess)
	if err := sess.Send(protocol.NewConnected(sess.ClientID)); err != nil {
		rt.logger.Warn("failed to send greeting",
			logging.String(logging.FieldClientID, sess.ClientID),
			logging.Error(err))
	}

	live, err := rt.assist.OpenLive(ctx, sess.ClientID)
	switch {
	case err == nil:
		sess.SetLive(live)
		go rt.pumpLive(ctx, sess, live)
		rt.logger.Info("session connected in live mode",
			logging.String(logging.FieldClientID, sess.ClientID))
	case errors.Is(err, ai.ErrLiveUnavailable):
		rt.logger.Info("session connected in buffered fallback mode",
			logging.String(logging.FieldClientID, sess.ClientID))
	default:
		rt.logger.Warn("live channel unavailable, falling back to buffered mode",
			logging.String(logging.FieldClientID, sess.ClientID),
			logging.Error(err))
	}
}

// HandleDisconnect releases all per-session state.
func (rt *Router) HandleDisconnect(sess *Session) {
	if live := sess.Live(); live != nil {
		_ = live.Close()
	}
	if rt.intents != nil {
		rt.intents.ClearClient(sess.ClientID)
	}
	rt.limiter.Clear(sess.ClientID)
	rt.registry.Remove(sess.ClientID)
	rt.logger.Info("session disconnected",
		logging.String(logging.FieldClientID, sess.ClientID))
}

// HandleMessage processes one raw inbound frame. Invalid or over-limit
// frames get an error reply; the connection stays open either way.
func (rt *Router) HandleMessage(ctx context.Context, sess *Session, raw []byte) {
	if !rt.limiter.Allow(sess.ClientID, rt.now()) {
		rt.reply(sess, protocol.NewError("rate limit exceeded, slow down"))
		return
	}

	msg, err := protocol.Parse(raw)
	if err != nil {
		rt.logger.Debug("rejected invalid message",
			logging.String(logging.FieldClientID, sess.ClientID),
			logging.Error(err))
		rt.reply(sess, protocol.NewError(err.Error()))
		return
	}

	rt.logger.Debug("dispatching message",
		logging.String(logging.FieldClientID, sess.ClientID),
		logging.String(logging.FieldMessageType, msg.MessageType()))

	switch m := msg.(type) {
	case protocol.JoinSession:
		rt.handleJoin(sess, m)
	case protocol.InspectionContext:
		rt.handleInspectionContext(sess, m)
	case protocol.VideoFrame:
		rt.handleVideoFrame(ctx, sess, m)
	case protocol.Audio:
		rt.handleAudio(ctx, sess, m)
	case protocol.AudioStreamEnd:
		rt.handleAudioStreamEnd(ctx, sess)
	case protocol.Interrupt:
		rt.handleInterrupt(ctx, sess)
	default:
		rt.reply(sess, protocol.NewError("unsupported message type"))
	}
}

func (rt *Router) handleJoin(sess *Session, msg protocol.JoinSession) {
	sess.SetLabel(msg.SessionID)
	rt.logger.Info("session joined",
		logging.String(logging.FieldClientID, sess.ClientID),
		logging.String(logging.FieldSessionLabel, msg.SessionID))
}

func (rt *Router) handleInspectionContext(sess *Session, msg protocol.InspectionContext) {
	sess.SetInspection(msg.InspectionID)
	if rt.intents != nil {
		rt.intents.SetInspection(sess.ClientID, msg.InspectionID)
	}
	rt.logger.Info("inspection context set",
		logging.String(logging.FieldClientID, sess.ClientID),
		logging.String(logging.FieldInspectionID, msg.InspectionID))
}

func (rt *Router) handleVideoFrame(ctx context.Context, sess *Session, msg protocol.VideoFrame) {
	frame, err := base64.StdEncoding.DecodeString(msg.Frame)
	if err != nil {
		rt.reply(sess, protocol.NewError("frame is not valid base64"))
		return
	}

	if live := sess.Live(); live != nil {
		if err := live.SendFrame(ctx, frame, "image/jpeg"); err != nil {
			rt.logger.Warn("live frame forward failed",
				logging.String(logging.FieldClientID, sess.ClientID),
				logging.Error(err))
			rt.reply(sess, protocol.NewTextResponse(apologyText))
		}
		return
	}

	analysis, err := rt.assist.AnalyzeFrame(ctx, ai.FrameInput{
		Data:     frame,
		MimeType: "image/jpeg",
		Context:  sess.Inspection(),
	})
	if err != nil {
		rt.logger.Warn("frame analysis failed",
			logging.String(logging.FieldClientID, sess.ClientID),
			logging.Error(err))
		rt.reply(sess, protocol.NewTextResponse(apologyText))
		return
	}
	rt.reply(sess, analysisResponse(analysis))
}

func (rt *Router) handleAudio(ctx context.Context, sess *Session, msg protocol.Audio) {
	audio, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		rt.reply(sess, protocol.NewError("audio is not valid base64"))
		return
	}

	if live := sess.Live(); live != nil {
		if err := live.SendAudio(ctx, audio, msg.MimeType, msg.SampleRate); err != nil {
			rt.logger.Warn("live audio forward failed",
				logging.String(logging.FieldClientID, sess.ClientID),
				logging.Error(err))
			rt.reply(sess, protocol.NewTextResponse(apologyText))
		}
		return
	}

	sess.BufferAudio(audio, msg.MimeType, msg.SampleRate)
	// In fallback mode a client-side transcript is the only transcript
	// source, so intent detection runs on it directly.
	if msg.Transcript != "" {
		rt.runIntents(ctx, sess, msg.Transcript)
	}
}

func (rt *Router) handleAudioStreamEnd(ctx context.Context, sess *Session) {
	if live := sess.Live(); live != nil {
		if err := live.FinalizeTurn(ctx); err != nil {
			rt.logger.Warn("live turn finalize failed",
				logging.String(logging.FieldClientID, sess.ClientID),
				logging.Error(err))
		}
		return
	}

	data, mimeType, sampleRate, ok := sess.DrainAudio()
	if !ok {
		return
	}
	analysis, err := rt.assist.AnalyzeAudio(ctx, ai.AudioInput{
		Data:       data,
		MimeType:   mimeType,
		SampleRate: sampleRate,
		Context:    sess.Inspection(),
	})
	if err != nil {
		rt.logger.Warn("audio analysis failed",
			logging.String(logging.FieldClientID, sess.ClientID),
			logging.Error(err))
		rt.reply(sess, protocol.NewTextResponse(apologyText))
		return
	}
	rt.reply(sess, analysisResponse(analysis))
}

func (rt *Router) handleInterrupt(ctx context.Context, sess *Session) {
	live := sess.Live()
	if live == nil {
		return
	}
	if err := live.Interrupt(ctx); err != nil {
		rt.logger.Warn("live interrupt failed",
			logging.String(logging.FieldClientID, sess.ClientID),
			logging.Error(err))
	}
}

// pumpLive forwards realtime events to the client until the channel closes.
func (rt *Router) pumpLive(ctx context.Context, sess *Session, live ai.LiveChannel) {
	for event := range live.Events() {
		switch event.Kind {
		case ai.EventTextChunk:
			rt.reply(sess, protocol.NewResponseChunk(event.Text))
		case ai.EventTurnComplete:
			if event.Text != "" {
				rt.reply(sess, protocol.NewTextResponse(event.Text))
			}
		case ai.EventTranscript:
			speaker := speakerAssistant
			if event.Role == speakerUser {
				speaker = speakerUser
			}
			rt.reply(sess, protocol.NewLiveTranscript(speaker, event.Text))
			if speaker == speakerUser && event.IsFinal {
				rt.runIntents(ctx, sess, event.Text)
			}
		case ai.EventError:
			rt.logger.Warn("live channel error",
				logging.String(logging.FieldClientID, sess.ClientID),
				logging.Error(event.Err))
			rt.reply(sess, protocol.NewTextResponse(apologyText))
		}
	}
}

func (rt *Router) runIntents(ctx context.Context, sess *Session, transcript string) {
	if rt.intents == nil {
		return
	}
	for _, text := range rt.intents.HandleTranscript(ctx, sess.ClientID, transcript) {
		rt.reply(sess, protocol.NewTextResponse(text))
	}
}

func (rt *Router) reply(sess *Session, msg any) {
	if err := sess.Send(msg); err != nil {
		rt.logger.Debug("reply dropped",
			logging.String(logging.FieldClientID, sess.ClientID),
			logging.Error(err))
	}
}

func analysisResponse(analysis *ai.Analysis) protocol.GeminiResponse {
	resp := protocol.NewTextResponse(analysis.Text)
	resp.SafetyFlags = analysis.SafetyFlags
	resp.DetectedFaults = analysis.DetectedFaults
	resp.NeedsClarity = analysis.NeedsClarity
	resp.ClarityRequest = analysis.ClarityRequest
	return resp
}
