package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fieldlink/internal/auth"
	"fieldlink/internal/logging"
)

// CloseUnauthorized is the application close code sent when token
// verification fails after the upgrade. Browsers cannot read HTTP error
// bodies on a websocket handshake, so the failure is reported in-band.
const CloseUnauthorized = 4401

// Server upgrades HTTP requests to websocket sessions and runs their read
// loops.
type Server struct {
	router       *Router
	verifier     auth.TokenVerifier
	authRequired bool
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

// NewServer creates the websocket endpoint. verifier is consulted only
// when authRequired is set.
func NewServer(router *Router, verifier auth.TokenVerifier, authRequired bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		router:       router,
		verifier:     verifier,
		authRequired: authRequired,
		logger:       logger.With(logging.String(logging.FieldComponent, "gateway")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			// The gateway fronts trusted technician apps, not browsers on
			// arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles one websocket connection for its whole lifetime.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}

	if s.authRequired {
		if err := s.verifier.Verify(token); err != nil {
			msg := websocket.FormatCloseMessage(CloseUnauthorized, "invalid or missing token")
			deadline := time.Now().Add(2 * time.Second)
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = conn.Close()
			s.logger.Info("rejected unauthenticated connection",
				logging.String("remote_addr", r.RemoteAddr))
			return
		}
	}

	clientID := uuid.NewString()
	sess := NewSession(clientID, conn, time.Now())

	ctx := r.Context()
	s.router.HandleConnect(ctx, sess)
	defer s.router.HandleDisconnect(sess)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("connection read error",
					logging.String(logging.FieldClientID, clientID),
					logging.Error(err))
			}
			return
		}
		s.router.HandleMessage(ctx, sess, raw)
	}
}
