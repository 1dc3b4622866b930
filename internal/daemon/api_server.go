package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"fieldlink/internal/api"
	"fieldlink/internal/auth"
	"fieldlink/internal/config"
	"fieldlink/internal/logging"
	"fieldlink/internal/workflow"
)

const maxControlBody = 64 << 10

type apiServer struct {
	bind   string
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon) *apiServer {
	srv := &apiServer{
		bind:   cfg.Gateway.Bind,
		daemon: d,
	}

	var verifier auth.TokenVerifier
	if cfg.Gateway.AuthRequired {
		verifier = d.verifier
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/status", auth.Middleware(verifier, srv.handleStatus))
	mux.HandleFunc("/api/sessions", auth.Middleware(verifier, srv.handleSessions))
	mux.HandleFunc("/api/workflow/test", auth.Middleware(verifier, srv.handleWorkflowTest))
	mux.Handle("/ws", d.ws)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.daemon.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.daemon.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address, empty before start.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:          status.Running,
		PID:              status.PID,
		Sessions:         status.Sessions,
		Delivery:         status.Delivery,
		InspectionDBPath: status.InspectionDBPath,
		LockFilePath:     status.LockFilePath,
	})
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snapshot := s.daemon.registry.Snapshot()
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].JoinedAt.Before(snapshot[j].JoinedAt)
	})
	entries := make([]api.SessionEntry, len(snapshot))
	for i, info := range snapshot {
		mode := "fallback"
		if info.LiveMode {
			mode = "live"
		}
		entries[i] = api.SessionEntry{
			ClientID:     info.ClientID,
			SessionLabel: info.SessionLabel,
			InspectionID: info.InspectionID,
			Mode:         mode,
			JoinedAt:     info.JoinedAt.UTC().Format(time.RFC3339),
		}
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: entries})
}

func (s *apiServer) handleWorkflowTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.WorkflowTestRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action, ok := workflow.ParseAction(req.Action)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	if req.InspectionID == "" {
		s.writeError(w, http.StatusBadRequest, "inspectionId is required")
		return
	}

	result := s.daemon.engine.RunAction(r.Context(), workflow.Request{
		InspectionID:   req.InspectionID,
		Action:         action,
		Note:           req.Note,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	s.writeJSON(w, http.StatusOK, api.WorkflowTestResponse{
		Status:              string(result.Status),
		ResultMessage:       result.ResultMessage,
		ExternalReferenceID: result.ExternalReferenceID,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.daemon.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
