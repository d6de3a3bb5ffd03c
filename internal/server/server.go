// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/slidecapture/internal/archive"
	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/catalog"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/orchestrator"
	"github.com/GriffinCanCode/slidecapture/internal/orchestrator/events"
	"github.com/GriffinCanCode/slidecapture/internal/settings"
	"github.com/GriffinCanCode/slidecapture/internal/trace"
)

// Message is an incoming websocket control message.
type Message struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

type AckMessage struct {
	Type     string           `json:"type"`
	Command  string           `json:"command"`
	Snapshot capture.Snapshot `json:"snapshot"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	mgr   *orchestrator.Manager
	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter

	unsubscribe func()
}

// New creates a server and starts broadcasting capture events.
func New(mgr *orchestrator.Manager) *Server {
	s := &Server{
		mgr:   mgr,
		conns: make(map[*websocket.Conn]*rateLimiter),
	}
	ch, unsubscribe := mgr.Events().Subscribe()
	s.unsubscribe = unsubscribe
	go s.broadcast(ch)
	return s
}

// Close stops the broadcaster.
func (s *Server) Close() { s.unsubscribe() }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/capture", s.handleSnapshot)
	mux.HandleFunc("POST /api/capture/{command}", s.handleCommand)
	mux.HandleFunc("DELETE /api/capture", s.handleDiscard)
	mux.HandleFunc("GET /api/capture/frames/{n}", s.handleFrame)
	mux.HandleFunc("GET /api/capture/archive", s.handleArchive)
	mux.HandleFunc("GET /api/crop", s.handleGetCrop)
	mux.HandleFunc("PUT /api/crop", s.handlePutCrop)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}/frames", s.handleSessionFrames)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// run executes a named engine command. "delete" discards the session.
func (s *Server) run(ctx context.Context, command string) error {
	eng := s.mgr.Engine()
	switch command {
	case "start":
		return eng.Start(ctx)
	case "stop":
		return eng.Stop(ctx)
	case "reset":
		return eng.Reset(ctx)
	case "acknowledge":
		return eng.Acknowledge(ctx)
	case "delete":
		return eng.Discard(ctx)
	default:
		return apperrors.Newf(apperrors.InvalidArgument, "unknown command %q", command)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	_ = wsjson.Write(baseCtx, conn, events.Event{
		Type:      events.TypeStatus,
		SessionID: s.mgr.Engine().Snapshot().ID,
		Timestamp: time.Now(),
		Data:      s.mgr.Engine().Snapshot(),
	})

	for {
		var raw json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow(time.Now()) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(raw); ok {
			ctx = trace.WithContext(ctx, trace.NewChild(tc))
		}
		s.handleControl(ctx, conn, msg.Type)
	}
}

func (s *Server) handleControl(ctx context.Context, conn *websocket.Conn, command string) {
	ctx, span := trace.StartSpan(ctx, "handle_control")
	defer span.End()
	span.SetAttr("command", command)

	log := trace.Logger(ctx)
	if err := s.run(ctx, command); err != nil {
		span.SetAttr("error", err.Error())
		log.Warn("control command failed", "command", command, "error", err)
		_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Code: apperrors.CodeOf(err).String(), Message: err.Error()})
		return
	}
	_ = wsjson.Write(ctx, conn, AckMessage{Type: "ack", Command: command, Snapshot: s.mgr.Engine().Snapshot()})
}

func (s *Server) broadcast(ch <-chan events.Event) {
	for evt := range ch {
		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				ctx, cancel := context.WithTimeout(context.Background(), BroadcastWriteTimeout)
				defer cancel()
				_ = wsjson.Write(ctx, c, evt)
			}(conn)
		}
		s.mu.RUnlock()
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Engine().Snapshot())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	command := r.PathValue("command")
	if command == "delete" {
		writeError(w, apperrors.New(apperrors.InvalidArgument, "use DELETE /api/capture"))
		return
	}
	if err := s.run(r.Context(), command); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.mgr.Engine().Snapshot())
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.run(r.Context(), "delete"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.mgr.Engine().Snapshot())
}

// handleFrame serves retained frame n, counting from 1.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, apperrors.Newf(apperrors.InvalidArgument, "bad frame number %q", r.PathValue("n")))
		return
	}
	f, ok := s.mgr.Engine().Frame(n - 1)
	if !ok {
		writeError(w, apperrors.Newf(apperrors.NotFound, "frame %d", n))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Encoded)))
	_, _ = w.Write(f.Encoded)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	snap := s.mgr.Engine().Snapshot()
	frames := s.mgr.Engine().Retained()
	if len(frames) == 0 {
		writeError(w, apperrors.New(apperrors.NotFound, "no frames retained"))
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.FileName(snap.ID)))
	if err := archive.Write(w, snap.ID, frames); err != nil {
		trace.Logger(r.Context()).Error("archive stream failed", "error", err)
	}
}

func (s *Server) handleGetCrop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Settings().Get())
}

func (s *Server) handlePutCrop(w http.ResponseWriter, r *http.Request) {
	var c settings.Crop
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.InvalidArgument, "decode crop"))
		return
	}
	if err := s.mgr.SetCrop(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.mgr.Catalog().Sessions(r.Context(), queryInt(r, "limit", DefaultListLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []catalog.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionFrames(w http.ResponseWriter, r *http.Request) {
	frames, err := s.mgr.Catalog().Frames(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if len(frames) == 0 {
		writeError(w, apperrors.Newf(apperrors.NotFound, "session %s", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, frames)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Events().Recent(queryInt(r, "limit", DefaultListLimit)))
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, httpStatus(code), ErrorMessage{Type: "error", Code: code.String(), Message: err.Error()})
}

// httpStatus maps an application error code to a response status.
func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.InvalidArgument, apperrors.Configuration:
		return http.StatusBadRequest
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.Unavailable, apperrors.SourceUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.Timeout:
		return http.StatusGatewayTimeout
	case apperrors.Cancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
