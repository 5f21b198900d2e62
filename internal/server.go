package internal

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionCookie   = AppName + "_session"
	sessionIdleTTL  = 2 * time.Hour
	maxSessions     = 1000
	maxRequestBytes = 64 << 10
)

// sessionEntry is a conversation plus its last use, for idle eviction
type sessionEntry struct {
	session  *Session
	lastUsed time.Time
}

// sessionRegistry maps browser cookies to conversations
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	create   func() *Session
	now      func() time.Time
}

func newSessionRegistry(create func() *Session) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*sessionEntry),
		create:   create,
		now:      time.Now,
	}
}

// get returns the session for id, creating it when unknown
func (r *sessionRegistry) get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictLocked(now)

	entry, ok := r.sessions[id]
	if !ok {
		entry = &sessionEntry{session: r.create()}
		r.sessions[id] = entry
	}
	entry.lastUsed = now
	return entry.session
}

func (r *sessionRegistry) evictLocked(now time.Time) {
	for id, entry := range r.sessions {
		if now.Sub(entry.lastUsed) > sessionIdleTTL {
			delete(r.sessions, id)
		}
	}
	// still full: drop the least recently used
	for len(r.sessions) >= maxSessions {
		var oldestID string
		var oldest time.Time
		for id, entry := range r.sessions {
			if oldestID == "" || entry.lastUsed.Before(oldest) {
				oldestID, oldest = id, entry.lastUsed
			}
		}
		delete(r.sessions, oldestID)
	}
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Server serves the chat and extract pages and their JSON API
type Server struct {
	app       *App
	sessions  *sessionRegistry
	templates *template.Template
	version   string
	logger    *slog.Logger
}

// NewServer creates the web server for app
func NewServer(app *App, version string) *Server {
	return &Server{
		app:       app,
		sessions:  newSessionRegistry(app.NewSession),
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		version:   version,
		logger:    app.logger,
	}
}

// Handler returns the routed handler with logging, recovery and tracing
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage("chat.html"))
	mux.HandleFunc("GET /extract", s.handlePage("extract.html"))
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("POST /api/extract", s.handleExtract)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	return Chain(mux,
		Recover(s.logger),
		OTel(AppName),
		RequestLogger(s.logger),
	)
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type pageData struct {
	AppName string
	Version string
	Model   string
}

func (s *Server) handlePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data := pageData{AppName: AppName, Version: s.version, Model: s.app.config.Model}
		if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
			s.logger.Error("rendering page", slog.String("page", name), slog.Any("err", err))
		}
	}
}

type messageRequest struct {
	Message string `json:"message"`
}

type itemResponse struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Title    string         `json:"title,omitempty"`
	Channel  string         `json:"channel,omitempty"`
	CacheHit bool           `json:"cache_hit"`
	Error    string         `json:"error,omitempty"`
	Videos   []itemResponse `json:"videos,omitempty"`
}

type chatResponse struct {
	Reply       string         `json:"reply"`
	Videos      int            `json:"videos"`
	Items       []itemResponse `json:"items,omitempty"`
	Unavailable []string       `json:"unavailable,omitempty"`
}

type extractResponse struct {
	Context string         `json:"context"`
	Videos  int            `json:"videos"`
	Items   []itemResponse `json:"items"`
}

type deltaEvent struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeMessage(w, r)
	if !ok {
		return
	}

	session := s.sessions.get(s.sessionID(w, r))
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamChat(w, r, session, req.Message)
		return
	}

	reply, err := session.Send(r.Context(), req.Message)
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(reply))
}

// streamChat answers as server-sent events: "delta" events carry the reply
// as it is written and a final "done" event carries the full chatResponse.
// Failures before the first delta get a plain JSON error.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, session *Session, message string) {
	rc := http.NewResponseController(w)
	started := false
	send := func(event string, v any) {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		_ = rc.Flush()
	}

	reply, err := session.SendStream(r.Context(), message, func(delta string) {
		send("delta", deltaEvent{Text: delta})
	})
	if err != nil {
		if !started {
			s.writeChatError(w, err)
			return
		}
		s.logger.Warn("chat stream failed", slog.Any("err", err))
		send("error", errorResponse{Error: err.Error()})
		return
	}
	send("done", toChatResponse(reply))
}

func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrModel) {
		status = http.StatusBadGateway
	}
	s.logger.Warn("chat failed", slog.Any("err", err))
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func toChatResponse(reply *Reply) chatResponse {
	resp := chatResponse{
		Reply:  reply.Text,
		Videos: reply.Resolution.Videos(),
		Items:  toItemResponses(reply.Resolution.Items),
	}
	for _, failed := range reply.Resolution.Failures() {
		resp.Unavailable = append(resp.Unavailable, failed.ID.ID)
	}
	return resp
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sessions.get(s.sessionID(w, r)).Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeMessage(w, r)
	if !ok {
		return
	}

	res := s.app.ResolveContext(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, extractResponse{
		Context: res.Context,
		Videos:  res.Videos(),
		Items:   toItemResponses(res.Items),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"sessions": s.sessions.len(),
	})
}

func (s *Server) decodeMessage(w http.ResponseWriter, r *http.Request) (messageRequest, bool) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return req, false
	}
	return req, true
}

// sessionID reads the session cookie or issues a new one
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func toItemResponses(items []ResolvedItem) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp := itemResponse{
			ID:       item.ID.ID,
			Type:     item.ID.Type.String(),
			CacheHit: item.CacheHit,
		}
		if item.Err != nil {
			resp.Error = FailureReason(item.Err)
		}
		if item.Record != nil {
			resp.Title = item.Record.Title()
			resp.Channel = item.Record.Channel()
		}
		if len(item.Children) > 0 {
			resp.Videos = toItemResponses(item.Children)
		}
		out = append(out, resp)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
