// Package server provides the GoPoster web editor and HTTP API.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/pkg/export"
	"github.com/xob0t/GoPoster/pkg/generator"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/poster"
)

//go:embed web/*
var webContent embed.FS

// SessionCookie carries the editor session ID.
const SessionCookie = "goposter_session"

// uploadOverhead is the multipart framing allowed on top of the avatar limit.
const uploadOverhead = 1 << 20

// Server serves the editor page and its API on top of a Runtime.
type Server struct {
	rt       *app.Runtime
	sessions *registry
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// New returns a Server handing out sessions from rt.
func New(rt *app.Runtime) *Server {
	return &Server{
		rt:       rt,
		sessions: newRegistry(rt),
		logger:   logger.Named("server"),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// Handler returns the routed API and static page.
func (s *Server) Handler() http.Handler {
	webFS, err := fs.Sub(webContent, "web")
	if err != nil {
		panic(fmt.Sprintf("embed web: %v", err))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/schema", s.handleSchema)
	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.HandleFunc("PATCH /api/state", s.handleUpdateState)
	mux.HandleFunc("POST /api/state", s.handleUpdateState)
	mux.HandleFunc("DELETE /api/state", s.handleResetState)
	mux.HandleFunc("POST /api/avatar", s.handleAvatar)
	mux.HandleFunc("GET /api/preview.png", s.handlePreview)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/live", s.handleLive)
	if s.rt.Metrics != nil {
		mux.Handle("GET /metrics", s.rt.Metrics.Handler())
	}

	mux.Handle("/", http.FileServer(http.FS(webFS)))
	return mux
}

// Sweep closes sessions idle for longer than the configured TTL.
func (s *Server) Sweep(now time.Time) int {
	return s.sessions.sweep(now, s.rt.Config.SessionTTL)
}

// Close closes every live session.
func (s *Server) Close() {
	s.sessions.closeAll()
}

// Run serves on the configured address until ctx is cancelled.
func Run(ctx context.Context, rt *app.Runtime) error {
	s := New(rt)
	defer s.Close()

	srv := &http.Server{
		Addr:              rt.Config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	url := "http://localhost" + rt.Config.Addr
	s.logger.Info(ctx, "GoPoster editor listening", logger.String("url", url))
	if rt.Config.OpenBrowser {
		go openBrowser(url)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", rt.Config.Addr, err)
	}
	return nil
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Debug(ctx, "expired idle sessions", logger.Int("count", n))
			}
		}
	}
}

// ── Form state ──

type stateResponse struct {
	Session  string           `json:"session"`
	State    poster.FormState `json:"state"`
	Revision uint64           `json:"revision"`
	Title    string           `json:"title"`
	Fields   []poster.Field   `json:"fields,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func stateOf(sess *app.Session) stateResponse {
	return stateResponse{
		Session:  sess.ID,
		State:    sess.Preview.State(),
		Revision: sess.Preview.Revision(),
		Title:    sess.Preview.Title(),
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, poster.Schema)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.forRequest(w, r)
	writeJSON(w, http.StatusOK, stateOf(sess))
}

func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.forRequest(w, r)

	var req struct {
		Changed map[string]any `json:"changed"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	fields, err := sess.Update(req.Changed)
	resp := stateOf(sess)
	resp.Fields = fields
	if err != nil {
		// Coercible keys are merged; the rest are reported.
		resp.Error = err.Error()
		s.logger.Debug(r.Context(), "partial form update", logger.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetState(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.forRequest(w, r)
	sess.Store.Reset()
	writeJSON(w, http.StatusOK, stateOf(sess))
}

// ── Avatar ──

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.forRequest(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, s.rt.Config.MaxAvatarBytes+uploadOverhead)
	if err := r.ParseMultipartForm(s.rt.Config.MaxAvatarBytes + uploadOverhead); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no file"))
		return
	}
	file, closeFile, err := poster.FileFromMultipart(headers[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer closeFile()

	var messages []string
	sess.Ingestor.BeforeUpload(file, func(err error) {
		var re *poster.RejectionError
		if errors.As(err, &re) {
			messages = append(messages, re.Message())
		}
	})
	if len(messages) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"messages": messages})
		return
	}

	sess.Touch()
	if _, err := sess.Ingestor.Ingest(r.Context(), file); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, poster.ErrSuperseded) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(sess))
}

// ── Preview & export ──

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.forRequest(w, r)
	img, err := sess.RenderPreview()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("render preview: %w", err))
		return
	}
	data, err := generator.Encode(".png", generator.Config{Image: img})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

type exportFailure struct {
	Error    string                  `json:"error"`
	Stage    export.Stage            `json:"stage,omitempty"`
	Messages map[poster.Field]string `json:"messages,omitempty"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.forRequest(w, r)

	task, err := sess.Submit(r.Context(), export.ResponseSaver{W: w})
	if err != nil {
		var ve *poster.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusUnprocessableEntity, exportFailure{Error: err.Error(), Messages: ve.Messages()})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The saver writes to w from the task goroutine; w stays valid until it
	// finishes.
	<-task.Done()
	err = task.Err()
	if err == nil {
		return
	}
	var ce *export.CaptureError
	if errors.As(err, &ce) && ce.Stage == export.StageSave {
		// Headers are already out.
		return
	}
	resp := exportFailure{Error: err.Error()}
	if ce != nil {
		resp.Stage = ce.Stage
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}

// ── Live channel ──

type liveMessage struct {
	Revision uint64 `json:"revision"`
	Title    string `json:"title"`
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.forRequest(w, r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	// Coalesce: only the latest revision matters.
	pending := make(chan struct{}, 1)
	cancel := sess.Preview.OnChange(func(uint64) {
		select {
		case pending <- struct{}{}:
		default:
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		sess.Touch()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(liveMessage{Revision: sess.Preview.Revision(), Title: sess.Preview.Title()})
	}
	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-pending:
			if err := send(); err != nil {
				return
			}
		}
	}
}

// ── Helpers ──

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
