// Package server is the HTTP and WebSocket edge of the relay: it upgrades
// realtime connections, accepts audio uploads for transcription, and serves
// the static frontend plus synthesized audio artifacts.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/chathelp/relay/pkg/session"
	"github.com/chathelp/relay/pkg/storage"
	"github.com/chathelp/relay/pkg/transcribe"
)

// DefaultMaxUploadBytes bounds audio uploads.
const DefaultMaxUploadBytes = 25 << 20

// Config holds the edge-layer settings.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string

	// PublicDir is the static frontend root. Empty disables static serving.
	PublicDir string

	// UploadDir receives transient upload spool files.
	UploadDir string

	// AudioURLPrefix is the public path audio artifacts are served under.
	// Defaults to "/audio/".
	AudioURLPrefix string

	// MaxUploadBytes bounds /process-audio request bodies. Zero means
	// DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// Server wires the edge handlers to the orchestration core.
type Server struct {
	cfg         Config
	manager     *session.Manager
	dispatcher  *session.Dispatcher
	files       storage.FileStore
	transcriber transcribe.Transcriber

	httpServer *http.Server
}

// New creates a Server. The transcriber may be nil, which disables the
// /process-audio endpoint.
func New(cfg Config, manager *session.Manager, dispatcher *session.Dispatcher, files storage.FileStore, transcriber transcribe.Transcriber) *Server {
	if cfg.AudioURLPrefix == "" {
		cfg.AudioURLPrefix = "/audio/"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		cfg:         cfg,
		manager:     manager,
		dispatcher:  dispatcher,
		files:       files,
		transcriber: transcriber,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/process-audio", s.handleProcessAudio)
	mux.HandleFunc(s.cfg.AudioURLPrefix, s.handleAudio)
	if s.cfg.PublicDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.PublicDir)))
	}
	return mux
}

// ListenAndServe blocks serving HTTP until Shutdown or a fatal error.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}
	slog.Info("server: listening", "addr", s.cfg.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleAudio streams a synthesized artifact from the file store.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := path.Base(strings.TrimPrefix(r.URL.Path, s.cfg.AudioURLPrefix))
	if name == "" || name == "." || name == "/" {
		http.NotFound(w, r)
		return
	}

	rc, err := s.files.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		slog.Error("server: audio artifact open failed", "name", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Debug("server: audio stream aborted", "name", name, "err", err)
	}
}
