package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ianchak/stati-sub002/builder/utils"
)

// Server serves the output directory during development and pushes reload
// events to connected browsers after each rebuild.
type Server struct {
	dir    string
	addr   string
	logger *slog.Logger

	clientMu sync.Mutex
	clients  map[chan struct{}]struct{}
}

// New creates a preview server for dir listening on addr.
func New(dir, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dir:     dir,
		addr:    addr,
		logger:  logger,
		clients: make(map[chan struct{}]struct{}),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the preview handler: /events streams reload notifications
// and everything else is served from the output directory.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleSSE)
	mux.HandleFunc("/", s.handleFile)
	return mux
}

// Reload notifies every connected client. Slow clients miss the event.
func (s *Server) Reload() {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	for clientChan := range s.clients {
		select {
		case clientChan <- struct{}{}:
		default:
		}
	}
}

// Clients returns the number of connected reload listeners.
func (s *Server) Clients() int {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return len(s.clients)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("preview server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+r.URL.Path)), "/")
	fullPath := filepath.Join(s.dir, filepath.FromSlash(rel))
	if !utils.WithinRoot(s.dir, fullPath) {
		http.Error(w, "403 - Forbidden: Invalid path", http.StatusForbidden)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.notFound(w)
			return
		}
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		fullPath = filepath.Join(fullPath, "index.html")
		if _, err := os.Stat(fullPath); err != nil {
			s.notFound(w)
			return
		}
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")

	// Pages written with precompress have a .gz sibling
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		if _, err := os.Stat(fullPath + ".gz"); err == nil {
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Set("Content-Type", contentType(fullPath))
			w.Header().Add("Vary", "Accept-Encoding")
			http.ServeFile(w, r, fullPath+".gz")
			return
		}
	}
	http.ServeFile(w, r, fullPath)
}

func (s *Server) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if content, err := os.ReadFile(filepath.Join(s.dir, "404.html")); err == nil {
		_, _ = w.Write(content)
		return
	}
	_, _ = w.Write([]byte("404 - Page Not Found"))
}

func contentType(path string) string {
	if strings.HasSuffix(path, ".html") {
		return "text/html; charset=utf-8"
	}
	return "application/octet-stream"
}
