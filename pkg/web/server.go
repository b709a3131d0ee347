package web

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/media"
	"github.com/haivivi/accentid/pkg/pipeline"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8501"

//go:embed templates/*
var templateFS embed.FS

var tmpl = template.Must(template.New("").Funcs(template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"seconds": func(d time.Duration) string { return fmt.Sprintf("%.1f s", d.Seconds()) },
}).ParseFS(templateFS, "templates/*.html"))

// Runner executes analysis requests and reports their progress.
type Runner interface {
	Run(ctx context.Context, id string, in media.Input) (*accent.Result, error)
	State() (pipeline.State, string)
	Subscribe() (<-chan pipeline.Event, func())
}

// Info is reported by /api/health.
type Info struct {
	ModelID    string   `json:"model_id"`
	Revision   string   `json:"revision"`
	Backend    string   `json:"backend"`
	Labels     int      `json:"labels"`
	SampleRate int      `json:"sample_rate"`
	FFmpeg     string   `json:"ffmpeg,omitempty"`
	Formats    []string `json:"formats"`
	Version    string   `json:"version,omitempty"`
}

// Server serves the page and the API.
type Server struct {
	runner   Runner
	formats  *media.Formats
	maxBytes int64
	info     Info
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithFormats sets the formats offered by the upload control.
func WithFormats(f *media.Formats) Option {
	return func(s *Server) {
		s.formats = f
	}
}

// WithMaxBytes limits the request body size.
func WithMaxBytes(n int64) Option {
	return func(s *Server) {
		s.maxBytes = n
	}
}

// WithInfo sets what /api/health reports.
func WithInfo(info Info) Option {
	return func(s *Server) {
		s.info = info
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server around runner.
func NewServer(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		formats:  media.DefaultFormats(),
		maxBytes: media.DefaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.info.Formats) == 0 {
		s.info.Formats = s.formats.Extensions()
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleForm)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return s.recoverer(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web: listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("web: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.Error("web: panic", "method", r.Method, "path", r.URL.Path, "panic", p,
					"response_started", tw.started, "stack", string(debug.Stack()))
				if !tw.started {
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}
		}()
		next.ServeHTTP(tw, r)
	})
}

// trackingWriter records whether a response has begun, so a recovered
// panic does not write a second status line into it.
type trackingWriter struct {
	http.ResponseWriter
	started bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Flush() {
	w.started = true
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection to the WebSocket upgrader.
func (w *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("web: %T cannot be hijacked", w.ResponseWriter)
	}
	w.started = true
	return h.Hijack()
}

func (w *trackingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// wantsJSON reports whether the request body is JSON.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
