// Package http provides the HTTP server: the upload and chat page plus a
// JSON/SSE API over the session.
package http

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/0xcro3dile/lograg-go/internal/domain/usecases"
)

const (
	// DefaultMaxUploadBytes caps the size of an uploaded CSV file.
	DefaultMaxUploadBytes = 64 << 20
	// DefaultWriteTimeout bounds responses other than answers.
	DefaultWriteTimeout = 60 * time.Second
)

// Server is the HTTP server for the log chat API and UI.
type Server struct {
	session        *usecases.Session
	addr           string
	maxUploadBytes int64
	writeTimeout   time.Duration
	answerTimeout  time.Duration // 0 leaves answers without a write deadline

	// ingestion outlives the upload request
	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	uploads sync.WaitGroup
}

// NewServer creates a new HTTP server.
func NewServer(session *usecases.Session, addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		session:        session,
		addr:           addr,
		maxUploadBytes: DefaultMaxUploadBytes,
		writeTimeout:   DefaultWriteTimeout,
		baseCtx:        ctx,
		cancel:         cancel,
	}
}

// SetMaxUploadBytes overrides the upload size limit.
func (s *Server) SetMaxUploadBytes(n int64) {
	if n > 0 {
		s.maxUploadBytes = n
	}
}

// SetWriteTimeout overrides the server-wide write timeout.
func (s *Server) SetWriteTimeout(d time.Duration) {
	s.writeTimeout = d
}

// SetAnswerTimeout sets the write deadline of the query endpoints. It should
// cover the query embedding and chat timeouts, retries included.
func (s *Server) SetAnswerTimeout(d time.Duration) {
	s.answerTimeout = d
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI
	mux.HandleFunc("/", s.handleIndex)

	// API
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/preview", s.handlePreview)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/query/stream", s.handleQueryStream) // SSE streaming
	mux.HandleFunc("/api/health", s.handleHealth)

	return corsMiddleware(loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      s.writeTimeout, // answers extend their own deadline
	}

	log.Info("lograg server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", "error", err)
		}
	}()

	err := server.ListenAndServe()
	s.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close cancels background ingestion and waits for it to stop.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.session.Close()
	s.uploads.Wait()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush keeps SSE working through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
