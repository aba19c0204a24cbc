// Package http serves the cashbook client core as a JSON API with a
// server-sent event feed. Each bearer token owns one workspace: a
// cashbook.Client kept warm in an LRU cache and closed when it idles out.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cashbook/internal/auth"
	"cashbook/internal/cache"
	"cashbook/internal/cashbook"
	"cashbook/internal/ledger"
	"cashbook/internal/log"
	"cashbook/internal/middleware/ratelimit"
	"cashbook/internal/middleware/security"
	"cashbook/internal/middleware/trace"
	"cashbook/internal/sheets"
)

// Options tunes a Server. Zero values fall back to the defaults below.
type Options struct {
	RateLimitPerMinute int
	WorkspaceIdleTTL   time.Duration
	MaxWorkspaces      int
	// SheetTab is the tab POST /export/sheets writes to.
	SheetTab string
	// Client is passed to every workspace.
	Client cashbook.Options
	// Ready backs /readyz; nil always reports ready.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
}

const (
	defaultIdleTTL       = 30 * time.Minute
	defaultMaxWorkspaces = 1000
	defaultSheetTab      = "Transactions"
	cleanupInterval      = time.Minute
)

type Server struct {
	http.Server

	auth      *auth.Service
	backend   ledger.Backend
	publisher sheets.TablePublisher
	opts      Options

	workspaces *cache.LRU[*cashbook.Client]
	caches     *cache.Manager
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	tracer     *trace.Middleware

	// stopping is closed when Shutdown starts so long-lived streams end.
	stopping     chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. publisher may be nil, in which case Sheets export answers 503.
func NewServer(addr string, svc *auth.Service, backend ledger.Backend, publisher sheets.TablePublisher, opts Options) *Server {
	if opts.WorkspaceIdleTTL <= 0 {
		opts.WorkspaceIdleTTL = defaultIdleTTL
	}
	if opts.MaxWorkspaces <= 0 {
		opts.MaxWorkspaces = defaultMaxWorkspaces
	}
	if opts.SheetTab == "" {
		opts.SheetTab = defaultSheetTab
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	s := &Server{
		auth:      svc,
		backend:   backend,
		publisher: publisher,
		opts:      opts,
		caches:    cache.NewManager(),
		detector:  security.NewDetector(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		stopping:  make(chan struct{}),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)
	s.workspaces = cache.NewLRU(opts.MaxWorkspaces, opts.WorkspaceIdleTTL,
		cache.WithOnEvict(func(_ string, ws *cashbook.Client) {
			ws.Close()
		}))
	s.caches.Register(s.workspaces)
	s.caches.StartCleanup(cleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.withWorkspace(s.handleLogout))
	mux.HandleFunc("GET /auth/session", s.withWorkspace(s.handleSession))

	mux.HandleFunc("GET /transactions", s.withWorkspace(s.handleListTransactions))
	mux.HandleFunc("POST /transactions", s.withWorkspace(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions/{id}", s.withWorkspace(s.handleEditTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.withWorkspace(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withWorkspace(s.handleDeleteTransaction))

	mux.HandleFunc("GET /summary", s.withWorkspace(s.handleSummary))
	mux.HandleFunc("GET /analytics", s.withWorkspace(s.handleAnalytics))
	mux.HandleFunc("GET /analytics/chart.png", s.withWorkspace(s.handleChart))
	mux.HandleFunc("GET /view", s.withWorkspace(s.handleGetView))
	mux.HandleFunc("PUT /view", s.withWorkspace(s.handleSetView))

	mux.HandleFunc("GET /export/report.pdf", s.withWorkspace(s.handleExportPDF))
	mux.HandleFunc("GET /export/report.md", s.withWorkspace(s.handleExportMarkdown))
	mux.HandleFunc("POST /export/sheets", s.withWorkspace(s.handleExportSheets))
	mux.HandleFunc("GET /share", s.handleShare)
	mux.HandleFunc("POST /dictation", s.withWorkspace(s.handleDictation))

	mux.HandleFunc("GET /feed", s.withWorkspace(s.handleFeed))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = log.Middleware(opts.Logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = s.detector.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Workspaces is the number of live workspaces.
func (s *Server) Workspaces() int {
	return s.workspaces.Size()
}

// Shutdown ends open feeds, then stops the server, its cleanup goroutines
// and every workspace.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopping)
		shutdownErr = s.Server.Shutdown(ctx)
		s.caches.Stop()
		s.limiter.Stop()
		s.workspaces.Purge()
	})
	return shutdownErr
}

// workspace returns the client for token, restoring the session on first
// use.
func (s *Server) workspace(token string) (*cashbook.Client, error) {
	return s.workspaces.GetOrCreate(token, func() (*cashbook.Client, error) {
		identity := auth.NewClient(s.auth)
		if _, err := identity.Restore(token); err != nil {
			return nil, err
		}
		return cashbook.New(identity, s.backend, s.opts.Client), nil
	})
}

type workspaceHandler func(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, token string)

// withWorkspace resolves the bearer token to its workspace or answers 401.
func (s *Server) withWorkspace(next workspaceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, auth.ErrNoSession.Error())
			return
		}
		if _, err := s.auth.Verify(token); err != nil {
			s.workspaces.Delete(token)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ws, err := s.workspace(token)
		if err != nil {
			s.fail(w, r, "resolve workspace", err)
			return
		}
		next(w, r, ws, token)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// fail maps err to a status, logs server-side failures and writes the
// error body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	writeError(w, status, msg)
}
