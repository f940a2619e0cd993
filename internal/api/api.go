// Package api exposes the intake conversation over HTTP: the presentation
// sink creates sessions, streams keystrokes as drafts, submits answers and
// polls the session view.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brconnect/leadintake/internal/flow"
	"github.com/brconnect/leadintake/internal/notify"
	"github.com/brconnect/leadintake/internal/store"
	"github.com/brconnect/leadintake/internal/verify"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	DBDriver         string // "sqlite3" (default) or "postgres"
	TypingDelay      time.Duration
	NotifyRetryDelay time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDBDriver selects the lead store backend.
func WithDBDriver(driver string) Option {
	return func(o *Opts) { o.DBDriver = driver }
}

// WithTypingDelay sets the synthetic delay before the next prompt is shown.
func WithTypingDelay(d time.Duration) Option {
	return func(o *Opts) { o.TypingDelay = d }
}

// WithNotifyRetryDelay sets the fixed wait before the single completion
// notice retry.
func WithNotifyRetryDelay(d time.Duration) Option {
	return func(o *Opts) { o.NotifyRetryDelay = d }
}

// Server hosts the conversation sessions and their HTTP surface.
type Server struct {
	mu       sync.RWMutex
	sessions map[string]*flow.Session

	st           store.LeadStore
	verifier     flow.Verifier
	orchestrator *flow.Orchestrator
	timer        flow.Timer
	typingDelay  time.Duration
}

// NewServer wires a server from its collaborators. Used directly by tests;
// production wiring goes through Run.
func NewServer(st store.LeadStore, verifier flow.Verifier, notifier flow.Notifier, timer flow.Timer, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		sessions:     make(map[string]*flow.Session),
		st:           st,
		verifier:     verifier,
		orchestrator: flow.NewOrchestrator(st, notifier, timer, cfg.NotifyRetryDelay),
		timer:        timer,
		typingDelay:  cfg.TypingDelay,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionRouter)
	return mux
}

// Run builds the modules from their options and serves the API. It blocks
// until the listener fails.
func Run(storeOpts []store.Option, verifyOpts []verify.Option, notifier notify.Notifier, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	st, err := newStore(cfg.DBDriver, storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize lead store: %w", err)
	}
	defer st.Close()

	verifier := verify.NewClient(verifyOpts...)
	timer := flow.NewSimpleTimer()
	defer timer.Stop()

	server := NewServer(st, verifier, notifier, timer, apiOpts...)

	slog.Info("API server starting", "addr", cfg.Addr, "driver", driverName(cfg.DBDriver))
	return http.ListenAndServe(cfg.Addr, server.Handler())
}

func newStore(driver string, storeOpts []store.Option) (store.LeadStore, error) {
	switch driverName(driver) {
	case "postgres":
		return store.NewPostgresStore(storeOpts...)
	default:
		return store.NewSQLiteStore(storeOpts...)
	}
}

func driverName(driver string) string {
	if driver == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}
