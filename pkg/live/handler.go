package live

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jsignup/signupkit/pkg/logging"
	"github.com/jsignup/signupkit/pkg/protocol"
	"github.com/jsignup/signupkit/pkg/signup"
)

// ErrOriginNotAllowed is returned when an upgrade request fails the origin
// check.
var ErrOriginNotAllowed = errors.New("live: origin not allowed")

const maxFrameSize = 64 * 1024

// Options configures the live handler.
type Options struct {
	// AllowedOrigins lists origins accepted besides same-origin requests.
	// "*" allows everything.
	AllowedOrigins []string

	// InsecureDevMode disables origin validation. Development only.
	InsecureDevMode bool

	// Codec encodes frames. Defaults to JSON.
	Codec protocol.Codec

	// HeartbeatInterval is the server-side ping cadence.
	HeartbeatInterval time.Duration

	// IdleTimeout closes sessions with no client traffic.
	IdleTimeout time.Duration

	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// EngineFactory builds a fresh engine for each session.
type EngineFactory func() *signup.Engine

// Handler upgrades HTTP requests to live form sessions.
type Handler struct {
	opts    Options
	factory EngineFactory
	logger  logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	done     chan struct{}
	once     sync.Once
}

// NewHandler creates a live handler. The sweeper goroutine closing idle
// sessions starts immediately.
func NewHandler(factory EngineFactory, opts Options) *Handler {
	if opts.Codec == nil {
		opts.Codec = protocol.NewJSONCodec()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger{}
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	h := &Handler{
		opts:     opts,
		factory:  factory,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go h.sweepLoop()
	return h
}

// SessionCount returns the number of live sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close stops the sweeper and terminates every session.
func (h *Handler) Close() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r.Header.Get("Origin"), r.Host) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin already validated above
	})
	if err != nil {
		h.logger.Warn("upgrade failed", logging.Err(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s := newSession(conn, h.factory(), h.opts.Codec, h.logger)

	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()

	h.logger.Info("session opened", logging.Session(s.ID()))

	go s.heartbeat(r.Context(), h.opts.HeartbeatInterval)
	s.run(r.Context())

	h.mu.Lock()
	delete(h.sessions, s.ID())
	h.mu.Unlock()

	h.logger.Info("session closed", logging.Session(s.ID()))
}

// sweepLoop closes sessions whose peer has gone quiet.
func (h *Handler) sweepLoop() {
	interval := h.opts.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-h.opts.IdleTimeout)
			h.mu.Lock()
			var idle []*Session
			for _, s := range h.sessions {
				if s.idleSince().Before(cutoff) {
					idle = append(idle, s)
				}
			}
			h.mu.Unlock()
			for _, s := range idle {
				h.logger.Info("closing idle session", logging.Session(s.ID()))
				s.close()
			}
		case <-h.done:
			return
		}
	}
}

// originAllowed applies the same-origin-or-allowlist policy.
func (h *Handler) originAllowed(origin, requestHost string) bool {
	if h.opts.InsecureDevMode {
		return true
	}
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Host == requestHost {
		return true
	}

	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if allowedURL, err := url.Parse(allowed); err == nil && allowedURL.Host == originURL.Host {
			return true
		}
	}
	return false
}
