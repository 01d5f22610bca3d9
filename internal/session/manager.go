package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alfredjeanlab/gatepass/internal/idgen"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature or claim checks.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrNoSession is returned when the token's session was logged out or reaped.
	ErrNoSession = errors.New("session ended")
	// ErrUnknownRole is returned by Login for a role the policy does not know.
	ErrUnknownRole = errors.New("unknown role")
)

// Claims are the JWT claims issued at login. The registered ID is the session ID.
type Claims struct {
	User  string `json:"user"`
	Role  string `json:"role"`
	Plant string `json:"plant"`
	jwt.RegisteredClaims
}

// Config configures a Manager.
type Config struct {
	// Secret signs session tokens (HS256). Required.
	Secret []byte
	// IdleTimeout ends sessions with no activity for this long. Default: 30 minutes.
	IdleTimeout time.Duration
	// TokenTTL bounds the token lifetime regardless of activity. Default: 12 hours.
	TokenTTL time.Duration
	// Issuer is written to and checked on every token. Default: "gatepass".
	Issuer string
	// ValidRole reports whether a role name may log in. Nil accepts any role.
	ValidRole func(name string) bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager tracks live sessions and issues their tokens.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
	onEnd    []func(Session, string)

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// NewManager creates a session manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("session: secret is required")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "gatepass"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}, nil
}

// End reasons passed to OnEnd callbacks.
const (
	EndLogout = "logout"
	EndIdle   = "idle"
)

// OnEnd registers fn to run whenever a session ends, by logout or by the
// reaper, with EndLogout or EndIdle. Callbacks run outside the lock.
func (m *Manager) OnEnd(fn func(s Session, reason string)) {
	m.mu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.mu.Unlock()
}

// Login starts a session and returns it with its signed token.
func (m *Manager) Login(user, role, plant string) (*Session, string, error) {
	user, plant = strings.TrimSpace(user), strings.TrimSpace(plant)
	if user == "" {
		return nil, "", fmt.Errorf("login: user is required")
	}
	if plant == "" {
		return nil, "", fmt.Errorf("login: plant is required")
	}
	if m.cfg.ValidRole != nil && !m.cfg.ValidRole(role) {
		return nil, "", fmt.Errorf("login: %w %q", ErrUnknownRole, role)
	}

	id, err := idgen.Session()
	if err != nil {
		return nil, "", fmt.Errorf("login: %w", err)
	}
	now := m.cfg.Now()
	s := &Session{
		ID:        id,
		User:      user,
		Role:      role,
		Plant:     plant,
		StartedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(m.cfg.TokenTTL),
	}

	claims := &Claims{
		User:  user,
		Role:  role,
		Plant: plant,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    m.cfg.Issuer,
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return nil, "", fmt.Errorf("login: signing token: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	slog.Info("session: started", "session", id, "user", user, "role", role, "plant", plant)
	out := *s
	return &out, token, nil
}

// Resolve validates a token, marks its session active and returns a copy of it.
func (m *Manager) Resolve(token string) (*Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.cfg.Secret, nil
	}, jwt.WithIssuer(m.cfg.Issuer), jwt.WithTimeFunc(m.cfg.Now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := m.cfg.Now()
	m.mu.Lock()
	s, ok := m.sessions[claims.ID]
	if ok && now.Sub(s.LastSeen) > m.cfg.IdleTimeout {
		ok = false
	}
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	s.LastSeen = now
	out := *s
	m.mu.Unlock()
	return &out, nil
}

// Get returns a copy of the session with the given ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	out := *s
	return &out, true
}

// List returns a snapshot of live sessions, most recently active first.
func (m *Manager) List() []Session {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Logout ends the session. It reports whether the session existed.
func (m *Manager) Logout(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	hooks := m.onEnd
	m.mu.Unlock()

	if !ok {
		return false
	}
	slog.Info("session: logged out", "session", id, "user", s.User)
	for _, fn := range hooks {
		fn(*s, EndLogout)
	}
	return true
}

// StartReaper launches a background goroutine that ends idle sessions every
// interval (default: one minute). Call Stop to shut it down.
func (m *Manager) StartReaper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	m.reaperStop = make(chan struct{})
	m.reaperDone = make(chan struct{})

	go m.reapLoop(interval)
	slog.Info("session: reaper started", "idle_timeout", m.cfg.IdleTimeout, "sweep_interval", interval)
}

// Stop shuts down the reaper goroutine.
func (m *Manager) Stop() {
	if m.reaperStop != nil {
		close(m.reaperStop)
		<-m.reaperDone
		m.reaperStop = nil
		m.reaperDone = nil
	}
}

func (m *Manager) reapLoop(interval time.Duration) {
	defer close(m.reaperDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.reaperStop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := m.cfg.Now()
	var ended []Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen) > m.cfg.IdleTimeout || now.After(s.ExpiresAt) {
			ended = append(ended, *s)
			delete(m.sessions, id)
		}
	}
	hooks := m.onEnd
	m.mu.Unlock()

	for _, s := range ended {
		slog.Info("session: reaped idle session", "session", s.ID, "user", s.User, "idle_timeout", m.cfg.IdleTimeout)
		for _, fn := range hooks {
			fn(s, EndIdle)
		}
	}
}
