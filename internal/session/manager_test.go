package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	m, err := NewManager(Config{
		Secret:      []byte("test-secret"),
		IdleTimeout: 10 * time.Minute,
		ValidRole:   func(name string) bool { return name == "Security" || name == "Admin" },
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, clock
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestLoginResolve(t *testing.T) {
	m, clock := newTestManager(t)

	s, token, err := m.Login("guard1", "Security", "1000")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.User != "guard1" || s.Role != "Security" || s.Plant != "1000" {
		t.Errorf("session = %+v", s)
	}

	clock.Advance(5 * time.Minute)
	got, err := m.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("resolved session %q, want %q", got.ID, s.ID)
	}
	if !got.LastSeen.Equal(clock.Now()) {
		t.Errorf("last seen = %v, want %v", got.LastSeen, clock.Now())
	}
}

func TestLogin_UnknownRole(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.Login("guard1", "Janitor", "1000")
	if !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("got %v, want ErrUnknownRole", err)
	}
}

func TestLogin_RequiresPlant(t *testing.T) {
	m, _ := newTestManager(t)
	if _, _, err := m.Login("guard1", "Security", " "); err == nil {
		t.Fatal("expected error without plant")
	}
}

func TestResolve_BadToken(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Resolve("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}

	other, _ := NewManager(Config{Secret: []byte("other-secret")})
	_, token, err := other.Login("guard1", "Security", "1000")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := m.Resolve(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token: got %v, want ErrInvalidToken", err)
	}
}

func TestLogout_EndsSession(t *testing.T) {
	m, _ := newTestManager(t)
	var ended []string
	m.OnEnd(func(s Session, reason string) { ended = append(ended, s.ID+":"+reason) })

	s, token, _ := m.Login("guard1", "Security", "1000")
	if !m.Logout(s.ID) {
		t.Fatal("Logout returned false for live session")
	}
	if m.Logout(s.ID) {
		t.Error("second Logout returned true")
	}
	if _, err := m.Resolve(token); !errors.Is(err, ErrNoSession) {
		t.Errorf("Resolve after logout: got %v, want ErrNoSession", err)
	}
	if len(ended) != 1 || ended[0] != s.ID+":logout" {
		t.Errorf("OnEnd calls = %v", ended)
	}
}

func TestResolve_IdleSession(t *testing.T) {
	m, clock := newTestManager(t)
	_, token, _ := m.Login("guard1", "Security", "1000")

	clock.Advance(11 * time.Minute)
	if _, err := m.Resolve(token); !errors.Is(err, ErrNoSession) {
		t.Errorf("got %v, want ErrNoSession", err)
	}
}

func TestSweep_ReapsIdleSessions(t *testing.T) {
	m, clock := newTestManager(t)
	var ended []string
	m.OnEnd(func(s Session, reason string) { ended = append(ended, s.User+":"+reason) })

	m.Login("idle", "Security", "1000")
	clock.Advance(8 * time.Minute)
	_, token, _ := m.Login("active", "Admin", "1000")
	clock.Advance(3 * time.Minute)

	m.sweep()

	if len(ended) != 1 || ended[0] != "idle:idle" {
		t.Fatalf("reaped = %v, want [idle:idle]", ended)
	}
	if _, err := m.Resolve(token); err != nil {
		t.Errorf("active session should survive: %v", err)
	}
	if got := len(m.List()); got != 1 {
		t.Errorf("live sessions = %d, want 1", got)
	}
}

func TestReaper_StartStop(t *testing.T) {
	m, _ := newTestManager(t)
	m.StartReaper(10 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should carry no session")
	}
	s := &Session{ID: "ss-1", User: "guard1"}
	got, ok := FromContext(NewContext(context.Background(), s))
	if !ok || got.ID != "ss-1" {
		t.Errorf("FromContext = %+v, %v", got, ok)
	}
}
