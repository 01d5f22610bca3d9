// Package server exposes the gate entry lifecycle over HTTP (and a gRPC
// health listener). Each session gets its own lifecycle.Controller; every
// committed transition is snapshotted into the local register, recorded in
// the audit trail, published on NATS and fanned out to SSE clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/catalog"
	"github.com/alfredjeanlab/gatepass/internal/events"
	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/lifecycle"
	"github.com/alfredjeanlab/gatepass/internal/lock"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/resolver"
	"github.com/alfredjeanlab/gatepass/internal/session"
	"github.com/alfredjeanlab/gatepass/internal/store"
)

// Options are the collaborators of a GateServer. Store, Sessions, Policy and
// Gateway are required.
type Options struct {
	Store     store.Store
	Publisher events.Publisher
	Sessions  *session.Manager
	Policy    *access.Policy
	Gateway   gateway.Gateway
	Catalog   *catalog.Catalog
	Locker    lock.Locker
	LockTTL   time.Duration
	Logger    *slog.Logger
}

// GateServer serves the gate entry API.
type GateServer struct {
	store     store.Store
	publisher events.Publisher
	sessions  *session.Manager
	policy    *access.Policy
	gateway   gateway.Gateway
	catalog   *catalog.Catalog
	resolver  *resolver.Resolver
	locker    lock.Locker
	lockTTL   time.Duration
	logger    *slog.Logger
	sseHub    *sseHub

	mu          sync.Mutex
	controllers map[string]*lifecycle.Controller // by session ID
}

// Compile-time check that GateServer journals controller transitions.
var _ lifecycle.Journal = (*GateServer)(nil)

// New returns a GateServer and hooks session teardown so that a logged out
// or reaped session abandons its draft and any call in flight.
func New(opts Options) (*GateServer, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("server: store is required")
	case opts.Sessions == nil:
		return nil, errors.New("server: session manager is required")
	case opts.Policy == nil:
		return nil, errors.New("server: policy is required")
	case opts.Gateway == nil:
		return nil, errors.New("server: gateway is required")
	}
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.New(opts.Gateway, nil, 0)
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &GateServer{
		store:       opts.Store,
		publisher:   opts.Publisher,
		sessions:    opts.Sessions,
		policy:      opts.Policy,
		gateway:     opts.Gateway,
		catalog:     opts.Catalog,
		resolver:    resolver.New(opts.Gateway, opts.Catalog),
		locker:      opts.Locker,
		lockTTL:     opts.LockTTL,
		logger:      opts.Logger,
		sseHub:      newSSEHub(),
		controllers: make(map[string]*lifecycle.Controller),
	}
	s.sessions.OnEnd(s.sessionEnded)
	return s, nil
}

// controller returns the controller of sess, creating it on first use.
func (s *GateServer) controller(sess *session.Session) (*lifecycle.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.controllers[sess.ID]; ok {
		return c, nil
	}
	c, err := lifecycle.New(sess, lifecycle.Deps{
		Gateway:  s.gateway,
		Resolver: s.resolver,
		Policy:   s.policy,
		Journal:  s,
		Locker:   s.locker,
		LockTTL:  s.lockTTL,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.controllers[sess.ID] = c
	return c, nil
}

// sessionEnded discards the session's controller.
func (s *GateServer) sessionEnded(sess session.Session, reason string) {
	s.mu.Lock()
	c, ok := s.controllers[sess.ID]
	delete(s.controllers, sess.ID)
	s.mu.Unlock()
	if ok {
		c.Discard()
	}
	s.recordAndPublish(context.Background(), events.TopicSessionEnded, "", sess.User, events.SessionEnded{
		SessionID: sess.ID,
		User:      sess.User,
		Reason:    reason,
	})
}

// Record implements lifecycle.Journal. The entry snapshot and its audit
// record are written in one transaction; publishing follows.
func (s *GateServer) Record(ctx context.Context, topic string, entry *model.Entry, actor string, event any) {
	if entry == nil || entry.Header.ID == "" {
		s.recordAndPublish(ctx, topic, "", actor, event)
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "entry_id", entry.Header.ID, "error", err)
		return
	}
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.UpsertEntry(ctx, entry); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, &model.Event{
			Topic:   topic,
			EntryID: entry.Header.ID,
			Actor:   actor,
			Payload: payload,
		})
	})
	if err != nil {
		slog.Warn("failed to record entry", "topic", topic, "entry_id", entry.Header.ID, "error", err)
	}
	s.publish(ctx, topic, entry.Header.ID, event)
}

// recordAndPublish persists an event to the store and publishes it to NATS.
// Both operations are best-effort; failures are logged but do not block the caller.
// Events not tied to an entry are only published.
func (s *GateServer) recordAndPublish(ctx context.Context, topic, entryID, actor string, event any) {
	if entryID != "" {
		payload, err := json.Marshal(event)
		if err != nil {
			slog.Warn("failed to marshal event", "topic", topic, "entry_id", entryID, "error", err)
			return
		}
		if err := s.store.RecordEvent(ctx, &model.Event{
			Topic:   topic,
			EntryID: entryID,
			Actor:   actor,
			Payload: payload,
		}); err != nil {
			slog.Warn("failed to record event", "topic", topic, "entry_id", entryID, "error", err)
		}
	}
	s.publish(ctx, topic, entryID, event)
}

func (s *GateServer) publish(ctx context.Context, topic, entryID string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "entry_id", entryID, "error", err)
	}
	s.broadcastEvent(topic, event)
}

// Close discards every open controller.
func (s *GateServer) Close() {
	s.mu.Lock()
	cs := s.controllers
	s.controllers = make(map[string]*lifecycle.Controller)
	s.mu.Unlock()
	for _, c := range cs {
		c.Discard()
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }
