package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/events"
)

const (
	// sseReplaySize is how many recent events are kept for Last-Event-ID replay.
	sseReplaySize = 512

	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is one published event as delivered to stream clients.
type sseEvent struct {
	ID    uint64
	Topic string
	Plant string // empty for events not tied to a plant
	Data  []byte
}

// sseHub fans published events out to connected stream clients and keeps a
// short replay window for clients that reconnect.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  atomic.Uint64

	replayMu  sync.RWMutex
	replay    [sseReplaySize]sseEvent
	replayPos int
	replayLen int
}

// sseClient is one connected stream. A client scoped to a plant only sees
// entry events of that plant.
type sseClient struct {
	topics []string
	plant  string
	ch     chan *sseEvent
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

func (h *sseHub) broadcast(topic, plant string, payload []byte) {
	evt := &sseEvent{ID: h.nextID.Add(1), Topic: topic, Plant: plant, Data: payload}

	h.replayMu.Lock()
	h.replay[h.replayPos] = *evt
	h.replayPos = (h.replayPos + 1) % sseReplaySize
	if h.replayLen < sseReplaySize {
		h.replayLen++
	}
	h.replayMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// slow client; it can catch up with Last-Event-ID
		}
	}
}

func (h *sseHub) subscribe(topics []string, plant string) *sseClient {
	c := &sseClient{topics: topics, plant: plant, ch: make(chan *sseEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns the buffered events newer than lastID, oldest first.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.replayMu.RLock()
	defer h.replayMu.RUnlock()

	var out []*sseEvent
	start := (h.replayPos - h.replayLen + sseReplaySize) % sseReplaySize
	for i := range h.replayLen {
		evt := &h.replay[(start+i)%sseReplaySize]
		if evt.ID > lastID {
			out = append(out, evt)
		}
	}
	return out
}

func (c *sseClient) wants(evt *sseEvent) bool {
	if c.plant != "" && evt.Plant != "" && evt.Plant != c.plant {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, p := range c.topics {
		if matchTopicPattern(p, evt.Topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a NATS-style
// pattern: "*" is one segment, a trailing ">" is one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

// handleEventStream handles GET /v1/events/stream. Optional query params:
// topics (comma-separated patterns). Streams are scoped to the session's plant.
func (s *GateServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	var plant string
	if sess := currentSession(r); sess != nil {
		plant = sess.Plant
	}

	client := s.sseHub.subscribe(topics, plant)
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if lastID, err := strconv.ParseUint(v, 10, 64); err == nil {
			for _, evt := range s.sseHub.eventsSince(lastID) {
				if client.wants(evt) {
					writeSSEEvent(w, evt)
				}
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// broadcastEvent fans an event out to stream clients.
func (s *GateServer) broadcastEvent(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, events.Plant(event), payload)
}
