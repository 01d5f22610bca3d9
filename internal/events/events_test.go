package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	err := pub.Publish(context.Background(), TopicEntryCreated, EntryCreated{})
	if err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_Close(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestEntryTopic(t *testing.T) {
	for _, topic := range []string{TopicEntryCreated, TopicEntryChanged, TopicEntryCancelled, TopicEntryExited} {
		if !EntryTopic(topic) {
			t.Errorf("EntryTopic(%q) = false", topic)
		}
	}
	for _, topic := range []string{TopicRoleUpdated, TopicSessionEnded, "gate.entry"} {
		if EntryTopic(topic) {
			t.Errorf("EntryTopic(%q) = true", topic)
		}
	}
}

func TestPlant(t *testing.T) {
	e := &model.Entry{Header: model.Header{ID: "5000000001", Plant: "1000"}}
	tests := []struct {
		name  string
		event any
		want  string
	}{
		{"created", EntryCreated{Entry: e}, "1000"},
		{"exited", EntryExited{Entry: e}, "1000"},
		{"nil entry", EntryChanged{}, ""},
		{"session", SessionStarted{User: "guard1", Plant: "2000"}, "2000"},
		{"role", RoleDeleted{Name: "Auditor"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plant(tt.event); got != tt.want {
				t.Errorf("Plant = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicEntryCancelled, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	entry := &model.Entry{Header: model.Header{ID: "5000000001", Plant: "1000", Kind: model.KindInwardManual, Status: model.StatusCancelled}}
	event := EntryCancelled{Entry: entry, Reason: "duplicate entry", CancelledBy: "finance1"}
	if err := pub.Publish(context.Background(), TopicEntryCancelled, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got EntryCancelled
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Entry.Header.ID != "5000000001" || got.Reason != "duplicate entry" {
			t.Errorf("got %+v", got)
		}
		if _, ok := got.Entry.Header.Details.(*model.ManualInward); !ok {
			t.Errorf("details = %T, want *model.ManualInward", got.Entry.Header.Details)
		}
		if plant := msg.Header.Get(PlantHeader); plant != "1000" {
			t.Errorf("%s header = %q, want 1000", PlantHeader, plant)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishMultipleTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(TopicAll, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	for _, tc := range []struct {
		topic string
		event any
	}{
		{TopicEntryCreated, EntryCreated{Entry: &model.Entry{}}},
		{TopicEntryExited, EntryExited{Entry: &model.Entry{}, CheckOutAt: time.Now()}},
		{TopicRoleDeleted, RoleDeleted{Name: "Gatekeeper"}},
		{TopicSessionEnded, SessionEnded{SessionID: "ss-1", User: "guard1", Reason: "idle"}},
	} {
		if err := pub.Publish(context.Background(), tc.topic, tc.event); err != nil {
			t.Fatalf("Publish(%s): %v", tc.topic, err)
		}
	}
	pub.conn.Flush()

	for i := 0; i < 4; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	err = pub.Publish(context.Background(), TopicEntryCreated, EntryCreated{})
	if err == nil {
		t.Error("expected error publishing after close")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (&NATSPublisher{}).Publish(ctx, TopicEntryCreated, EntryCreated{}); err == nil {
		t.Error("expected error publishing with a cancelled context")
	}
}
