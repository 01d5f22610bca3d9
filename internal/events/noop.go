package events

import "context"

// NoopPublisher drops every event. serve uses it when GATE_NATS_URL is unset.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
