package events

import "context"

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (NoopPublisher) Publish(ctx context.Context, event *Event) error { return nil }

func (NoopPublisher) Close() error { return nil }

var _ Publisher = (*NoopPublisher)(nil)
