package events

import (
	"context"
	"time"
)

// Event types published to the fan-sync-events topic.
const (
	TypeSyncCompleted   = "sync.completed"
	TypeFanUnsubscribed = "fan.unsubscribed"
)

// Event is the wire shape of one fan-sync event. Payload depends on Type.
type Event struct {
	Type      string                 `json:"type"`
	AccountID string                 `json:"account_id"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Publisher emits fan-sync events for downstream consumers. Publishing is
// best effort; sync jobs never fail because an event could not be sent.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// SyncCompleted builds the event emitted after one account finishes one
// sync job.
func SyncCompleted(accountID, job string, stats map[string]interface{}) *Event {
	payload := map[string]interface{}{"job": job}
	for k, v := range stats {
		payload[k] = v
	}
	return &Event{
		Type:      TypeSyncCompleted,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// FanUnsubscribed builds the event emitted when a sync discovers that a
// fan has unfollowed the account.
func FanUnsubscribed(accountID, openid string) *Event {
	return &Event{
		Type:      TypeFanUnsubscribed,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]interface{}{"openid": openid},
	}
}
