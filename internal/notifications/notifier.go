// Package notifications publishes tenant lifecycle events for downstream
// delivery. Delivery itself (email, in-app) is an external collaborator that
// subscribes to these channels.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event types emitted by the lifecycle controller.
const (
	EventRequestSubmitted = "tenant_request.submitted"
	EventRequestApproved  = "tenant_request.approved"
	EventRequestRejected  = "tenant_request.rejected"
	EventRequestDeleted   = "tenant_request.deleted"
)

// Event is one tenant lifecycle notification.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	RequestID uint      `json:"request_id"`
	OwnerID   uint      `json:"owner_id"`
	Domain    string    `json:"domain,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier provides helpers to publish lifecycle events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishLifecycle sends an event to the owner's channel and the broadcast
// channel. Publishing is best-effort: a nil client is a no-op so the
// controller never fails a state transition over a notification.
func (n *Notifier) PublishLifecycle(ctx context.Context, event Event) error {
	if n.rdb == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := fmt.Sprintf("tenant_events:owner:%d", event.OwnerID)
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return err
	}
	return n.rdb.Publish(ctx, "tenant_events:all", payload).Err()
}

// StartSubscriber subscribes to all tenant lifecycle channels and calls
// onEvent for each incoming event until ctx is cancelled.
func (n *Notifier) StartSubscriber(
	ctx context.Context, onEvent func(channel string, event Event),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "tenant_events:owner:*", "tenant_events:all")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in lifecycle subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					var event Event
					if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
						log.Printf("lifecycle subscriber: bad payload on %s: %v", msg.Channel, err)
						return
					}
					onEvent(msg.Channel, event)
				}()
			}
		}
	}()

	return nil
}
