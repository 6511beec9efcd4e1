package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/karoba/wellness/internal/domain"
)

// AccountsTopic is the websocket topic carrying account events.
const AccountsTopic = "accounts"

// Broadcaster is satisfied by ws.Hub.
type Broadcaster interface {
	BroadcastContext(ctx context.Context, topic string, payload []byte) error
}

// Hub pushes events to connected websocket subscribers.
type Hub struct {
	hub Broadcaster
}

// NewHub wraps a broadcaster.
func NewHub(hub Broadcaster) Hub {
	return Hub{hub: hub}
}

// Notify queues the event on AccountsTopic, giving up when ctx is done.
func (h Hub) Notify(ctx context.Context, event domain.AccountEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	if err := h.hub.BroadcastContext(ctx, AccountsTopic, body); err != nil {
		return fmt.Errorf("broadcast account event: %w", err)
	}
	return nil
}
