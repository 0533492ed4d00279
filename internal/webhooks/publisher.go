package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"railopt/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit fans an event out to every subscription of the tenant matching the
// event type. eventID becomes the payload id and with it the dedup key, so
// re-emitting the same event (a run id, say) enqueues nothing new; pass ""
// for events without a natural id.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType, eventID string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	if eventID == "" {
		eventID = fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	payload := map[string]any{
		"id":       eventID,
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
