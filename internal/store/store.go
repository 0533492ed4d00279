package store

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "errors"
    "time"

    "railopt/internal/model"
)

// Store is the persistence interface used by the API server and the webhook
// worker.
type Store interface {
    // Runs
    SaveRun(ctx context.Context, run model.Run) error
    GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
    ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.RunSummary, string, error)
    LatestRun(ctx context.Context, tenantID string) (model.Run, error)
    ActiveTenants(ctx context.Context) ([]string, error)

    // Optimizer config per tenant. Get returns nil without error when the
    // tenant has no saved overrides.
    GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error)
    SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries. Enqueue dedups on the event payload, so the same
    // event fanned out twice to one subscription inserts a single row.
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")

// computeDedupKey derives the dedup key of an event payload: the payload's
// own id when it has one, otherwise a hash prefix of the raw bytes.
func computeDedupKey(payload []byte) string {
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}
