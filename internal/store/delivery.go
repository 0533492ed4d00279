package store

import "time"

// WebhookDelivery is one queued delivery of an event to a subscription
// endpoint. Status moves pending -> delivered, through retry while attempts
// remain, or to failed once the attempt budget is spent; failed rows stay
// listable and can be requeued.
type WebhookDelivery struct {
    ID             string    `json:"id"`
    TenantID       string    `json:"tenantId"`
    SubscriptionID string    `json:"subscriptionId,omitempty"`
    EventType      string    `json:"eventType"`
    URL            string    `json:"url"`
    Secret         string    `json:"-"`
    Payload        []byte    `json:"-"`
    DedupKey       string    `json:"dedupKey,omitempty"`
    Status         string    `json:"status"`
    Attempts       int       `json:"attempts"`
    NextAttemptAt  time.Time `json:"nextAttemptAt"`
    LastError      string    `json:"lastError,omitempty"`
    ResponseCode   int       `json:"responseCode,omitempty"`
    LatencyMs      int       `json:"latencyMs,omitempty"`
    CreatedAt      time.Time `json:"createdAt"`
}
