package webhooks

import (
    "bytes"
    "context"
    "net/http"
    "time"

    "railopt/internal/config"
    "railopt/internal/metrics"
    "railopt/internal/store"
)

// Worker drains the webhook delivery queue: POSTs due deliveries, signs them
// with the subscription secret, and reschedules failures with exponential
// backoff until MaxAttempts is spent.
type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    Stop        chan struct{}
    MaxAttempts int
    Interval    time.Duration
}

func NewWorker(s store.Store, cfg config.Webhooks) *Worker {
    return &Worker{
        Store:       s,
        HTTP:        &http.Client{Timeout: 5 * time.Second},
        Stop:        make(chan struct{}),
        MaxAttempts: cfg.MaxAttempts,
        Interval:    time.Duration(cfg.IntervalSec) * time.Second,
    }
}

func (w *Worker) Start() {
    go func() {
        ticker := time.NewTicker(w.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

func (w *Worker) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil || len(items) == 0 { return }
    for _, it := range items {
        success := false
        next := time.Now().Add(nextBackoff(it.Attempts))
        req, _ := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Rail-Event", it.EventType)
        if it.Secret != "" {
            req.Header.Set("X-Rail-Signature", SignHMAC(it.Secret, it.Payload))
        }
        start := time.Now()
        resp, err := w.HTTP.Do(req)
        latency := int(time.Since(start).Milliseconds())
        metrics.WebhookLatency.Observe(time.Since(start).Seconds())
        code := 0
        if err == nil && resp != nil {
            code = resp.StatusCode
            if resp.Body != nil { _ = resp.Body.Close() }
            if code >= 200 && code < 300 { success = true }
        }
        lastErr := ""
        if !success && err != nil { lastErr = err.Error() }
        if !success && it.Attempts+1 >= w.MaxAttempts {
            _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
            metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
            continue
        }
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency)
        if success {
            metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
        } else {
            metrics.WebhookDeliveries.WithLabelValues("retry").Inc()
        }
    }
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
