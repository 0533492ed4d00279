package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "railopt/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu      sync.Mutex
    runs    map[string]model.Run             // id -> run
    runsTen map[string][]string              // tenant -> run ids, insertion order
    subs    map[string][]model.Subscription  // tenant -> subscriptions
    optCfg  map[string]model.OptimizerConfig // tenant -> config overrides
    // Webhooks queue state
    deliveries         map[string]*WebhookDelivery // id -> delivery state
    deliveriesByTenant map[string][]string         // tenant -> delivery ids
}

func NewMemory() *Memory {
    return &Memory{
        runs:               map[string]model.Run{},
        runsTen:            map[string][]string{},
        subs:               map[string][]model.Subscription{},
        optCfg:             map[string]model.OptimizerConfig{},
        deliveries:         map[string]*WebhookDelivery{},
        deliveriesByTenant: map[string][]string{},
    }
}

// Runs
func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.runs[run.ID]; !ok {
        m.runsTen[run.TenantID] = append(m.runsTen[run.TenantID], run.ID)
    }
    m.runs[run.ID] = run
    return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[id]
    if !ok || r.TenantID != tenantID { return model.Run{}, ErrNotFound }
    return r, nil
}

// ListRuns pages newest first; cursor is the id of the last run of the
// previous page.
func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.RunSummary, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.runsTen[tenantID]
    start := len(ids) - 1
    if cursor != "" {
        for i := len(ids) - 1; i >= 0; i-- {
            if ids[i] == cursor { start = i - 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.RunSummary{}
    var next string
    for i := start; i >= 0 && len(out) < limit; i-- {
        out = append(out, summarizeRun(m.runs[ids[i]]))
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) LatestRun(ctx context.Context, tenantID string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.runsTen[tenantID]
    if len(ids) == 0 { return model.Run{}, ErrNotFound }
    return m.runs[ids[len(ids)-1]], nil
}

func (m *Memory) ActiveTenants(ctx context.Context) ([]string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []string{}
    for t, ids := range m.runsTen {
        if len(ids) > 0 { out = append(out, t) }
    }
    sort.Strings(out)
    return out, nil
}

func summarizeRun(r model.Run) model.RunSummary {
    return model.RunSummary{
        ID:                 r.ID,
        CreatedAt:          r.CreatedAt,
        Status:             r.Status,
        Backend:            r.Backend,
        Movements:          r.Movements,
        ImprovementPercent: r.Result.Metrics.ImprovementPercent,
    }
}

// Optimizer config
func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if cfg, ok := m.optCfg[tenantID]; ok {
        c := cfg
        return &c, nil
    }
    return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.optCfg[tenantID] = cfg
    return nil
}

// Subscriptions
func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{
        ID:        uuid.New().String(),
        TenantID:  req.TenantID,
        URL:       req.URL,
        Events:    req.Events,
        Secret:    req.Secret,
        CreatedAt: time.Now().UTC().Format(time.RFC3339),
    }
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events {
            if e == eventType || e == "*" { out = append(out, s); break }
        }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list {
            if list[i].ID == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr {
        if s.ID != id { out = append(out, s) }
    }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    key := computeDedupKey(payload)
    for _, id := range m.deliveriesByTenant[tenantID] {
        if d := m.deliveries[id]; d != nil && d.EventType == eventType && d.URL == url && d.DedupKey == key {
            return d.ID, nil
        }
    }
    id := uuid.New().String()
    d := &WebhookDelivery{
        ID:             id,
        TenantID:       tenantID,
        SubscriptionID: subscriptionID,
        EventType:      eventType,
        URL:            url,
        Secret:         secret,
        Payload:        payload,
        DedupKey:       key,
        Status:         "pending",
        NextAttemptAt:  time.Now(),
        CreatedAt:      time.Now().UTC(),
    }
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.iterDeliveryIDs() {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, *d)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        d.LastError = ""
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []WebhookDelivery{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        d := m.deliveries[ids[i]]
        if d == nil { continue }
        if status == "" || d.Status == status { out = append(out, *d) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = "pending"
    d.Attempts = 0
    d.LastError = ""
    d.NextAttemptAt = time.Now()
    return nil
}

// helper: iterate delivery IDs across tenants
func (m *Memory) iterDeliveryIDs() []string {
    ids := []string{}
    for _, lst := range m.deliveriesByTenant {
        ids = append(ids, lst...)
    }
    return ids
}
