package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "railopt/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// Ping reports connectivity for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies the .sql files of dir in lexical order. Files are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS style) so startup can
// re-apply the whole directory.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, name := range names {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

// Runs
func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
    created, err := time.Parse(time.RFC3339, run.CreatedAt)
    if err != nil { created = time.Now().UTC() }
    res, err := json.Marshal(run.Result)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, created_at, status, backend, movements, result)
        VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (id) DO NOTHING`,
        run.ID, run.TenantID, created, run.Status, run.Backend, run.Movements, res)
    return err
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
    var r model.Run
    var created time.Time
    var res []byte
    row := p.db.QueryRowContext(ctx, `SELECT id::text, tenant_id, created_at, status, backend, movements, result FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err := row.Scan(&r.ID, &r.TenantID, &created, &r.Status, &r.Backend, &r.Movements, &res); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return r, ErrNotFound }
        return r, err
    }
    r.CreatedAt = created.UTC().Format(time.RFC3339)
    if err := json.Unmarshal(res, &r.Result); err != nil { return r, err }
    return r, nil
}

// ListRuns pages newest first; cursor is the id of the last row of the
// previous page.
func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.RunSummary, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    sel := `SELECT id::text, created_at, status, backend, movements, COALESCE((result->'metrics'->>'improvementPercent')::double precision, 0) FROM runs WHERE tenant_id=$1`
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, sel+` AND (created_at, id::text) < (SELECT created_at, id::text FROM runs WHERE id=$2) ORDER BY created_at DESC, id DESC LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, sel+` ORDER BY created_at DESC, id DESC LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.RunSummary{}
    var last string
    for rows.Next() {
        var s model.RunSummary
        var created time.Time
        if err := rows.Scan(&s.ID, &created, &s.Status, &s.Backend, &s.Movements, &s.ImprovementPercent); err != nil { return nil, "", err }
        s.CreatedAt = created.UTC().Format(time.RFC3339)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) LatestRun(ctx context.Context, tenantID string) (model.Run, error) {
    var id string
    row := p.db.QueryRowContext(ctx, `SELECT id::text FROM runs WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, tenantID)
    if err := row.Scan(&id); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
        return model.Run{}, err
    }
    return p.GetRun(ctx, tenantID, id)
}

func (p *Postgres) ActiveTenants(ctx context.Context) ([]string, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM runs ORDER BY tenant_id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []string{}
    for rows.Next() { var t string; if err := rows.Scan(&t); err != nil { return nil, err }; out = append(out, t) }
    return out, nil
}

// Optimizer config
func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg model.OptimizerConfig
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return &cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    js, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, js)
    return err
}

// Subscriptions
func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    now := time.Now().UTC()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
        id, req.TenantID, req.URL, ev, nullIfEmpty(req.Secret), now)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret, CreatedAt: now.Format(time.RFC3339)}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND (events @> $2::jsonb OR events @> '["*"]'::jsonb)`,
        tenantID, fmt.Sprintf("[%q]", eventType))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events, created_at FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events, created_at FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        var created time.Time
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev, &created); err != nil { return nil, "", err }
        s.TenantID = tenantID
        s.CreatedAt = created.UTC().Format(time.RFC3339)
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, response_code=$4, latency_ms=$5, updated_at=now() WHERE id=$1`,
            id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', last_error=NULL, response_code=$2, latency_ms=$3, delivered_at=now(), updated_at=now() WHERE id=$1`,
        id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, response_code=$3, latency_ms=$4, updated_at=now() WHERE id=$1`,
        id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), created_at FROM webhook_deliveries WHERE tenant_id=$1`
    var rows *sql.Rows
    var err error
    if status != "" {
        if cursor != "" {
            rows, err = p.db.QueryContext(ctx, q+` AND status=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, status, cursor, limit)
        } else {
            rows, err = p.db.QueryContext(ctx, q+` AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
        }
    } else {
        if cursor != "" {
            rows, err = p.db.QueryContext(ctx, q+` AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
        } else {
            rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $2`, tenantID, limit)
        }
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []WebhookDelivery{}
    var last string
    for rows.Next() {
        var d WebhookDelivery
        var nextAt sql.NullTime
        var created time.Time
        if err := rows.Scan(&d.ID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &nextAt, &d.LastError, &d.ResponseCode, &d.LatencyMs, &created); err != nil { return nil, "", err }
        d.TenantID = tenantID
        if nextAt.Valid { d.NextAttemptAt = nextAt.Time }
        d.CreatedAt = created
        out = append(out, d)
        last = d.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', attempts=0, last_error=NULL, next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, err := res.RowsAffected(); err == nil && n == 0 { return ErrNotFound }
    return nil
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
