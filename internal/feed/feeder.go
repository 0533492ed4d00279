// Package feed animates live train positions. The service has no trackside
// telemetry, so the feeder derives a leg per train from the tenant's latest
// run (or the demo network when a tenant has none), advances progress on a
// fixed tick, and fans samples out through the position cache and the event
// broker.
package feed

import (
    "context"
    "math"
    "math/rand"
    "time"

    "github.com/rs/zerolog"

    "railopt/internal/api"
    "railopt/internal/config"
    "railopt/internal/demo"
    "railopt/internal/logging"
    "railopt/internal/metrics"
    "railopt/internal/model"
    "railopt/internal/store"
)

const demoSeed = 42

// leg is one animated train run between two stations. A train with several
// movements animates its first; the rest only exist in the plan.
type leg struct {
    trainID   string
    trainName string
    from      string
    to        string
    speedKmh  float64
    delayed   bool
}

// Feeder owns the feed loop. All state is touched only from the loop
// goroutine (tests call tick directly instead of starting the loop), so no
// locking is needed. Close Stop to shut the loop down.
type Feeder struct {
    Store    store.Store
    Broker   api.EventBroker
    Cache    *api.PositionCache
    Interval time.Duration
    Stop     chan struct{}

    log      zerolog.Logger
    rng      *rand.Rand
    progress map[string]float64 // tenant|trainId -> pct
}

func New(s store.Store, b api.EventBroker, c *api.PositionCache, cfg config.Feed) *Feeder {
    iv := time.Duration(cfg.IntervalSec) * time.Second
    if iv < time.Second { iv = 5 * time.Second }
    return &Feeder{
        Store:    s,
        Broker:   b,
        Cache:    c,
        Interval: iv,
        Stop:     make(chan struct{}),
        log:      logging.New("feed"),
        rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
        progress: map[string]float64{},
    }
}

func (f *Feeder) Start() {
    f.log.Info().Dur("interval", f.Interval).Msg("position feeder started")
    go func() {
        ticker := time.NewTicker(f.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-f.Stop:
                return
            case <-ticker.C:
                f.tick(context.Background())
            }
        }
    }()
}

func (f *Feeder) tick(ctx context.Context) {
    tenants, err := f.Store.ActiveTenants(ctx)
    if err != nil || len(tenants) == 0 { tenants = []string{"t_demo"} }
    for _, tenant := range tenants {
        f.advance(tenant, f.legs(ctx, tenant))
    }
}

// advance steps every leg and publishes one position sample per train. A leg
// that reaches the destination reports arrived once, then restarts from the
// origin on the next tick.
func (f *Feeder) advance(tenant string, legs []leg) {
    ts := time.Now().UTC().Format(time.RFC3339)
    for _, lg := range legs {
        key := tenant + "|" + lg.trainID
        pct := f.progress[key] + lg.speedKmh/30 + f.rng.Float64()*2
        status := "on_time"
        if lg.delayed { status = "delayed" }
        if pct >= 100 {
            pct = 100
            status = "arrived"
            f.progress[key] = 0
        } else {
            f.progress[key] = pct
        }
        pct = math.Round(pct*10) / 10
        pos := model.Position{
            TrainID:     lg.trainID,
            TrainName:   lg.trainName,
            From:        lg.from,
            To:          lg.to,
            ProgressPct: pct,
            SpeedKmh:    math.Round(lg.speedKmh),
            Status:      status,
            TS:          ts,
        }
        f.Cache.Upsert(tenant, pos)
        f.Broker.Publish(api.PositionsTopic(tenant), api.FeedEvent{
            Type: "position.updated",
            Data: map[string]any{
                "trainId":     pos.TrainID,
                "trainName":   pos.TrainName,
                "from":        pos.From,
                "to":          pos.To,
                "progressPct": pos.ProgressPct,
                "speedKmh":    pos.SpeedKmh,
                "status":      pos.Status,
                "ts":          pos.TS,
            },
        })
        metrics.FeedEvents.Inc()
    }
}

// legs picks the animation source for a tenant: the movements of the latest
// usable run, or the demo network as a fallback. Plans carry no speed, so
// run-derived legs get a wobbling synthetic one.
func (f *Feeder) legs(ctx context.Context, tenant string) []leg {
    if run, err := f.Store.LatestRun(ctx, tenant); err == nil && run.Result.Status != "failed" && len(run.Result.Movements) > 0 {
        out := make([]leg, 0, len(run.Result.Movements))
        seen := map[string]bool{}
        for _, p := range run.Result.Movements {
            if p.TrainID == "" || seen[p.TrainID] { continue }
            seen[p.TrainID] = true
            out = append(out, leg{
                trainID:   p.TrainID,
                trainName: p.TrainName,
                from:      p.Station,
                to:        p.To,
                speedKmh:  70 + f.rng.Float64()*60,
                delayed:   p.OptimizedDelayMin > 0,
            })
        }
        return out
    }
    req := demo.Dataset(demoSeed)
    trains := map[string]model.Train{}
    for _, tr := range req.Trains { trains[tr.ID] = tr }
    out := make([]leg, 0, len(req.Trains))
    seen := map[string]bool{}
    for _, mv := range req.Movements {
        if seen[mv.TrainID] { continue }
        seen[mv.TrainID] = true
        tr := trains[mv.TrainID]
        spd := tr.SpeedKmh
        if spd <= 0 { spd = 80 }
        out = append(out, leg{
            trainID:   mv.TrainID,
            trainName: tr.Name,
            from:      mv.From,
            to:        mv.To,
            speedKmh:  spd,
            delayed:   mv.DelayMin > 0,
        })
    }
    return out
}
