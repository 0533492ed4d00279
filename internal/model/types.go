package model

// Core domain types shared by the API, the scheduling engine, and the stores.

// Station is a node of the rail network with a fixed platform count.
type Station struct {
    ID        string `json:"id" validate:"required"`
    Name      string `json:"name"`
    Platforms int    `json:"platforms" validate:"gte=1"`
}

// Train carries the static fleet attributes. Priority drives both the
// objective weighting and the allowed deviation window.
type Train struct {
    ID       string  `json:"id" validate:"required"`
    Name     string  `json:"name"`
    Type     string  `json:"type,omitempty" validate:"omitempty,oneof=express local freight"`
    Priority string  `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
    SpeedKmh float64 `json:"speedKmh,omitempty" validate:"gte=0"`
}

// Movement is one scheduled departure of a train from a station. Hours are
// whole hours of day. DelayMin is the delay already accumulated against the
// public timetable before optimization.
type Movement struct {
    ID            string  `json:"id" validate:"required"`
    TrainID       string  `json:"trainId" validate:"required"`
    From          string  `json:"from" validate:"required"`
    To            string  `json:"to" validate:"required"`
    DepartureHour int     `json:"departureHour" validate:"gte=0,lte=23"`
    ArrivalHour   int     `json:"arrivalHour" validate:"gte=0,lte=23"`
    Platform      int     `json:"platform" validate:"gte=1"`
    DelayMin      float64 `json:"delayMin,omitempty" validate:"gte=0"`
}

// Weights tunes the objective terms. An override replaces the whole set and
// is never renormalized.
type Weights struct {
    Delay      float64 `json:"delay" validate:"gte=0,lte=1"`
    Throughput float64 `json:"throughput" validate:"gte=0,lte=1"`
    Priority   float64 `json:"priority" validate:"gte=0,lte=1"`
    Conflict   float64 `json:"conflict" validate:"gte=0,lte=1"`
}

type OptimizeRequest struct {
    TenantID      string     `json:"tenantId,omitempty"`
    Stations      []Station  `json:"stations" validate:"dive"`
    Trains        []Train    `json:"trains" validate:"dive"`
    Movements     []Movement `json:"movements" validate:"dive"`
    Weights       *Weights   `json:"weights,omitempty"`
    Algorithm     string     `json:"algorithm,omitempty" validate:"omitempty,oneof=bnb anneal"`
    TimeBudgetSec float64    `json:"timeBudgetSec,omitempty" validate:"gte=0"`
    MaxWorkers    int        `json:"maxWorkers,omitempty" validate:"gte=0"`
    Seed          int64      `json:"seed,omitempty"`
}

// MovementPlan is the per-movement outcome of a run.
type MovementPlan struct {
    MovementID        string  `json:"movementId"`
    TrainID           string  `json:"trainId"`
    TrainName         string  `json:"trainName,omitempty"`
    Station           string  `json:"station"`
    To                string  `json:"to,omitempty"`
    ScheduledHour     int     `json:"scheduledHour"`
    OptimizedHour     int     `json:"optimizedHour"`
    OriginalPlatform  int     `json:"originalPlatform"`
    AssignedPlatform  int     `json:"assignedPlatform"`
    BaselineDelayMin  float64 `json:"baselineDelayMin"`
    OptimizedDelayMin float64 `json:"optimizedDelayMin"`
    DelayReductionMin float64 `json:"delayReductionMin"`
    ConflictResolved  bool    `json:"conflictResolved"`
}

// RunMetrics aggregates a run for dashboards and the run history.
type RunMetrics struct {
    TotalMovements      int     `json:"totalMovements"`
    TotalDelayBeforeMin float64 `json:"totalDelayBeforeMin"`
    TotalDelayAfterMin  float64 `json:"totalDelayAfterMin"`
    MeanDelayAfterMin   float64 `json:"meanDelayAfterMin"`
    StdDevDelayAfterMin float64 `json:"stdDevDelayAfterMin"`
    ImprovementPercent  float64 `json:"improvementPercent"`
    ConflictsResolved   int     `json:"conflictsResolved"`
    Objective           float64 `json:"objective"`
    Bound               float64 `json:"bound"`
    Gap                 float64 `json:"gap"`
    SolveWallMs         int64   `json:"solveWallMs"`
    Nodes               int64   `json:"nodes"`
    Iterations          int64   `json:"iterations"`
    Workers             int     `json:"workers"`
}

// OptimizeResult is the outcome returned to clients and persisted with the
// run. Status is one of optimal, feasible, failed.
type OptimizeResult struct {
    Status    string         `json:"status"`
    Message   string         `json:"message,omitempty"`
    Backend   string         `json:"backend"`
    Seed      int64          `json:"seed"`
    Weights   Weights        `json:"weights"`
    Movements []MovementPlan `json:"movements"`
    Metrics   RunMetrics     `json:"metrics"`
}

// Run is a persisted optimization run.
type Run struct {
    ID        string         `json:"id"`
    TenantID  string         `json:"tenantId"`
    CreatedAt string         `json:"createdAt"`
    Status    string         `json:"status"`
    Backend   string         `json:"backend"`
    Movements int            `json:"movements"`
    Result    OptimizeResult `json:"result"`
}

// RunSummary is the list-view projection of a run.
type RunSummary struct {
    ID                 string  `json:"id"`
    CreatedAt          string  `json:"createdAt"`
    Status             string  `json:"status"`
    Backend            string  `json:"backend"`
    Movements          int     `json:"movements"`
    ImprovementPercent float64 `json:"improvementPercent"`
}

// OptimizerConfig is the per-tenant override for optimization defaults.
type OptimizerConfig struct {
    Weights       *Weights `json:"weights,omitempty"`
    Backend       string   `json:"backend,omitempty" validate:"omitempty,oneof=bnb anneal"`
    TimeBudgetSec float64  `json:"timeBudgetSec,omitempty" validate:"gte=0"`
}

// Position is a live train position sample on the feed surfaces.
type Position struct {
    TrainID     string  `json:"trainId"`
    TrainName   string  `json:"trainName,omitempty"`
    From        string  `json:"from"`
    To          string  `json:"to"`
    ProgressPct float64 `json:"progressPct"`
    SpeedKmh    float64 `json:"speedKmh"`
    Status      string  `json:"status"` // on_time, delayed, arrived
    TS          string  `json:"ts"`
}

// Webhook subscriptions
type SubscriptionRequest struct {
    TenantID string   `json:"tenantId,omitempty"`
    URL      string   `json:"url" validate:"required,url"`
    Events   []string `json:"events" validate:"min=1"`
    Secret   string   `json:"secret,omitempty"`
}

type Subscription struct {
    ID        string   `json:"id"`
    TenantID  string   `json:"tenantId"`
    URL       string   `json:"url"`
    Events    []string `json:"events"`
    Secret    string   `json:"secret,omitempty"`
    CreatedAt string   `json:"createdAt,omitempty"`
}
