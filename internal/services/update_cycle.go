package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/pcr-tracker-go/internal/cache"
	"github.com/irfndi/pcr-tracker-go/internal/extractor"
	"github.com/irfndi/pcr-tracker-go/internal/format"
	"github.com/irfndi/pcr-tracker-go/internal/locator"
	"github.com/irfndi/pcr-tracker-go/internal/models"
	"github.com/irfndi/pcr-tracker-go/internal/reconciler"
	"github.com/irfndi/pcr-tracker-go/internal/sheet"
	"github.com/irfndi/pcr-tracker-go/internal/telemetry"
	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

// CycleState is the controller state machine position.
type CycleState string

const (
	StateIdle          CycleState = "idle"
	StateRunning       CycleState = "running"
	StateFailedBackoff CycleState = "failed_backoff"
)

// Trigger names the source of a cycle request.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerRetry     Trigger = "retry"
)

// Outcome summarises how a cycle request ended.
type Outcome string

const (
	OutcomeWritten  Outcome = "written"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Fetcher returns the current page text.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// LatestCache shares the last written row across processes.
type LatestCache interface {
	Get(ctx context.Context) (cache.LatestEntry, bool)
	Set(ctx context.Context, row models.ReconciledRow, rowIndex int)
	Clear(ctx context.Context)
}

// TickPredicate decides whether a scheduled tick at now may run.
type TickPredicate func(now time.Time) bool

// CycleResult reports one cycle request.
type CycleResult struct {
	CycleID    string                `json:"cycle_id,omitempty"`
	Trigger    Trigger               `json:"trigger"`
	Outcome    Outcome               `json:"outcome"`
	Bucket     string                `json:"bucket"`
	Row        int                   `json:"row,omitempty"`
	Overflow   bool                  `json:"overflow,omitempty"`
	Record     *models.ReconciledRow `json:"record,omitempty"`
	Defaulted  []models.Field        `json:"defaulted,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`

	Err error `json:"-"`
}

// ControllerStatus is a snapshot for the status endpoint.
type ControllerStatus struct {
	State       CycleState   `json:"state"`
	LastBucket  string       `json:"last_bucket,omitempty"`
	LastResult  *CycleResult `json:"last_result,omitempty"`
	NextRetryAt *time.Time   `json:"next_retry_at,omitempty"`
	Written     int64        `json:"written"`
	Skipped     int64        `json:"skipped"`
	Rejected    int64        `json:"rejected"`
	Failed      int64        `json:"failed"`
}

// ResetResult reports a cleared data region.
type ResetResult struct {
	FirstRow int `json:"first_row"`
	LastRow  int `json:"last_row"`
}

// ControllerConfig holds the non-collaborator settings.
type ControllerConfig struct {
	Region   locator.Region
	Codec    sheet.Codec
	Backoff  time.Duration
	Location *time.Location
	// SkipHeader disables writing the header row when it is blank.
	SkipHeader bool
}

// ControllerDeps are the collaborators of one controller. Guard, Window,
// Breaker, Recovery, Notifier, Latest and Now are optional.
type ControllerDeps struct {
	Fetcher    Fetcher
	Extractor  *extractor.Extractor
	Reconciler *reconciler.Reconciler
	Store      sheet.Store
	Guard      cache.BucketGuard
	Window     TickPredicate
	Breaker    *CircuitBreaker
	Recovery   *ErrorRecoveryManager
	Notifier   TrendNotifier
	Latest     LatestCache
	Logger     *slog.Logger
	Now        func() time.Time
}

// UpdateCycleController runs fetch, extract, reconcile, locate and write
// as one single-flight operation, at most once per minute bucket.
type UpdateCycleController struct {
	cfg  ControllerConfig
	deps ControllerDeps

	logger *slog.Logger
	tracer trace.Tracer

	// running is the single-flight lock shared by every trigger source and
	// by Reset.
	running sync.Mutex

	mu          sync.RWMutex
	state       CycleState
	lastBucket  string
	lastResult  *CycleResult
	lastWritten *cache.LatestEntry
	retryTimer  *time.Timer
	nextRetryAt time.Time
	closed      bool

	written, skipped, rejected, failed atomic.Int64
}

// NewUpdateCycleController validates the wiring and returns an idle
// controller.
func NewUpdateCycleController(cfg ControllerConfig, deps ControllerDeps) (*UpdateCycleController, error) {
	if deps.Fetcher == nil || deps.Extractor == nil || deps.Reconciler == nil || deps.Store == nil {
		return nil, errors.New("fetcher, extractor, reconciler and store are required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Codec.Location == nil {
		cfg.Codec.Location = cfg.Location
	}
	if cfg.Codec.Layout.Width() == 0 {
		cfg.Codec.Layout = models.DefaultColumnLayout()
	}
	if cfg.Region == (locator.Region{}) {
		cfg.Region = locator.DefaultRegion()
	}
	cfg.Region.KeyColumn = cfg.Codec.Layout.Column(models.FieldTimestamp)
	if err := cfg.Region.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 30 * time.Second
	}

	if deps.Guard == nil {
		deps.Guard = cache.NewMemoryBucketGuard(0)
	}
	if deps.Breaker == nil {
		deps.Breaker = NewCircuitBreaker("source_fetch", CircuitBreakerConfig{}, nil)
	}
	if deps.Recovery == nil {
		deps.Recovery = NewErrorRecoveryManager(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &UpdateCycleController{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "update_cycle"),
		tracer: telemetry.GetCycleTracer(),
		state:  StateIdle,
	}, nil
}

// RunScheduled handles a timer tick: the operating window is consulted
// before anything else.
func (c *UpdateCycleController) RunScheduled(ctx context.Context) CycleResult {
	return c.run(ctx, TriggerScheduled)
}

// RunManual runs one cycle synchronously for an operator. It bypasses the
// operating window but not the single-flight lock or the bucket guard.
func (c *UpdateCycleController) RunManual(ctx context.Context) CycleResult {
	return c.run(ctx, TriggerManual)
}

func (c *UpdateCycleController) run(ctx context.Context, trigger Trigger) CycleResult {
	now := c.deps.Now()
	res := CycleResult{
		Trigger:   trigger,
		Bucket:    format.MinuteBucket(now, c.cfg.Location),
		StartedAt: now,
	}

	if trigger != TriggerManual && c.deps.Window != nil && !c.deps.Window(now) {
		return c.finish(res, OutcomeSkipped, utils.ErrOutsideWindow)
	}

	if !c.running.TryLock() {
		c.logger.Info("Update cycle rejected, another cycle is running", "trigger", trigger, "bucket", res.Bucket)
		return c.finish(res, OutcomeRejected, utils.ErrConcurrentUpdateRejected)
	}
	defer c.running.Unlock()

	if c.completedBucket() == res.Bucket {
		return c.finish(res, OutcomeSkipped, utils.ErrBucketCompleted)
	}
	if err := c.deps.Guard.Claim(ctx, res.Bucket); err != nil {
		switch {
		case errors.Is(err, utils.ErrBucketCompleted):
			return c.finish(res, OutcomeSkipped, err)
		case errors.Is(err, utils.ErrConcurrentUpdateRejected):
			return c.finish(res, OutcomeRejected, err)
		default:
			c.logger.Warn("Bucket guard unavailable, continuing with local state", "error", err)
		}
	}

	res.CycleID = uuid.NewString()
	c.setState(StateRunning)

	ctx, span := c.tracer.Start(ctx, "pcr.update_cycle", trace.WithAttributes(
		attribute.String("pcr.cycle_id", res.CycleID),
		attribute.String("pcr.trigger", string(trigger)),
		attribute.String("pcr.bucket", res.Bucket),
	))
	defer span.End()

	log := c.logger.With("cycle_id", res.CycleID, "trigger", trigger, "bucket", res.Bucket)
	log.Info("Update cycle started")

	out, err := c.execute(ctx, log, now)
	res.Defaulted = out.defaulted
	res.Row = out.row
	res.Overflow = out.overflow

	if errors.Is(err, utils.ErrBucketCompleted) {
		c.completeBucket(ctx, res.Bucket)
		c.setState(StateIdle)
		log.Info("Minute already recorded in store, skipping", "previous_row", out.previousRow)
		return c.finish(res, OutcomeSkipped, err)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		if relErr := c.deps.Guard.Release(ctx, res.Bucket); relErr != nil {
			log.Warn("Failed to release bucket", "error", relErr)
		}
		c.logFailure(log, err)
		c.setState(StateFailedBackoff)
		c.scheduleRetry()
		return c.finish(res, OutcomeFailed, err)
	}

	span.SetAttributes(attribute.Int("pcr.row", out.row), attribute.String("pcr.trend", string(out.record.Trend)))
	c.completeBucket(ctx, res.Bucket)
	c.cancelRetry()
	c.setState(StateIdle)

	record := out.record
	res.Record = &record
	entry := cache.LatestEntry{Row: record, RowIndex: out.row, CachedAt: c.deps.Now()}
	c.mu.Lock()
	c.lastWritten = &entry
	c.mu.Unlock()
	if c.deps.Latest != nil {
		c.deps.Latest.Set(ctx, record, out.row)
	}

	log.Info("Update cycle wrote row",
		"row", out.row,
		"trend", record.Trend,
		"put_oi_change", record.IntradayPutOIChange,
		"call_oi_change", record.IntradayCallOIChange,
		"base_pcr", format.Decimal(record.BaseRatio))

	if c.deps.Notifier != nil && out.previousTrend != "" && out.previousTrend != record.Trend {
		if err := c.deps.Notifier.NotifyTrendChange(ctx, out.previousTrend, record); err != nil {
			log.Warn("Failed to send trend change notification", "error", err)
		}
	}
	return c.finish(res, OutcomeWritten, nil)
}

type cycleOutput struct {
	record        models.ReconciledRow
	row           int
	overflow      bool
	previousRow   int
	previousTrend models.Trend
	defaulted     []models.Field
}

func (c *UpdateCycleController) execute(ctx context.Context, log *slog.Logger, now time.Time) (cycleOutput, error) {
	var out cycleOutput

	var text string
	err := c.deps.Breaker.Execute(ctx, func(ctx context.Context) error {
		var fetchErr error
		text, fetchErr = c.deps.Fetcher.Fetch(ctx)
		return fetchErr
	})
	if err != nil {
		return out, err
	}

	report := c.deps.Extractor.ExtractReport(text)
	out.defaulted = report.Record.Defaulted
	for _, o := range report.Outcomes {
		if o.Rejected {
			log.Warn("Extracted value rejected", "field", o.Field, "raw", o.Raw, "reason", o.Reason)
		}
	}
	if len(out.defaulted) > 0 {
		log.Warn("Fields defaulted during extraction", "fields", out.defaulted)
	}

	region := c.cfg.Region
	var keys []string
	err = c.deps.Recovery.ExecuteWithRetry(ctx, "store_read", func() error {
		var readErr error
		keys, readErr = c.deps.Store.ColumnValues(ctx, region.KeyColumn)
		return readErr
	})
	if err != nil {
		return out, fmt.Errorf("read key column: %w", err)
	}

	if !c.cfg.SkipHeader && region.HeaderRow > 0 && sheet.Row(keys).Get(region.HeaderRow) == "" {
		if err := c.writeRow(ctx, region.HeaderRow, c.cfg.Codec.Layout.Header()); err != nil {
			return out, fmt.Errorf("write header: %w", err)
		}
		log.Info("Header row written", "row", region.HeaderRow)
	}

	loc := locator.LocateIn(keys, region)
	out.row, out.overflow = loc.Row, loc.Overflow
	if loc.Overflow {
		log.Warn("Data region full, writing past last data row", "row", loc.Row, "last_row", region.LastRow)
	}

	var previous *models.ExtractedRecord
	if out.previousRow = locator.Previous(keys, region, loc.Row); out.previousRow > 0 {
		stored, err := c.readStored(ctx, out.previousRow)
		if err != nil {
			log.Warn("Previous row unreadable, treating as first observation", "row", out.previousRow, "error", err)
		} else {
			if format.MinuteBucket(stored.Timestamp, c.cfg.Location) == format.MinuteBucket(now, c.cfg.Location) {
				return out, utils.ErrBucketCompleted
			}
			previous = &stored.Record
			out.previousTrend = stored.Trend
		}
	}

	record, err := c.deps.Reconciler.Reconcile(report.Record, previous, now.In(c.cfg.Location))
	if err != nil {
		return out, err
	}
	out.record = record

	if err := c.writeRow(ctx, loc.Row, c.cfg.Codec.Encode(record)); err != nil {
		return out, err
	}
	return out, nil
}

func (c *UpdateCycleController) readStored(ctx context.Context, index int) (sheet.StoredRow, error) {
	var row sheet.Row
	err := c.deps.Recovery.ExecuteWithRetry(ctx, "store_read", func() error {
		var readErr error
		row, readErr = c.deps.Store.ReadRow(ctx, index)
		return readErr
	})
	if err != nil {
		return sheet.StoredRow{}, err
	}
	return c.cfg.Codec.Decode(index, row)
}

// writeRow writes the whole row in one call. When the store reports a
// partial write even after retries, the remaining cells are written one
// by one so the row is never left half filled.
func (c *UpdateCycleController) writeRow(ctx context.Context, index int, cells []string) error {
	err := c.deps.Recovery.ExecuteWithRetry(ctx, "store_write", func() error {
		return c.deps.Store.WriteRow(ctx, index, cells)
	})
	if err == nil {
		return nil
	}

	var writeErr *utils.StoreWriteError
	if !errors.As(err, &writeErr) || !writeErr.Partial {
		return err
	}

	c.logger.Error("Partial row write, completing cell by cell",
		"row", index, "cells_written", writeErr.Written, "error", err)
	for i, v := range cells {
		col := i + 1
		cellErr := c.deps.Recovery.ExecuteWithRetry(ctx, "store_write", func() error {
			return c.deps.Store.WriteCell(ctx, index, col, v)
		})
		if cellErr != nil {
			return &utils.StoreWriteError{
				Op:      "complete_row",
				Row:     index,
				Written: i,
				Partial: true,
				Err:     cellErr,
			}
		}
	}
	c.logger.Warn("Partial row completed", "row", index)
	return nil
}

func (c *UpdateCycleController) logFailure(log *slog.Logger, err error) {
	var (
		netErr     *utils.NetworkError
		statusErr  *utils.HTTPStatusError
		malformed  *utils.MalformedRecordError
		writeErr   *utils.StoreWriteError
		backoffFor = c.cfg.Backoff
	)
	switch {
	case errors.As(err, &writeErr) && writeErr.Partial:
		log.Error("Update cycle left a partially written row", "row", writeErr.Row, "cells_written", writeErr.Written, "error", err, "retry_in", backoffFor)
	case errors.As(err, &writeErr):
		log.Error("Update cycle store write failed", "row", writeErr.Row, "error", err, "retry_in", backoffFor)
	case errors.As(err, &malformed):
		log.Error("Update cycle extracted a malformed record", "field", malformed.Field, "error", err, "retry_in", backoffFor)
	case errors.As(err, &statusErr):
		log.Error("Update cycle fetch returned bad status", "status", statusErr.StatusCode, "retry_in", backoffFor)
	case errors.As(err, &netErr):
		log.Error("Update cycle fetch failed", "error", err, "retry_in", backoffFor)
	case errors.Is(err, ErrCircuitOpen):
		log.Warn("Update cycle skipped fetch, circuit open", "retry_in", backoffFor)
	default:
		log.Error("Update cycle failed", "error", err, "retry_in", backoffFor)
	}
}

func (c *UpdateCycleController) finish(res CycleResult, outcome Outcome, err error) CycleResult {
	res.Outcome = outcome
	res.Err = err
	if err != nil {
		res.Error = err.Error()
	}
	res.FinishedAt = c.deps.Now()

	switch outcome {
	case OutcomeWritten:
		c.written.Add(1)
	case OutcomeSkipped:
		c.skipped.Add(1)
	case OutcomeRejected:
		c.rejected.Add(1)
	case OutcomeFailed:
		c.failed.Add(1)
	}
	if outcome != OutcomeRejected && !errors.Is(err, utils.ErrOutsideWindow) {
		c.mu.Lock()
		c.lastResult = &res
		c.mu.Unlock()
	}
	return res
}

func (c *UpdateCycleController) setState(s CycleState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *UpdateCycleController) completedBucket() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastBucket
}

func (c *UpdateCycleController) completeBucket(ctx context.Context, bucket string) {
	c.mu.Lock()
	c.lastBucket = bucket
	c.mu.Unlock()
	if err := c.deps.Guard.Complete(ctx, bucket); err != nil {
		c.logger.Warn("Failed to record completed bucket", "bucket", bucket, "error", err)
	}
}

// scheduleRetry arms a single pending retry after the backoff delay.
func (c *UpdateCycleController) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retryTimer != nil || c.closed {
		return
	}
	c.nextRetryAt = c.deps.Now().Add(c.cfg.Backoff)
	c.retryTimer = time.AfterFunc(c.cfg.Backoff, func() {
		c.mu.Lock()
		c.retryTimer = nil
		c.nextRetryAt = time.Time{}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.run(context.Background(), TriggerRetry)
	})
}

func (c *UpdateCycleController) cancelRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
		c.nextRetryAt = time.Time{}
	}
}

// Close cancels any pending retry. Cycles already running finish.
func (c *UpdateCycleController) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancelRetry()
}

// Status returns a snapshot of the state machine.
func (c *UpdateCycleController) Status() ControllerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := ControllerStatus{
		State:      c.state,
		LastBucket: c.lastBucket,
		LastResult: c.lastResult,
		Written:    c.written.Load(),
		Skipped:    c.skipped.Load(),
		Rejected:   c.rejected.Load(),
		Failed:     c.failed.Load(),
	}
	if !c.nextRetryAt.IsZero() {
		next := c.nextRetryAt
		st.NextRetryAt = &next
	}
	return st
}

// Latest returns the most recent row, trying the shared cache, then this
// process, then the store itself.
func (c *UpdateCycleController) Latest(ctx context.Context) (cache.LatestEntry, bool, error) {
	if c.deps.Latest != nil {
		if entry, ok := c.deps.Latest.Get(ctx); ok {
			return entry, true, nil
		}
	}
	c.mu.RLock()
	mem := c.lastWritten
	c.mu.RUnlock()
	if mem != nil {
		return *mem, true, nil
	}

	region := c.cfg.Region
	keys, err := c.deps.Store.ColumnValues(ctx, region.KeyColumn)
	if err != nil {
		return cache.LatestEntry{}, false, fmt.Errorf("read key column: %w", err)
	}
	last := sheet.LastNonEmptyRow(keys)
	if last < region.FirstRow {
		return cache.LatestEntry{}, false, nil
	}
	stored, err := c.readStored(ctx, last)
	if err != nil {
		return cache.LatestEntry{}, false, err
	}
	return cache.LatestEntry{Row: stored.Reconciled(), RowIndex: last}, true, nil
}

// Reset clears the data region. It takes the single-flight lock, so it is
// rejected while a cycle runs.
func (c *UpdateCycleController) Reset(ctx context.Context) (ResetResult, error) {
	if !c.running.TryLock() {
		return ResetResult{}, utils.ErrConcurrentUpdateRejected
	}
	defer c.running.Unlock()

	region := c.cfg.Region
	last := region.LastRow
	if keys, err := c.deps.Store.ColumnValues(ctx, region.KeyColumn); err == nil {
		if n := sheet.LastNonEmptyRow(keys); n > last {
			last = n
		}
	}
	if err := c.deps.Store.ClearRows(ctx, region.FirstRow, last); err != nil {
		return ResetResult{}, err
	}

	c.mu.Lock()
	c.lastWritten = nil
	buckets := []string{format.MinuteBucket(c.deps.Now(), c.cfg.Location)}
	if c.lastBucket != "" && c.lastBucket != buckets[0] {
		buckets = append(buckets, c.lastBucket)
	}
	c.lastBucket = ""
	c.mu.Unlock()
	// The cleared minutes have no row any more and may be recorded again.
	for _, b := range buckets {
		if err := c.deps.Guard.Forget(ctx, b); err != nil {
			c.logger.Warn("Failed to forget bucket after reset", "bucket", b, "error", err)
		}
	}
	if c.deps.Latest != nil {
		c.deps.Latest.Clear(ctx)
	}
	c.cancelRetry()
	c.setState(StateIdle)

	c.logger.Info("Data region cleared", "first_row", region.FirstRow, "last_row", last)
	return ResetResult{FirstRow: region.FirstRow, LastRow: last}, nil
}

// WriteHeader writes the column titles to the header row.
func (c *UpdateCycleController) WriteHeader(ctx context.Context) (int, error) {
	if !c.running.TryLock() {
		return 0, utils.ErrConcurrentUpdateRejected
	}
	defer c.running.Unlock()
	row := c.cfg.Region.HeaderRow
	if row < 1 {
		return 0, errors.New("no header row configured")
	}
	return row, c.writeRow(ctx, row, c.cfg.Codec.Layout.Header())
}

// Region returns the configured data region.
func (c *UpdateCycleController) Region() locator.Region {
	return c.cfg.Region
}
