package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"pagewatch/lib/scrape"
	"pagewatch/lib/wiredump"
)

var tracer = otel.Tracer("pagewatch/lib/refresh")
var meter = otel.Meter("pagewatch/lib/refresh")
var successCounter, _ = meter.Int64Counter("pagewatch.refresh.success")
var failureCounter, _ = meter.Int64Counter("pagewatch.refresh.failure")

const defaultRetryDelay = time.Second * 30

// maxRetries bounds the automatic retries scheduled in manual-trigger
// mode before the instance waits for a manual refresh.
const maxRetries = 3

// Listener observes the outcome of each refresh cycle. err is nil on
// success. Listeners run on the refreshing goroutine after the cycle's
// lock is released, so they may call back into the coordinator.
type Listener func(err error)

// Options configures a Coordinator.
type Options struct {
	Name      string
	Requester *Requester
	Scraper   *scrape.Scraper
	// Interval between automatic refreshes. Zero means manual-trigger
	// mode, where failures schedule up to three delayed retries.
	Interval time.Duration
	// RetryDelay spaces the manual-mode retries, 30s when zero.
	RetryDelay time.Duration
	// Dump is emptied at the start of every cycle. May be nil.
	Dump *wiredump.Dir
}

// Coordinator runs refresh cycles for one scraper instance. Cycles never
// overlap: ticks, manual triggers and scheduled retries all serialize on
// the same lock, and ticks skip when a cycle is in flight.
type Coordinator struct {
	name       string
	requester  *Requester
	scraper    *scrape.Scraper
	interval   time.Duration
	retryDelay time.Duration
	dump       *wiredump.Dir
	listeners  []Listener

	mu          sync.Mutex
	updateError bool
	retries     int
	retryTimer  *time.Timer
	vars        map[string]any
}

func NewCoordinator(opts Options) *Coordinator {
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = defaultRetryDelay
	}
	return &Coordinator{
		name:       opts.Name,
		requester:  opts.Requester,
		scraper:    opts.Scraper,
		interval:   opts.Interval,
		retryDelay: retryDelay,
		dump:       opts.Dump,
	}
}

// OnUpdate registers a cycle listener. Not safe to call once Run has
// started.
func (c *Coordinator) OnUpdate(fn Listener) {
	c.listeners = append(c.listeners, fn)
}

// UpdateError reports whether the last cycle failed.
func (c *Coordinator) UpdateError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateError
}

// Variables returns the variable map the last successful cycle produced,
// for rendering field values on demand.
func (c *Coordinator) Variables() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vars
}

// Refresh runs one cycle now, cancelling any pending retry first.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.stopRetryLocked()
	err := c.refreshLocked(ctx)
	c.mu.Unlock()
	c.notify(err)
	return err
}

func (c *Coordinator) notify(err error) {
	for _, fn := range c.listeners {
		fn(err)
	}
}

// Run performs an immediate refresh and then drives the periodic loop
// until ctx is cancelled. In manual-trigger mode it only waits for
// cancellation, retries fire from their own timer.
func (c *Coordinator) Run(ctx context.Context) {
	err := c.Refresh(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "initial refresh failed", "coordinator", c.name, "err", err)
	}

	if c.interval <= 0 {
		<-ctx.Done()
		c.shutdown()
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-ticker.C:
			if !c.mu.TryLock() {
				slog.WarnContext(
					ctx, "refresh still in flight, skipping tick",
					"coordinator", c.name,
				)
				continue
			}
			err := c.refreshLocked(ctx)
			c.mu.Unlock()
			c.notify(err)
			if err != nil {
				slog.ErrorContext(ctx, "refresh failed", "coordinator", c.name, "err", err)
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRetryLocked()
}

func (c *Coordinator) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Coordinator) refreshLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()

	c.prepareNewRunLocked(ctx)

	content, vars, err := c.requester.Content(ctx)
	if err == nil {
		err = c.scraper.SetContent(ctx, content)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh cycle failed")
		c.failLocked(ctx)
		return err
	}

	c.vars = vars
	c.retries = 0
	successCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("coordinator", c.name),
	))
	slog.DebugContext(ctx, "refresh succeeded", "coordinator", c.name)
	return nil
}

func (c *Coordinator) prepareNewRunLocked(ctx context.Context) {
	slog.DebugContext(ctx, "starting refresh cycle", "coordinator", c.name)
	c.dump.Clear()
	c.updateError = false
	c.scraper.Reset()
}

func (c *Coordinator) failLocked(ctx context.Context) {
	c.scraper.Reset()
	c.updateError = true
	c.requester.NotifyError()
	failureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("coordinator", c.name),
	))

	if c.interval > 0 {
		// The regular ticker provides the next attempt.
		return
	}
	if c.retries >= maxRetries {
		slog.ErrorContext(
			ctx, "refresh and all retries failed, waiting for a manual trigger",
			"coordinator", c.name,
		)
		return
	}

	c.retries++
	slog.WarnContext(
		ctx, "refresh failed, scheduling retry",
		"coordinator", c.name,
		"attempt", c.retries,
		"max", maxRetries,
		"delay", c.retryDelay,
	)
	c.stopRetryLocked()
	c.retryTimer = time.AfterFunc(c.retryDelay, func() {
		c.mu.Lock()
		c.retryTimer = nil
		err := c.refreshLocked(ctx)
		c.mu.Unlock()
		c.notify(err)
		if err != nil {
			slog.ErrorContext(ctx, "retry failed", "coordinator", c.name, "err", err)
		}
	})
}
