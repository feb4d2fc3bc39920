// Package janitor runs the background sweeps that remove expired sessions
// and expired cache rows on independent cron schedules. Each sweep is a
// single multi-row DELETE statement, not a row-by-row loop.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sherajdev/chattwelve/internal/cache"
	"github.com/sherajdev/chattwelve/internal/events"
	"github.com/sherajdev/chattwelve/internal/store"
)

// Janitor owns two cron entries: session sweep and cache sweep. Each sweep
// removes all of its matching rows in one statement, holding the store's
// write lock for that statement's duration.
type Janitor struct {
	cron            *cron.Cron
	store           store.Store
	cache           *cache.Cache
	bus             *events.Bus
	sessionTimeout  time.Duration
	log             *slog.Logger
}

func New(s store.Store, c *cache.Cache, bus *events.Bus, sessionTimeout time.Duration, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		cron:           cron.New(),
		store:          s,
		cache:          c,
		bus:            bus,
		sessionTimeout: sessionTimeout,
		log:            log,
	}
}

// Start schedules the two sweeps and runs them in the background. The
// returned error is only non-nil for a malformed cron spec.
func (j *Janitor) Start(sessionCleanupInterval, cacheCleanupInterval time.Duration) error {
	sessionSpec := everyDuration(sessionCleanupInterval)
	if _, err := j.cron.AddFunc(sessionSpec, j.sweepSessions); err != nil {
		return err
	}
	cacheSpec := everyDuration(cacheCleanupInterval)
	if _, err := j.cron.AddFunc(cacheSpec, j.sweepCache); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.sessionTimeout)
	n, err := j.store.DeleteSessionsLastActivityBefore(ctx, cutoff)
	if err != nil {
		j.log.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("session sweep", "deleted", n)
		j.publish(events.EventJanitorSweep, "", "session sweep deleted rows")
	}
}

func (j *Janitor) sweepCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.cache.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		j.log.Error("cache sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("cache sweep", "deleted", n)
		j.publish(events.EventJanitorSweep, "", "cache sweep deleted rows")
	}
}

func (j *Janitor) publish(t events.EventType, sessionID, msg string) {
	if j.bus == nil {
		return
	}
	j.bus.Publish(events.Event{Type: t, SessionID: sessionID, Message: msg})
}

// everyDuration renders a cron.Parser-compatible "@every" spec, so the
// sweep interval can come straight from configuration instead of a fixed
// wall-clock schedule.
func everyDuration(d time.Duration) string {
	if d <= 0 {
		d = 5 * time.Minute
	}
	return "@every " + d.String()
}
