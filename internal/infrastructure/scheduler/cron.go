package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"RedCardNews/internal/ports"
)

type namedEntry struct {
	id         cron.EntryID
	expression string
}

// CronScheduler keeps at most one cron entry per job name.
type CronScheduler struct {
	mu      sync.Mutex
	engine  *cron.Cron
	loc     *time.Location
	entries map[string]namedEntry
	started bool
	now     func() time.Time
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating five-field expressions in loc.
// Entries recover from panics and skip a fire while their previous run is
// still going.
func NewCronScheduler(loc *time.Location, logger *log.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	opts := []cron.Option{cron.WithLocation(loc)}
	if logger != nil {
		cronLogger := cron.PrintfLogger(logger)
		opts = append(opts,
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		)
	} else {
		opts = append(opts, cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	}

	return &CronScheduler{
		engine:  cron.New(opts...),
		loc:     loc,
		entries: map[string]namedEntry{},
		now:     time.Now,
	}
}

// Schedule registers job under name, replacing any previous entry for it.
func (c *CronScheduler) Schedule(name, expression string, job func()) error {
	if job == nil {
		return fmt.Errorf("schedule %s: nil job", name)
	}
	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("schedule %s: invalid expression %q: %w", name, expression, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[name]; ok {
		c.engine.Remove(prev.id)
		delete(c.entries, name)
	}

	id, err := c.engine.AddFunc(expression, job)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	c.entries[name] = namedEntry{id: id, expression: expression}
	return nil
}

// Unschedule removes the entry for name and reports whether one existed.
// A run already in progress is not interrupted.
func (c *CronScheduler) Unschedule(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.entries[name]
	if !ok {
		return false
	}
	c.engine.Remove(prev.id)
	delete(c.entries, name)
	return true
}

// UnscheduleAll removes every entry.
func (c *CronScheduler) UnscheduleAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, entry := range c.entries {
		c.engine.Remove(entry.id)
		delete(c.entries, name)
	}
}

// Entries lists the active entries sorted by name.
func (c *CronScheduler) Entries() []ports.ScheduledEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().In(c.loc)
	out := make([]ports.ScheduledEntry, 0, len(c.entries))
	for name, named := range c.entries {
		entry := c.engine.Entry(named.id)
		next := entry.Next
		if next.IsZero() && entry.Schedule != nil {
			next = entry.Schedule.Next(now)
		}
		out = append(out, ports.ScheduledEntry{
			Name:       name,
			Expression: named.expression,
			Running:    c.started,
			Next:       next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start runs the cron engine in its own goroutine.
func (c *CronScheduler) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.engine.Start()
	c.started = true
}

// Stop halts the engine and waits for running jobs until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	done := c.engine.Stop()
	c.started = false
	c.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}
