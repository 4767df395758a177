package fetch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds download concurrency on two axes: a global ceiling across
// all jobs and a per-job ceiling. The global semaphore is shared; each job
// gets its own per-job semaphore from ForJob.
type Limiter struct {
	perJob int64
	global *semaphore.Weighted
}

// NewLimiter creates a limiter with the given per-job and global ceilings.
// Non-positive values fall back to 1.
func NewLimiter(perJob, global int) *Limiter {
	if perJob < 1 {
		perJob = 1
	}
	if global < 1 {
		global = 1
	}
	return &Limiter{
		perJob: int64(perJob),
		global: semaphore.NewWeighted(int64(global)),
	}
}

// ForJob returns a gate for one job's fetch pass. Gates from separate calls
// share the global semaphore but count per-job slots independently.
func (l *Limiter) ForJob() *JobGate {
	return &JobGate{
		job:    semaphore.NewWeighted(l.perJob),
		global: l.global,
	}
}

// JobGate is a two-level slot acquired around each resource download.
type JobGate struct {
	job    *semaphore.Weighted
	global *semaphore.Weighted
}

// Acquire blocks until both a per-job slot and a global slot are available,
// or the context finishes. The per-job slot is taken first so one job cannot
// hold global capacity while waiting on its own ceiling.
func (g *JobGate) Acquire(ctx context.Context) error {
	if err := g.job.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := g.global.Acquire(ctx, 1); err != nil {
		g.job.Release(1)
		return err
	}
	return nil
}

// Release returns both slots. Call exactly once per successful Acquire.
func (g *JobGate) Release() {
	g.global.Release(1)
	g.job.Release(1)
}
