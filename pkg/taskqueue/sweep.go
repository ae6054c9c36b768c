package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// sweeper runs Queue.Sweep on a cron schedule.
type sweeper struct {
	queue    *Queue
	schedule string
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

// newSweeper validates schedule and prepares the cron job. An empty schedule
// disables the periodic sweep; Sweep can still be called directly.
func newSweeper(q *Queue, schedule string) (*sweeper, error) {
	s := &sweeper{queue: q, schedule: schedule}
	if schedule == "" {
		return s, nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}
	return s, nil
}

func (s *sweeper) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.queue.logger.Info("Retention sweep scheduled",
		"schedule", s.schedule,
		"retention", s.queue.config.Retention,
	)
}

// stop halts the schedule and waits for a running sweep.
func (s *sweeper) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// nextRun returns the next scheduled sweep, or nil when none is scheduled.
func (s *sweeper) nextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

func (s *sweeper) run() {
	if n := s.queue.Sweep(s.queue.now()); n > 0 {
		s.queue.logger.Info("Retention sweep completed", "evicted", n)
	} else {
		s.queue.logger.Debug("Retention sweep completed, nothing evicted")
	}
}

// NextSweep returns when the scheduled sweep runs next, or nil when the
// queue is stopped or has no sweep schedule.
func (q *Queue) NextSweep() *time.Time {
	return q.sweeper.nextRun()
}

// Sweep evicts completed and failed tasks that finished more than the
// retention window before now, and hands them to the archive when one is
// configured. It returns the number of evicted tasks.
func (q *Queue) Sweep(now time.Time) int {
	cutoff := now.Add(-q.config.Retention)

	q.mu.Lock()
	var evicted []TaskSnapshot
	for id, t := range q.tasks {
		if t.status.Terminal() && !t.completedAt.After(cutoff) {
			evicted = append(evicted, t.snapshot())
			delete(q.tasks, id)
		}
	}
	if len(evicted) > 0 {
		q.updateGauges()
	}
	q.mu.Unlock()

	if len(evicted) > 0 && q.archive != nil {
		if err := q.archive.Archive(context.Background(), evicted); err != nil {
			q.logger.Error("Failed to archive swept tasks",
				"error", err,
				"count", len(evicted),
			)
		}
	}
	return len(evicted)
}
