// Package scheduler runs background maintenance tasks: the periodic
// library rescan and deferred unmount retries for busy disc images.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// Unmounter detaches a disc image.
type Unmounter interface {
	Unmount(ctx context.Context, mountPoint string) error
}

// Scheduler manages background tasks.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger

	unmounter Unmounter

	mu            sync.Mutex
	pendingMounts map[string]string // job id -> mount point
}

// New creates a scheduler.
func New(unmounter Unmounter, logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		gocron:        gs,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		unmounter:     unmounter,
		pendingMounts: make(map[string]string),
	}, nil
}

// RegisterInterval registers a task running on a fixed interval.
func (s *Scheduler) RegisterInterval(name string, interval time.Duration, task TaskFunc) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			startTime := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			if err := task(ctx); err != nil {
				s.logger.Error().Err(err).Str("task", name).Msg("Scheduled task failed")
				return
			}
			s.logger.Debug().Str("task", name).Dur("elapsed", time.Since(startTime)).Msg("Scheduled task finished")
		}),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register task %q: %w", name, err)
	}

	s.logger.Info().Str("task", name).Dur("interval", interval).Msg("Registered task")
	return nil
}

// ScheduleUnmountRetry records a busy mount against its job id and retries
// the unmount one minute later, rescheduling itself while the image stays
// busy. Tracking by job id means leftover mounts are visible state, not a
// detached timer.
func (s *Scheduler) ScheduleUnmountRetry(jobID, mountPoint string) {
	s.mu.Lock()
	s.pendingMounts[jobID] = mountPoint
	s.mu.Unlock()

	_, err := s.gocron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(time.Minute))),
		gocron.NewTask(func() {
			s.retryUnmount(jobID)
		}),
		gocron.WithName("unmount-retry-"+jobID),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("jobId", jobID).Msg("Failed to schedule unmount retry")
	}
}

// PendingUnmounts returns the mounts still awaiting detachment.
func (s *Scheduler) PendingUnmounts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.pendingMounts))
	for jobID, mountPoint := range s.pendingMounts {
		out[jobID] = mountPoint
	}
	return out
}

func (s *Scheduler) retryUnmount(jobID string) {
	s.mu.Lock()
	mountPoint, ok := s.pendingMounts[jobID]
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.unmounter.Unmount(ctx, mountPoint); err != nil {
		s.logger.Warn().Err(err).Str("jobId", jobID).Str("mountPoint", mountPoint).Msg("Unmount retry failed, rescheduling")
		s.ScheduleUnmountRetry(jobID, mountPoint)
		return
	}

	s.mu.Lock()
	delete(s.pendingMounts, jobID)
	s.mu.Unlock()
	s.logger.Info().Str("jobId", jobID).Str("mountPoint", mountPoint).Msg("Deferred unmount succeeded")
}

// Start begins executing scheduled tasks.
func (s *Scheduler) Start() {
	s.gocron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop shuts the scheduler down and waits for running tasks.
func (s *Scheduler) Stop() error {
	return s.gocron.Shutdown()
}
