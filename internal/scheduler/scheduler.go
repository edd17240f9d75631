// Package scheduler runs the portal's background jobs: the daily class
// status sweep and idle chat session eviction.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/portal-treinamento/core/internal/domain"
	"github.com/portal-treinamento/core/internal/store"
	"github.com/portal-treinamento/core/internal/timeline"
)

// ClassStore is the subset of the repository the status sweep needs.
type ClassStore interface {
	ListOpenClasses(ctx context.Context) ([]*domain.TrainingClass, error)
	GetSegment(ctx context.Context, id string) (*domain.Segment, error)
	UpdateClassStatus(ctx context.Context, id string, status domain.ClassStatus) error
}

// SessionEvicter drops chat sessions idle for longer than maxIdle.
type SessionEvicter interface {
	EvictIdle(maxIdle time.Duration) int
}

// Config controls job timing.
type Config struct {
	SweepAt        string // HH:MM, UTC
	SessionIdleTTL time.Duration
	EvictEvery     time.Duration
	JobTimeout     time.Duration
}

// Scheduler owns the gocron scheduler and the jobs registered on it.
type Scheduler struct {
	cron     *gocron.Scheduler
	classes  ClassStore
	sessions SessionEvicter
	cfg      Config
	now      timeline.Clock
	logger   *slog.Logger
}

// New registers the jobs. sessions may be nil to skip eviction.
func New(classes ClassStore, sessions SessionEvicter, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepAt == "" {
		cfg.SweepAt = "03:00"
	}
	if cfg.EvictEvery <= 0 {
		cfg.EvictEvery = time.Minute
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = time.Hour
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	s := &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		classes:  classes,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
	s.cron.SingletonModeAll()

	if _, err := s.cron.Every(1).Day().At(cfg.SweepAt).Do(s.runSweep); err != nil {
		return nil, fmt.Errorf("schedule status sweep: %w", err)
	}
	if sessions != nil {
		if _, err := s.cron.Every(cfg.EvictEvery).Do(s.runEviction); err != nil {
			return nil, fmt.Errorf("schedule session eviction: %w", err)
		}
	}
	return s, nil
}

// Run starts the jobs and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", "sweep_at", s.cfg.SweepAt, "evict_every", s.cfg.EvictEvery)
	s.cron.StartAsync()
	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("Scheduler stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Jobs())
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	updated, err := s.SweepStatuses(ctx)
	if err != nil {
		s.logger.Error("Class status sweep failed", "error", err, "updated", updated)
		return
	}
	s.logger.Info("Class status sweep finished", "updated", updated)
}

func (s *Scheduler) runEviction() {
	if n := s.sessions.EvictIdle(s.cfg.SessionIdleTTL); n > 0 {
		s.logger.Info("Evicted idle chat sessions", "count", n)
	}
}

// SweepStatuses moves every open class to the status its dates imply
// today. A failure on one class is logged and the sweep continues.
func (s *Scheduler) SweepStatuses(ctx context.Context) (int, error) {
	classes, err := s.classes.ListOpenClasses(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open classes: %w", err)
	}

	now := s.now()
	segments := map[string]*domain.Segment{}
	updated := 0
	for _, c := range classes {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		seg, err := s.segment(ctx, segments, c.SegmentID)
		if err != nil {
			s.logger.Warn("Segment lookup failed during sweep", "class_id", c.ID, "segment_id", c.SegmentID, "error", err)
		}
		next := timeline.DeriveStatus(c, seg, now)
		if next == c.Status {
			continue
		}
		if err := s.classes.UpdateClassStatus(ctx, c.ID, next); err != nil {
			s.logger.Warn("Class status update failed", "class_id", c.ID, "error", err)
			continue
		}
		s.logger.Debug("Class status changed", "class_id", c.ID, "from", c.Status, "to", next)
		updated++
	}
	return updated, nil
}

func (s *Scheduler) segment(ctx context.Context, cache map[string]*domain.Segment, id string) (*domain.Segment, error) {
	if id == "" {
		return nil, nil
	}
	if seg, ok := cache[id]; ok {
		return seg, nil
	}
	seg, err := s.classes.GetSegment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		seg, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[id] = seg
	return seg, nil
}
