package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
	"github.com/noah-isme/clinic-announcements-api/pkg/jobs"
)

const statsRefreshJob = "announcement_stats_refresh"

type statsRefreshTarget interface {
	Refresh(ctx context.Context) (*models.AnnouncementSummary, error)
}

// StatsRefresherConfig configures the scheduled statistics refresh.
type StatsRefresherConfig struct {
	Schedule   string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// StatsRefresher precomputes the statistics summary on a cron schedule so administrators
// usually hit a warm cache.
type StatsRefresher struct {
	target   statsRefreshTarget
	metrics  *MetricsService
	logger   *zap.Logger
	schedule string
	cron     *cron.Cron
	queue    *jobs.Queue
}

// NewStatsRefresher validates the schedule and wires the worker queue.
func NewStatsRefresher(target statsRefreshTarget, metrics *MetricsService, logger *zap.Logger, cfg StatsRefresherConfig) (*StatsRefresher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse stats refresh schedule %q: %w", cfg.Schedule, err)
	}
	r := &StatsRefresher{
		target:   target,
		metrics:  metrics,
		logger:   logger,
		schedule: cfg.Schedule,
		cron:     cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
	}
	r.queue = jobs.NewQueue(statsRefreshJob, r.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: 2,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		JobTimeout: cfg.Timeout,
		Logger:     logger,
	})
	if _, err := r.cron.AddFunc(cfg.Schedule, func() { r.Trigger("cron") }); err != nil {
		return nil, fmt.Errorf("register stats refresh: %w", err)
	}
	return r, nil
}

// Start launches the worker queue, the scheduler and an initial warm-up run.
func (r *StatsRefresher) Start(ctx context.Context) {
	r.queue.Start(ctx)
	r.cron.Start()
	r.Trigger("startup")
	r.logger.Info("stats refresher started", zap.String("schedule", r.schedule))
}

// Stop halts the scheduler and waits for in-flight refreshes.
func (r *StatsRefresher) Stop() {
	<-r.cron.Stop().Done()
	r.queue.Stop()
}

// Trigger requests a refresh. Requests made while one is already waiting are merged.
func (r *StatsRefresher) Trigger(source string) bool {
	queued, err := r.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Key: statsRefreshJob, Type: statsRefreshJob, Payload: source})
	if err != nil {
		r.logger.Warn("stats refresh not queued", zap.String("source", source), zap.Error(err))
		return false
	}
	return queued
}

func (r *StatsRefresher) handle(ctx context.Context, job jobs.Job) error {
	start := time.Now()
	summary, err := r.target.Refresh(ctx)
	r.metrics.RecordStatsRefresh(err)
	if err != nil {
		return err
	}
	r.logger.Debug("announcement stats refreshed",
		zap.Any("source", job.Payload),
		zap.Int("total_active", summary.TotalActive),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
