// Package job schedules the recurring pipeline work: the daily universe
// refresh and the daily portfolio snapshot. Both jobs are idempotent per
// UTC date, so a restart mid-day re-running them is harmless.
package job

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wallet-scanner/internal/models"
	"github.com/wallet-scanner/internal/service"
)

// Default schedules, in UTC. The universe refreshes right after midnight and
// the snapshot runs once the fresh universes are in place.
const (
	DefaultRefreshSpec  = "5 0 * * *"
	DefaultSnapshotSpec = "30 0 * * *"
)

// UniverseRefresher refreshes all chains' token universes for a date.
type UniverseRefresher interface {
	RefreshAllChains(ctx context.Context, asOfDate string) ([]service.RefreshOutcome, error)
}

// SnapshotRunner produces the daily portfolio snapshot.
type SnapshotRunner interface {
	Run(ctx context.Context, force bool) (*models.DailySnapshot, error)
}

// Scheduler drives the daily jobs off a cron running in UTC.
type Scheduler struct {
	cron      *cron.Cron
	refresher UniverseRefresher
	snapshot  SnapshotRunner
	logger    *zap.Logger
	baseCtx   context.Context
}

// NewScheduler creates a scheduler over the two daily jobs.
func NewScheduler(baseCtx context.Context, refresher UniverseRefresher, snapshot SnapshotRunner, logger *zap.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		refresher: refresher,
		snapshot:  snapshot,
		logger:    logger,
		baseCtx:   baseCtx,
	}
}

// Register adds the daily jobs with the given cron specs. Empty specs fall
// back to the defaults.
func (s *Scheduler) Register(refreshSpec, snapshotSpec string) error {
	if refreshSpec == "" {
		refreshSpec = DefaultRefreshSpec
	}
	if snapshotSpec == "" {
		snapshotSpec = DefaultSnapshotSpec
	}

	if _, err := s.cron.AddFunc(refreshSpec, func() { s.RunUniverseRefresh(s.baseCtx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(snapshotSpec, func() { s.RunDailySnapshot(s.baseCtx) }); err != nil {
		return err
	}
	return nil
}

// RunUniverseRefresh refreshes every active chain's universe for today.
func (s *Scheduler) RunUniverseRefresh(ctx context.Context) {
	asOfDate := service.UniverseDate(time.Now())
	outcomes, err := s.refresher.RefreshAllChains(ctx, asOfDate)
	if err != nil {
		s.logger.Error("scheduled universe refresh failed", zap.Error(err))
		return
	}
	for _, o := range outcomes {
		if o.Err != nil {
			s.logger.Warn("chain universe refresh degraded",
				zap.String("chain", o.ChainID),
				zap.String("status", string(o.Status)),
				zap.Error(o.Err),
			)
			continue
		}
		s.logger.Info("chain universe refreshed",
			zap.String("chain", o.ChainID),
			zap.String("snapshot", o.ActiveSnapshotID),
			zap.String("status", string(o.Status)),
		)
	}
}

// RunDailySnapshot produces today's portfolio snapshot. Never forced: a
// snapshot already produced today (e.g. via the API) is left alone.
func (s *Scheduler) RunDailySnapshot(ctx context.Context) {
	snapshot, err := s.snapshot.Run(ctx, false)
	if err != nil {
		s.logger.Error("scheduled daily snapshot failed", zap.Error(err))
		return
	}
	s.logger.Info("daily snapshot produced",
		zap.String("id", snapshot.ID),
		zap.String("date", snapshot.SnapshotDate),
		zap.String("status", string(snapshot.Status)),
		zap.Int("items", snapshot.ItemCount),
	)
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
