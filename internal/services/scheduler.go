// internal/services/scheduler.go
package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/keyshop-bot/internal/models"
)

type SchedulerConfig struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	BatchSize     int
}

// IdleSweeper closes tickets that have been inactive too long.
type IdleSweeper interface {
	SweepIdle(ctx context.Context) (int, error)
}

// Scheduler runs persisted ticket jobs when they fall due and drives the
// periodic idle sweep.
type Scheduler struct {
	db      *gorm.DB
	handler JobHandler
	sweeper IdleSweeper
	cfg     SchedulerConfig
	nowFn   func() time.Time
	wg      sync.WaitGroup
}

func NewScheduler(db *gorm.DB, handler JobHandler, sweeper IdleSweeper, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Scheduler{
		db:      db,
		handler: handler,
		sweeper: sweeper,
		cfg:     cfg,
		nowFn:   time.Now,
	}
}

// scheduleJob inserts a job inside tx. An existing job of the same kind for
// the ticket is kept.
func scheduleJob(tx *gorm.DB, ticketID uuid.UUID, kind models.JobKind, dueAt time.Time) error {
	job := &models.ScheduledJob{
		TicketID: ticketID,
		Kind:     kind,
		DueAt:    dueAt,
		Status:   models.JobStatusPending,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticket_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(job).Error; err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", kind, err)
	}
	return nil
}

// cancelJob marks a pending job done without running it.
func cancelJob(tx *gorm.DB, ticketID uuid.UUID, kind models.JobKind, now time.Time) error {
	if err := tx.Model(&models.ScheduledJob{}).
		Where("ticket_id = ? AND kind = ? AND status = ?", ticketID, kind, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusDone,
			"done_at":    now,
			"last_error": "cancelled",
			"updated_at": now,
		}).Error; err != nil {
		return fmt.Errorf("failed to cancel %s job: %w", kind, err)
	}
	return nil
}

// Start runs the job poller and the idle sweep until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if err := s.recoverStale(ctx); err != nil {
		logrus.WithError(err).Error("Failed to recover running jobs")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		poll := time.NewTicker(s.cfg.PollInterval)
		defer poll.Stop()
		sweep := time.NewTicker(s.cfg.SweepInterval)
		defer sweep.Stop()

		s.runDueLogged(ctx)
		s.sweepLogged(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				s.runDueLogged(ctx)
			case <-sweep.C:
				s.sweepLogged(ctx)
			}
		}
	}()
}

// Wait blocks until the loop started by Start has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runDueLogged(ctx context.Context) {
	if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("Failed to run due jobs")
	}
}

func (s *Scheduler) sweepLogged(ctx context.Context) {
	if s.sweeper == nil {
		return
	}
	closed, err := s.sweeper.SweepIdle(ctx)
	if err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("Idle sweep failed")
		return
	}
	if closed > 0 {
		logrus.WithField("closed", closed).Info("Idle sweep closed tickets")
	}
}

// recoverStale returns jobs left running by a previous process to pending.
func (s *Scheduler) recoverStale(ctx context.Context) error {
	return s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("status = ?", models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":     models.JobStatusPending,
			"updated_at": s.nowFn(),
		}).Error
}

// RunDue executes every pending job whose due time has passed and returns
// how many ran. Each job is isolated: an error or panic in one job only
// affects that job.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.nowFn()

	var jobs []models.ScheduledJob
	if err := s.db.WithContext(ctx).
		Where("status = ? AND due_at <= ?", models.JobStatusPending, now).
		Order("due_at ASC").
		Limit(s.cfg.BatchSize).
		Find(&jobs).Error; err != nil {
		return 0, fmt.Errorf("failed to load due jobs: %w", err)
	}

	ran := 0
	for i := range jobs {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}

		job := &jobs[i]
		claimed, err := s.claimJob(ctx, job)
		if err != nil {
			return ran, err
		}
		if !claimed {
			continue
		}

		ran++
		s.finish(ctx, job, s.execute(ctx, job))
	}
	return ran, nil
}

func (s *Scheduler) claimJob(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": s.nowFn(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	job.Attempts++
	job.Status = models.JobStatusRunning
	return true, nil
}

func (s *Scheduler) execute(ctx context.Context, job *models.ScheduledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"job_id":    job.ID,
				"kind":      job.Kind,
				"ticket_id": job.TicketID,
				"stack":     string(debug.Stack()),
			}).Error("Job panicked")
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.handler.HandleJob(ctx, job)
}

func (s *Scheduler) finish(ctx context.Context, job *models.ScheduledJob, runErr error) {
	now := s.nowFn()
	fields := logrus.Fields{
		"job_id":    job.ID,
		"kind":      job.Kind,
		"ticket_id": job.TicketID,
		"attempt":   job.Attempts,
	}

	updates := map[string]interface{}{"updated_at": now}
	switch {
	case runErr == nil:
		updates["status"] = models.JobStatusDone
		updates["done_at"] = now
		updates["last_error"] = ""
		logrus.WithFields(fields).Debug("Job completed")
	case job.Attempts >= s.cfg.MaxAttempts:
		updates["status"] = models.JobStatusFailed
		updates["done_at"] = now
		updates["last_error"] = runErr.Error()
		logrus.WithError(runErr).WithFields(fields).Error("Job failed permanently")
	default:
		updates["status"] = models.JobStatusPending
		updates["due_at"] = now.Add(s.cfg.RetryBackoff * time.Duration(job.Attempts))
		updates["last_error"] = runErr.Error()
		logrus.WithError(runErr).WithFields(fields).Warn("Job failed, will retry")
	}

	if err := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", job.ID).
		Updates(updates).Error; err != nil {
		logrus.WithError(err).WithFields(fields).Error("Failed to record job result")
	}
}
