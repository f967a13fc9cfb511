package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/utils/metrics"
	"gorm.io/gorm"
)

const (
	JobReconcileSettlements = "reconcile_settlements"
	JobCleanupOldData       = "cleanup_old_data"

	DefaultReconcileSchedule = "0 */5 * * * *"
	DefaultCleanupSchedule   = "0 0 2 * * *"

	jobTimeout = 10 * time.Minute
)

// Config holds the job schedules, in six-field cron syntax
type Config struct {
	ReconcileSchedule string
	CleanupSchedule   string
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron          *cron.Cron
	db            *gorm.DB
	reconciler    Reconciler
	notifications NotificationCleaner
	config        Config
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, reconciler Reconciler, notifications NotificationCleaner, config Config) *CronManager {
	if config.ReconcileSchedule == "" {
		config.ReconcileSchedule = DefaultReconcileSchedule
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = DefaultCleanupSchedule
	}

	// Create cron with seconds precision; a slow run is skipped, never stacked
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	return &CronManager{
		cron:          c,
		db:            db,
		reconciler:    reconciler,
		notifications: notifications,
		config:        config,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	slog.Info("starting cron jobs")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	slog.Info("cron jobs started", "jobs", len(m.cron.Entries()))
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (m *CronManager) Stop() {
	slog.Info("stopping cron jobs")
	ctx := m.cron.Stop()
	<-ctx.Done()
	slog.Info("cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	if m.reconciler != nil {
		_, err := m.cron.AddFunc(m.config.ReconcileSchedule, func() {
			m.run(JobReconcileSettlements, m.ReconcilePendingSettlements)
		})
		if err != nil {
			return err
		}
	}

	_, err := m.cron.AddFunc(m.config.CleanupSchedule, func() {
		m.run(JobCleanupOldData, m.CleanupOldData)
	})
	if err != nil {
		return err
	}

	slog.Info("cron jobs registered",
		"reconcile", m.config.ReconcileSchedule,
		"cleanup", m.config.CleanupSchedule,
	)
	return nil
}

// run executes a job and records it in cron_job_logs
func (m *CronManager) run(jobName string, job func(ctx context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	entry := m.logJobStart(jobName)
	message, err := job(ctx)
	if err != nil {
		m.logJobError(entry, err)
		return
	}
	m.logJobComplete(entry, message)
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	slog.Debug("cron job starting", "job", jobName)

	entry := &model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronJobStarted,
		StartedAt: time.Now().UTC(),
	}
	if err := m.db.Create(entry).Error; err != nil {
		slog.Warn("failed to record cron job start", "job", jobName, "error", err)
	}
	return entry
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(entry *model.CronJobLog, message string) {
	slog.Info("cron job completed", "job", entry.JobName, "message", message)
	m.finish(entry, model.CronJobCompleted, map[string]interface{}{"message": message})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(entry *model.CronJobLog, err error) {
	slog.Error("cron job failed", "job", entry.JobName, "error", err)
	m.finish(entry, model.CronJobFailed, map[string]interface{}{"error_msg": err.Error()})
}

func (m *CronManager) finish(entry *model.CronJobLog, status string, fields map[string]interface{}) {
	metrics.CronRuns.WithLabelValues(entry.JobName, status).Inc()
	if entry.ID == 0 {
		return
	}

	completed := time.Now().UTC()
	fields["status"] = status
	fields["completed_at"] = completed
	fields["duration"] = completed.Sub(entry.StartedAt).Milliseconds()

	if err := m.db.Model(entry).Updates(fields).Error; err != nil {
		slog.Warn("failed to record cron job result", "job", entry.JobName, "error", err)
	}
}
