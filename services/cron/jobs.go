package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/services"
)

// Reconciler polls the gateway for open QR settlements
type Reconciler interface {
	ReconcilableSettlements(ctx context.Context) ([]uint, error)
	PollStatus(ctx context.Context, settlementID uint) (*services.PollResult, error)
}

// NotificationCleaner drops notifications nobody needs anymore
type NotificationCleaner interface {
	CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error)
}

const (
	notificationRetention = 90 * 24 * time.Hour
	cronLogRetention      = 90 * 24 * time.Hour
)

// ReconcilePendingSettlements asks the gateway about every open QR settlement.
// A failure on one settlement does not stop the others.
func (m *CronManager) ReconcilePendingSettlements(ctx context.Context) (string, error) {
	ids, err := m.reconciler.ReconcilableSettlements(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list open settlements: %w", err)
	}
	if len(ids) == 0 {
		return "No open settlements", nil
	}

	confirmed, mismatched, failed := 0, 0, 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res, err := m.reconciler.PollStatus(ctx, id)
		switch {
		case errors.Is(err, services.ErrReconciliationMismatch):
			mismatched++
		case err != nil:
			slog.Warn("reconcile poll failed", "settlement_id", id, "error", err)
			failed++
		case res.Confirmed:
			confirmed++
		}
	}

	return fmt.Sprintf("Polled %d settlements: %d confirmed, %d mismatched, %d failed",
		len(ids), confirmed, mismatched, failed), nil
}

// CleanupOldData removes read notifications and old job logs
func (m *CronManager) CleanupOldData(ctx context.Context) (string, error) {
	var notifications int64
	if m.notifications != nil {
		n, err := m.notifications.CleanupOldNotifications(ctx, notificationRetention)
		if err != nil {
			return "", err
		}
		notifications = n
	}

	cutoff := time.Now().UTC().Add(-cronLogRetention)
	result := m.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.CronJobLog{})
	if result.Error != nil {
		return "", fmt.Errorf("failed to clean cron logs: %w", result.Error)
	}

	return fmt.Sprintf("Cleaned %d notifications, %d cron logs", notifications, result.RowsAffected), nil
}
