package cron

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeReconciler struct {
	mu      sync.Mutex
	ids     []uint
	listErr error
	results map[uint]error
	polled  []uint
}

func (f *fakeReconciler) ReconcilableSettlements(context.Context) ([]uint, error) {
	return f.ids, f.listErr
}

func (f *fakeReconciler) PollStatus(_ context.Context, id uint) (*services.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled = append(f.polled, id)
	if err := f.results[id]; err != nil {
		return nil, err
	}
	return &services.PollResult{Confirmed: id%2 == 1}, nil
}

type fakeCleaner struct{ removed int64 }

func (f *fakeCleaner) CleanupOldNotifications(context.Context, time.Duration) (int64, error) {
	return f.removed, nil
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	store, err := database.StartSQLite(filepath.Join(t.TempDir(), "cron.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init())
	return store.GetDB()
}

func TestReconcilePendingSettlements(t *testing.T) {
	rec := &fakeReconciler{
		ids: []uint{1, 2, 3, 4},
		results: map[uint]error{
			3: services.ErrReconciliationMismatch,
			4: errors.New("gateway down"),
		},
	}
	m := NewCronManager(openDB(t), rec, nil, Config{})

	msg, err := m.ReconcilePendingSettlements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Polled 4 settlements: 1 confirmed, 1 mismatched, 1 failed", msg)
	assert.Equal(t, []uint{1, 2, 3, 4}, rec.polled)
}

func TestRunRecordsJobLog(t *testing.T) {
	db := openDB(t)
	m := NewCronManager(db, &fakeReconciler{}, &fakeCleaner{removed: 3}, Config{})

	m.run(JobReconcileSettlements, m.ReconcilePendingSettlements)
	m.run(JobReconcileSettlements, func(context.Context) (string, error) {
		return "", errors.New("boom")
	})
	m.run(JobCleanupOldData, m.CleanupOldData)

	var logs []model.CronJobLog
	require.NoError(t, db.Order("id ASC").Find(&logs).Error)
	require.Len(t, logs, 3)

	assert.Equal(t, model.CronJobCompleted, logs[0].Status)
	assert.Equal(t, "No open settlements", logs[0].Message)
	assert.NotNil(t, logs[0].CompletedAt)

	assert.Equal(t, model.CronJobFailed, logs[1].Status)
	assert.Equal(t, "boom", logs[1].ErrorMsg)

	assert.Equal(t, JobCleanupOldData, logs[2].JobName)
	assert.Equal(t, "Cleaned 3 notifications, 0 cron logs", logs[2].Message)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	m := NewCronManager(openDB(t), &fakeReconciler{}, nil, Config{ReconcileSchedule: "not a schedule"})
	assert.Error(t, m.Start())
}
