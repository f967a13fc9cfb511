package database

import (
	"path/filepath"
	"testing"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := StartSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init())
	return store
}

func TestInitAndHealthCheck(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.HealthCheck())
	assert.True(t, store.GetDB().Migrator().HasTable(&model.Settlement{}))
	assert.True(t, store.GetDB().Migrator().HasTable(&model.GatewayEvent{}))
}

func TestRunSeedsIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	db := store.GetDB()

	require.NoError(t, RunSeeds(db))
	require.NoError(t, RunSeeds(db))

	var programs, agreements, enrollments int64
	db.Model(&model.Program{}).Count(&programs)
	db.Model(&model.Agreement{}).Count(&agreements)
	db.Model(&model.Enrollment{}).Count(&enrollments)

	assert.EqualValues(t, 3, programs)
	assert.EqualValues(t, 2, agreements)
	assert.EqualValues(t, 2, enrollments)

	var inactive model.Agreement
	require.NoError(t, db.Where("name = ?", "Convenio Docentes").First(&inactive).Error)
	assert.False(t, inactive.Active)
}
