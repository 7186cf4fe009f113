package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"loganalyzer/internal/model"
	"loganalyzer/internal/platform/sqlite"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Message{}, &model.IndexBuild{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestMessageRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, m := range []model.Message{
		{SessionID: "s1", FileName: "a.csv", Role: "user", Content: "how many rows?", CreatedAt: base},
		{SessionID: "s1", FileName: "a.csv", Role: "assistant", Content: "3", CreatedAt: base.Add(time.Second)},
		{SessionID: "s2", FileName: "b.csv", Role: "user", Content: "other", CreatedAt: base},
	} {
		msg := m
		require.NoError(t, repo.Create(&msg), "message %d", i)
		assert.NotZero(t, msg.ID)
	}

	assert.Equal(t, int64(2), countMessages(t, db, "s1"))

	require.NoError(t, repo.DeleteBySessionID("s1"))
	assert.Equal(t, int64(0), countMessages(t, db, "s1"))
	assert.Equal(t, int64(1), countMessages(t, db, "s2"))
}

func countMessages(t *testing.T, db *gorm.DB, sessionID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Message{}).Where("session_id = ?", sessionID).Count(&n).Error)
	return n
}

func TestIndexBuildRepository(t *testing.T) {
	repo := NewIndexBuildRepository(newTestDB(t))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(&model.IndexBuild{SessionID: "s1", FileName: "a.csv", Rows: 3, Chunks: 3, CreatedAt: base}))
	require.NoError(t, repo.Create(&model.IndexBuild{SessionID: "s1", FileName: "b.csv", Rows: 10, Chunks: 12, DurationMS: 40, CreatedAt: base.Add(time.Minute)}))

	builds, err := repo.ListRecent(0)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "b.csv", builds[0].FileName)
	assert.Equal(t, 12, builds[0].Chunks)
	assert.Equal(t, "a.csv", builds[1].FileName)
}
