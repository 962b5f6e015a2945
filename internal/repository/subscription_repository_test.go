package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetActivePlan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubscriptionRepository(db)

	expires := time.Now().Add(30 * 24 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "name", "max_jobs", "max_candidates", "max_assessments", "features", "expires_at"}).
		AddRow("p1", "growth", 25, 500, 0, pq.StringArray{"assessments", "video_interviews"}, expires)
	mock.ExpectQuery(`SELECT .+ FROM subscriptions s\s+JOIN plans p ON p\.id = s\.plan_id`).
		WithArgs("c1").
		WillReturnRows(rows)

	plan, err := repo.GetActivePlan(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "growth", plan.Name)
	assert.Equal(t, 25, plan.MaxJobs)
	assert.True(t, plan.HasFeature("assessments"))
	assert.False(t, plan.HasFeature("white_label"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActivePlanNone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM subscriptions s`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "max_jobs", "max_candidates", "max_assessments", "features", "expires_at"}))

	_, err := repo.GetActivePlan(context.Background(), "c1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
