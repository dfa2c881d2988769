package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rentpay-engine/internal/models"
)

func setupMockRemindersDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresRemindersRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresRemindersRepo(db, zap.NewNop())
	return db, mock, repo
}

func TestReminderExists_True(t *testing.T) {
	db, mock, repo := setupMockRemindersDB(t)
	defer db.Close()

	paymentID := uuid.New().String()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(paymentID, models.ReminderUpcoming, 3).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ReminderExists(context.Background(), paymentID, models.ReminderUpcoming, 3)

	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSent_AlreadySent(t *testing.T) {
	db, mock, repo := setupMockRemindersDB(t)
	defer db.Close()

	reminderID := uuid.New().String()

	// sent = false guard matches no rows on a second attempt
	mock.ExpectExec(`UPDATE reminders SET sent = true`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), reminderID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already sent")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveSchedule_NoneConfigured(t *testing.T) {
	db, mock, repo := setupMockRemindersDB(t)
	defer db.Close()

	tenantID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID).
		WillReturnError(sql.ErrNoRows)

	sched, err := repo.GetActiveSchedule(context.Background(), tenantID)

	require.NoError(t, err)
	assert.Nil(t, sched)
}

func TestCreateSchedule_DeactivatesPrior(t *testing.T) {
	db, mock, repo := setupMockRemindersDB(t)
	defer db.Close()

	sched := &models.NotificationSchedule{
		ScheduleID:    uuid.New().String(),
		TenantID:      uuid.New().String(),
		DaysBeforeDue: []int{3, 1},
		DaysAfterDue:  []int{1, 7},
		Methods:       []models.DeliveryMethod{models.DeliveryEmail},
		IsActive:      true,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE notification_schedules SET is_active = false`).
		WithArgs(sched.TenantID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notification_schedules`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.CreateSchedule(context.Background(), sched)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
