package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestSessionInsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	session := &models.Session{
		ID:        "sess-1",
		ClassName: models.ClassPrep1,
		Token:     "abcd1234",
		CreatedBy: "admin-1",
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO attendance_sessions").
		WithArgs("sess-1", models.ClassPrep1, "abcd1234", "admin-1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionInsertGeneratesID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO attendance_sessions").
		WithArgs(sqlmock.AnyArg(), models.ClassPrep2, "token", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{ClassName: models.ClassPrep2, Token: "token", CreatedBy: "admin-1"}
	require.NoError(t, repo.Insert(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionFindByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "class_name", "token", "created_by", "created_at"}).
		AddRow("sess-1", "prep_1", "abcd1234", "admin-1", now)
	mock.ExpectQuery("SELECT id, class_name, token, created_by, created_at").
		WithArgs("abcd1234").
		WillReturnRows(rows)

	session, err := repo.FindByToken(context.Background(), "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, models.ClassPrep1, session.ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionFindByTokenNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT id, class_name, token, created_by, created_at").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "nope")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "class_name", "token", "created_by", "created_at", "created_by_username"}).
		AddRow("sess-2", "prep_1", "tok-2", "admin-1", now, "admin").
		AddRow("sess-1", "prep_1", "tok-1", "admin-1", now.Add(-time.Hour), "admin")
	mock.ExpectQuery("ORDER BY s.created_at DESC").WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_sessions")).WillReturnRows(countRows)

	rows, total, err := repo.List(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 5, total)
	assert.Equal(t, "admin", rows[0].CreatedByUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionDeleteByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("DELETE FROM attendance_sessions").
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteByID(context.Background(), "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionDeleteByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("DELETE FROM attendance_sessions").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	record := &models.ScanRecord{
		ID:        "scan-1",
		SessionID: "sess-1",
		StudentID: "stu-1",
		ScannedAt: now,
		ScanDay:   day,
	}

	mock.ExpectQuery("INSERT INTO scan_records").
		WithArgs("scan-1", "sess-1", "stu-1", now, day).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("scan-1"))

	require.NoError(t, repo.AppendScan(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScanDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	// ON CONFLICT DO NOTHING returns no row on a duplicate.
	mock.ExpectQuery("INSERT INTO scan_records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.AppendScan(context.Background(), &models.ScanRecord{
		ID:        "scan-2",
		SessionID: "sess-1",
		StudentID: "stu-1",
		ScannedAt: time.Now(),
		ScanDay:   time.Now(),
	})
	assert.True(t, errors.Is(err, ErrDuplicateScan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasScanOnDay(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	day := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.Local)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sess-1", "stu-1", day).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	attended, err := repo.HasScanOnDay(context.Background(), "sess-1", "stu-1", day)
	require.NoError(t, err)
	assert.True(t, attended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassScansWithRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"scan_id", "scanned_at", "token", "session_created_at",
		"student_id", "username", "first_name", "last_name", "email", "profile_pic", "class_name",
	}).AddRow("scan-1", now, "tok-1", now.Add(-time.Hour), "stu-1", "ahmed", "Ahmed", "Hassan", "ahmed@example.com", "", "prep_1")

	mock.ExpectQuery("FROM scan_records").
		WithArgs(models.ClassPrep1, from, to).
		WillReturnRows(rows)

	result, err := repo.ClassScans(context.Background(), models.ClassPrep1, &from, &to)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "scan-1", result[0].ScanID)
	assert.Equal(t, "ahmed", result[0].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDayScans(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	day := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.Local)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"session_id", "session_class_name", "token", "scanned_at",
		"student_id", "username", "first_name", "last_name", "email", "profile_pic", "class_name",
	}).
		AddRow("sess-1", "prep_1", "tok-1", now, "stu-1", "ahmed", "Ahmed", "Hassan", "a@example.com", "", "prep_1").
		AddRow("sess-1", "prep_1", "tok-1", now, "stu-2", "mona", "Mona", "Ali", "m@example.com", "", "prep_1")

	mock.ExpectQuery("FROM scan_records").
		WithArgs(day, models.ClassPrep1).
		WillReturnRows(rows)

	result, err := repo.DayScans(context.Background(), models.ClassPrep1, day)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, "sess-1", result[0].SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentScans(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"class_name", "scanned_at", "session_created_at"}).
		AddRow("prep_1", now, now.Add(-time.Hour))

	mock.ExpectQuery("WHERE r.student_id").
		WithArgs("stu-1").
		WillReturnRows(rows)

	result, err := repo.StudentScans(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, models.ClassPrep1, result[0].ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
