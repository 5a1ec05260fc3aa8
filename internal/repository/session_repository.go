package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
)

// ErrDuplicateScan signals that the (session, student, day) uniqueness
// constraint rejected an append.
var ErrDuplicateScan = errors.New("duplicate scan for student and day")

// SessionRepository persists QR sessions and their scan records.
//
// Layout: one row per session in attendance_sessions, scans in a separate
// scan_records table with a unique index on (session_id, student_id,
// scan_day). The index makes the once-per-day rule hold under concurrent
// scans without an in-process lock.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert persists a new session with an empty scan set.
func (r *SessionRepository) Insert(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	query := `INSERT INTO attendance_sessions (id, class_name, token, created_by, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.ClassName, session.Token, session.CreatedBy, session.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByToken looks a session up by its QR token. Returns sql.ErrNoRows when
// no session carries the token.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `SELECT id, class_name, token, created_by, created_at
FROM attendance_sessions WHERE token = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find session by token: %w", err)
	}
	return &session, nil
}

// FindByID looks a session up by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT id, class_name, token, created_by, created_at
FROM attendance_sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// List returns sessions newest first with their creator's username.
func (r *SessionRepository) List(ctx context.Context, page, size int) ([]models.SessionSummary, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.class_name, s.token, s.created_by, s.created_at,
        u.username AS created_by_username
        FROM attendance_sessions s
        JOIN users u ON u.id = s.created_by
        ORDER BY s.created_at DESC
        LIMIT %d OFFSET %d`, size, offset)

	var rows []models.SessionSummary
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM attendance_sessions"); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return rows, total, nil
}

// DeleteByID removes a session; scan records go with it via ON DELETE
// CASCADE. Returns sql.ErrNoRows when nothing matched.
func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM attendance_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendScan inserts a scan record. A conflict on (session_id, student_id,
// scan_day) yields ErrDuplicateScan and leaves no trace.
func (r *SessionRepository) AppendScan(ctx context.Context, record *models.ScanRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	query := `INSERT INTO scan_records (id, session_id, student_id, scanned_at, scan_day)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, student_id, scan_day) DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.QueryRowxContext(ctx, query, record.ID, record.SessionID, record.StudentID, record.ScannedAt, record.ScanDay).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateScan
		}
		return fmt.Errorf("append scan: %w", err)
	}
	return nil
}

// HasScanOnDay reports whether the student already scanned the session on the
// given calendar day.
func (r *SessionRepository) HasScanOnDay(ctx context.Context, sessionID, studentID string, day time.Time) (bool, error) {
	query := `SELECT EXISTS (
SELECT 1 FROM scan_records WHERE session_id = $1 AND student_id = $2 AND scan_day = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, sessionID, studentID, day); err != nil {
		return false, fmt.Errorf("check scan on day: %w", err)
	}
	return exists, nil
}

// ClassScans returns every scan of a class's sessions joined with the session
// and the scanning student, optionally restricted to sessions created within
// [from, to]. Filtering on the scan's own time stays in the service layer.
func (r *SessionRepository) ClassScans(ctx context.Context, className models.ClassName, from, to *time.Time) ([]models.ClassScanRow, error) {
	where := []string{"s.class_name = $1"}
	args := []interface{}{className}
	if from != nil {
		where = append(where, fmt.Sprintf("s.created_at >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("s.created_at <= $%d", len(args)+1))
		args = append(args, *to)
	}

	query := fmt.Sprintf(`SELECT r.id AS scan_id, r.scanned_at, s.token, s.created_at AS session_created_at,
        r.student_id, u.username, u.first_name, u.last_name, u.email, u.profile_pic, u.class_name
        FROM scan_records r
        JOIN attendance_sessions s ON s.id = r.session_id
        JOIN users u ON u.id = r.student_id
        WHERE %s
        ORDER BY r.scanned_at DESC`, strings.Join(where, " AND "))

	var rows []models.ClassScanRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("class scans: %w", err)
	}
	return rows, nil
}

// DayScans returns every scan recorded on the given calendar day, optionally
// restricted to one class.
func (r *SessionRepository) DayScans(ctx context.Context, className models.ClassName, day time.Time) ([]models.DayScanRow, error) {
	where := []string{"r.scan_day = $1"}
	args := []interface{}{day}
	if className != "" {
		where = append(where, fmt.Sprintf("s.class_name = $%d", len(args)+1))
		args = append(args, className)
	}

	query := fmt.Sprintf(`SELECT s.id AS session_id, s.class_name AS session_class_name, s.token, r.scanned_at,
        r.student_id, u.username, u.first_name, u.last_name, u.email, u.profile_pic, u.class_name
        FROM scan_records r
        JOIN attendance_sessions s ON s.id = r.session_id
        JOIN users u ON u.id = r.student_id
        WHERE %s
        ORDER BY s.created_at DESC, r.scanned_at DESC`, strings.Join(where, " AND "))

	var rows []models.DayScanRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("day scans: %w", err)
	}
	return rows, nil
}

// StudentScans returns all of one student's scans joined with the owning
// session. An unknown student simply yields no rows.
func (r *SessionRepository) StudentScans(ctx context.Context, studentID string) ([]models.StudentScanRow, error) {
	query := `SELECT s.class_name, r.scanned_at, s.created_at AS session_created_at
FROM scan_records r
JOIN attendance_sessions s ON s.id = r.session_id
WHERE r.student_id = $1
ORDER BY r.scanned_at DESC`

	var rows []models.StudentScanRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("student scans: %w", err)
	}
	return rows, nil
}
