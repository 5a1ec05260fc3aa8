package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
)

// ErrDuplicateDegree signals the one-degree-per-student-per-exam constraint.
var ErrDuplicateDegree = errors.New("degree already exists for student and exam")

// DegreeRepository handles persistence for exams and degrees.
type DegreeRepository struct {
	db *sqlx.DB
}

// NewDegreeRepository constructs the repository.
func NewDegreeRepository(db *sqlx.DB) *DegreeRepository {
	return &DegreeRepository{db: db}
}

// CreateExam inserts a new exam.
func (r *DegreeRepository) CreateExam(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO exams (id, exam_name, class_name, full_degree, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, exam.ID, exam.ExamName, exam.ClassName, exam.FullDegree, exam.CreatedBy, exam.CreatedAt); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// FindExamByID fetches an exam.
func (r *DegreeRepository) FindExamByID(ctx context.Context, id string) (*models.Exam, error) {
	var exam models.Exam
	query := `SELECT id, exam_name, class_name, full_degree, created_by, created_at FROM exams WHERE id = $1`
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find exam: %w", err)
	}
	return &exam, nil
}

// ExamExists reports whether an exam with the same name already exists for
// the class.
func (r *DegreeRepository) ExamExists(ctx context.Context, examName string, className models.ClassName) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM exams WHERE exam_name = $1 AND class_name = $2)`
	if err := r.db.GetContext(ctx, &exists, query, examName, className); err != nil {
		return false, fmt.Errorf("check exam exists: %w", err)
	}
	return exists, nil
}

// CreateDegree inserts a degree. A conflict on (user_id, exam_id) yields
// ErrDuplicateDegree.
func (r *DegreeRepository) CreateDegree(ctx context.Context, degree *models.Degree) error {
	if degree.ID == "" {
		degree.ID = uuid.NewString()
	}
	if degree.CreatedAt.IsZero() {
		degree.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO degrees (id, user_id, exam_id, student_degree, added_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, exam_id) DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.QueryRowxContext(ctx, query, degree.ID, degree.UserID, degree.ExamID, degree.StudentDegree, degree.AddedBy, degree.CreatedAt).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateDegree
		}
		return fmt.Errorf("create degree: %w", err)
	}
	return nil
}

const degreeDetailQuery = `SELECT d.id, d.user_id, d.exam_id, d.student_degree, d.added_by, d.created_at,
        u.username, u.first_name, u.last_name,
        e.exam_name, e.full_degree, e.class_name AS exam_class
        FROM degrees d
        JOIN users u ON u.id = d.user_id
        JOIN exams e ON e.id = d.exam_id`

// ListByExam returns an exam's degrees sorted highest first.
func (r *DegreeRepository) ListByExam(ctx context.Context, examID string) ([]models.DegreeDetail, error) {
	query := degreeDetailQuery + ` WHERE d.exam_id = $1 ORDER BY d.student_degree DESC`
	var rows []models.DegreeDetail
	if err := r.db.SelectContext(ctx, &rows, query, examID); err != nil {
		return nil, fmt.Errorf("list degrees by exam: %w", err)
	}
	return rows, nil
}

// ListByStudent returns a student's degrees newest first.
func (r *DegreeRepository) ListByStudent(ctx context.Context, userID string) ([]models.DegreeDetail, error) {
	query := degreeDetailQuery + ` WHERE d.user_id = $1 ORDER BY d.created_at DESC`
	var rows []models.DegreeDetail
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list degrees by student: %w", err)
	}
	return rows, nil
}

// DeleteByID removes a degree. Returns sql.ErrNoRows when nothing matched.
func (r *DegreeRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM degrees WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete degree: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete degree rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
