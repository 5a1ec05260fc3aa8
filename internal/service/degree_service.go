package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/repository"
	appErrors "github.com/MosTaFa-Abdulrahman/attend-api/pkg/errors"
)

type degreeRepository interface {
	CreateExam(ctx context.Context, exam *models.Exam) error
	FindExamByID(ctx context.Context, id string) (*models.Exam, error)
	ExamExists(ctx context.Context, examName string, className models.ClassName) (bool, error)
	CreateDegree(ctx context.Context, degree *models.Degree) error
	ListByExam(ctx context.Context, examID string) ([]models.DegreeDetail, error)
	ListByStudent(ctx context.Context, userID string) ([]models.DegreeDetail, error)
	DeleteByID(ctx context.Context, id string) error
}

type degreeUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// DegreeService manages exams and per-student degrees.
type DegreeService struct {
	repo      degreeRepository
	users     degreeUserReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDegreeService constructs the degree service.
func NewDegreeService(repo degreeRepository, users degreeUserReader, validate *validator.Validate, logger *zap.Logger) *DegreeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validate.RegisterValidation("class_name", func(fl validator.FieldLevel) bool {
		return models.ClassName(fl.Field().String()).Valid()
	})
	return &DegreeService{repo: repo, users: users, validator: validate, logger: logger}
}

// CreateExamRequest is the payload for defining an exam.
type CreateExamRequest struct {
	ExamName   string  `json:"examName" validate:"required"`
	ClassName  string  `json:"className" validate:"required,class_name"`
	FullDegree float64 `json:"fullDegree" validate:"required,gte=1"`
}

// AddDegreeRequest records one student's grade for one exam.
type AddDegreeRequest struct {
	UserID        string  `json:"userId" validate:"required"`
	ExamID        string  `json:"examId" validate:"required"`
	StudentDegree float64 `json:"studentDegree" validate:"gte=0"`
}

// ExamDegrees pairs an exam with its sorted degrees.
type ExamDegrees struct {
	Exam    models.Exam           `json:"exam"`
	Degrees []models.DegreeDetail `json:"degrees"`
}

// CreateExam defines a new exam; (examName, className) must be unique.
func (s *DegreeService) CreateExam(ctx context.Context, req CreateExamRequest, claims *models.JWTClaims) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	className := models.ClassName(req.ClassName)
	exists, err := s.repo.ExamExists(ctx, req.ExamName, className)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing exams")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("exam %q already exists for %s", req.ExamName, className))
	}

	exam := &models.Exam{
		ExamName:   req.ExamName,
		ClassName:  className,
		FullDegree: req.FullDegree,
		CreatedBy:  claims.UserID,
	}
	if err := s.repo.CreateExam(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}

	s.logger.Info("exam created", zap.String("exam_id", exam.ID), zap.String("class_name", string(className)))
	return exam, nil
}

// AddDegree records a degree after checking student, exam, class match, bound
// and the one-degree-per-exam rule.
func (s *DegreeService) AddDegree(ctx context.Context, req AddDegreeRequest, claims *models.JWTClaims) (*models.Degree, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid degree payload")
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	exam, err := s.repo.FindExamByID(ctx, req.ExamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch exam")
	}

	if user.ClassName != exam.ClassName {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("user is in %s, exam is for %s", user.ClassName, exam.ClassName))
	}
	if req.StudentDegree > exam.FullDegree {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("student degree cannot exceed %v", exam.FullDegree))
	}

	degree := &models.Degree{
		UserID:        req.UserID,
		ExamID:        req.ExamID,
		StudentDegree: req.StudentDegree,
		AddedBy:       claims.UserID,
	}
	if err := s.repo.CreateDegree(ctx, degree); err != nil {
		if errors.Is(err, repository.ErrDuplicateDegree) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "degree already added for this student in this exam")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add degree")
	}

	return degree, nil
}

// GetExamDegrees returns an exam with its degrees sorted highest first.
func (s *DegreeService) GetExamDegrees(ctx context.Context, examID string) (*ExamDegrees, error) {
	exam, err := s.repo.FindExamByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch exam")
	}

	degrees, err := s.repo.ListByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exam degrees")
	}
	if degrees == nil {
		degrees = []models.DegreeDetail{}
	}

	return &ExamDegrees{Exam: *exam, Degrees: degrees}, nil
}

// GetStudentDegrees returns one student's degrees, newest first.
func (s *DegreeService) GetStudentDegrees(ctx context.Context, userID string) ([]models.DegreeDetail, error) {
	degrees, err := s.repo.ListByStudent(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student degrees")
	}
	if degrees == nil {
		degrees = []models.DegreeDetail{}
	}
	return degrees, nil
}

// DeleteDegree removes a degree by id.
func (s *DegreeService) DeleteDegree(ctx context.Context, id string) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "degree not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete degree")
	}
	return nil
}
