package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/repository"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/config"
	appErrors "github.com/MosTaFa-Abdulrahman/attend-api/pkg/errors"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/export"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/response"
)

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

type sessionRepository interface {
	Insert(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, page, size int) ([]models.SessionSummary, int, error)
	DeleteByID(ctx context.Context, id string) error
	AppendScan(ctx context.Context, record *models.ScanRecord) error
	HasScanOnDay(ctx context.Context, sessionID, studentID string, day time.Time) (bool, error)
	ClassScans(ctx context.Context, className models.ClassName, from, to *time.Time) ([]models.ClassScanRow, error)
	DayScans(ctx context.Context, className models.ClassName, day time.Time) ([]models.DayScanRow, error)
	StudentScans(ctx context.Context, studentID string) ([]models.StudentScanRow, error)
}

type attendanceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool)
}

// AttendanceService owns the QR session lifecycle, the scan policy and the
// attendance queries.
type AttendanceService struct {
	repo      sessionRepository
	cache     attendanceCache
	metrics   cacheObserver
	validator *validator.Validate
	logger    *zap.Logger
	cfg       config.AttendanceConfig
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo sessionRepository, cache attendanceCache, metrics cacheObserver, validate *validator.Validate, logger *zap.Logger, cfg config.AttendanceConfig) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	svc := &AttendanceService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
	svc.validator.RegisterValidation("class_name", func(fl validator.FieldLevel) bool {
		return models.ClassName(fl.Field().String()).Valid()
	})
	return svc
}

// CreateSessionRequest is the payload for minting a new QR session.
type CreateSessionRequest struct {
	ClassName string `json:"className" validate:"required,class_name"`
}

// ListSessionsRequest pages through existing sessions.
type ListSessionsRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// ClassQueryRequest filters the by-class attendance report.
type ClassQueryRequest struct {
	ClassName string `json:"className" validate:"required,class_name"`
	Page      int    `json:"page"`
	Size      int    `json:"size"`
	Month     string `json:"month"`
	Search    string `json:"search"`
}

// DayQueryRequest filters today's attendance report.
type DayQueryRequest struct {
	ClassName string `json:"className" validate:"omitempty,class_name"`
	Page      int    `json:"page"`
	Size      int    `json:"size"`
}

// StudentQueryRequest pages through one student's attendance history.
type StudentQueryRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	Page      int    `json:"page"`
	Size      int    `json:"size"`
	Month     string `json:"month"`
}

// ClassAttendancePage is the by-class report envelope.
type ClassAttendancePage struct {
	response.Page
	ClassName models.ClassName `json:"className"`
	Month     string           `json:"month,omitempty"`
	Search    string           `json:"search,omitempty"`
}

// DayAttendancePage is the by-day report envelope.
type DayAttendancePage struct {
	response.Page
	Date       string `json:"date"`
	TotalToday int    `json:"totalToday"`
}

// CreateSession mints a QR session for a class. Multiple live sessions per
// class are allowed.
func (s *AttendanceService) CreateSession(ctx context.Context, req CreateSessionRequest, claims *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "className is required and must be a known class")
	}

	token, err := generateToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate QR token")
	}

	session := &models.Session{
		ClassName: models.ClassName(req.ClassName),
		Token:     token,
		CreatedBy: claims.UserID,
		CreatedAt: time.Now(),
	}

	if err := s.repo.Insert(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create QR session")
	}

	s.logger.Info("qr session created",
		zap.String("session_id", session.ID),
		zap.String("class_name", string(session.ClassName)),
		zap.String("created_by", claims.UserID),
	)

	return session, nil
}

// ListSessions returns paged sessions without scan detail, newest first.
func (s *AttendanceService) ListSessions(ctx context.Context, req ListSessionsRequest) (*response.Page, error) {
	page, size := s.normalizePage(req.Page, req.Size)

	rows, total, err := s.repo.List(ctx, page, size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list QR sessions")
	}
	if rows == nil {
		rows = []models.SessionSummary{}
	}

	result := response.NewPage(rows, page, size, total)
	return &result, nil
}

// DeleteSession permanently removes a session and its scan history.
func (s *AttendanceService) DeleteSession(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "QR session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete QR session")
	}

	s.invalidateTodayCache(ctx)
	return nil
}

// Scan records attendance for a student presenting a QR token.
//
// Check order is part of the contract: unknown token, then class mismatch,
// then the daily duplicate. The storage constraint on (session, student, day)
// closes the race between concurrent scans; the pre-check only provides the
// common-case answer without an insert attempt.
func (s *AttendanceService) Scan(ctx context.Context, token string, claims *models.JWTClaims) (*models.ScanResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "qrCode is required")
	}

	session, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid QR code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up QR session")
	}

	if claims.ClassName != session.ClassName {
		return nil, appErrors.Clone(appErrors.ErrClassMismatch,
			fmt.Sprintf("wrong class: this QR code is for %s, you are in %s", session.ClassName, claims.ClassName))
	}

	now := time.Now()
	day := calendarDay(now)

	attended, err := s.repo.HasScanOnDay(ctx, session.ID, claims.UserID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check today's attendance")
	}
	if attended {
		return nil, appErrors.Clone(appErrors.ErrAlreadyAttended, "you already attended today, come back tomorrow")
	}

	record := &models.ScanRecord{
		SessionID: session.ID,
		StudentID: claims.UserID,
		ScannedAt: now,
		ScanDay:   day,
	}
	if err := s.repo.AppendScan(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateScan) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyAttended, "you already attended today, come back tomorrow")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.invalidateTodayCache(ctx)
	s.logger.Info("attendance recorded",
		zap.String("session_id", session.ID),
		zap.String("student_id", claims.UserID),
		zap.String("class_name", string(session.ClassName)),
	)

	return &models.ScanResult{
		Message:    "attendance recorded",
		ClassName:  session.ClassName,
		AttendedAt: now,
	}, nil
}

// ByClass reports all scans across a class's sessions, flattened, filtered,
// sorted by scan time descending and paginated in memory.
//
// The month value filters twice on purpose: it restricts which sessions are
// considered (by creation time) AND which individual scans survive (by their
// own time).
func (s *AttendanceService) ByClass(ctx context.Context, req ClassQueryRequest) (*ClassAttendancePage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "className is required and must be a known class")
	}
	page, size := s.normalizePage(req.Page, req.Size)

	records, err := s.classRecords(ctx, models.ClassName(req.ClassName), req.Month, req.Search)
	if err != nil {
		return nil, err
	}

	content := paginate(records, page, size)
	return &ClassAttendancePage{
		Page:      response.NewPage(content, page, size, len(records)),
		ClassName: models.ClassName(req.ClassName),
		Month:     req.Month,
		Search:    strings.TrimSpace(req.Search),
	}, nil
}

// ByDay reports today's scans grouped per session. Sessions without scans
// today are dropped; totalToday counts every matching scan before pagination.
func (s *AttendanceService) ByDay(ctx context.Context, req DayQueryRequest) (*DayAttendancePage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "className must be a known class")
	}
	page, size := s.normalizePage(req.Page, req.Size)

	cacheKey := fmt.Sprintf("attendance:today:%s:%d:%d", defaultString(req.ClassName, "all"), page, size)
	cached := &DayAttendancePage{}
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, cached); err == nil {
			s.recordCache(true)
			return cached, nil
		}
		s.recordCache(false)
	}

	day := calendarDay(time.Now())
	rows, err := s.repo.DayScans(ctx, models.ClassName(req.ClassName), day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's attendance")
	}

	groups := groupBySession(rows)
	totalToday := len(rows)

	content := paginate(groups, page, size)
	result := &DayAttendancePage{
		Page:       response.NewPage(content, page, size, len(groups)),
		Date:       day.Format("Mon Jan 02 2006"),
		TotalToday: totalToday,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.cfg.TodayCacheTTL); err != nil {
			s.logger.Warn("failed to cache today's attendance", zap.Error(err))
		}
	}
	return result, nil
}

// ByStudent reports one student's own attendance history. An unknown student
// yields an empty page rather than an error.
func (s *AttendanceService) ByStudent(ctx context.Context, req StudentQueryRequest) (*response.Page, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "studentId is required")
	}
	page, size := s.normalizePage(req.Page, req.Size)

	var monthStart, monthEnd time.Time
	filterMonth := req.Month != ""
	if filterMonth {
		var err error
		monthStart, monthEnd, err = parseMonth(req.Month)
		if err != nil {
			return nil, err
		}
	}

	rows, err := s.repo.StudentScans(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}

	records := make([]models.StudentAttendanceRecord, 0, len(rows))
	for _, row := range rows {
		if filterMonth && (row.ScannedAt.Before(monthStart) || row.ScannedAt.After(monthEnd)) {
			continue
		}
		records = append(records, models.StudentAttendanceRecord{
			ClassName:   row.ClassName,
			AttendedAt:  row.ScannedAt,
			QRCreatedAt: row.SessionCreatedAt,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].AttendedAt.After(records[j].AttendedAt)
	})

	content := paginate(records, page, size)
	result := response.NewPage(content, page, size, len(records))
	return &result, nil
}

// ExportByClass renders the full (unpaginated) by-class report as CSV or PDF.
func (s *AttendanceService) ExportByClass(ctx context.Context, req ClassQueryRequest, format string) ([]byte, string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "className is required and must be a known class")
	}

	records, err := s.classRecords(ctx, models.ClassName(req.ClassName), req.Month, req.Search)
	if err != nil {
		return nil, "", err
	}

	sheet := export.Sheet{
		Title:   fmt.Sprintf("attendance %s", req.ClassName),
		Headers: []string{"Username", "First Name", "Last Name", "Email", "Attended At", "QR Code"},
	}
	for _, record := range records {
		sheet.Rows = append(sheet.Rows, []string{
			record.Student.Username,
			record.Student.FirstName,
			record.Student.LastName,
			record.Student.Email,
			record.AttendedAt.Format(time.RFC3339),
			record.QRCode,
		})
	}

	switch format {
	case "csv", "":
		payload, err := export.RenderCSV(sheet)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.RenderPDF(sheet)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *AttendanceService) classRecords(ctx context.Context, className models.ClassName, month, search string) ([]models.ClassAttendanceRecord, error) {
	var sessionFrom, sessionTo *time.Time
	var monthStart, monthEnd time.Time
	filterMonth := month != ""
	if filterMonth {
		var err error
		monthStart, monthEnd, err = parseMonth(month)
		if err != nil {
			return nil, err
		}
		sessionFrom, sessionTo = &monthStart, &monthEnd
	}

	rows, err := s.repo.ClassScans(ctx, className, sessionFrom, sessionTo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class attendance")
	}

	needle := strings.ToLower(strings.TrimSpace(search))

	records := make([]models.ClassAttendanceRecord, 0, len(rows))
	for _, row := range rows {
		if filterMonth && (row.ScannedAt.Before(monthStart) || row.ScannedAt.After(monthEnd)) {
			continue
		}
		if needle != "" && !studentMatches(row.StudentInfo, needle) {
			continue
		}
		records = append(records, models.ClassAttendanceRecord{
			ID:          row.ScanID,
			Student:     row.StudentInfo,
			AttendedAt:  row.ScannedAt,
			QRCode:      row.Token,
			QRCreatedAt: row.SessionCreatedAt,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].AttendedAt.After(records[j].AttendedAt)
	})
	return records, nil
}

func (s *AttendanceService) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCacheOperation(hit)
}

func (s *AttendanceService) invalidateTodayCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "attendance:today:*"); err != nil {
		s.logger.Warn("failed to invalidate today's attendance cache", zap.Error(err))
	}
}

func (s *AttendanceService) normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.cfg.DefaultPageSize
	}
	if size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}
	return page, size
}

func studentMatches(student models.StudentInfo, needle string) bool {
	first := strings.ToLower(student.FirstName)
	last := strings.ToLower(student.LastName)
	full := first + " " + last
	return strings.Contains(first, needle) || strings.Contains(last, needle) || strings.Contains(full, needle)
}

// parseMonth validates the strict YYYY-MM shape and returns the inclusive
// bounds of that month in server-local time.
func parseMonth(raw string) (time.Time, time.Time, error) {
	if !monthPattern.MatchString(raw) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid month format, use YYYY-MM (e.g. 2025-10)")
	}
	parts := strings.SplitN(raw, "-", 2)
	year, _ := strconv.Atoi(parts[0])
	monthNum, _ := strconv.Atoi(parts[1])

	start := time.Date(year, time.Month(monthNum), 1, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end, nil
}

// calendarDay truncates a time to its server-local calendar day.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func groupBySession(rows []models.DayScanRow) []models.DaySessionGroup {
	groups := make([]models.DaySessionGroup, 0)
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.SessionID]
		if !ok {
			groups = append(groups, models.DaySessionGroup{
				SessionID:     row.SessionID,
				ClassName:     row.SessionClassName,
				QRCode:        row.Token,
				TodayStudents: []models.DayScan{},
			})
			i = len(groups) - 1
			index[row.SessionID] = i
		}
		groups[i].TodayStudents = append(groups[i].TodayStudents, models.DayScan{
			Student:    row.StudentInfo,
			AttendedAt: row.ScannedAt,
		})
	}
	return groups
}

func paginate[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// generateToken returns 128 bits of entropy hex-encoded, matching the QR
// payload format scanners already expect.
func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
