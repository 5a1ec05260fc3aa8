package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/repository"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/service"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/config"
)

type memUserRepo struct {
	users map[string]*models.User
	seq   int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*models.User{}}
}

func (m *memUserRepo) Create(ctx context.Context, user *models.User) error {
	m.seq++
	user.ID = fmt.Sprintf("u-%d", m.seq)
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (m *memUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

type memSessionRepo struct {
	sessions map[string]*models.Session
	scans    []models.ScanRecord
	users    *memUserRepo
	seq      int
}

func newMemSessionRepo(users *memUserRepo) *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*models.Session{}, users: users}
}

func (m *memSessionRepo) studentInfo(id string) models.StudentInfo {
	u, ok := m.users.users[id]
	if !ok {
		return models.StudentInfo{ID: id}
	}
	return models.StudentInfo{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		ClassName: u.ClassName,
	}
}

func (m *memSessionRepo) Insert(ctx context.Context, session *models.Session) error {
	m.seq++
	session.ID = fmt.Sprintf("sess-%d", m.seq)
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memSessionRepo) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	for _, s := range m.sessions {
		if s.Token == token {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *memSessionRepo) List(ctx context.Context, page, size int) ([]models.SessionSummary, int, error) {
	all := make([]models.SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, models.SessionSummary{Session: *s, CreatedByUsername: "admin"})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, len(all), nil
}

func (m *memSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, ok := m.sessions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) AppendScan(ctx context.Context, record *models.ScanRecord) error {
	for _, scan := range m.scans {
		if scan.SessionID == record.SessionID && scan.StudentID == record.StudentID && scan.ScanDay.Equal(record.ScanDay) {
			return repository.ErrDuplicateScan
		}
	}
	m.scans = append(m.scans, *record)
	return nil
}

func (m *memSessionRepo) HasScanOnDay(ctx context.Context, sessionID, studentID string, day time.Time) (bool, error) {
	for _, scan := range m.scans {
		if scan.SessionID == sessionID && scan.StudentID == studentID && scan.ScanDay.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memSessionRepo) ClassScans(ctx context.Context, className models.ClassName, from, to *time.Time) ([]models.ClassScanRow, error) {
	var rows []models.ClassScanRow
	for _, scan := range m.scans {
		session, ok := m.sessions[scan.SessionID]
		if !ok || session.ClassName != className {
			continue
		}
		if from != nil && session.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && session.CreatedAt.After(*to) {
			continue
		}
		rows = append(rows, models.ClassScanRow{
			StudentInfo:      m.studentInfo(scan.StudentID),
			ScanID:           scan.ID,
			ScannedAt:        scan.ScannedAt,
			Token:            session.Token,
			SessionCreatedAt: session.CreatedAt,
		})
	}
	return rows, nil
}

func (m *memSessionRepo) DayScans(ctx context.Context, className models.ClassName, day time.Time) ([]models.DayScanRow, error) {
	var rows []models.DayScanRow
	for _, scan := range m.scans {
		if !scan.ScanDay.Equal(day) {
			continue
		}
		session, ok := m.sessions[scan.SessionID]
		if !ok {
			continue
		}
		if className != "" && session.ClassName != className {
			continue
		}
		rows = append(rows, models.DayScanRow{
			StudentInfo:      m.studentInfo(scan.StudentID),
			SessionID:        session.ID,
			SessionClassName: session.ClassName,
			Token:            session.Token,
			ScannedAt:        scan.ScannedAt,
		})
	}
	return rows, nil
}

func (m *memSessionRepo) StudentScans(ctx context.Context, studentID string) ([]models.StudentScanRow, error) {
	var rows []models.StudentScanRow
	for _, scan := range m.scans {
		session, ok := m.sessions[scan.SessionID]
		if !ok || scan.StudentID != studentID {
			continue
		}
		rows = append(rows, models.StudentScanRow{
			ClassName:        session.ClassName,
			ScannedAt:        scan.ScannedAt,
			SessionCreatedAt: session.CreatedAt,
		})
	}
	return rows, nil
}

func buildTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newMemUserRepo()
	sessions := newMemSessionRepo(users)

	authSvc := service.NewAuthService(users, nil, nil, service.AuthConfig{
		Secret:     "integration-secret",
		Expiration: time.Hour,
		Issuer:     "attend-api",
	})
	metricsSvc := service.NewMetricsService()
	attendanceSvc := service.NewAttendanceService(sessions, nil, metricsSvc, nil, nil, config.AttendanceConfig{
		TodayCacheTTL:   time.Minute,
		DefaultPageSize: 10,
		MaxPageSize:     100,
	})

	r := gin.New()
	api := r.Group("/api/v1")
	Register(api, Deps{
		Auth:       authSvc,
		Attendance: NewAttendanceHandler(attendanceSvc, metricsSvc),
		AuthH:      NewAuthHandler(authSvc),
		Users:      NewUserHandler(service.NewUserService(nil, nil, nil)),
		Degrees:    NewDegreeHandler(service.NewDegreeService(nil, nil, nil, nil)),
	})
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, r *gin.Engine, username, email, role, class string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username":  username,
		"firstName": username,
		"lastName":  "Tester",
		"email":     email,
		"password":  "secret123",
		"role":      role,
		"className": class,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAttendanceFlow(t *testing.T) {
	r := buildTestRouter(t)

	adminToken := registerUser(t, r, "admin", "admin@example.com", "ADMIN", "")
	studentToken := registerUser(t, r, "ahmed", "ahmed@example.com", "STUDENT", "prep_1")

	// Admin mints a session.
	w := doJSON(t, r, http.MethodPost, "/api/v1/attendance", adminToken, gin.H{"className": "prep_1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session struct {
		ID     string `json:"id"`
		QRCode string `json:"qrCode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	require.NotEmpty(t, session.QRCode)

	// Students cannot mint sessions.
	w = doJSON(t, r, http.MethodPost, "/api/v1/attendance", studentToken, gin.H{"className": "prep_1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// First scan is accepted.
	w = doJSON(t, r, http.MethodPost, "/api/v1/attendance/scan", studentToken, gin.H{"qrCode": session.QRCode})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Second scan the same day is rejected.
	w = doJSON(t, r, http.MethodPost, "/api/v1/attendance/scan", studentToken, gin.H{"qrCode": session.QRCode})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_ATTENDED")

	// Unknown token.
	w = doJSON(t, r, http.MethodPost, "/api/v1/attendance/scan", studentToken, gin.H{"qrCode": "bogus"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")

	// The class report shows the one scan.
	w = doJSON(t, r, http.MethodGet, "/api/v1/attendance/class/prep_1", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var classPage struct {
		TotalElements int  `json:"totalElements"`
		First         bool `json:"first"`
		Last          bool `json:"last"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &classPage))
	assert.Equal(t, 1, classPage.TotalElements)
	assert.True(t, classPage.First)
	assert.True(t, classPage.Last)

	// Bad month filter is a 400 with a format hint.
	w = doJSON(t, r, http.MethodGet, "/api/v1/attendance/class/prep_1?month=2026-3", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "YYYY-MM")

	// Students see their own history.
	w = doJSON(t, r, http.MethodGet, "/api/v1/attendance/my", studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var myPage struct {
		TotalElements int `json:"totalElements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &myPage))
	assert.Equal(t, 1, myPage.TotalElements)

	// The by-class report is admin only.
	w = doJSON(t, r, http.MethodGet, "/api/v1/attendance/class/prep_1", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestScanWrongClass(t *testing.T) {
	r := buildTestRouter(t)

	adminToken := registerUser(t, r, "admin", "admin@example.com", "ADMIN", "")
	otherToken := registerUser(t, r, "mona", "mona@example.com", "STUDENT", "prep_2")

	w := doJSON(t, r, http.MethodPost, "/api/v1/attendance", adminToken, gin.H{"className": "prep_1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var session struct {
		QRCode string `json:"qrCode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	w = doJSON(t, r, http.MethodPost, "/api/v1/attendance/scan", otherToken, gin.H{"qrCode": session.QRCode})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "CLASS_MISMATCH")
	assert.Contains(t, w.Body.String(), "prep_1")
	assert.Contains(t, w.Body.String(), "prep_2")
}

func TestRoutesRequireAuth(t *testing.T) {
	r := buildTestRouter(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/attendance"},
		{http.MethodPost, "/api/v1/attendance/scan"},
		{http.MethodGet, "/api/v1/attendance/my"},
		{http.MethodGet, "/api/v1/attendance/class/prep_1"},
		{http.MethodGet, "/api/v1/users"},
	} {
		w := doJSON(t, r, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestExportEndpoint(t *testing.T) {
	r := buildTestRouter(t)

	adminToken := registerUser(t, r, "admin", "admin@example.com", "ADMIN", "")
	studentToken := registerUser(t, r, "ahmed", "ahmed@example.com", "STUDENT", "prep_1")

	w := doJSON(t, r, http.MethodPost, "/api/v1/attendance", adminToken, gin.H{"className": "prep_1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var session struct {
		QRCode string `json:"qrCode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	w = doJSON(t, r, http.MethodPost, "/api/v1/attendance/scan", studentToken, gin.H{"qrCode": session.QRCode})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/attendance/class/prep_1/export?format=csv", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "ahmed")
}
