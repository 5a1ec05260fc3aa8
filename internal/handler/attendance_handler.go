package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/service"
	appErrors "github.com/MosTaFa-Abdulrahman/attend-api/pkg/errors"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/response"
)

type attendanceService interface {
	CreateSession(ctx context.Context, req service.CreateSessionRequest, claims *models.JWTClaims) (*models.Session, error)
	ListSessions(ctx context.Context, req service.ListSessionsRequest) (*response.Page, error)
	DeleteSession(ctx context.Context, id string) error
	Scan(ctx context.Context, token string, claims *models.JWTClaims) (*models.ScanResult, error)
	ByClass(ctx context.Context, req service.ClassQueryRequest) (*service.ClassAttendancePage, error)
	ByDay(ctx context.Context, req service.DayQueryRequest) (*service.DayAttendancePage, error)
	ByStudent(ctx context.Context, req service.StudentQueryRequest) (*response.Page, error)
	ExportByClass(ctx context.Context, req service.ClassQueryRequest, format string) ([]byte, string, error)
}

type scanObserver interface {
	ObserveScan(outcome string)
}

// AttendanceHandler exposes the QR attendance endpoints.
type AttendanceHandler struct {
	service attendanceService
	metrics scanObserver
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService, metrics scanObserver) *AttendanceHandler {
	return &AttendanceHandler{service: service, metrics: metrics}
}

type scanRequest struct {
	QRCode string `json:"qrCode"`
}

// CreateSession godoc
// @Summary Create a QR attendance session for a class
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Class name"
// @Success 201 {object} models.Session
// @Router /attendance [post]
func (h *AttendanceHandler) CreateSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ListSessions godoc
// @Summary List QR sessions without scan detail
// @Tags Attendance
// @Produce json
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Success 200 {object} response.Page
// @Router /attendance/all [get]
func (h *AttendanceHandler) ListSessions(c *gin.Context) {
	req := service.ListSessionsRequest{
		Page: parseQueryInt(c, "page", 1),
		Size: parseQueryInt(c, "size", 10),
	}

	page, err := h.service.ListSessions(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page)
}

// DeleteSession godoc
// @Summary Delete a QR session and its scan history
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]string
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) DeleteSession(c *gin.Context) {
	if err := h.service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "deleted"})
}

// Scan godoc
// @Summary Record attendance by scanning a QR code
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body scanRequest true "QR token"
// @Success 200 {object} models.ScanResult
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	result, err := h.service.Scan(c.Request.Context(), req.QRCode, claims)
	if err != nil {
		h.observeScan(err)
		response.Error(c, err)
		return
	}
	h.observeScan(nil)
	response.JSON(c, http.StatusOK, result)
}

// ByClass godoc
// @Summary Attended students of a class, flattened across sessions
// @Tags Attendance
// @Produce json
// @Param className path string true "Class name"
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Param month query string false "Month filter (YYYY-MM)"
// @Param search query string false "Name search"
// @Success 200 {object} service.ClassAttendancePage
// @Router /attendance/class/{className} [get]
func (h *AttendanceHandler) ByClass(c *gin.Context) {
	req := service.ClassQueryRequest{
		ClassName: c.Param("className"),
		Page:      parseQueryInt(c, "page", 1),
		Size:      parseQueryInt(c, "size", 10),
		Month:     c.Query("month"),
		Search:    c.Query("search"),
	}

	page, err := h.service.ByClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page)
}

// ByDay godoc
// @Summary Today's attendance grouped by session
// @Tags Attendance
// @Produce json
// @Param className query string false "Class name"
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Success 200 {object} service.DayAttendancePage
// @Router /attendance/today [get]
func (h *AttendanceHandler) ByDay(c *gin.Context) {
	req := service.DayQueryRequest{
		ClassName: c.Query("className"),
		Page:      parseQueryInt(c, "page", 1),
		Size:      parseQueryInt(c, "size", 10),
	}

	page, err := h.service.ByDay(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page)
}

// MyAttendance godoc
// @Summary The calling student's own attendance history
// @Tags Attendance
// @Produce json
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Param month query string false "Month filter (YYYY-MM)"
// @Success 200 {object} response.Page
// @Router /attendance/my [get]
func (h *AttendanceHandler) MyAttendance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req := service.StudentQueryRequest{
		StudentID: claims.UserID,
		Page:      parseQueryInt(c, "page", 1),
		Size:      parseQueryInt(c, "size", 10),
		Month:     c.Query("month"),
	}

	page, err := h.service.ByStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page)
}

// StudentAttendance godoc
// @Summary One student's attendance history (admin view)
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Param month query string false "Month filter (YYYY-MM)"
// @Success 200 {object} response.Page
// @Router /attendance/student/{studentId} [get]
func (h *AttendanceHandler) StudentAttendance(c *gin.Context) {
	req := service.StudentQueryRequest{
		StudentID: c.Param("studentId"),
		Page:      parseQueryInt(c, "page", 1),
		Size:      parseQueryInt(c, "size", 10),
		Month:     c.Query("month"),
	}

	page, err := h.service.ByStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page)
}

// ExportByClass godoc
// @Summary Export a class attendance report as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param className path string true "Class name"
// @Param format query string false "csv or pdf"
// @Param month query string false "Month filter (YYYY-MM)"
// @Param search query string false "Name search"
// @Router /attendance/class/{className}/export [get]
func (h *AttendanceHandler) ExportByClass(c *gin.Context) {
	req := service.ClassQueryRequest{
		ClassName: c.Param("className"),
		Page:      1,
		Size:      1,
		Month:     c.Query("month"),
		Search:    c.Query("search"),
	}
	format := c.DefaultQuery("format", "csv")

	payload, contentType, err := h.service.ExportByClass(c.Request.Context(), req, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("attendance_%s.%s", req.ClassName, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

func (h *AttendanceHandler) observeScan(err error) {
	if h.metrics == nil {
		return
	}
	if err == nil {
		h.metrics.ObserveScan("accepted")
		return
	}
	switch appErrors.FromError(err).Code {
	case appErrors.ErrInvalidToken.Code:
		h.metrics.ObserveScan("invalid_token")
	case appErrors.ErrClassMismatch.Code:
		h.metrics.ObserveScan("class_mismatch")
	case appErrors.ErrAlreadyAttended.Code:
		h.metrics.ObserveScan("already_attended")
	default:
		h.metrics.ObserveScan("error")
	}
}
