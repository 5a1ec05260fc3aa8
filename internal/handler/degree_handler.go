package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/service"
	appErrors "github.com/MosTaFa-Abdulrahman/attend-api/pkg/errors"
	"github.com/MosTaFa-Abdulrahman/attend-api/pkg/response"
)

type degreeService interface {
	CreateExam(ctx context.Context, req service.CreateExamRequest, claims *models.JWTClaims) (*models.Exam, error)
	AddDegree(ctx context.Context, req service.AddDegreeRequest, claims *models.JWTClaims) (*models.Degree, error)
	GetExamDegrees(ctx context.Context, examID string) (*service.ExamDegrees, error)
	GetStudentDegrees(ctx context.Context, userID string) ([]models.DegreeDetail, error)
	DeleteDegree(ctx context.Context, id string) error
}

// DegreeHandler exposes exam and degree endpoints.
type DegreeHandler struct {
	service degreeService
}

// NewDegreeHandler constructs the handler.
func NewDegreeHandler(service degreeService) *DegreeHandler {
	return &DegreeHandler{service: service}
}

// CreateExam godoc
// @Summary Define an exam for a class
// @Tags Degrees
// @Accept json
// @Produce json
// @Param payload body service.CreateExamRequest true "Exam payload"
// @Success 201 {object} models.Exam
// @Router /degrees/exam/create [post]
func (h *DegreeHandler) CreateExam(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	exam, err := h.service.CreateExam(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// AddDegree godoc
// @Summary Record a student's degree for an exam
// @Tags Degrees
// @Accept json
// @Produce json
// @Param payload body service.AddDegreeRequest true "Degree payload"
// @Success 201 {object} models.Degree
// @Router /degrees/add [post]
func (h *DegreeHandler) AddDegree(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AddDegreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	degree, err := h.service.AddDegree(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, degree)
}

// ExamDegrees godoc
// @Summary List an exam's degrees, highest first
// @Tags Degrees
// @Produce json
// @Param examId path string true "Exam ID"
// @Success 200 {object} service.ExamDegrees
// @Router /degrees/exam/{examId} [get]
func (h *DegreeHandler) ExamDegrees(c *gin.Context) {
	result, err := h.service.GetExamDegrees(c.Request.Context(), c.Param("examId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// StudentDegrees godoc
// @Summary List one student's degrees (admin view)
// @Tags Degrees
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {array} models.DegreeDetail
// @Router /degrees/student/{userId} [get]
func (h *DegreeHandler) StudentDegrees(c *gin.Context) {
	degrees, err := h.service.GetStudentDegrees(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, degrees)
}

// MyDegrees godoc
// @Summary The calling student's own degrees
// @Tags Degrees
// @Produce json
// @Success 200 {array} models.DegreeDetail
// @Router /degrees/my [get]
func (h *DegreeHandler) MyDegrees(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	degrees, err := h.service.GetStudentDegrees(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, degrees)
}

// DeleteDegree godoc
// @Summary Delete a degree
// @Tags Degrees
// @Produce json
// @Param id path string true "Degree ID"
// @Success 200 {object} map[string]string
// @Router /degrees/{id} [delete]
func (h *DegreeHandler) DeleteDegree(c *gin.Context) {
	if err := h.service.DeleteDegree(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "deleted"})
}
