package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/middleware"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	"github.com/MosTaFa-Abdulrahman/attend-api/internal/service"
)

// Deps bundles everything the router needs.
type Deps struct {
	Auth       *service.AuthService
	Attendance *AttendanceHandler
	AuthH      *AuthHandler
	Users      *UserHandler
	Degrees    *DegreeHandler
}

// Register mounts all API routes under the given group.
func Register(api *gin.RouterGroup, deps Deps) {
	requireAuth := middleware.JWT(deps.Auth)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	auth := api.Group("/auth")
	{
		auth.POST("/register", deps.AuthH.Register)
		auth.POST("/login", deps.AuthH.Login)
	}

	users := api.Group("/users", requireAuth)
	{
		users.GET("", adminOnly, deps.Users.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), deps.Users.Get)
		users.PUT("/:id", middleware.RBAC("SELF"), deps.Users.UpdateProfile)
	}

	attendance := api.Group("/attendance", requireAuth)
	{
		attendance.POST("", adminOnly, deps.Attendance.CreateSession)
		attendance.DELETE("/:id", adminOnly, deps.Attendance.DeleteSession)
		attendance.GET("/all", adminOnly, deps.Attendance.ListSessions)
		attendance.GET("/today", adminOnly, deps.Attendance.ByDay)
		attendance.GET("/class/:className", adminOnly, deps.Attendance.ByClass)
		attendance.GET("/class/:className/export", adminOnly, deps.Attendance.ExportByClass)
		attendance.GET("/student/:studentId", adminOnly, deps.Attendance.StudentAttendance)
		attendance.POST("/scan", deps.Attendance.Scan)
		attendance.GET("/my", deps.Attendance.MyAttendance)
	}

	degrees := api.Group("/degrees", requireAuth)
	{
		degrees.POST("/exam/create", adminOnly, deps.Degrees.CreateExam)
		degrees.GET("/exam/:examId", adminOnly, deps.Degrees.ExamDegrees)
		degrees.POST("/add", adminOnly, deps.Degrees.AddDegree)
		degrees.GET("/student/:userId", adminOnly, deps.Degrees.StudentDegrees)
		degrees.GET("/my", deps.Degrees.MyDegrees)
		degrees.DELETE("/:id", adminOnly, deps.Degrees.DeleteDegree)
	}
}
