package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/MosTaFa-Abdulrahman/attend-api/pkg/errors"
)

// Page is the common pagination envelope returned by every list endpoint.
type Page struct {
	Content       interface{} `json:"content"`
	Page          int         `json:"page"`
	Size          int         `json:"size"`
	TotalElements int         `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
	First         bool        `json:"first"`
	Last          bool        `json:"last"`
}

// NewPage assembles the envelope from an already-sliced content list.
// last is true only on the exact final page; an empty result keeps
// last=true since there is nothing further to fetch.
func NewPage(content interface{}, page, size, totalElements int) Page {
	totalPages := 0
	if size > 0 {
		totalPages = (totalElements + size - 1) / size
	}
	return Page{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: totalElements,
		TotalPages:    totalPages,
		First:         page == 1,
		Last:          page == totalPages || totalPages == 0,
	}
}

// JSON sends a success response.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, payload)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusCreated, payload)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, gin.H{"error": appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
