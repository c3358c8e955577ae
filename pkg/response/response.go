package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorCodes = map[int]string{
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusConflict:            "CONFLICT",
	http.StatusInternalServerError: "INTERNAL_ERROR",
}

func reply(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

// Success sends data with 200.
func Success(c *gin.Context, data any) { reply(c, http.StatusOK, data) }

// Created sends data with 201.
func Created(c *gin.Context, data any) { reply(c, http.StatusCreated, data) }

// Fail sends an error envelope. The code is derived from the status.
func Fail(c *gin.Context, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		code = "ERROR"
	}
	c.JSON(status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func BadRequest(c *gin.Context, message string)    { Fail(c, http.StatusBadRequest, message) }
func NotFound(c *gin.Context, message string)      { Fail(c, http.StatusNotFound, message) }
func Conflict(c *gin.Context, message string)      { Fail(c, http.StatusConflict, message) }
func InternalError(c *gin.Context, message string) { Fail(c, http.StatusInternalServerError, message) }
