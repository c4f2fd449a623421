package utils

import "github.com/gin-gonic/gin"

// RequestIDKey is the gin context key holding the current request id.
const RequestIDKey = "request_id"

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data any) {
	ctx.JSON(status, JSONResponse{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: ctx.GetString(RequestIDKey),
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data any) {
	Respond(ctx, 200, 0, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}
