package response

import "github.com/gin-gonic/gin"

const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeFileParse       = 40001
	CodeQuestionEmpty   = 40002
	CodeFileTooLarge    = 40003
	CodeQuestionTooLong = 40004
	CodeEngineNotReady  = 40901
	CodeSessionNotFound = 40401
	CodeInternalServer  = 50000
	CodeIndexBuild      = 50201
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Warn is a 200 response that carries a non-fatal warning as its message.
func Warn(c *gin.Context, message string, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
