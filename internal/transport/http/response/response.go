package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUnsupportedFormat  = 40010
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeSessionExpired     = 40102
	CodeCareLogNotFound    = 40401
	CodeFileNotFound       = 40402
	CodePayloadTooLarge    = 41300
	CodeInternalServer     = 50000
	CodePipelineFailed     = 50001
	CodeUpstreamFailed     = 50200
	CodeNotConfigured      = 50300
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

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData is Error plus a payload describing the failure.
func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
