package response

import "github.com/gin-gonic/gin"

type APIResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

type APIError struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

func OK(c *gin.Context, httpStatus int, data interface{}, message string) {
	c.JSON(httpStatus, APIResponse{
		StatusCode: httpStatus,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

// Error writes the error envelope. errs is always encoded as an array.
func Error(c *gin.Context, httpStatus int, message string, errs ...string) {
	if errs == nil {
		errs = []string{}
	}
	c.JSON(httpStatus, APIError{
		StatusCode: httpStatus,
		Message:    message,
		Success:    false,
		Errors:     errs,
	})
}

// Abort is Error for middleware that must stop the chain.
func Abort(c *gin.Context, httpStatus int, message string) {
	Error(c, httpStatus, message)
	c.Abort()
}
