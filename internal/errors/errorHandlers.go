package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypePaymentRequired     ErrorType = "INSUFFICIENT_CREDITS"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeRateLimited         ErrorType = "RATE_LIMITED"
	ErrorTypeTranslationFailed   ErrorType = "TRANSLATION_FAILED"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

func New402Error(message string) *CustomError {
	return newError(ErrorTypePaymentRequired, message, http.StatusPaymentRequired, nil)
}

// New403Error creates a new forbidden error with a user-facing reason
func New403Error(message string) *CustomError {
	if message == "" {
		message = "Access forbidden"
	}
	return newError(ErrorTypeForbidden, message, http.StatusForbidden, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

func New429Error(message string) *CustomError {
	return newError(ErrorTypeRateLimited, message, http.StatusTooManyRequests, nil)
}

// NewTranslationError is returned when every translation attempt was rejected.
func NewTranslationError(internal error) *CustomError {
	return newError(ErrorTypeTranslationFailed, "Translation failed. Please try again.", http.StatusBadGateway, internal)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "Something went wrong. Please try again.", http.StatusInternalServerError, internal)
}

// As extracts a CustomError from err, wrapping unknown errors as 500s.
func As(err error) *CustomError {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr
	}
	return New500Error(err)
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := As(err)

	// Log internal server errors
	if customErr.Type == ErrorTypeInternalServerError || customErr.Type == ErrorTypeTranslationFailed {
		log.Ctx(c.Request.Context()).Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg(string(customErr.Type))
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}

// LogAndReturn500 logs an internal error and returns a 500 error
func LogAndReturn500(internal error) *CustomError {
	log.Error().Err(internal).Msg("Internal Server Error")
	return New500Error(internal)
}
