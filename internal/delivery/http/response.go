package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"stocktrigger/internal/domain"
)

// Response represents a standardized API response
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// SuccessResponse sends a success response
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// SuccessMessageResponse sends a success response with a message
func SuccessMessageResponse(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c echo.Context, statusCode int, message string, err interface{}) error {
	return c.JSON(statusCode, Response{
		Status:  "error",
		Message: message,
		Error:   err,
	})
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, message, nil)
}

// UnauthorizedResponse sends a 401 Unauthorized response
func UnauthorizedResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusUnauthorized, message, nil)
}

// ConflictResponse sends a 409 Conflict response
func ConflictResponse(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusConflict, Response{
		Status:  "error",
		Message: message,
		Data:    data,
	})
}

// InternalServerErrorResponse sends a 500 Internal Server Error response
func InternalServerErrorResponse(c echo.Context, message string, err error) error {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return ErrorResponse(c, http.StatusInternalServerError, message, errMsg)
}

// DomainErrorResponse maps engine errors to status codes
func DomainErrorResponse(c echo.Context, message string, err error) error {
	switch {
	case errors.Is(err, domain.ErrConstraintNotFound), errors.Is(err, domain.ErrNotFound):
		return ErrorResponse(c, http.StatusNotFound, message, err.Error())
	case errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrInsufficientHistory),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidConstraint),
		errors.Is(err, domain.ErrInvalidSymbol):
		return ErrorResponse(c, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrFeedUnavailable),
		errors.Is(err, domain.ErrPriceTimeout):
		return ErrorResponse(c, http.StatusBadGateway, message, err.Error())
	}
	return InternalServerErrorResponse(c, message, err)
}
