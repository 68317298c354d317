package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/logging"
)

// APIError is an error with the HTTP status it maps to.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// toAPIError maps service errors onto HTTP statuses. Messages of 5xx
// responses never include the cause.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, common.ErrorNotFound):
		return &APIError{Status: http.StatusNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, common.ErrorSchema):
		return &APIError{Status: http.StatusUnprocessableEntity, Message: err.Error(), Err: err}
	case errors.Is(err, common.ErrorValidation):
		return &APIError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return &APIError{Status: http.StatusUnauthorized, Message: "unauthorized", Err: err}
	case errors.Is(err, common.ErrorForbidden):
		return &APIError{Status: http.StatusForbidden, Message: "forbidden", Err: err}
	case errors.Is(err, common.ErrConcurrentModification):
		return &APIError{Status: http.StatusServiceUnavailable, Message: "too many concurrent updates, retry later", Err: err}
	case errors.Is(err, common.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: http.StatusServiceUnavailable, Message: "request timed out, retry later", Err: err}
	case errors.Is(err, common.ErrStoreUnavailable):
		return &APIError{Status: http.StatusServiceUnavailable, Message: "storage unavailable, retry later", Err: err}
	}
	return &APIError{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// bindError turns a request binding failure into a validation error naming
// the offending fields.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: malformed request body", common.ErrorValidation)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", common.ErrorValidation, strings.Join(msgs, ", "))
}

// ErrorHandler renders the last error a handler recorded with c.Error.
func ErrorHandler(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		apiErr := toAPIError(c.Errors.Last().Err)

		ctx := c.Request.Context()
		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error(ctx, "request failed", "request_id", c.GetString(requestIDKey), "status", apiErr.Status, "error", apiErr.Err)
		} else {
			logger.Info(ctx, "request rejected", "request_id", c.GetString(requestIDKey), "status", apiErr.Status, "error", apiErr.Err)
		}

		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr.Message})
	}
}
