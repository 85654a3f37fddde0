package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/planely/kassa/internal/config"
	paymentdomain "github.com/planely/kassa/internal/payment/domain"
	subscriptiondomain "github.com/planely/kassa/internal/subscription/domain"
	"github.com/planely/kassa/internal/tkassa"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, tkassa.ErrMalformedPayload),
		errors.Is(err, paymentdomain.ErrInvalidInput),
		errors.Is(err, paymentdomain.ErrInvalidUpdate),
		errors.Is(err, paymentdomain.ErrUnknownPlan),
		errors.Is(err, tkassa.ErrInvalidAmount),
		errors.Is(err, tkassa.ErrMissingOrderID):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
		}
	// Signature failures stay indistinguishable from each other: no detail
	// about which terminal or secret was tried leaves the process.
	case errors.Is(err, tkassa.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrOrderExists),
		errors.Is(err, paymentdomain.ErrNoProviderID):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, paymentdomain.ErrConcurrentUpdate),
		errors.Is(err, paymentdomain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "temporarily unavailable",
		}
	case errors.Is(err, config.ErrMissingCredentials):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var gwErr *tkassa.GatewayError
	if errors.As(err, &gwErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "payment provider rejected the request",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var typed *ValidationErrors
	if errors.As(err, &typed) {
		return typed
	}
	var value ValidationErrors
	if errors.As(err, &value) {
		return &value
	}
	return nil
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return payload.Type, "5xx"
	case status >= http.StatusBadRequest:
		return payload.Type, "4xx"
	default:
		return payload.Type, "ok"
	}
}
