package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/tracing"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// HTTPStatus maps the engine error taxonomy to a status code.
func HTTPStatus(err error) int {
	var validationErr *domailsErrors.ValidationError
	var webhookErr *domailsErrors.WebhookValidationError
	var providerErr *domailsErrors.ProviderAPIError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, domailsErrors.ErrTenantMissing):
		return http.StatusBadRequest
	case errors.Is(err, domailsErrors.ErrSigningKeyMissing):
		return http.StatusInternalServerError
	case errors.As(err, &webhookErr):
		return http.StatusUnauthorized
	case errors.Is(err, domailsErrors.ErrDomainNotFound):
		return http.StatusNotFound
	case errors.Is(err, domailsErrors.ErrDomainAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, domailsErrors.ErrProvisioningInProgress):
		return http.StatusConflict
	case errors.Is(err, domailsErrors.ErrDomainNotVerified):
		return http.StatusUnprocessableEntity
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse hides internal details of 5xx errors.
func NewErrorResponse(status int, err error) ErrorResponse {
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		return ErrorResponse{Error: http.StatusText(status)}
	}
	response := ErrorResponse{Error: err.Error()}
	var validationErr *domailsErrors.ValidationError
	if errors.As(err, &validationErr) {
		response.Error = "validation failed"
		response.Fields = validationErr.ByField()
	}
	return response
}

// Respond traces err and writes the mapped status and body.
func Respond(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	status := HTTPStatus(err)
	c.AbortWithStatusJSON(status, NewErrorResponse(status, err))
}
