package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apiErrors "github.com/customeros/domails/api/errors"
	"github.com/customeros/domails/interfaces"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
)

type EmailsHandler struct {
	emailService interfaces.EmailService
}

func NewEmailsHandler(emailService interfaces.EmailService) *EmailsHandler {
	return &EmailsHandler{
		emailService: emailService,
	}
}

// Send handles the HTTP request to send a new email through a verified domain
func (h *EmailsHandler) Send() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Send")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request models.OutboundSendRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apiErrors.Respond(c, span, domailsErrors.NewFieldError("body", err.Error()))
			return
		}

		result, err := h.emailService.Send(ctx, &request)
		if err != nil {
			apiErrors.Respond(c, span, err)
			return
		}

		c.JSON(http.StatusAccepted, result)
	}
}
