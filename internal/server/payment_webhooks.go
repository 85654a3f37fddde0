package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	obsmetrics "github.com/planely/kassa/internal/observability/metrics"
	paymentdomain "github.com/planely/kassa/internal/payment/domain"
	"github.com/planely/kassa/internal/tkassa"
)

// HandlePaymentWebhook verifies and reconciles one Т-Касса notification.
// The provider retries any non-200 answer, so transient failures map to 5xx
// and only a durably applied (or durably irrelevant) delivery gets the "OK"
// body it expects.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.recordWebhook(obsmetrics.WebhookOutcomeMalformed)
		AbortWithError(c, tkassa.ErrMalformedPayload)
		return
	}

	notification, err := tkassa.ParseNotification(payload, s.cfg.Gateway)
	if err != nil {
		if errors.Is(err, tkassa.ErrInvalidSignature) {
			s.recordWebhook(obsmetrics.WebhookOutcomeRejected)
		} else {
			s.recordWebhook(obsmetrics.WebhookOutcomeMalformed)
		}
		AbortWithError(c, err)
		return
	}

	update := &paymentdomain.ProviderUpdate{
		OrderID:           notification.OrderID,
		ProviderPaymentID: notification.PaymentID,
		ProviderStatus:    notification.Status,
		Amount:            notification.Amount,
		Fields:            notification.Fields,
		Raw:               notification.Raw,
	}
	if err := s.paymentSvc.ProcessUpdate(c.Request.Context(), update); err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrPaymentNotFound):
			s.recordWebhook(obsmetrics.WebhookOutcomeNotFound)
		case errors.Is(err, paymentdomain.ErrConcurrentUpdate):
			s.recordWebhook(obsmetrics.WebhookOutcomeRetryLater)
		default:
			s.recordWebhook(obsmetrics.WebhookOutcomeRetryLater)
		}
		AbortWithError(c, err)
		return
	}

	s.recordWebhook(obsmetrics.WebhookOutcomeProcessed)
	c.String(http.StatusOK, "OK")
}

func (s *Server) recordWebhook(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordWebhook(outcome)
}
