package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetSubscription(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}

	subscription, err := s.subscriptionSvc.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}

type cancelSubscriptionRequest struct {
	CancelAtPeriodEnd *bool `json:"cancel_at_period_end"`
}

// CancelSubscriptionAtPeriodEnd flags the subscription to lapse when the paid
// period runs out. Passing cancel_at_period_end=false un-flags it.
func (s *Server) CancelSubscriptionAtPeriodEnd(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}

	cancel := true
	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.CancelAtPeriodEnd != nil {
		cancel = *req.CancelAtPeriodEnd
	}

	subscription, err := s.subscriptionSvc.SetCancelAtPeriodEnd(c.Request.Context(), userID, cancel)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}
