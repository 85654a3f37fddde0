package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/planely/kassa/internal/payment/domain"
)

type createPaymentRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
	Email  string `json:"email"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}
	if strings.TrimSpace(req.PlanID) == "" {
		AbortWithError(c, newValidationError("plan_id", "required", "plan_id is required"))
		return
	}

	result, err := s.paymentSvc.CreatePayment(c.Request.Context(), paymentdomain.CreatePaymentInput{
		UserID: req.UserID,
		PlanID: req.PlanID,
		Email:  req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment":     result.Payment,
		"payment_url": result.PaymentURL,
	})
}

func (s *Server) ListPayments(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}

	payments, err := s.paymentSvc.ListByUserID(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.GetByOrderID(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) SyncPaymentState(c *gin.Context) {
	payment, err := s.paymentSvc.SyncState(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) CancelPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Cancel(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
