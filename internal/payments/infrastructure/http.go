package infrastructure

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront/internal/payments/application"
	"storefront/internal/payments/domain"
	"storefront/internal/security"
	"storefront/pkg/errors"
	"storefront/pkg/middleware"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "Webhook-Signature"

// HTTPHandler handles HTTP requests for payments
type HTTPHandler struct {
	useCase *application.PaymentUseCase
	upi     *application.UPIOrchestrator
	webhook *application.WebhookProcessor
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	useCase *application.PaymentUseCase,
	upi *application.UPIOrchestrator,
	webhook *application.WebhookProcessor,
) *HTTPHandler {
	return &HTTPHandler{useCase: useCase, upi: upi, webhook: webhook}
}

// RegisterRoutes registers payment routes. The webhook goes on api rather
// than limited: it stays outside identity, rate limiting and body
// rewriting, since the provider authenticates by signature over the exact
// request bytes and its delivery retries must never see a 429. verifyLimit
// rate-limits the UPI verify route.
func (h *HTTPHandler) RegisterRoutes(api, limited *gin.RouterGroup, verifyLimit gin.HandlerFunc) {
	api.POST("/payments/webhook", h.Webhook)

	payments := limited.Group("/payments")
	{
		authed := payments.Group("", middleware.RequireUser())
		{
			authed.POST("/intent", h.CreateIntent)
			authed.POST("/confirm", h.ConfirmPayment)
			authed.POST("/customer", h.CreateCustomer)
			authed.POST("/methods/attach", h.AttachPaymentMethod)
			authed.POST("/methods/detach", h.DetachPaymentMethod)

			upi := authed.Group("/upi")
			{
				upi.POST("/intent", h.CreateUPIIntent)
				upi.GET("/:txn_id/status", h.UPIStatus)
				upi.POST("/:txn_id/verify", verifyLimit, h.UPIVerify)
			}
		}
	}
}

// CreateIntentRequest is the request body for creating a payment intent
type CreateIntentRequest struct {
	OrderID        string `json:"order_id" binding:"required"`
	Currency       string `json:"currency" binding:"required"`
	BillingCountry string `json:"billing_country"`
}

// IntentResponse is the response body for intent operations
type IntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// CreateIntent handles POST /payments/intent
func (h *HTTPHandler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.Error(errors.NewValidation("invalid order id", nil))
		return
	}

	intent, err := h.useCase.CreateIntent(c.Request.Context(), application.CreateIntentInput{
		OrderID:        orderID,
		UserID:         c.GetString(middleware.UserIDKey),
		Currency:       req.Currency,
		BillingCountry: req.BillingCountry,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": IntentResponse{
			ID:           intent.ID,
			ClientSecret: intent.ClientSecret,
			Amount:       intent.Amount,
			Currency:     intent.Currency,
			Status:       intent.Status,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ConfirmPaymentRequest is the request body for confirming a payment
type ConfirmPaymentRequest struct {
	IntentID string `json:"intent_id" binding:"required"`
}

// ConfirmPayment handles POST /payments/confirm
func (h *HTTPHandler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	order, err := h.useCase.ConfirmPayment(c.Request.Context(),
		c.GetString(middleware.UserIDKey), req.IntentID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"order_id": order.ID.String(),
			"status":   string(order.Status),
			"is_paid":  order.IsPaid,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// Webhook handles POST /payments/webhook. The raw body is read before
// any binding since the signature covers the exact bytes on the wire.
func (h *HTTPHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(errors.NewValidation("unreadable webhook body", nil))
		return
	}

	if err := h.webhook.Process(c.Request.Context(), body, c.GetHeader(SignatureHeader)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// CreateCustomer handles POST /payments/customer
func (h *HTTPHandler) CreateCustomer(c *gin.Context) {
	customerID, err := h.useCase.CreateCustomer(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":     gin.H{"customer_id": customerID},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// AttachMethodRequest is the request body for attaching a payment method
type AttachMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
	CustomerID      string `json:"customer_id" binding:"required"`
}

// AttachPaymentMethod handles POST /payments/methods/attach
func (h *HTTPHandler) AttachPaymentMethod(c *gin.Context) {
	var req AttachMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	if err := h.useCase.AttachPaymentMethod(c.Request.Context(), req.PaymentMethodID, req.CustomerID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     gin.H{"attached": true},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// DetachMethodRequest is the request body for detaching a payment method
type DetachMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

// DetachPaymentMethod handles POST /payments/methods/detach
func (h *HTTPHandler) DetachPaymentMethod(c *gin.Context) {
	var req DetachMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	if err := h.useCase.DetachPaymentMethod(c.Request.Context(), req.PaymentMethodID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     gin.H{"detached": true},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// CreateUPIIntentRequest is the request body for creating a UPI intent
type CreateUPIIntentRequest struct {
	OrderID           string `json:"order_id" binding:"required"`
	Description       string `json:"description"`
	CustomerUPIHandle string `json:"customer_upi_handle"`
}

// UPIIntentResponse is the response body for UPI intent operations
type UPIIntentResponse struct {
	TransactionID string            `json:"transaction_id"`
	OrderID       string            `json:"order_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	DeepLink      string            `json:"deep_link,omitempty"`
	QRPayload     string            `json:"qr_payload,omitempty"`
	AppLinks      map[string]string `json:"app_links,omitempty"`
	ExpiresAt     string            `json:"expires_at"`
}

func toUPIResponse(output *application.UPIIntentOutput) UPIIntentResponse {
	resp := UPIIntentResponse{
		TransactionID: output.Intent.TransactionID,
		OrderID:       output.Intent.OrderID,
		Amount:        output.Intent.Amount.StringFixed(2),
		Currency:      output.Intent.Currency,
		Status:        string(output.Intent.Status),
		ExpiresAt:     output.Intent.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	// Payment renderings are only meaningful while the intent is payable.
	if output.Intent.Status == domain.UPIStatusPending {
		resp.DeepLink = output.DeepLink
		resp.QRPayload = output.QRPayload
		resp.AppLinks = output.AppLinks
	}
	return resp
}

// CreateUPIIntent handles POST /payments/upi/intent
func (h *HTTPHandler) CreateUPIIntent(c *gin.Context) {
	var req CreateUPIIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.Error(errors.NewValidation("invalid order id", nil))
		return
	}

	output, err := h.upi.CreateIntent(c.Request.Context(), application.UPICreateIntentInput{
		OrderID:        orderID,
		UserID:         c.GetString(middleware.UserIDKey),
		Description:    security.SanitizeString(req.Description),
		CustomerHandle: req.CustomerUPIHandle,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":     toUPIResponse(output),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// UPIStatus handles GET /payments/upi/:txn_id/status
func (h *HTTPHandler) UPIStatus(c *gin.Context) {
	output, err := h.upi.GetStatus(c.Request.Context(), c.Param("txn_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toUPIResponse(output),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// UPIVerifyRequest is the request body for verifying a UPI payment
type UPIVerifyRequest struct {
	ProviderTransactionID string `json:"provider_transaction_id"`
}

// UPIVerify handles POST /payments/upi/:txn_id/verify
func (h *HTTPHandler) UPIVerify(c *gin.Context) {
	var req UPIVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.upi.Verify(c.Request.Context(), c.Param("txn_id"), req.ProviderTransactionID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toUPIResponse(output),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}
