package infrastructure

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/orders/application"
	"storefront/internal/orders/domain"
	"storefront/internal/pricing"
	"storefront/internal/security"
	"storefront/pkg/errors"
	"storefront/pkg/middleware"
)

// HTTPHandler handles HTTP requests for orders and checkout pricing
type HTTPHandler struct {
	useCase *application.OrderUseCase
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(useCase *application.OrderUseCase) *HTTPHandler {
	return &HTTPHandler{useCase: useCase}
}

// RegisterRoutes registers the order and checkout routes
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	checkout := r.Group("/checkout")
	{
		checkout.POST("/totals", h.PreviewTotals)
		checkout.POST("/coupon", h.ValidateCoupon)
	}

	orders := r.Group("/orders", middleware.RequireUser())
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/cancel", h.CancelOrder)

		// Fulfillment transitions are seller/admin operations, not
		// available to the buying customer.
		fulfillment := orders.Group("", middleware.RequireRole("seller", "admin"))
		{
			fulfillment.POST("/:id/ship", h.MarkShipped)
			fulfillment.POST("/:id/deliver", h.MarkDelivered)
			fulfillment.POST("/:id/refund", h.RefundOrder)
		}
	}
}

// AddressRequest is the shipping address in request bodies
type AddressRequest struct {
	FullName   string `json:"full_name" binding:"required"`
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone"`
}

func (r AddressRequest) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   security.SanitizeString(r.FullName),
		Address:    security.SanitizeString(r.Address),
		City:       security.SanitizeString(r.City),
		State:      security.SanitizeString(r.State),
		PostalCode: security.SanitizeString(r.PostalCode),
		Country:    security.SanitizeString(r.Country),
		Phone:      security.SanitizeString(r.Phone),
	}
}

// LineItemRequest is one requested line in checkout requests
type LineItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

// CreateOrderRequest is the request body for creating an order
type CreateOrderRequest struct {
	Items           []LineItemRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress AddressRequest    `json:"shipping_address" binding:"required"`
	PaymentMethod   string            `json:"payment_method" binding:"required"`
	CouponCode      string            `json:"coupon_code"`
	ShippingMethod  string            `json:"shipping_method"`
}

// OrderItemResponse is one line item in order responses
type OrderItemResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	SellerID  string `json:"seller_id,omitempty"`
}

// StatusEntryResponse is one status-history record in order responses
type StatusEntryResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Note      string `json:"note,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// OrderResponse is the response body for order operations
type OrderResponse struct {
	ID             string                `json:"id"`
	OrderNumber    string                `json:"order_number"`
	UserID         string                `json:"user_id"`
	Items          []OrderItemResponse   `json:"items"`
	PaymentMethod  string                `json:"payment_method"`
	ItemsPrice     string                `json:"items_price"`
	TaxPrice       string                `json:"tax_price"`
	ShippingPrice  string                `json:"shipping_price"`
	DiscountAmount string                `json:"discount_amount"`
	TotalPrice     string                `json:"total_price"`
	CouponCode     string                `json:"coupon_code,omitempty"`
	Status         string                `json:"status"`
	IsPaid         bool                  `json:"is_paid"`
	PaidAt         string                `json:"paid_at,omitempty"`
	IsDelivered    bool                  `json:"is_delivered"`
	DeliveredAt    string                `json:"delivered_at,omitempty"`
	TrackingNumber string                `json:"tracking_number,omitempty"`
	StatusHistory  []StatusEntryResponse `json:"status_history"`
	CreatedAt      string                `json:"created_at"`
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func toOrderResponse(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.OrderItems))
	for _, item := range order.OrderItems {
		items = append(items, OrderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
			SellerID:  item.SellerID,
		})
	}

	history := make([]StatusEntryResponse, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history = append(history, StatusEntryResponse{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.Format(timeFormat),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}

	resp := OrderResponse{
		ID:             order.ID.String(),
		OrderNumber:    order.Number(),
		UserID:         order.UserID,
		Items:          items,
		PaymentMethod:  string(order.PaymentMethod),
		ItemsPrice:     order.ItemsPrice.StringFixed(2),
		TaxPrice:       order.TaxPrice.StringFixed(2),
		ShippingPrice:  order.ShippingPrice.StringFixed(2),
		DiscountAmount: order.DiscountAmount.StringFixed(2),
		TotalPrice:     order.TotalPrice.StringFixed(2),
		CouponCode:     order.CouponCode,
		Status:         string(order.Status),
		IsPaid:         order.IsPaid,
		IsDelivered:    order.IsDelivered,
		TrackingNumber: order.TrackingNumber,
		StatusHistory:  history,
		CreatedAt:      order.CreatedAt.Format(timeFormat),
	}
	if order.PaidAt != nil {
		resp.PaidAt = order.PaidAt.Format(timeFormat)
	}
	if order.DeliveredAt != nil {
		resp.DeliveredAt = order.DeliveredAt.Format(timeFormat)
	}
	return resp
}

// PreviewTotalsRequest is the request body for pricing a cart
type PreviewTotalsRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Name      string `json:"name"`
		UnitPrice string `json:"unit_price" binding:"required"`
		Quantity  int    `json:"quantity" binding:"required,gt=0"`
	} `json:"items" binding:"required,min=1"`
	State          string `json:"state"`
	Country        string `json:"country"`
	CouponCode     string `json:"coupon_code"`
	ShippingMethod string `json:"shipping_method"`
}

// TotalsResponse is the response body for checkout pricing
type TotalsResponse struct {
	ItemsPrice     string `json:"items_price"`
	TaxPrice       string `json:"tax_price"`
	ShippingPrice  string `json:"shipping_price"`
	DiscountAmount string `json:"discount_amount"`
	TotalPrice     string `json:"total_price"`
	CouponCode     string `json:"coupon_code,omitempty"`
	CouponError    string `json:"coupon_error,omitempty"`
}

// PreviewTotals handles POST /checkout/totals
func (h *HTTPHandler) PreviewTotals(c *gin.Context) {
	var req PreviewTotalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	items := make([]pricing.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || price.IsNegative() {
			c.Error(errors.NewValidation("invalid unit price", map[string]interface{}{
				"product_id": item.ProductID,
			}))
			return
		}
		items = append(items, pricing.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: price,
			Quantity:  item.Quantity,
		})
	}

	totals := pricing.ComputeTotalsWithShipping(
		items,
		pricing.Address{State: req.State, Country: req.Country},
		req.CouponCode,
		req.ShippingMethod,
	)

	c.JSON(http.StatusOK, gin.H{
		"data": TotalsResponse{
			ItemsPrice:     totals.ItemsPrice.StringFixed(2),
			TaxPrice:       totals.TaxPrice.StringFixed(2),
			ShippingPrice:  totals.ShippingPrice.StringFixed(2),
			DiscountAmount: totals.DiscountAmount.StringFixed(2),
			TotalPrice:     totals.TotalPrice.StringFixed(2),
			CouponCode:     totals.CouponCode,
			CouponError:    totals.CouponError,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// ValidateCouponRequest is the request body for standalone coupon checks
type ValidateCouponRequest struct {
	Code       string `json:"code" binding:"required"`
	ItemsPrice string `json:"items_price" binding:"required"`
}

// ValidateCoupon handles POST /checkout/coupon
func (h *HTTPHandler) ValidateCoupon(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	itemsPrice, err := decimal.NewFromString(req.ItemsPrice)
	if err != nil || itemsPrice.IsNegative() {
		c.Error(errors.NewValidation("invalid items price", nil))
		return
	}

	discount, coupon, err := pricing.ApplyCoupon(itemsPrice, req.Code)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"code":          coupon.Code,
			"type":          string(coupon.Type),
			"discount":      discount.StringFixed(2),
			"free_shipping": coupon.Type == pricing.CouponFreeShipping,
		},
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// CreateOrder handles POST /orders
func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	items := make([]application.CreateOrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, application.CreateOrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	output, err := h.useCase.CreateOrder(c.Request.Context(), application.CreateOrderInput{
		UserID:          c.GetString(middleware.UserIDKey),
		Items:           items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		ShippingMethod:  req.ShippingMethod,
	})
	if err != nil {
		c.Error(err)
		return
	}

	body := gin.H{
		"data":     toOrderResponse(output.Order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	}
	if output.CouponError != "" {
		body["coupon_error"] = output.CouponError
	}
	c.JSON(http.StatusCreated, body)
}

// ListOrders handles GET /orders
func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.useCase.ListOrders(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		c.Error(err)
		return
	}

	responses := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, toOrderResponse(order))
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     responses,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// GetOrder handles GET /orders/:id
func (h *HTTPHandler) GetOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.useCase.GetOrder(c.Request.Context(), id, c.GetString(middleware.UserIDKey))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// CancelOrderRequest is the request body for cancelling an order
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder handles POST /orders/:id/cancel
func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	order, err := h.useCase.CancelOrder(c.Request.Context(), id,
		c.GetString(middleware.UserIDKey), security.SanitizeString(req.Reason))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// MarkShippedRequest is the request body for shipping an order
type MarkShippedRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required"`
}

// MarkShipped handles POST /orders/:id/ship
func (h *HTTPHandler) MarkShipped(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	var req MarkShippedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	order, err := h.useCase.MarkShipped(c.Request.Context(), id,
		security.SanitizeString(req.TrackingNumber), c.GetString(middleware.UserIDKey))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// MarkDelivered handles POST /orders/:id/deliver
func (h *HTTPHandler) MarkDelivered(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.useCase.MarkDelivered(c.Request.Context(), id, c.GetString(middleware.UserIDKey))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

// RefundOrderRequest is the request body for refunding an order
type RefundOrderRequest struct {
	Amount string `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

// RefundOrder handles POST /orders/:id/refund
func (h *HTTPHandler) RefundOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	var req RefundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.Error(errors.NewValidation("invalid refund amount", nil))
		return
	}

	order, err := h.useCase.RefundOrder(c.Request.Context(), id, amount,
		security.SanitizeString(req.Reason), c.GetString(middleware.UserIDKey))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     toOrderResponse(order),
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

func (h *HTTPHandler) orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.NewValidation("invalid order id", nil))
		return uuid.Nil, false
	}
	return id, true
}
