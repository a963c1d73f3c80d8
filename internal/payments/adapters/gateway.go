package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/payments/domain"
	"storefront/internal/payments/ports"
	"storefront/pkg/errors"
)

// HTTPGateway talks to the payment provider's REST API. Requests are
// form-encoded with Bearer auth; responses are JSON.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway creates a gateway client
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type intentResponse struct {
	ID            string            `json:"id"`
	ClientSecret  string            `json:"client_secret"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Customer      string            `json:"customer"`
	PaymentMethod string            `json:"payment_method"`
	Metadata      map[string]string `json:"metadata"`
	LastError     *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (r *intentResponse) toDomain() *domain.Intent {
	intent := &domain.Intent{
		ID:            r.ID,
		ClientSecret:  r.ClientSecret,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Status:        r.Status,
		CustomerID:    r.Customer,
		PaymentMethod: r.PaymentMethod,
		Metadata:      r.Metadata,
	}
	if r.LastError != nil {
		intent.ErrorMessage = r.LastError.Message
	}
	return intent
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent creates a payment intent at the provider
func (g *HTTPGateway) CreateIntent(ctx context.Context, params ports.CreateIntentParams) (*domain.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", params.Currency)
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var resp intentResponse
	if err := g.do(ctx, http.MethodPost, "/v1/payment_intents", form, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// RetrieveIntent fetches the current state of a payment intent
func (g *HTTPGateway) RetrieveIntent(ctx context.Context, intentID string) (*domain.Intent, error) {
	var resp intentResponse
	if err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// CreateCustomer creates a customer record at the provider
func (g *HTTPGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)

	var resp struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/customers", form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// AttachPaymentMethod attaches a saved payment method to a customer
func (g *HTTPGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	form := url.Values{}
	form.Set("customer", customerID)
	return g.do(ctx, http.MethodPost, "/v1/payment_methods/"+url.PathEscape(paymentMethodID)+"/attach", form, &struct{}{})
}

// DetachPaymentMethod detaches a saved payment method
func (g *HTTPGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return g.do(ctx, http.MethodPost, "/v1/payment_methods/"+url.PathEscape(paymentMethodID)+"/detach", url.Values{}, &struct{}{})
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return errors.NewInternal("failed to build provider request", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.NewInternal("payment provider unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewInternal("failed to read provider response", err)
	}

	if resp.StatusCode >= 400 {
		return g.classify(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewInternal("failed to decode provider response", err)
	}
	return nil
}

// classify maps provider error responses onto the local error taxonomy.
// Card declines are payment failures; other 4xx are caller mistakes;
// 5xx is a provider outage.
func (g *HTTPGateway) classify(status int, data []byte) error {
	var er errorResponse
	message := "payment provider error"
	if json.Unmarshal(data, &er) == nil && er.Error.Message != "" {
		message = er.Error.Message
	}

	switch {
	case status == http.StatusPaymentRequired || er.Error.Type == "card_error":
		return errors.NewPaymentFailed(message, nil)
	case status == http.StatusNotFound:
		return errors.NewNotFound("payment intent", er.Error.Code)
	case status >= 500:
		return errors.NewInternal(fmt.Sprintf("payment provider error (%d)", status), nil)
	default:
		return errors.NewValidation(message, map[string]interface{}{
			"provider_code": er.Error.Code,
		})
	}
}
