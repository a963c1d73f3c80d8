package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/orders/ports"
	apperrors "storefront/pkg/errors"
)

// HTTPProductClient looks up products from the catalog service. The
// catalog is a read-only collaborator; the snapshot it returns is frozen
// into the order items at creation time.
type HTTPProductClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProductClient creates a catalog client
func NewHTTPProductClient(baseURL string, timeout time.Duration) *HTTPProductClient {
	return &HTTPProductClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type productResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
	SellerID string          `json:"seller_id"`
}

// GetProduct retrieves a product by ID
func (c *HTTPProductClient) GetProduct(ctx context.Context, id string) (*ports.ProductInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+id, nil)
	if err != nil {
		return nil, apperrors.NewInternal("failed to build product request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewInternal("catalog service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFound("product", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewInternal(fmt.Sprintf("catalog service returned %d", resp.StatusCode), nil)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.NewInternal("failed to decode product response", err)
	}

	return &ports.ProductInfo{
		ID:       body.ID,
		Name:     body.Name,
		Image:    body.Image,
		Price:    body.Price,
		SellerID: body.SellerID,
	}, nil
}

// HTTPUserClient looks up users for payment metadata (email/name). Users
// are owned by the auth service; this client only reads.
type HTTPUserClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPUserClient creates a user lookup client
func NewHTTPUserClient(baseURL string, timeout time.Duration) *HTTPUserClient {
	return &HTTPUserClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GetUser retrieves a user by ID
func (c *HTTPUserClient) GetUser(ctx context.Context, id string) (*ports.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+id, nil)
	if err != nil {
		return nil, apperrors.NewInternal("failed to build user request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewInternal("user service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFound("user", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewInternal(fmt.Sprintf("user service returned %d", resp.StatusCode), nil)
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.NewInternal("failed to decode user response", err)
	}

	return &ports.UserInfo{
		ID:    body.ID,
		Name:  body.Name,
		Email: body.Email,
	}, nil
}
