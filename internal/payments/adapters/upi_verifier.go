package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/payments/ports"
	"storefront/pkg/errors"
)

// HTTPUPIVerifier talks to the external UPI verification channel. One
// call is one authoritative verification attempt; the result is always
// completed or failed, never partial.
type HTTPUPIVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPUPIVerifier creates a verifier client
func NewHTTPUPIVerifier(baseURL, apiKey string, timeout time.Duration) *HTTPUPIVerifier {
	return &HTTPUPIVerifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	TransactionID string `json:"transaction_id"`
	ProviderTxnID string `json:"provider_transaction_id,omitempty"`
}

type verifyResponse struct {
	Status        string `json:"status"`
	ProviderTxnID string `json:"provider_transaction_id"`
	FailureReason string `json:"failure_reason"`
}

// Verify performs one verification call against the UPI network
func (v *HTTPUPIVerifier) Verify(ctx context.Context, transactionID, providerTxnID string) (*ports.UPIVerificationResult, error) {
	payload, err := json.Marshal(verifyRequest{
		TransactionID: transactionID,
		ProviderTxnID: providerTxnID,
	})
	if err != nil {
		return nil, errors.NewInternal("failed to encode verification request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewInternal("failed to build verification request", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errors.NewInternal("UPI verification channel unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewInternal("failed to read verification response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.NewInternal(fmt.Sprintf("UPI verification error (%d)", resp.StatusCode), nil)
	}

	var vr verifyResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, errors.NewInternal("failed to decode verification response", err)
	}

	return &ports.UPIVerificationResult{
		Completed:     vr.Status == "completed",
		ProviderTxnID: vr.ProviderTxnID,
		FailureReason: vr.FailureReason,
	}, nil
}
