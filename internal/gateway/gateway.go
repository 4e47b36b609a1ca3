// Package gateway verifies payments captured by an external card gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotVerified = errors.New("payment not verified")

type Verification struct {
	Reference  string          `json:"reference"`
	Success    bool            `json:"success"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

type Verifier interface {
	Verify(ctx context.Context, reference string) (Verification, error)
}

const defaultPaystackURL = "https://api.paystack.co"

// PaystackClient calls the transaction verify endpoint. Amounts arrive in the
// minor unit and are converted to whole currency.
type PaystackClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewPaystackClient(baseURL string, secretKey string) *PaystackClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultPaystackURL
	}
	return &PaystackClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string         `json:"status"`
		Reference string         `json:"reference"`
		Amount    int64          `json:"amount"`
		Currency  string         `json:"currency"`
		Metadata  map[string]any `json:"metadata"`
	} `json:"data"`
}

func (c *PaystackClient) Verify(ctx context.Context, reference string) (Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Verification{}, fmt.Errorf("%w: empty reference", ErrNotVerified)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return Verification{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("paystack verify: %w", err)
	}
	defer resp.Body.Close()

	var body paystackVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Verification{}, fmt.Errorf("paystack verify: decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !body.Status {
		return Verification{}, fmt.Errorf("%w: %s", ErrNotVerified, body.Message)
	}

	v := Verification{
		Reference:  body.Data.Reference,
		Success:    body.Data.Status == "success",
		AmountPaid: decimal.New(body.Data.Amount, -2),
		Metadata:   body.Data.Metadata,
	}
	if v.Metadata == nil {
		v.Metadata = map[string]any{}
	}
	v.Metadata["currency"] = body.Data.Currency
	return v, nil
}

// Static answers from a fixed table. It backs development setups without a
// gateway key, and tests.
type Static struct {
	mu      sync.RWMutex
	results map[string]Verification
}

func NewStatic() *Static {
	return &Static{results: make(map[string]Verification)}
}

func (s *Static) Add(v Verification) {
	s.mu.Lock()
	s.results[v.Reference] = v
	s.mu.Unlock()
}

func (s *Static) Verify(_ context.Context, reference string) (Verification, error) {
	s.mu.RLock()
	v, ok := s.results[reference]
	s.mu.RUnlock()
	if !ok {
		return Verification{}, fmt.Errorf("%w: unknown reference %s", ErrNotVerified, reference)
	}
	return v, nil
}
