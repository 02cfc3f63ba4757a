// Package provider предоставляет клиент платёжного провайдера со ссылками на оплату.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrUnavailable возвращается, когда провайдер не смог обработать запрос.
var ErrUnavailable = errors.New("payment provider unavailable")

// Client инкапсулирует HTTP-взаимодействие с платёжным провайдером.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// CheckoutItem описывает одну позицию в ссылке на оплату.
type CheckoutItem struct {
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price"`
}

// CheckoutRequest описывает запрос на создание ссылки на оплату.
// OrderCode — свежий числовой код: он же служит ключом идемпотентности,
// и каждая новая попытка делается с новым кодом.
type CheckoutRequest struct {
	OrderCode   int64          `json:"order_code"`
	AmountCents int64          `json:"amount"`
	Items       []CheckoutItem `json:"items"`
	BuyerEmail  string         `json:"buyer_email,omitempty"`
	ReturnURL   string         `json:"return_url,omitempty"`
	CancelURL   string         `json:"cancel_url,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

type checkoutResponse struct {
	OrderCode   int64  `json:"order_code"`
	CheckoutURL string `json:"checkout_url"`
}

// LinkInfo описывает ответ провайдера о состоянии ссылки на оплату.
type LinkInfo struct {
	OrderCode int64  `json:"order_code"`
	Status    string `json:"status"`
}

// NewClient создаёт HTTP-клиент провайдера по указанному адресу.
// Сетевые сбои и 5xx повторяются на транспортном уровне.
func NewClient(baseURL, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: rc.StandardClient(),
	}
}

func (c *Client) url(path string) string {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + path
}

// CreateCheckoutLink запрашивает у провайдера ссылку на оплату для указанного кода.
func (c *Client) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("provider client not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url("/api/payment-links"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var result checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if result.CheckoutURL == "" {
		return "", fmt.Errorf("%w: empty checkout url", ErrUnavailable)
	}

	return result.CheckoutURL, nil
}

// GetPaymentLinkInfo запрашивает у провайдера текущий статус ссылки на оплату.
func (c *Client) GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*LinkInfo, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("provider client not configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.url("/api/payment-links/"+strconv.FormatInt(orderCode, 10)), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("payment link %d: not found", orderCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var result LinkInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
