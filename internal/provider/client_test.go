package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateCheckoutLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/payment-links" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}

		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.OrderCode != 123456789 || req.AmountCents != 5000 {
			t.Errorf("unexpected request body: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(checkoutResponse{
			OrderCode:   req.OrderCode,
			CheckoutURL: "https://pay.example.com/123456789",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	url, err := c.CreateCheckoutLink(context.Background(), CheckoutRequest{
		OrderCode:   123456789,
		AmountCents: 5000,
		Items:       []CheckoutItem{{Name: "widget", Quantity: 10, PriceCents: 500}},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutLink error: %v", err)
	}
	if url != "https://pay.example.com/123456789" {
		t.Errorf("url = %q", url)
	}
}

func TestCreateCheckoutLink_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	_, err := c.CreateCheckoutLink(context.Background(), CheckoutRequest{OrderCode: 1, AmountCents: 100})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGetPaymentLinkInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payment-links/555" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(LinkInfo{OrderCode: 555, Status: "PAID"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	info, err := c.GetPaymentLinkInfo(context.Background(), 555)
	if err != nil {
		t.Fatalf("GetPaymentLinkInfo error: %v", err)
	}
	if info.Status != "PAID" {
		t.Errorf("status = %q, want PAID", info.Status)
	}
}

func TestGetPaymentLinkInfo_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	_, err := c.GetPaymentLinkInfo(context.Background(), 42)
	if err == nil {
		t.Fatalf("expected error for unknown order code")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("not found must not be reported as provider unavailability")
	}
}
