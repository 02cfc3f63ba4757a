package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/preorder-system/internal/model"
)

type createPaymentRequest struct {
	OrderIDs   []int64 `json:"order_ids"`
	Method     string  `json:"method"`
	BuyerEmail string  `json:"buyer_email"`
}

type paymentResponse struct {
	OrderCode   int64   `json:"order_code"`
	Amount      float64 `json:"amount"`
	Method      string  `json:"method"`
	Status      string  `json:"status"`
	OrderIDs    []int64 `json:"order_ids,omitempty"`
	CheckoutURL string  `json:"checkout_url,omitempty"`
	PaidAt      string  `json:"paid_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func toPaymentResponse(p *model.Payment, checkoutURL string) paymentResponse {
	resp := paymentResponse{
		OrderCode:   p.OrderCode,
		Amount:      float64(p.AmountCents) / 100,
		Method:      p.Method,
		Status:      string(p.Status),
		OrderIDs:    p.OrderIDs,
		CheckoutURL: checkoutURL,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.PaidAt != nil {
		resp.PaidAt = p.PaidAt.Format(time.RFC3339)
	}
	return resp
}

// CreatePayment создаёт платёж для группы предзаказов и ссылку на оплату.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payment, checkoutURL, err := h.service.CreatePayment(r.Context(), c, req.OrderIDs, req.Method, req.BuyerEmail)
	if err != nil {
		h.writeError(w, err, "create payment error")
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(payment, checkoutURL))
}

// GetPayment возвращает платёж по коду заказа.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderCode, err := pathID(r, "code")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payment, err := h.service.GetPayment(r.Context(), c, orderCode)
	if err != nil {
		h.writeError(w, err, "get payment error")
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment, ""))
}

// GetPaymentLink возвращает актуальный статус платёжной ссылки у провайдера.
func (h *Handler) GetPaymentLink(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderCode, err := pathID(r, "code")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	info, err := h.service.GetPaymentLinkInfo(r.Context(), c, orderCode)
	if err != nil {
		h.writeError(w, err, "get payment link error")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

type webhookRequest struct {
	OrderCode int64  `json:"order_code"`
	Status    string `json:"status"`
	Signature string `json:"signature"`
}

// webhookSignature вычисляет подпись уведомления провайдера:
// hex(HMAC-SHA256(checksumKey, "<order_code>:<status>")).
func webhookSignature(key []byte, orderCode int64, status string) string {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%d:%s", orderCode, status)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentWebhook принимает уведомление провайдера о смене статуса платежа.
// Подпись проверяется до любого обращения к хранилищу.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	expected := webhookSignature(h.checksumKey, req.OrderCode, req.Status)
	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		h.logger.Warn("webhook signature mismatch", zap.Int64("orderCode", req.OrderCode))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.Reconcile(r.Context(), req.OrderCode, req.Status); err != nil {
		h.writeError(w, err, "webhook reconcile error", zap.Int64("orderCode", req.OrderCode))
		return
	}

	w.WriteHeader(http.StatusOK)
}
