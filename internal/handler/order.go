package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmeshcher/preorder-system/internal/model"
)

type createOrderRequest struct {
	CampaignID int64 `json:"campaign_id"`
	Quantity   int64 `json:"quantity"`
}

type updateOrderRequest struct {
	Quantity int64 `json:"quantity"`
}

type orderResponse struct {
	ID          int64   `json:"id"`
	CampaignID  int64   `json:"campaign_id"`
	Quantity    int64   `json:"quantity"`
	TotalAmount float64 `json:"total_amount"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		CampaignID:  o.CampaignID,
		Quantity:    o.Quantity,
		TotalAmount: float64(o.TotalCents) / 100,
		Status:      string(o.Status),
		CreatedAt:   o.UploadedAt.Format(time.RFC3339),
	}
}

// CreateOrder оформляет новый предзаказ с резервированием остатка.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), c, req.CampaignID, req.Quantity)
	if err != nil {
		h.writeError(w, err, "create order error")
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// UpdateOrder изменяет количество в ещё не оплаченном предзаказе.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrder(r.Context(), c, orderID, req.Quantity); err != nil {
		h.writeError(w, err, "update order error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteOrder отменяет предзаказ и возвращает резерв на склад.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteOrder(r.Context(), c, orderID); err != nil {
		h.writeError(w, err, "delete order error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListOrders возвращает предзаказы пользователя, опционально по статусу.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	status := model.OrderStatus(r.URL.Query().Get("status"))

	orders, err := h.service.ListOrders(r.Context(), c, status)
	if err != nil {
		h.writeError(w, err, "list orders error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
