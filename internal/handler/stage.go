package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/service"
)

type createCampaignRequest struct {
	Name        string    `json:"name"`
	ProductID   int64     `json:"product_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	MinQuantity int64     `json:"min_quantity"`
	MaxQuantity int64     `json:"max_quantity"`
}

type campaignResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ProductID   int64  `json:"product_id"`
	Status      string `json:"status"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	MinQuantity int64  `json:"min_quantity"`
	MaxQuantity int64  `json:"max_quantity"`
}

func toCampaignResponse(c *model.Campaign) campaignResponse {
	return campaignResponse{
		ID:          c.ID,
		Name:        c.Name,
		ProductID:   c.ProductID,
		Status:      string(c.Status),
		StartDate:   c.StartDate.Format(time.RFC3339),
		EndDate:     c.EndDate.Format(time.RFC3339),
		MinQuantity: c.MinQuantity,
		MaxQuantity: c.MaxQuantity,
	}
}

// CreateCampaign создаёт новую кампанию предзаказа в статусе черновика.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	campaignID, err := h.service.CreateCampaign(r.Context(), c, service.CampaignParams{
		Name:        req.Name,
		ProductID:   req.ProductID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		MinQuantity: req.MinQuantity,
		MaxQuantity: req.MaxQuantity,
	})
	if err != nil {
		h.writeError(w, err, "create campaign error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": campaignID})
}

// PublishCampaign переводит кампанию из черновика в расписание.
func (h *Handler) PublishCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	campaignID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.PublishCampaign(r.Context(), c, campaignID); err != nil {
		h.writeError(w, err, "publish campaign error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListCampaigns возвращает список всех кампаний.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.service.ListCampaigns(r.Context())
	if err != nil {
		h.writeError(w, err, "list campaigns error")
		return
	}

	resp := make([]campaignResponse, 0, len(campaigns))
	for i := range campaigns {
		resp = append(resp, toCampaignResponse(&campaigns[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type stageRequest struct {
	Name           string    `json:"name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	TargetQuantity int64     `json:"target_quantity"`
}

func (req stageRequest) params() service.StageParams {
	return service.StageParams{
		Name:           req.Name,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		TargetQuantity: req.TargetQuantity,
	}
}

type stageResponse struct {
	ID             int64  `json:"id"`
	CampaignID     int64  `json:"campaign_id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	TargetQuantity int64  `json:"target_quantity"`
	QuantitySold   int64  `json:"quantity_sold"`
}

func toStageResponse(s *model.CampaignStage) stageResponse {
	return stageResponse{
		ID:             s.ID,
		CampaignID:     s.CampaignID,
		Name:           s.Name,
		Status:         string(s.Status),
		StartDate:      s.StartDate.Format(time.RFC3339),
		EndDate:        s.EndDate.Format(time.RFC3339),
		TargetQuantity: s.TargetQuantity,
		QuantitySold:   s.QuantitySold,
	}
}

// CreateStage добавляет этап в кампанию.
func (h *Handler) CreateStage(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	campaignID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	stageID, err := h.service.CreateStage(r.Context(), c, campaignID, req.params())
	if err != nil {
		h.writeError(w, err, "create stage error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": stageID})
}

// UpdateStage изменяет параметры этапа кампании.
func (h *Handler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	stageID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateStage(r.Context(), c, stageID, req.params()); err != nil {
		h.writeError(w, err, "update stage error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteStage удаляет этап кампании.
func (h *Handler) DeleteStage(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	stageID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteStage(r.Context(), c, stageID); err != nil {
		h.writeError(w, err, "delete stage error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListStages возвращает этапы кампании.
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	stages, err := h.service.ListStages(r.Context(), campaignID)
	if err != nil {
		h.writeError(w, err, "list stages error")
		return
	}

	resp := make([]stageResponse, 0, len(stages))
	for i := range stages {
		resp = append(resp, toStageResponse(&stages[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type stageHistoryResponse struct {
	StageID    int64  `json:"stage_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ChangedAt  string `json:"changed_at"`
}

// StageHistory возвращает журнал переходов этапов кампании.
func (h *Handler) StageHistory(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	history, err := h.service.StageHistory(r.Context(), campaignID)
	if err != nil {
		h.writeError(w, err, "stage history error")
		return
	}

	resp := make([]stageHistoryResponse, 0, len(history))
	for _, entry := range history {
		resp = append(resp, stageHistoryResponse{
			StageID:    entry.StageID,
			FromStatus: string(entry.PreStatus),
			ToStatus:   string(entry.CurStatus),
			ChangedAt:  entry.TransitionTime.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
