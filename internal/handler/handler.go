// Package handler содержит HTTP-обработчики API сервиса предзаказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/preorder-system/internal/middleware"
	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/provider"
	"github.com/mmeshcher/preorder-system/internal/repository"
	"github.com/mmeshcher/preorder-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)

	CreateOrder(ctx context.Context, caller service.Caller, campaignID, qty int64) (*model.Order, error)
	UpdateOrder(ctx context.Context, caller service.Caller, orderID, newQty int64) error
	DeleteOrder(ctx context.Context, caller service.Caller, orderID int64) error
	ListOrders(ctx context.Context, caller service.Caller, status model.OrderStatus) ([]model.Order, error)

	CreatePayment(ctx context.Context, caller service.Caller, orderIDs []int64, method, buyerEmail string) (*model.Payment, string, error)
	GetPayment(ctx context.Context, caller service.Caller, orderCode int64) (*model.Payment, error)
	GetPaymentLinkInfo(ctx context.Context, caller service.Caller, orderCode int64) (*provider.LinkInfo, error)
	Reconcile(ctx context.Context, orderCode int64, reportedStatus string) error

	CreateCampaign(ctx context.Context, caller service.Caller, p service.CampaignParams) (int64, error)
	PublishCampaign(ctx context.Context, caller service.Caller, campaignID int64) error
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)

	CreateStage(ctx context.Context, caller service.Caller, campaignID int64, p service.StageParams) (int64, error)
	UpdateStage(ctx context.Context, caller service.Caller, stageID int64, p service.StageParams) error
	DeleteStage(ctx context.Context, caller service.Caller, stageID int64) error
	ListStages(ctx context.Context, campaignID int64) ([]model.CampaignStage, error)
	StageHistory(ctx context.Context, campaignID int64) ([]model.StageHistory, error)
}

// Handler реализует HTTP-обработчики API сервиса предзаказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	checksumKey    []byte
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// checksumKey — общий с провайдером секрет для проверки подписи webhook.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, checksumKey string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		checksumKey:    []byte(checksumKey),
	}
}

// statusForError отображает доменные ошибки на HTTP-статусы.
func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrNameTaken), errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, repository.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, repository.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	}
	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// caller извлекает личность вызывающего из контекста запроса.
func caller(r *http.Request) (service.Caller, bool) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{
		UserID: identity.UserID,
		Admin:  identity.Role == model.RoleAdmin,
	}, true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, model.RoleUser)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.writeError(w, err, "login user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	w.WriteHeader(http.StatusOK)
}
