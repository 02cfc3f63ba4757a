// Package service реализует бизнес-логику сервиса предзаказов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/provider"
	"github.com/mmeshcher/preorder-system/internal/repository"
)

// ErrUnauthorized возвращается, когда вызывающий не владеет сущностью и не администратор.
var (
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidQuantity возвращается для неположительного количества в заказе.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)

	GetProduct(ctx context.Context, productID int64) (*model.Product, error)

	CreateCampaign(ctx context.Context, c *model.Campaign) (int64, error)
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
	ListRunningCampaigns(ctx context.Context) ([]model.Campaign, error)
	ApplyCampaignTransition(ctx context.Context, id int64, from, to model.CampaignStatus) (bool, error)
	PublishCampaign(ctx context.Context, id int64) (bool, error)
	DeleteCampaign(ctx context.Context, id int64) error

	CreateStage(ctx context.Context, s *model.CampaignStage) (int64, error)
	GetStage(ctx context.Context, id int64) (*model.CampaignStage, error)
	UpdateStage(ctx context.Context, s *model.CampaignStage) error
	DeleteStage(ctx context.Context, id int64) error
	ListStages(ctx context.Context, campaignID int64) ([]model.CampaignStage, error)
	ListRunningStages(ctx context.Context) ([]model.CampaignStage, error)
	ApplyStageTransition(ctx context.Context, id int64, from, to model.StageStatus, at time.Time) (bool, error)
	ListStageHistory(ctx context.Context, campaignID int64) ([]model.StageHistory, error)

	CreateOrder(ctx context.Context, userID, campaignID, productID, qty, totalCents int64) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrdersByIDs(ctx context.Context, ids []int64) ([]model.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64, status model.OrderStatus) ([]model.Order, error)
	UpdateOrderQuantity(ctx context.Context, orderID, newQty, newTotalCents int64) error
	DeleteOrder(ctx context.Context, orderID int64) error

	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, orderCode int64) (*model.Payment, error)
	ListPendingPaymentCodes(ctx context.Context, olderThan time.Time, limit int) ([]int64, error)
	ReconcilePayment(ctx context.Context, orderCode int64, status model.PaymentStatus, at time.Time) (*repository.ReconcileResult, error)
}

// ProviderClient описывает контракт платёжного провайдера, используемый сервисом.
type ProviderClient interface {
	CreateCheckoutLink(ctx context.Context, req provider.CheckoutRequest) (string, error)
	GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*provider.LinkInfo, error)
}

// Service содержит бизнес-логику сервиса предзаказов.
type Service struct {
	repo     Repository
	provider ProviderClient
	logger   *zap.Logger

	lifecycleInterval   time.Duration
	paymentPollInterval time.Duration

	now             func() time.Time
	checkoutBackoff func() retry.Backoff
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом провайдера.
func NewService(repo Repository, providerClient ProviderClient, logger *zap.Logger, lifecycleInterval, paymentPollInterval time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lifecycleInterval <= 0 {
		lifecycleInterval = 60 * time.Second
	}
	if paymentPollInterval <= 0 {
		paymentPollInterval = 5 * time.Second
	}

	return &Service{
		repo:                repo,
		provider:            providerClient,
		logger:              logger,
		lifecycleInterval:   lifecycleInterval,
		paymentPollInterval: paymentPollInterval,
		now:                 time.Now,
		checkoutBackoff:     defaultCheckoutBackoff,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с обычной ролью.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, model.RoleUser)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}
