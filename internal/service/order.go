package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/preorder-system/internal/lifecycle"
	"github.com/mmeshcher/preorder-system/internal/metrics"
	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/repository"
)

// Caller описывает того, от чьего имени выполняется операция.
type Caller struct {
	UserID int64
	Admin  bool
}

func (c Caller) owns(userID int64) bool {
	return c.Admin || c.UserID == userID
}

// CreateOrder создаёт предзаказ в активной кампании, атомарно резервируя
// количество на складе. Резерв строгий: заказ никогда не выкупает остаток целиком.
func (s *Service) CreateOrder(ctx context.Context, caller Caller, campaignID, qty int64) (*model.Order, error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordOrderCreate(result, time.Since(start).Seconds())
	}()

	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	campaign, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Deleted {
		return nil, repository.ErrNotFound
	}

	// Статус пересчитывается от текущего времени, а не берётся из строки:
	// планировщик мог ещё не дойти до этой кампании в текущем интервале.
	if lifecycle.CampaignStatusFor(s.now(), campaign) != model.CampaignStatusActive {
		return nil, fmt.Errorf("%w: campaign is not active", repository.ErrInvalidState)
	}

	product, err := s.repo.GetProduct(ctx, campaign.ProductID)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.CreateOrder(ctx, caller.UserID, campaignID, product.ID, qty, product.PriceCents*qty)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			metrics.StockReservationFailures.Inc()
		}
		return nil, err
	}

	result = "success"
	s.logger.Info("order created",
		zap.Int64("orderID", order.ID),
		zap.Int64("campaignID", campaignID),
		zap.Int64("quantity", qty))

	return order, nil
}

// UpdateOrder изменяет количество в PENDING-заказе вызывающего,
// резервируя или возвращая разницу на склад.
func (s *Service) UpdateOrder(ctx context.Context, caller Caller, orderID, newQty int64) error {
	if newQty <= 0 {
		return ErrInvalidQuantity
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Deleted {
		return repository.ErrNotFound
	}
	if !caller.owns(order.UserID) {
		return ErrUnauthorized
	}
	if order.Status != model.OrderStatusPending {
		return repository.ErrInvalidState
	}

	campaign, err := s.repo.GetCampaign(ctx, order.CampaignID)
	if err != nil {
		return err
	}
	product, err := s.repo.GetProduct(ctx, campaign.ProductID)
	if err != nil {
		return err
	}

	return s.repo.UpdateOrderQuantity(ctx, orderID, newQty, product.PriceCents*newQty)
}

// DeleteOrder помечает PENDING-заказ вызывающего удалённым и возвращает
// весь его резерв на склад.
func (s *Service) DeleteOrder(ctx context.Context, caller Caller, orderID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Deleted {
		return repository.ErrNotFound
	}
	if !caller.owns(order.UserID) {
		return ErrUnauthorized
	}
	if order.Status != model.OrderStatusPending {
		return repository.ErrInvalidState
	}

	return s.repo.DeleteOrder(ctx, orderID)
}

// ListOrders возвращает заказы вызывающего, опционально по статусу.
func (s *Service) ListOrders(ctx context.Context, caller Caller, status model.OrderStatus) ([]model.Order, error) {
	return s.repo.ListOrdersByUser(ctx, caller.UserID, status)
}
