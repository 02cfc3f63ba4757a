package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/preorder-system/internal/metrics"
	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/provider"
	"github.com/mmeshcher/preorder-system/internal/repository"
)

// maxCheckoutAttempts ограничивает число попыток создать ссылку на оплату.
// Каждая попытка идёт со свежим кодом заказа.
const maxCheckoutAttempts = 10

func defaultCheckoutBackoff() retry.Backoff {
	return retry.WithMaxRetries(maxCheckoutAttempts-1,
		retry.WithJitter(100*time.Millisecond, retry.NewExponential(200*time.Millisecond)))
}

// mintOrderCode выпускает случайный 15-значный числовой код платежа.
func mintOrderCode() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9_00000_00000_0000))
	if err != nil {
		return 0, fmt.Errorf("mint order code: %w", err)
	}
	return n.Int64() + 1_00000_00000_0000, nil
}

// CreatePayment объединяет PENDING-заказы вызывающего в один платёж и
// запрашивает у провайдера ссылку на оплату. Если хотя бы один заказ
// не подходит, отклоняется вся партия.
func (s *Service) CreatePayment(ctx context.Context, caller Caller, orderIDs []int64, method, buyerEmail string) (*model.Payment, string, error) {
	if s.provider == nil {
		return nil, "", fmt.Errorf("%w: provider is not configured", provider.ErrUnavailable)
	}
	if len(orderIDs) == 0 {
		return nil, "", fmt.Errorf("%w: empty order batch", repository.ErrInvalidState)
	}

	orders, err := s.repo.GetOrdersByIDs(ctx, orderIDs)
	if err != nil {
		return nil, "", err
	}
	if len(orders) != len(orderIDs) {
		return nil, "", repository.ErrNotFound
	}

	var amountCents int64
	items := make([]provider.CheckoutItem, 0, len(orders))
	for _, o := range orders {
		if o.Deleted {
			return nil, "", repository.ErrNotFound
		}
		if !caller.owns(o.UserID) {
			return nil, "", ErrUnauthorized
		}
		if o.Status != model.OrderStatusPending {
			return nil, "", repository.ErrInvalidState
		}
		amountCents += o.TotalCents
		items = append(items, provider.CheckoutItem{
			Name:       fmt.Sprintf("preorder %d", o.ID),
			Quantity:   o.Quantity,
			PriceCents: o.TotalCents / o.Quantity,
		})
	}

	expiresAt := s.now().Add(24 * time.Hour)

	var orderCode int64
	var checkoutURL string

	err = retry.Do(ctx, s.checkoutBackoff(), func(ctx context.Context) error {
		code, err := mintOrderCode()
		if err != nil {
			return err
		}

		url, err := s.provider.CreateCheckoutLink(ctx, provider.CheckoutRequest{
			OrderCode:   code,
			AmountCents: amountCents,
			Items:       items,
			BuyerEmail:  buyerEmail,
			ExpiresAt:   &expiresAt,
		})
		if err != nil {
			return retry.RetryableError(err)
		}

		orderCode = code
		checkoutURL = url
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("create checkout link: %w", err)
	}

	payment := &model.Payment{
		OrderCode:   orderCode,
		AmountCents: amountCents,
		Method:      method,
		Status:      model.PaymentStatusPending,
		OrderIDs:    orderIDs,
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, "", err
	}

	s.logger.Info("payment created",
		zap.Int64("orderCode", orderCode),
		zap.Int64("amount", amountCents),
		zap.Int("orders", len(orderIDs)))

	return payment, checkoutURL, nil
}

func parseProviderStatus(reported string) (model.PaymentStatus, bool) {
	switch reported {
	case "PAID":
		return model.PaymentStatusPaid, true
	case "CANCELLED":
		return model.PaymentStatusCancelled, true
	case "EXPIRED":
		return model.PaymentStatusExpired, true
	case "FAILED":
		return model.PaymentStatusFailed, true
	}
	return "", false
}

// Reconcile сводит сообщённый провайдером статус с локальным состоянием.
// Вызывается и из webhook, и из фонового опроса; повторные и гоняющиеся
// вызовы безопасны — применяется ровно один.
func (s *Service) Reconcile(ctx context.Context, orderCode int64, reportedStatus string) error {
	status, terminal := parseProviderStatus(reportedStatus)
	if !terminal {
		// Провайдер ещё не принял решение: платёж остаётся PENDING.
		return nil
	}

	res, err := s.repo.ReconcilePayment(ctx, orderCode, status, s.now())
	if err != nil {
		metrics.Reconciliations.WithLabelValues(string(status), "error").Inc()
		return err
	}

	if !res.Applied {
		metrics.Reconciliations.WithLabelValues(string(status), "noop").Inc()
		return nil
	}

	metrics.Reconciliations.WithLabelValues(string(status), "applied").Inc()

	s.logger.Info("payment reconciled",
		zap.Int64("orderCode", orderCode),
		zap.String("status", string(status)),
		zap.Int64s("confirmedOrders", res.ConfirmedOrders))

	for _, orderID := range res.UnattributedOrders {
		// Ни один этап кампании не начался к моменту подтверждения: продажу
		// некому приписать, количество учтено только в заказе.
		s.logger.Warn("confirmed order has no stage to credit",
			zap.Int64("orderCode", orderCode),
			zap.Int64("orderID", orderID))
	}

	return nil
}

// GetPayment возвращает платёж вызывающего по коду.
func (s *Service) GetPayment(ctx context.Context, caller Caller, orderCode int64) (*model.Payment, error) {
	p, err := s.repo.GetPayment(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	if !caller.Admin {
		orders, err := s.repo.GetOrdersByIDs(ctx, p.OrderIDs)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			if o.UserID != caller.UserID {
				return nil, ErrUnauthorized
			}
		}
	}

	return p, nil
}

// GetPaymentLinkInfo возвращает статус ссылки на оплату от провайдера.
func (s *Service) GetPaymentLinkInfo(ctx context.Context, caller Caller, orderCode int64) (*provider.LinkInfo, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("%w: provider is not configured", provider.ErrUnavailable)
	}
	if _, err := s.GetPayment(ctx, caller, orderCode); err != nil {
		return nil, err
	}
	return s.provider.GetPaymentLinkInfo(ctx, orderCode)
}
