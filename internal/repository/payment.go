package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/preorder-system/internal/model"
)

// CreatePayment сохраняет платёж и его связи с заказами. Все заказы
// перепроверяются под блокировкой: если хотя бы один уже не PENDING или
// удалён, вся партия отклоняется без частичной записи.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx,
			`SELECT id, status, deleted FROM orders WHERE id = ANY($1) FOR UPDATE`,
			p.OrderIDs,
		)
		if err != nil {
			return fmt.Errorf("lock orders: %w", err)
		}

		seen := make(map[int64]bool, len(p.OrderIDs))
		for rows.Next() {
			var id int64
			var status string
			var deleted bool
			if err := rows.Scan(&id, &status, &deleted); err != nil {
				rows.Close()
				return fmt.Errorf("scan order: %w", err)
			}
			if deleted || model.OrderStatus(status) != model.OrderStatusPending {
				rows.Close()
				return ErrInvalidState
			}
			seen[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		for _, id := range p.OrderIDs {
			if !seen[id] {
				return ErrNotFound
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO payments (order_code, amount, method, status) VALUES ($1, $2, $3, $4)`,
			p.OrderCode, p.AmountCents, p.Method, string(p.Status),
		)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		for _, id := range p.OrderIDs {
			_, err = tx.Exec(ctx,
				`INSERT INTO payment_orders (payment_code, order_id) VALUES ($1, $2)`,
				p.OrderCode, id,
			)
			if err != nil {
				return fmt.Errorf("insert payment order: %w", err)
			}
		}

		return tx.Commit(ctx)
	})
}

// GetPayment возвращает платёж по коду вместе со списком его заказов.
func (r *PostgresRepository) GetPayment(ctx context.Context, orderCode int64) (*model.Payment, error) {
	var p model.Payment
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT order_code, amount, method, status, paid_at, created_at FROM payments WHERE order_code = $1`,
		orderCode,
	).Scan(&p.OrderCode, &p.AmountCents, &p.Method, &status, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	p.Status = model.PaymentStatus(status)

	rows, err := r.pool.Query(ctx,
		`SELECT order_id FROM payment_orders WHERE payment_code = $1 ORDER BY order_id`,
		orderCode,
	)
	if err != nil {
		return nil, fmt.Errorf("select payment orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan payment order: %w", err)
		}
		p.OrderIDs = append(p.OrderIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &p, nil
}

// ListPendingPaymentCodes возвращает коды платежей, ожидающих ответа провайдера,
// созданных не позже отметки olderThan.
func (r *PostgresRepository) ListPendingPaymentCodes(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_code FROM payments
		 WHERE status = $1 AND created_at <= $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.PaymentStatusPending), olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending payments: %w", err)
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var code int64
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan payment code: %w", err)
		}
		res = append(res, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReconcileResult описывает исход сверки платежа с ответом провайдера.
type ReconcileResult struct {
	// Applied равен true, если именно этот вызов перевёл платёж в конечный статус.
	// Повторный вызов по тому же платежу получает false и ничего не меняет.
	Applied bool
	// ConfirmedOrders — заказы, подтверждённые этим вызовом.
	ConfirmedOrders []int64
	// UnattributedOrders — подтверждённые заказы, для кампаний которых не нашлось
	// ни одного начавшегося этапа, чтобы засчитать продажу.
	UnattributedOrders []int64
}

// ReconcilePayment применяет конечный статус, сообщённый провайдером.
// Вся сверка — одна транзакция вокруг условного перевода
// status: PENDING → terminal; конкурентные вызовы (webhook и опрос) не могут
// пройти условие одновременно, поэтому эффект применяется ровно один раз.
func (r *PostgresRepository) ReconcilePayment(ctx context.Context, orderCode int64, status model.PaymentStatus, at time.Time) (*ReconcileResult, error) {
	res := &ReconcileResult{}

	err := r.withRetry(ctx, func() error {
		res.Applied = false
		res.ConfirmedOrders = nil
		res.UnattributedOrders = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE payments SET status = $2, paid_at = $3 WHERE order_code = $1 AND status = $4`,
			orderCode, string(status), at, string(model.PaymentStatusPending),
		)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM payments WHERE order_code = $1)`,
				orderCode,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check payment: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			// Платёж уже в конечном статусе: сверка применена ранее.
			return tx.Commit(ctx)
		}

		res.Applied = true

		if status != model.PaymentStatusPaid {
			// Неуспешный конечный статус: заказы остаются PENDING и сохраняют
			// резерв на складе, их можно привязать к новому платежу.
			return tx.Commit(ctx)
		}

		rows, err := tx.Query(ctx,
			`SELECT o.id, o.campaign_id, o.quantity
			 FROM orders o
			 JOIN payment_orders po ON po.order_id = o.id
			 WHERE po.payment_code = $1 AND NOT o.deleted
			 FOR UPDATE OF o`,
			orderCode,
		)
		if err != nil {
			return fmt.Errorf("lock payment orders: %w", err)
		}

		type paidOrder struct {
			id         int64
			campaignID int64
			quantity   int64
		}
		var paid []paidOrder
		for rows.Next() {
			var o paidOrder
			if err := rows.Scan(&o.id, &o.campaignID, &o.quantity); err != nil {
				rows.Close()
				return fmt.Errorf("scan paid order: %w", err)
			}
			paid = append(paid, o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		for _, o := range paid {
			cmdTag, err := tx.Exec(ctx,
				`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
				o.id, string(model.OrderStatusConfirmed), string(model.OrderStatusPending),
			)
			if err != nil {
				return fmt.Errorf("confirm order: %w", err)
			}
			// Заказ мог подтвердиться через другой платёж, пока оба были PENDING;
			// продажа засчитывается только один раз на заказ.
			if cmdTag.RowsAffected() == 0 {
				continue
			}

			res.ConfirmedOrders = append(res.ConfirmedOrders, o.id)

			stageID, found, err := activeStageID(ctx, tx, o.campaignID, at)
			if err != nil {
				return err
			}
			if !found {
				res.UnattributedOrders = append(res.UnattributedOrders, o.id)
				continue
			}

			_, err = tx.Exec(ctx,
				`UPDATE campaign_stages SET quantity_sold = quantity_sold + $2 WHERE id = $1`,
				stageID, o.quantity,
			)
			if err != nil {
				return fmt.Errorf("add stage sale: %w", err)
			}
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
