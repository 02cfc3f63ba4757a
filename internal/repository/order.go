package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/preorder-system/internal/model"
)

const orderColumns = `id, user_id, campaign_id, quantity, total_amount, status, deleted, uploaded_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.CampaignID, &o.Quantity, &o.TotalCents,
		&status, &o.Deleted, &o.UploadedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// CreateOrder резервирует qty единиц товара и создаёт заказ в одной транзакции:
// либо проходят обе операции, либо ни одна.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID, campaignID, productID, qty, totalCents int64) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := reserveStock(ctx, tx, productID, qty); err != nil {
			return err
		}

		o, err := scanOrder(tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, campaign_id, quantity, total_amount, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+orderColumns,
			userID, campaignID, qty, totalCents, string(model.OrderStatusPending),
		))
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder возвращает заказ по идентификатору, включая удалённые.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrdersByUser возвращает неудалённые заказы пользователя,
// опционально отфильтрованные по статусу.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64, status model.OrderStatus) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND NOT deleted`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY uploaded_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrdersByIDs возвращает заказы по списку идентификаторов.
func (r *PostgresRepository) GetOrdersByIDs(ctx context.Context, ids []int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders by ids: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// lockPendingOrder читает заказ под блокировкой и проверяет, что он ещё PENDING
// и не удалён. Проверка повторяется под блокировкой, потому что между чтением
// в сервисе и началом транзакции заказ мог подтвердиться или удалиться.
func lockPendingOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*model.Order, int64, error) {
	var o model.Order
	var status string
	var productID int64
	err := tx.QueryRow(ctx,
		`SELECT o.id, o.user_id, o.campaign_id, o.quantity, o.total_amount, o.status, o.deleted, o.uploaded_at, c.product_id
		 FROM orders o
		 JOIN campaigns c ON c.id = o.campaign_id
		 WHERE o.id = $1
		 FOR UPDATE OF o`,
		orderID,
	).Scan(&o.ID, &o.UserID, &o.CampaignID, &o.Quantity, &o.TotalCents,
		&status, &o.Deleted, &o.UploadedAt, &productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("lock order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	if o.Deleted {
		return nil, 0, ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		return nil, 0, ErrInvalidState
	}

	return &o, productID, nil
}

// UpdateOrderQuantity изменяет количество в PENDING-заказе, резервируя или
// возвращая разницу на склад в той же транзакции.
func (r *PostgresRepository) UpdateOrderQuantity(ctx context.Context, orderID, newQty, newTotalCents int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		o, productID, err := lockPendingOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		delta := newQty - o.Quantity
		switch {
		case delta > 0:
			if err := reserveStock(ctx, tx, productID, delta); err != nil {
				return err
			}
		case delta < 0:
			if err := releaseStock(ctx, tx, productID, -delta); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders SET quantity = $2, total_amount = $3 WHERE id = $1`,
			orderID, newQty, newTotalCents,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// DeleteOrder помечает PENDING-заказ удалённым и полностью возвращает
// зарезервированное количество на склад.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		o, productID, err := lockPendingOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := releaseStock(ctx, tx, productID, o.Quantity); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders SET deleted = TRUE WHERE id = $1`,
			orderID,
		)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}

		return tx.Commit(ctx)
	})
}
