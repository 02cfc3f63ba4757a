package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/preorder-system/internal/model"
)

// GetProduct возвращает товар с текущей ценой и остатком.
func (r *PostgresRepository) GetProduct(ctx context.Context, productID int64) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, price, quantity FROM products WHERE id = $1`,
		productID,
	)

	var p model.Product
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// reserveStock списывает qty единиц товара условным обновлением.
// Резерв проходит только пока после списания остаётся хотя бы одна единица:
// последняя единица товара одним заказом не продаётся.
func reserveStock(ctx context.Context, q querier, productID, qty int64) error {
	cmdTag, err := q.Exec(ctx,
		`UPDATE products SET quantity = quantity - $2 WHERE id = $1 AND quantity - $2 >= 1`,
		productID, qty,
	)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`,
			productID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check product: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}

	return nil
}

// releaseStock возвращает qty единиц товара на склад.
func releaseStock(ctx context.Context, q querier, productID, qty int64) error {
	cmdTag, err := q.Exec(ctx,
		`UPDATE products SET quantity = quantity + $2 WHERE id = $1`,
		productID, qty,
	)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
