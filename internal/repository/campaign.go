package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/preorder-system/internal/model"
)

const campaignColumns = `id, name, product_id, start_date, end_date,
	min_quantity, max_quantity, total_amount, status, deleted, created_at`

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	var status string
	err := row.Scan(&c.ID, &c.Name, &c.ProductID, &c.StartDate, &c.EndDate,
		&c.MinQuantity, &c.MaxQuantity, &c.TotalCents, &status, &c.Deleted, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.CampaignStatus(status)
	return &c, nil
}

// CreateCampaign создаёт новую кампанию предзаказа.
func (r *PostgresRepository) CreateCampaign(ctx context.Context, c *model.Campaign) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO campaigns (name, product_id, start_date, end_date, min_quantity, max_quantity, total_amount, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		c.Name, c.ProductID, c.StartDate, c.EndDate,
		c.MinQuantity, c.MaxQuantity, c.TotalCents, string(c.Status),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrNameTaken, c.Name)
		}
		return 0, fmt.Errorf("create campaign: %w", err)
	}
	return id, nil
}

// GetCampaign возвращает кампанию по идентификатору, включая удалённые.
func (r *PostgresRepository) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns возвращает все неудалённые кампании.
func (r *PostgresRepository) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE NOT deleted ORDER BY start_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("select campaigns: %w", err)
	}
	defer rows.Close()

	var res []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListRunningCampaigns возвращает кампании, за которыми следит планировщик:
// неудалённые, не в черновике и ещё не завершённые.
func (r *PostgresRepository) ListRunningCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE NOT deleted AND status NOT IN ($1, $2)`,
		string(model.CampaignStatusDraft), string(model.CampaignStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select running campaigns: %w", err)
	}
	defer rows.Close()

	var res []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ApplyCampaignTransition переводит кампанию из статуса from в статус to.
// Возвращает false, если кампания уже не в статусе from: переход применён
// кем-то другим, и повторное применение — no-op.
func (r *PostgresRepository) ApplyCampaignTransition(ctx context.Context, id int64, from, to model.CampaignStatus) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET status = $3 WHERE id = $1 AND status = $2 AND NOT deleted`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("update campaign status: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// PublishCampaign переводит кампанию из черновика в UPCOMING.
func (r *PostgresRepository) PublishCampaign(ctx context.Context, id int64) (bool, error) {
	return r.ApplyCampaignTransition(ctx, id, model.CampaignStatusDraft, model.CampaignStatusUpcoming)
}

// DeleteCampaign помечает кампанию удалённой.
func (r *PostgresRepository) DeleteCampaign(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET deleted = TRUE WHERE id = $1 AND NOT deleted`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// activeStageID возвращает этап кампании, которому приписывается продажа в момент at:
// последний по дате начала неудалённый этап, уже начавшийся к этому моменту.
func activeStageID(ctx context.Context, q querier, campaignID int64, at time.Time) (int64, bool, error) {
	var id int64
	err := q.QueryRow(ctx,
		`SELECT id FROM campaign_stages
		 WHERE campaign_id = $1 AND NOT deleted AND start_date <= $2
		 ORDER BY start_date DESC
		 LIMIT 1`,
		campaignID, at,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("select stage for attribution: %w", err)
	}
	return id, true, nil
}
