package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/preorder-system/internal/model"
)

const stageColumns = `id, campaign_id, name, start_date, end_date,
	target_quantity, quantity_sold, status, deleted, created_at`

func scanStage(row pgx.Row) (*model.CampaignStage, error) {
	var s model.CampaignStage
	var status string
	err := row.Scan(&s.ID, &s.CampaignID, &s.Name, &s.StartDate, &s.EndDate,
		&s.TargetQuantity, &s.QuantitySold, &status, &s.Deleted, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = model.StageStatus(status)
	return &s, nil
}

// CreateStage создаёт новый этап кампании.
func (r *PostgresRepository) CreateStage(ctx context.Context, s *model.CampaignStage) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO campaign_stages (campaign_id, name, start_date, end_date, target_quantity, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		s.CampaignID, s.Name, s.StartDate, s.EndDate, s.TargetQuantity, string(s.Status),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrNameTaken, s.Name)
		}
		return 0, fmt.Errorf("create stage: %w", err)
	}
	return id, nil
}

// GetStage возвращает этап по идентификатору.
func (r *PostgresRepository) GetStage(ctx context.Context, id int64) (*model.CampaignStage, error) {
	s, err := scanStage(r.pool.QueryRow(ctx,
		`SELECT `+stageColumns+` FROM campaign_stages WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get stage: %w", err)
	}
	return s, nil
}

// UpdateStage обновляет имя, окно и цель неудалённого этапа.
func (r *PostgresRepository) UpdateStage(ctx context.Context, s *model.CampaignStage) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE campaign_stages
		 SET name = $2, start_date = $3, end_date = $4, target_quantity = $5
		 WHERE id = $1 AND NOT deleted`,
		s.ID, s.Name, s.StartDate, s.EndDate, s.TargetQuantity,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrNameTaken, s.Name)
		}
		return fmt.Errorf("update stage: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStage помечает этап удалённым.
func (r *PostgresRepository) DeleteStage(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE campaign_stages SET deleted = TRUE WHERE id = $1 AND NOT deleted`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete stage: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStages возвращает неудалённые этапы кампании по порядку начала.
func (r *PostgresRepository) ListStages(ctx context.Context, campaignID int64) ([]model.CampaignStage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+stageColumns+` FROM campaign_stages
		 WHERE campaign_id = $1 AND NOT deleted
		 ORDER BY start_date`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("select stages: %w", err)
	}
	defer rows.Close()

	var res []model.CampaignStage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListRunningStages возвращает этапы, за которыми следит планировщик.
func (r *PostgresRepository) ListRunningStages(ctx context.Context) ([]model.CampaignStage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+stageColumns+` FROM campaign_stages
		 WHERE NOT deleted AND status <> $1`,
		string(model.StageStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select running stages: %w", err)
	}
	defer rows.Close()

	var res []model.CampaignStage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ApplyStageTransition переводит этап из статуса from в to и в той же транзакции
// добавляет запись в журнал переходов. Возвращает false, если этап уже не в
// статусе from: переход применён конкурентно, повтор — no-op без записи в журнал.
func (r *PostgresRepository) ApplyStageTransition(ctx context.Context, id int64, from, to model.StageStatus, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE campaign_stages SET status = $3 WHERE id = $1 AND status = $2 AND NOT deleted`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("update stage status: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO stage_history (stage_id, pre_status, cur_status, transition_time) VALUES ($1, $2, $3, $4)`,
		id, string(from), string(to), at,
	)
	if err != nil {
		return false, fmt.Errorf("insert stage history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// ListStageHistory возвращает журнал переходов всех этапов кампании.
func (r *PostgresRepository) ListStageHistory(ctx context.Context, campaignID int64) ([]model.StageHistory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT h.id, h.stage_id, h.pre_status, h.cur_status, h.transition_time
		 FROM stage_history h
		 JOIN campaign_stages s ON s.id = h.stage_id
		 WHERE s.campaign_id = $1
		 ORDER BY h.transition_time`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("select stage history: %w", err)
	}
	defer rows.Close()

	var res []model.StageHistory
	for rows.Next() {
		var h model.StageHistory
		var pre, cur string
		if err := rows.Scan(&h.ID, &h.StageID, &pre, &cur, &h.TransitionTime); err != nil {
			return nil, fmt.Errorf("scan stage history: %w", err)
		}
		h.PreStatus = model.StageStatus(pre)
		h.CurStatus = model.StageStatus(cur)
		res = append(res, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
