package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/preorder-system/internal/lifecycle"
	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/repository"
)

// CampaignParams описывает параметры новой кампании.
type CampaignParams struct {
	Name        string
	ProductID   int64
	StartDate   time.Time
	EndDate     time.Time
	MinQuantity int64
	MaxQuantity int64
}

// CreateCampaign создаёт кампанию в статусе DRAFT. Только для администратора.
func (s *Service) CreateCampaign(ctx context.Context, caller Caller, p CampaignParams) (int64, error) {
	if !caller.Admin {
		return 0, ErrUnauthorized
	}
	if !p.StartDate.Before(p.EndDate) {
		return 0, fmt.Errorf("%w: start date must precede end date", repository.ErrInvalidState)
	}
	if p.MinQuantity < 0 || (p.MaxQuantity > 0 && p.MaxQuantity < p.MinQuantity) {
		return 0, fmt.Errorf("%w: invalid quantity bounds", repository.ErrInvalidState)
	}

	if _, err := s.repo.GetProduct(ctx, p.ProductID); err != nil {
		return 0, err
	}

	return s.repo.CreateCampaign(ctx, &model.Campaign{
		Name:        p.Name,
		ProductID:   p.ProductID,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		MinQuantity: p.MinQuantity,
		MaxQuantity: p.MaxQuantity,
		Status:      model.CampaignStatusDraft,
	})
}

// PublishCampaign выводит кампанию из черновика: дальше её статусом управляет
// планировщик. Только для администратора.
func (s *Service) PublishCampaign(ctx context.Context, caller Caller, campaignID int64) error {
	if !caller.Admin {
		return ErrUnauthorized
	}

	campaign, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Deleted {
		return repository.ErrNotFound
	}

	applied, err := s.repo.PublishCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: campaign is not a draft", repository.ErrInvalidState)
	}
	return nil
}

// ListCampaigns возвращает неудалённые кампании.
func (s *Service) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	return s.repo.ListCampaigns(ctx)
}

// StageParams описывает параметры этапа кампании.
type StageParams struct {
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	TargetQuantity int64
}

func validateStageWindow(p StageParams, campaign *model.Campaign) error {
	if !p.StartDate.Before(p.EndDate) {
		return fmt.Errorf("%w: start date must precede end date", repository.ErrInvalidState)
	}
	if p.StartDate.Before(campaign.StartDate) || p.EndDate.After(campaign.EndDate) {
		return fmt.Errorf("%w: stage window must lie within campaign window", repository.ErrInvalidState)
	}
	if p.TargetQuantity < 0 {
		return fmt.Errorf("%w: negative target quantity", repository.ErrInvalidState)
	}
	return nil
}

// CreateStage создаёт этап кампании. Окно этапа обязано лежать внутри окна
// кампании. Только для администратора.
func (s *Service) CreateStage(ctx context.Context, caller Caller, campaignID int64, p StageParams) (int64, error) {
	if !caller.Admin {
		return 0, ErrUnauthorized
	}

	campaign, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Deleted {
		return 0, repository.ErrNotFound
	}

	if err := validateStageWindow(p, campaign); err != nil {
		return 0, err
	}

	return s.repo.CreateStage(ctx, &model.CampaignStage{
		CampaignID:     campaignID,
		Name:           p.Name,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		TargetQuantity: p.TargetQuantity,
		Status:         lifecycle.StatusFor(s.now(), p.StartDate, p.EndDate),
	})
}

// UpdateStage изменяет имя, окно и цель этапа. Только для администратора.
func (s *Service) UpdateStage(ctx context.Context, caller Caller, stageID int64, p StageParams) error {
	if !caller.Admin {
		return ErrUnauthorized
	}

	stage, err := s.repo.GetStage(ctx, stageID)
	if err != nil {
		return err
	}
	if stage.Deleted {
		return repository.ErrNotFound
	}

	campaign, err := s.repo.GetCampaign(ctx, stage.CampaignID)
	if err != nil {
		return err
	}

	if err := validateStageWindow(p, campaign); err != nil {
		return err
	}

	stage.Name = p.Name
	stage.StartDate = p.StartDate
	stage.EndDate = p.EndDate
	stage.TargetQuantity = p.TargetQuantity

	return s.repo.UpdateStage(ctx, stage)
}

// DeleteStage помечает этап удалённым. Только для администратора.
func (s *Service) DeleteStage(ctx context.Context, caller Caller, stageID int64) error {
	if !caller.Admin {
		return ErrUnauthorized
	}
	return s.repo.DeleteStage(ctx, stageID)
}

// ListStages возвращает этапы кампании.
func (s *Service) ListStages(ctx context.Context, campaignID int64) ([]model.CampaignStage, error) {
	if _, err := s.repo.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListStages(ctx, campaignID)
}

// StageHistory возвращает журнал переходов этапов кампании.
func (s *Service) StageHistory(ctx context.Context, campaignID int64) ([]model.StageHistory, error) {
	if _, err := s.repo.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListStageHistory(ctx, campaignID)
}
