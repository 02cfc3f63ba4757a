package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/preorder-system/internal/lifecycle"
	"github.com/mmeshcher/preorder-system/internal/metrics"
)

// StartLifecycleUpdates запускает фоновый процесс, который на каждом тике
// пересчитывает статусы кампаний и этапов от текущего времени. Решения
// выводятся только из сохранённых дат, поэтому рестарт процесса ничего не теряет.
func (s *Service) StartLifecycleUpdates(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.lifecycleInterval)
		defer ticker.Stop()

		// Первый проход сразу при старте, чтобы не ждать целый интервал.
		s.processLifecycleBatch(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processLifecycleBatch(ctx)
			}
		}
	}()
}

// processLifecycleBatch применяет назревшие переходы. Ошибка по одной сущности
// логируется и не прерывает обработку остальных; повторный проход без
// пересечения границы окна — no-op.
func (s *Service) processLifecycleBatch(ctx context.Context) {
	now := s.now()

	campaigns, err := s.repo.ListRunningCampaigns(ctx)
	if err != nil {
		s.logger.Error("list running campaigns", zap.Error(err))
	}
	for _, c := range campaigns {
		target := lifecycle.CampaignStatusFor(now, &c)
		if target == c.Status {
			continue
		}
		if !lifecycle.IsCampaignForward(c.Status, target) {
			// Попятный целевой статус возможен после правки окна кампании;
			// статусы назад не откатываются.
			s.logger.Warn("skip backward campaign transition",
				zap.Int64("campaignID", c.ID),
				zap.String("preStatus", string(c.Status)),
				zap.String("targetStatus", string(target)))
			continue
		}

		applied, err := s.repo.ApplyCampaignTransition(ctx, c.ID, c.Status, target)
		if err != nil {
			s.logger.Error("apply campaign transition",
				zap.Int64("campaignID", c.ID), zap.Error(err))
			continue
		}
		if !applied {
			continue
		}

		metrics.LifecycleTransitions.WithLabelValues("campaign", string(target)).Inc()
		s.logger.Info("campaign transition",
			zap.Int64("campaignID", c.ID),
			zap.String("preStatus", string(c.Status)),
			zap.String("curStatus", string(target)))
	}

	stages, err := s.repo.ListRunningStages(ctx)
	if err != nil {
		s.logger.Error("list running stages", zap.Error(err))
	}
	for _, st := range stages {
		target := lifecycle.StatusFor(now, st.StartDate, st.EndDate)
		if target == st.Status {
			continue
		}
		if !lifecycle.IsForward(st.Status, target) {
			s.logger.Warn("skip backward stage transition",
				zap.Int64("stageID", st.ID),
				zap.String("preStatus", string(st.Status)),
				zap.String("targetStatus", string(target)))
			continue
		}

		applied, err := s.repo.ApplyStageTransition(ctx, st.ID, st.Status, target, now)
		if err != nil {
			s.logger.Error("apply stage transition",
				zap.Int64("stageID", st.ID), zap.Error(err))
			continue
		}
		if !applied {
			continue
		}

		metrics.LifecycleTransitions.WithLabelValues("stage", string(target)).Inc()
		s.logger.Info("stage transition",
			zap.Int64("stageID", st.ID),
			zap.String("preStatus", string(st.Status)),
			zap.String("curStatus", string(target)))
	}
}

// StartPaymentPolling запускает фоновый опрос провайдера по платежам,
// ожидающим подтверждения. Опрос — второй путь доставки наравне с webhook;
// оба сходятся в Reconcile.
func (s *Service) StartPaymentPolling(ctx context.Context) {
	if s.provider == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(s.paymentPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollPendingPayments(ctx)
			}
		}
	}()
}

func (s *Service) pollPendingPayments(ctx context.Context) {
	// Свежесозданные платежи пропускаются: им ещё рано, пусть сначала
	// отработает webhook.
	olderThan := s.now().Add(-s.paymentPollInterval)

	codes, err := s.repo.ListPendingPaymentCodes(ctx, olderThan, 100)
	if err != nil {
		s.logger.Error("list pending payments", zap.Error(err))
		return
	}

	for _, code := range codes {
		info, err := s.provider.GetPaymentLinkInfo(ctx, code)
		if err != nil {
			s.logger.Error("poll payment link", zap.Int64("orderCode", code), zap.Error(err))
			continue
		}

		if err := s.Reconcile(ctx, code, info.Status); err != nil {
			s.logger.Error("reconcile polled payment", zap.Int64("orderCode", code), zap.Error(err))
		}
	}
}
