package service

import (
	"context"
	"testing"
	"time"

	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/provider"
	"github.com/mmeshcher/preorder-system/internal/repository"
)

func TestProcessLifecycleBatch_AppliesDueTransitions(t *testing.T) {
	repo := &stubRepo{
		runningCampaigns: []model.Campaign{
			{
				// окно открылось — пора в ACTIVE
				ID:        1,
				StartDate: testNow.AddDate(0, 0, -1),
				EndDate:   testNow.AddDate(0, 0, 5),
				Status:    model.CampaignStatusUpcoming,
			},
			{
				// окно ещё не началось — статус не трогаем
				ID:        2,
				StartDate: testNow.AddDate(0, 0, 3),
				EndDate:   testNow.AddDate(0, 0, 9),
				Status:    model.CampaignStatusUpcoming,
			},
		},
		runningStages: []model.CampaignStage{
			{
				// окно закончилось — пора в COMPLETED
				ID:        10,
				StartDate: testNow.AddDate(0, 0, -5),
				EndDate:   testNow.AddDate(0, 0, -1),
				Status:    model.StageStatusActive,
			},
		},
	}
	svc := newTestService(repo, nil)

	svc.processLifecycleBatch(context.Background())

	if len(repo.campaignTransitions) != 1 {
		t.Fatalf("campaign transitions = %d, want 1", len(repo.campaignTransitions))
	}
	ct := repo.campaignTransitions[0]
	if ct.id != 1 || ct.from != "UPCOMING" || ct.to != "ACTIVE" {
		t.Errorf("campaign transition = %+v", ct)
	}

	if len(repo.stageTransitions) != 1 {
		t.Fatalf("stage transitions = %d, want 1", len(repo.stageTransitions))
	}
	st := repo.stageTransitions[0]
	if st.id != 10 || st.from != "ACTIVE" || st.to != "COMPLETED" {
		t.Errorf("stage transition = %+v", st)
	}
}

func TestProcessLifecycleBatch_RerunIsNoop(t *testing.T) {
	repo := &stubRepo{
		runningCampaigns: []model.Campaign{
			{
				ID:        1,
				StartDate: testNow.AddDate(0, 0, -1),
				EndDate:   testNow.AddDate(0, 0, 5),
				Status:    model.CampaignStatusActive,
			},
		},
		runningStages: []model.CampaignStage{
			{
				ID:        10,
				StartDate: testNow.AddDate(0, 0, -1),
				EndDate:   testNow.AddDate(0, 0, 5),
				Status:    model.StageStatusActive,
			},
		},
	}
	svc := newTestService(repo, nil)

	svc.processLifecycleBatch(context.Background())
	svc.processLifecycleBatch(context.Background())

	if len(repo.campaignTransitions) != 0 || len(repo.stageTransitions) != 0 {
		t.Fatalf("no boundary crossed, transitions must not be applied: %+v %+v",
			repo.campaignTransitions, repo.stageTransitions)
	}
}

func TestPollPendingPayments_FeedsReconcile(t *testing.T) {
	repo := &stubRepo{
		pendingCodes:    []int64{42},
		reconcileResult: &repository.ReconcileResult{Applied: true},
	}
	pc := &stubProvider{info: &provider.LinkInfo{OrderCode: 42, Status: "PAID"}}
	svc := newTestService(repo, pc)

	svc.pollPendingPayments(context.Background())

	if len(repo.reconciled) != 1 {
		t.Fatalf("reconciled calls = %d, want 1", len(repo.reconciled))
	}
	if repo.reconciled[0].orderCode != 42 || repo.reconciled[0].status != model.PaymentStatusPaid {
		t.Errorf("reconciled with %+v", repo.reconciled[0])
	}
}

func TestPollPendingPayments_PendingStatusSkipped(t *testing.T) {
	repo := &stubRepo{pendingCodes: []int64{42}}
	pc := &stubProvider{info: &provider.LinkInfo{OrderCode: 42, Status: "PENDING"}}
	svc := newTestService(repo, pc)

	svc.pollPendingPayments(context.Background())

	if len(repo.reconciled) != 0 {
		t.Fatalf("pending provider status must not reach the repository")
	}
}

func TestStartPaymentPolling_NoProvider(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartPaymentPolling(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartPaymentPolling did not return without provider")
	}
}

func TestProcessLifecycleBatch_BackwardTransitionSkipped(t *testing.T) {
	repo := &stubRepo{
		runningCampaigns: []model.Campaign{
			{
				// окно перенесено в будущее уже после активации
				ID:        1,
				StartDate: testNow.AddDate(0, 0, 3),
				EndDate:   testNow.AddDate(0, 0, 9),
				Status:    model.CampaignStatusActive,
			},
		},
		runningStages: []model.CampaignStage{
			{
				ID:        10,
				StartDate: testNow.AddDate(0, 0, 3),
				EndDate:   testNow.AddDate(0, 0, 9),
				Status:    model.StageStatusActive,
			},
		},
	}
	svc := newTestService(repo, nil)

	svc.processLifecycleBatch(context.Background())

	if len(repo.campaignTransitions) != 0 || len(repo.stageTransitions) != 0 {
		t.Fatalf("backward transitions must be skipped, got %+v / %+v",
			repo.campaignTransitions, repo.stageTransitions)
	}
}
