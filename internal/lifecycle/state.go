// Package lifecycle содержит чистую функцию вычисления статуса по временному окну.
package lifecycle

import (
	"time"

	"github.com/mmeshcher/preorder-system/internal/model"
)

// StatusFor возвращает статус сущности для момента now относительно окна [start, end].
// Переходы движутся только вперёд: UPCOMING → ACTIVE → COMPLETED.
func StatusFor(now, start, end time.Time) model.StageStatus {
	switch {
	case now.Before(start):
		return model.StageStatusUpcoming
	case now.After(end):
		return model.StageStatusCompleted
	default:
		return model.StageStatusActive
	}
}

var stageRank = map[model.StageStatus]int{
	model.StageStatusUpcoming:  0,
	model.StageStatusActive:    1,
	model.StageStatusCompleted: 2,
}

var campaignRank = map[model.CampaignStatus]int{
	model.CampaignStatusDraft:     0,
	model.CampaignStatusUpcoming:  1,
	model.CampaignStatusActive:    2,
	model.CampaignStatusCompleted: 3,
}

// IsForward сообщает, движется ли переход этапа строго вперёд.
// Окно, отредактированное в будущее у уже начавшегося этапа, даёт
// попятный целевой статус; такой переход не применяется.
func IsForward(from, to model.StageStatus) bool {
	return stageRank[to] > stageRank[from]
}

// IsCampaignForward сообщает, движется ли переход кампании строго вперёд.
func IsCampaignForward(from, to model.CampaignStatus) bool {
	return campaignRank[to] > campaignRank[from]
}

// CampaignStatusFor возвращает статус кампании для момента now.
// Кампания в статусе DRAFT не участвует в расписании: перевод из черновика —
// действие администратора, а не часов.
func CampaignStatusFor(now time.Time, c *model.Campaign) model.CampaignStatus {
	if c.Status == model.CampaignStatusDraft {
		return model.CampaignStatusDraft
	}
	switch StatusFor(now, c.StartDate, c.EndDate) {
	case model.StageStatusUpcoming:
		return model.CampaignStatusUpcoming
	case model.StageStatusCompleted:
		return model.CampaignStatusCompleted
	default:
		return model.CampaignStatusActive
	}
}
