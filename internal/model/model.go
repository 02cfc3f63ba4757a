// Package model содержит доменные сущности сервиса предзаказов.
package model

import "time"

// Role определяет роль пользователя в системе.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User представляет зарегистрированного пользователя.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Product описывает товар и его остаток на складе.
// Quantity — авторитетный счётчик доступного остатка в штуках.
type Product struct {
	ID         int64
	Name       string
	PriceCents int64
	Quantity   int64
}

// CampaignStatus описывает статус кампании предзаказа.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusUpcoming  CampaignStatus = "UPCOMING"
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
)

// Campaign описывает кампанию предзаказа одного товара.
type Campaign struct {
	ID          int64
	Name        string
	ProductID   int64
	StartDate   time.Time
	EndDate     time.Time
	MinQuantity int64
	MaxQuantity int64
	TotalCents  int64
	Status      CampaignStatus
	Deleted     bool
	CreatedAt   time.Time
}

// StageStatus описывает статус этапа кампании.
type StageStatus string

const (
	StageStatusUpcoming  StageStatus = "UPCOMING"
	StageStatusActive    StageStatus = "ACTIVE"
	StageStatusCompleted StageStatus = "COMPLETED"
)

// CampaignStage описывает этап кампании — ограниченный по времени
// под-период с собственной целью продаж. Окно этапа лежит внутри окна кампании.
type CampaignStage struct {
	ID             int64
	CampaignID     int64
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	TargetQuantity int64
	QuantitySold   int64
	Status         StageStatus
	Deleted        bool
	CreatedAt      time.Time
}

// StageHistory описывает одну запись журнала переходов статуса этапа.
// Журнал append-only: записи никогда не изменяются и не удаляются.
type StageHistory struct {
	ID             int64
	StageID        int64
	PreStatus      StageStatus
	CurStatus      StageStatus
	TransitionTime time.Time
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
)

// Order описывает предзаказ пользователя в рамках кампании.
// Пока заказ в статусе PENDING, его количество зарезервировано на складе.
type Order struct {
	ID         int64
	UserID     int64
	CampaignID int64
	Quantity   int64
	TotalCents int64
	Status     OrderStatus
	Deleted    bool
	UploadedAt time.Time
}

// PaymentStatus описывает статус платежа у платёжного провайдера.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Terminal сообщает, является ли статус конечным.
// После перехода в конечный статус платёж больше не изменяется.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusFailed:
		return true
	}
	return false
}

// Payment описывает платёж, объединяющий один или несколько заказов.
// OrderCode — числовой код, под которым платёж известен провайдеру.
type Payment struct {
	OrderCode   int64
	AmountCents int64
	Method      string
	Status      PaymentStatus
	OrderIDs    []int64
	PaidAt      *time.Time
	CreatedAt   time.Time
}
