package model

import "time"

// LimitUnlimited marks a plan limit with no cap.
const LimitUnlimited int64 = -1

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionCanceled SubscriptionStatus = "cancelled"
)

// PlanLimits maps a plan feature field (e.g. "wallets", "inventoryItems")
// to its cap. -1 means unlimited; a missing field is treated as unlimited.
type PlanLimits map[string]int64

type Plan struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Name      string     `gorm:"size:64;not null" json:"name"`
	Limits    PlanLimits `gorm:"type:jsonb;serializer:json" json:"limits"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Plan) TableName() string { return "plan" }

// Limit resolves the cap for a plan-limits field.
func (p *Plan) Limit(field string) int64 {
	if p == nil || p.Limits == nil {
		return LimitUnlimited
	}
	v, ok := p.Limits[field]
	if !ok {
		return LimitUnlimited
	}
	return v
}

type Subscription struct {
	ID        string             `gorm:"primaryKey;size:36" json:"id"`
	UserID    string             `gorm:"size:36;not null;index" json:"userId"`
	PlanID    string             `gorm:"size:36;not null" json:"planId"`
	Status    SubscriptionStatus `gorm:"size:16;not null;index" json:"status"`
	Plan      Plan               `gorm:"foreignKey:PlanID" json:"plan"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Subscription) TableName() string { return "subscription" }
