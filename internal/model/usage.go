package model

import "time"

type ResourceType string

const (
	ResourceWallets      ResourceType = "wallets"
	ResourceTransactions ResourceType = "transactions"
	ResourceInventory    ResourceType = "inventory"
	ResourceTeamMembers  ResourceType = "team_members"
)

// planLimitFields maps a resource type to the field name inside the plan's
// limits object.
var planLimitFields = map[ResourceType]string{
	ResourceWallets:      "wallets",
	ResourceTransactions: "transactions",
	ResourceInventory:    "inventoryItems",
	ResourceTeamMembers:  "teamMembers",
}

func KnownResourceTypes() []ResourceType {
	return []ResourceType{ResourceWallets, ResourceTransactions, ResourceInventory, ResourceTeamMembers}
}

// PlanLimitField returns the plan-limits field name for rt, false if rt is
// not a known resource type.
func PlanLimitField(rt ResourceType) (string, bool) {
	f, ok := planLimitFields[rt]
	return f, ok
}

// UsageCounter caches the live count of a resource type for a user/brand
// pair. It is eventually consistent with the owning table and repaired by
// reconcile.
type UsageCounter struct {
	UserID       string       `gorm:"primaryKey;size:36" json:"userId"`
	BrandID      string       `gorm:"primaryKey;size:36" json:"brandId"`
	ResourceType ResourceType `gorm:"primaryKey;size:32" json:"resourceType"`
	CurrentCount int64        `gorm:"not null;default:0" json:"currentCount"`
	LastUpdated  time.Time    `gorm:"not null" json:"lastUpdated"`
}

func (UsageCounter) TableName() string { return "usage_counter" }
