package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletType string

const (
	WalletTypeFounder  WalletType = "FOUNDER"
	WalletTypeBusiness WalletType = "BUSINESS"
	WalletTypePersonal WalletType = "PERSONAL"
	WalletTypeCustom   WalletType = "CUSTOM"
)

// Wallet is an internal named cash balance owned by a brand. Balance may be
// any sign; it is mutated only inside the transaction engine's atomic unit,
// guarded by the version column.
type Wallet struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	BrandID   string          `gorm:"size:36;not null;index" json:"brandId"`
	Name      string          `gorm:"size:128;not null" json:"name"`
	Type      WalletType      `gorm:"size:16;not null;default:'CUSTOM'" json:"type"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"balance"`
	Color     string          `gorm:"size:16" json:"color"`
	Version   uint64          `gorm:"not null;default:0" json:"-"`
	CreatedBy string          `gorm:"size:36;not null" json:"createdBy"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Wallet) TableName() string { return "wallet" }

func ValidWalletType(t WalletType) bool {
	switch t {
	case WalletTypeFounder, WalletTypeBusiness, WalletTypePersonal, WalletTypeCustom:
		return true
	}
	return false
}
