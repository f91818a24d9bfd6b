package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCredit     TransactionType = "credit"
	TransactionDebit      TransactionType = "debit"
	TransactionTransfer   TransactionType = "transfer"
	TransactionAdjustment TransactionType = "adjustment"
)

type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
	StatusFailed    TransactionStatus = "failed"
)

// WalletTransaction is an immutable movement record. A credit carries a
// ToWalletID, a debit a FromWalletID, a transfer both; an adjustment carries
// whichever side matches the sign of the correction and records the reason
// in Description. Once completed, only Description/Category/Status may be
// edited and edits never re-apply balance effects.
type WalletTransaction struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	BrandID        string            `gorm:"size:36;not null;index" json:"brandId"`
	Type           TransactionType   `gorm:"size:16;not null" json:"type"`
	FromWalletID   *string           `gorm:"size:36;index" json:"fromWalletId,omitempty"`
	ToWalletID     *string           `gorm:"size:36;index" json:"toWalletId,omitempty"`
	Amount         decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	Description    string            `gorm:"size:512" json:"description"`
	Category       *string           `gorm:"size:64" json:"category,omitempty"`
	Date           time.Time         `gorm:"not null" json:"date"`
	Status         TransactionStatus `gorm:"size:16;not null;default:'completed'" json:"status"`
	CountAsRevenue bool              `gorm:"not null;default:false" json:"countAsRevenue"`
	CountAsCost    bool              `gorm:"not null;default:false" json:"countAsCost"`
	CreatedBy      string            `gorm:"size:36;not null" json:"createdBy"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"createdAt"`
}

func (WalletTransaction) TableName() string { return "wallet_transaction" }

func ValidTransactionStatus(s TransactionStatus) bool {
	switch s {
	case StatusCompleted, StatusPending, StatusFailed:
		return true
	}
	return false
}
