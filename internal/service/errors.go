package service

import (
	"errors"
	"fmt"

	"github.com/brandops/ledger-service/internal/model"
)

// ErrInvalidTransaction means the request was malformed: non-positive
// amount, missing wallet reference for the type, or a self-transfer.
// Rejected before any storage touch.
var ErrInvalidTransaction = errors.New("invalid transaction")

// ErrInvalidWallet means a malformed wallet spec, e.g. an unknown type.
var ErrInvalidWallet = errors.New("invalid wallet")

// ErrBalanceImmutable means a wallet update tried to set balance directly.
// Balances only move through the transaction engine (Apply or Adjust).
var ErrBalanceImmutable = errors.New("balance cannot be edited directly, record an adjustment instead")

// ErrNoActiveSubscription means usage cannot be evaluated without a plan.
var ErrNoActiveSubscription = errors.New("no active subscription")

// ErrUnknownResourceType means the resource type is outside the fixed set.
var ErrUnknownResourceType = errors.New("unknown resource type")

// LimitExceededError is the quota gate's denial, carrying the numbers the
// caller needs for messaging.
type LimitExceededError struct {
	Resource  model.ResourceType
	Current   int64
	Limit     int64
	Remaining int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("plan limit exceeded for %s: %d of %d used", e.Resource, e.Current, e.Limit)
}
