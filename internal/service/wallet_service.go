package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brandops/ledger-service/internal/model"
	"github.com/brandops/ledger-service/internal/repo"
)

// WalletService owns wallet records. Balances are read here but only ever
// mutated by the TransactionService.
type WalletService struct {
	repo  repo.RepositoryInterface
	usage *UsageService
	quota *QuotaService
	log   *zap.SugaredLogger
}

func NewWalletService(r repo.RepositoryInterface, usage *UsageService, quota *QuotaService, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, usage: usage, quota: quota, log: logger}
}

// CreateWalletSpec carries the caller-supplied wallet fields. Balance is
// the opening balance; it does not produce a transaction record.
type CreateWalletSpec struct {
	Name     string
	Balance  decimal.Decimal
	Type     model.WalletType
	Currency string
	Color    string
}

// UpdateWalletSpec patches display fields. Balance is present only to
// reject it explicitly: balances move through Apply/Adjust.
type UpdateWalletSpec struct {
	Name     *string
	Type     *model.WalletType
	Currency *string
	Color    *string
	Balance  *decimal.Decimal
}

// Create checks the quota gate, writes the wallet, then bumps the wallets
// usage counter. A counter failure does not undo the creation; it is
// reported through the sync-failure path.
func (s *WalletService) Create(ctx context.Context, brandID, actorID string, spec CreateWalletSpec) (*model.Wallet, error) {
	if err := s.quota.Require(ctx, actorID, brandID, model.ResourceWallets); err != nil {
		return nil, err
	}
	wt := spec.Type
	if wt == "" {
		wt = model.WalletTypeCustom
	}
	if !model.ValidWalletType(wt) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidWallet, wt)
	}
	w := &model.Wallet{
		ID:        uuid.NewString(),
		BrandID:   brandID,
		Name:      spec.Name,
		Type:      wt,
		Currency:  spec.Currency,
		Balance:   spec.Balance,
		Color:     spec.Color,
		CreatedBy: actorID,
	}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateWallet(ctx, tx, w); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"walletId": w.ID, "brandId": brandID, "name": w.Name, "balance": w.Balance,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Wallet", AggregateID: w.ID,
			EventType: model.EventWalletCreated, Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.CacheBalance(ctx, brandID, w.ID, w.Balance); err != nil {
		s.log.Warnw("cache opening balance", "walletId", w.ID, "error", err)
	}
	if err := s.usage.Increment(ctx, actorID, brandID, model.ResourceWallets, 1); err != nil {
		s.usage.ReportSyncFailure(ctx, actorID, brandID, model.ResourceWallets, "increment", err)
	}
	return w, nil
}

func (s *WalletService) List(ctx context.Context, brandID string) ([]model.Wallet, error) {
	return s.repo.ListWallets(ctx, brandID)
}

func (s *WalletService) GetByID(ctx context.Context, brandID, walletID string) (*model.Wallet, error) {
	return s.repo.GetWallet(ctx, s.repo.DB(ctx), brandID, walletID)
}

// GetBalance reads through the cache, falling back to the wallet row. The
// cache key carries the brand, so a hit is as brand-scoped as the fallback
// query.
func (s *WalletService) GetBalance(ctx context.Context, brandID, walletID string) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, brandID, walletID); err == nil {
		return bal, nil
	}
	w, err := s.repo.GetWallet(ctx, s.repo.DB(ctx), brandID, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, brandID, walletID, w.Balance); err != nil {
		s.log.Warnw("cache balance", "walletId", walletID, "error", err)
	}
	return w.Balance, nil
}

// Update patches name/type/currency/color. A balance in the patch is
// rejected with ErrBalanceImmutable.
func (s *WalletService) Update(ctx context.Context, brandID, walletID string, spec UpdateWalletSpec) (*model.Wallet, error) {
	if spec.Balance != nil {
		return nil, ErrBalanceImmutable
	}
	fields := map[string]interface{}{}
	if spec.Name != nil {
		fields["name"] = *spec.Name
	}
	if spec.Type != nil {
		if !model.ValidWalletType(*spec.Type) {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidWallet, *spec.Type)
		}
		fields["type"] = *spec.Type
	}
	if spec.Currency != nil {
		fields["currency"] = *spec.Currency
	}
	if spec.Color != nil {
		fields["color"] = *spec.Color
	}
	if len(fields) > 0 {
		rows, err := s.repo.UpdateWalletFields(ctx, s.repo.DB(ctx), brandID, walletID, fields)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return s.repo.GetWallet(ctx, s.repo.DB(ctx), brandID, walletID)
}

// Delete removes the wallet and decrements usage. Counter failure is
// non-fatal, same as Create.
func (s *WalletService) Delete(ctx context.Context, brandID, walletID, actorID string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.DeleteWallet(ctx, tx, brandID, walletID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return gorm.ErrRecordNotFound
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"walletId": walletID, "brandId": brandID,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Wallet", AggregateID: walletID,
			EventType: model.EventWalletDeleted, Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return err
	}
	if err := s.repo.DropCachedBalance(ctx, brandID, walletID); err != nil {
		s.log.Warnw("drop cached balance", "walletId", walletID, "error", err)
	}
	if err := s.usage.Decrement(ctx, actorID, brandID, model.ResourceWallets, 1); err != nil {
		s.usage.ReportSyncFailure(ctx, actorID, brandID, model.ResourceWallets, "decrement", err)
	}
	return nil
}

// Repo exposes the underlying repository (unit-test helper).
func (s *WalletService) Repo() repo.RepositoryInterface {
	return s.repo
}
