package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brandops/ledger-service/internal/metrics"
	"github.com/brandops/ledger-service/internal/model"
	"github.com/brandops/ledger-service/internal/repo"
)

// TransactionService applies validated fund movements as one atomic unit
// spanning the ledger record and the wallet balances it touches. It is the
// only writer of Wallet.Balance.
type TransactionService struct {
	repo  repo.RepositoryInterface
	usage *UsageService
	quota *QuotaService
	log   *zap.SugaredLogger
}

func NewTransactionService(r repo.RepositoryInterface, usage *UsageService, quota *QuotaService, logger *zap.SugaredLogger) *TransactionService {
	return &TransactionService{repo: r, usage: usage, quota: quota, log: logger}
}

// ApplyInput is a movement request. Amount must be positive; the wallet
// references required depend on Type.
type ApplyInput struct {
	Type           model.TransactionType
	FromWalletID   string
	ToWalletID     string
	Amount         decimal.Decimal
	Description    string
	Category       *string
	Date           time.Time
	CountAsRevenue bool
	CountAsCost    bool
}

func (in *ApplyInput) validate() error {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	switch in.Type {
	case model.TransactionCredit:
		if in.ToWalletID == "" {
			return fmt.Errorf("%w: credit requires toWalletId", ErrInvalidTransaction)
		}
	case model.TransactionDebit:
		if in.FromWalletID == "" {
			return fmt.Errorf("%w: debit requires fromWalletId", ErrInvalidTransaction)
		}
	case model.TransactionTransfer:
		if in.FromWalletID == "" || in.ToWalletID == "" {
			return fmt.Errorf("%w: transfer requires both wallets", ErrInvalidTransaction)
		}
		if in.FromWalletID == in.ToWalletID {
			return fmt.Errorf("%w: cannot transfer to the same wallet", ErrInvalidTransaction)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidTransaction, in.Type)
	}
	return nil
}

// Apply validates, passes the quota gate, then runs the atomic unit:
// lock the participating wallet rows, move the balances with
// version-checked writes, insert the completed record and its outbox
// event. Any failure rolls the whole unit back; retry is safe.
func (s *TransactionService) Apply(ctx context.Context, brandID, actorID string, in ApplyInput) (*model.WalletTransaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.quota.Require(ctx, actorID, brandID, model.ResourceTransactions); err != nil {
		return nil, err
	}
	rec := s.newRecord(brandID, actorID, in)
	if err := s.applyAtomic(ctx, brandID, rec, in); err != nil {
		return nil, err
	}
	s.afterApply(ctx, brandID, actorID, rec)
	return rec, nil
}

// Adjust records a manual balance correction as an auditable adjustment
// transaction. delta > 0 credits the wallet, delta < 0 debits it; the
// actor-supplied reason lands in the record's description.
func (s *TransactionService) Adjust(ctx context.Context, brandID, actorID, walletID string, delta decimal.Decimal, reason string) (*model.WalletTransaction, error) {
	if delta.IsZero() {
		return nil, fmt.Errorf("%w: adjustment delta must be non-zero", ErrInvalidTransaction)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: adjustment requires a reason", ErrInvalidTransaction)
	}
	if walletID == "" {
		return nil, fmt.Errorf("%w: adjustment requires a wallet", ErrInvalidTransaction)
	}
	if err := s.quota.Require(ctx, actorID, brandID, model.ResourceTransactions); err != nil {
		return nil, err
	}
	in := ApplyInput{
		Type:        model.TransactionAdjustment,
		Amount:      delta.Abs(),
		Description: reason,
		Date:        time.Now(),
	}
	if delta.IsPositive() {
		in.ToWalletID = walletID
	} else {
		in.FromWalletID = walletID
	}
	rec := s.newRecord(brandID, actorID, in)
	if err := s.applyAtomic(ctx, brandID, rec, in); err != nil {
		return nil, err
	}
	s.afterApply(ctx, brandID, actorID, rec)
	return rec, nil
}

func (s *TransactionService) newRecord(brandID, actorID string, in ApplyInput) *model.WalletTransaction {
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	rec := &model.WalletTransaction{
		ID:             uuid.NewString(),
		BrandID:        brandID,
		Type:           in.Type,
		Amount:         in.Amount,
		Description:    in.Description,
		Category:       in.Category,
		Date:           date,
		Status:         model.StatusCompleted,
		CountAsRevenue: in.CountAsRevenue,
		CountAsCost:    in.CountAsCost,
		CreatedBy:      actorID,
	}
	if in.FromWalletID != "" {
		from := in.FromWalletID
		rec.FromWalletID = &from
	}
	if in.ToWalletID != "" {
		to := in.ToWalletID
		rec.ToWalletID = &to
	}
	return rec
}

type balanceUpdate struct {
	walletID string
	balance  decimal.Decimal
}

func (s *TransactionService) applyAtomic(ctx context.Context, brandID string, rec *model.WalletTransaction, in ApplyInput) error {
	// cache refreshes are deferred until the unit has committed, so a
	// rollback can never leave an uncommitted balance in the cache
	var updates []balanceUpdate
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		updates = updates[:0]
		switch in.Type {
		case model.TransactionCredit, model.TransactionDebit, model.TransactionAdjustment:
			walletID := in.ToWalletID
			amount := in.Amount
			if walletID == "" {
				walletID = in.FromWalletID
				amount = in.Amount.Neg()
			}
			w, err := s.repo.GetWalletForUpdate(ctx, tx, brandID, walletID)
			if err != nil {
				return err
			}
			newBal := w.Balance.Add(amount)
			if err := s.repo.UpdateWalletBalance(ctx, tx, w.ID, newBal, w.Version); err != nil {
				return err
			}
			updates = append(updates, balanceUpdate{w.ID, newBal})

		case model.TransactionTransfer:
			// lock wallets in deterministic ID order to avoid deadlock
			firstID, secondID := in.FromWalletID, in.ToWalletID
			if secondID < firstID {
				firstID, secondID = secondID, firstID
			}
			w1, err := s.repo.GetWalletForUpdate(ctx, tx, brandID, firstID)
			if err != nil {
				return err
			}
			w2, err := s.repo.GetWalletForUpdate(ctx, tx, brandID, secondID)
			if err != nil {
				return err
			}
			wFrom, wTo := w1, w2
			if firstID != in.FromWalletID {
				wFrom, wTo = w2, w1
			}
			newFrom := wFrom.Balance.Sub(in.Amount)
			newTo := wTo.Balance.Add(in.Amount)
			if err := s.repo.UpdateWalletBalance(ctx, tx, wFrom.ID, newFrom, wFrom.Version); err != nil {
				return err
			}
			if err := s.repo.UpdateWalletBalance(ctx, tx, wTo.ID, newTo, wTo.Version); err != nil {
				return err
			}
			updates = append(updates, balanceUpdate{wFrom.ID, newFrom}, balanceUpdate{wTo.ID, newTo})
		}

		if err := s.repo.CreateTransaction(ctx, tx, rec); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"transactionId": rec.ID, "brandId": brandID, "type": rec.Type,
			"fromWalletId": rec.FromWalletID, "toWalletId": rec.ToWalletID,
			"amount": rec.Amount,
			"countAsRevenue": rec.CountAsRevenue, "countAsCost": rec.CountAsCost,
		})
		evt := &model.OutboxEvent{
			Aggregate: "WalletTransaction", AggregateID: rec.ID,
			EventType: model.EventTransactionApplied, Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return err
	}
	for _, u := range updates {
		s.cacheBalance(ctx, brandID, u.walletID, u.balance)
	}
	return nil
}

func (s *TransactionService) cacheBalance(ctx context.Context, brandID, walletID string, bal decimal.Decimal) {
	if err := s.repo.CacheBalance(ctx, brandID, walletID, bal); err != nil {
		s.log.Warnw("cache balance", "walletId", walletID, "error", err)
	}
}

func (s *TransactionService) afterApply(ctx context.Context, brandID, actorID string, rec *model.WalletTransaction) {
	metrics.TransactionsApplied.WithLabelValues(string(rec.Type)).Inc()
	if err := s.usage.Increment(ctx, actorID, brandID, model.ResourceTransactions, 1); err != nil {
		s.usage.ReportSyncFailure(ctx, actorID, brandID, model.ResourceTransactions, "increment", err)
	}
}

// ListFilters narrows the transaction listing. A WalletID matches either
// side of the movement; Search scans descriptions and participant wallet
// names.
type ListFilters struct {
	WalletID string
	Type     model.TransactionType
	Search   string
	Page     int
	Limit    int
}

// TransactionPage is an offset-paginated listing.
type TransactionPage struct {
	Items      []model.WalletTransaction `json:"items"`
	Total      int64                     `json:"total"`
	Page       int                       `json:"page"`
	Limit      int                       `json:"limit"`
	TotalPages int                       `json:"totalPages"`
}

const defaultPageLimit = 50

func (s *TransactionService) List(ctx context.Context, brandID string, f ListFilters) (*TransactionPage, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}

	q := s.repo.DB(ctx).Model(&model.WalletTransaction{}).Where("brand_id = ?", brandID)
	if f.WalletID != "" {
		q = q.Where("(from_wallet_id = ? OR to_wallet_id = ?)", f.WalletID, f.WalletID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		named := s.repo.DB(ctx).Model(&model.Wallet{}).Select("id").
			Where("brand_id = ? AND name LIKE ?", brandID, like)
		q = q.Where("(description LIKE ? OR from_wallet_id IN (?) OR to_wallet_id IN (?))",
			like, named, named)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []model.WalletTransaction
	err := q.Order("date DESC, created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &TransactionPage{
		Items: items, Total: total, Page: page, Limit: limit, TotalPages: totalPages,
	}, nil
}

func (s *TransactionService) GetByID(ctx context.Context, brandID, txID string) (*model.WalletTransaction, error) {
	return s.repo.GetTransaction(ctx, brandID, txID)
}

// UpdateTransactionSpec patches the editable fields of a completed record.
// Balance effects are never re-applied on edit.
type UpdateTransactionSpec struct {
	Description *string
	Category    *string
	Status      *model.TransactionStatus
}

func (s *TransactionService) Update(ctx context.Context, brandID, txID string, spec UpdateTransactionSpec) (*model.WalletTransaction, error) {
	fields := map[string]interface{}{}
	if spec.Description != nil {
		fields["description"] = *spec.Description
	}
	if spec.Category != nil {
		fields["category"] = *spec.Category
	}
	if spec.Status != nil {
		if !model.ValidTransactionStatus(*spec.Status) {
			return nil, fmt.Errorf("%w: invalid status %q", ErrInvalidTransaction, *spec.Status)
		}
		fields["status"] = *spec.Status
	}
	if len(fields) > 0 {
		res := s.repo.DB(ctx).Model(&model.WalletTransaction{}).
			Where("id = ? AND brand_id = ?", txID, brandID).
			Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return s.repo.GetTransaction(ctx, brandID, txID)
}

// Delete removes the record only. Balances are NOT reversed: a deleted
// transaction leaves the wallets as they were, and a correction must be
// recorded explicitly through Adjust.
func (s *TransactionService) Delete(ctx context.Context, brandID, txID string) error {
	res := s.repo.DB(ctx).
		Where("id = ? AND brand_id = ?", txID, brandID).
		Delete(&model.WalletTransaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Summary aggregates the brand's wallet position.
type Summary struct {
	TotalWallets      int64           `json:"totalWallets"`
	TotalBalance      decimal.Decimal `json:"totalBalance"`
	TotalTransactions int64           `json:"totalTransactions"`
}

func (s *TransactionService) Metrics(ctx context.Context, brandID string) (*Summary, error) {
	wallets, err := s.repo.CountWallets(ctx, brandID)
	if err != nil {
		return nil, err
	}
	balance, err := s.repo.SumWalletBalances(ctx, brandID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.CountTransactions(ctx, brandID)
	if err != nil {
		return nil, err
	}
	return &Summary{TotalWallets: wallets, TotalBalance: balance, TotalTransactions: txs}, nil
}
