package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brandops/ledger-service/internal/model"
)

// ErrVersionConflict is returned when a version-checked balance write loses
// an optimistic-lock race.
var ErrVersionConflict = errors.New("wallet version conflict")

// RepositoryInterface restricts Repo methods (unit-test mocks).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	GetWallet(ctx context.Context, tx *gorm.DB, brandID, walletID string) (*model.Wallet, error)
	GetWalletForUpdate(ctx context.Context, tx *gorm.DB, brandID, walletID string) (*model.Wallet, error)
	ListWallets(ctx context.Context, brandID string) ([]model.Wallet, error)
	UpdateWalletFields(ctx context.Context, tx *gorm.DB, brandID, walletID string, fields map[string]interface{}) (int64, error)
	UpdateWalletBalance(ctx context.Context, tx *gorm.DB, walletID string, newBalance decimal.Decimal, oldVersion uint64) error
	DeleteWallet(ctx context.Context, tx *gorm.DB, brandID, walletID string) (int64, error)
	CountWallets(ctx context.Context, brandID string) (int64, error)
	SumWalletBalances(ctx context.Context, brandID string) (decimal.Decimal, error)

	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.WalletTransaction) error
	GetTransaction(ctx context.Context, brandID, txID string) (*model.WalletTransaction, error)
	CountTransactions(ctx context.Context, brandID string) (int64, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, brandID, walletID string, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, brandID, walletID string) (decimal.Decimal, error)
	DropCachedBalance(ctx context.Context, brandID, walletID string) error

	UsageRepository
}

// Repository implements RepositoryInterface on postgres + redis + kafka.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return tx.WithContext(ctx).Create(w).Error
}

func (r *Repository) GetWallet(ctx context.Context, tx *gorm.DB, brandID, walletID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).
		Where("id = ? AND brand_id = ?", walletID, brandID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWalletForUpdate locks the wallet row for the rest of the enclosing
// transaction. The brand filter doubles as the ownership check.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, brandID, walletID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND brand_id = ?", walletID, brandID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) ListWallets(ctx context.Context, brandID string) ([]model.Wallet, error) {
	var ws []model.Wallet
	err := r.db.WithContext(ctx).
		Where("brand_id = ?", brandID).Order("created_at").Find(&ws).Error
	return ws, err
}

// UpdateWalletFields patches non-balance wallet fields. Returns rows
// affected so the caller can distinguish not-found.
func (r *Repository) UpdateWalletFields(ctx context.Context, tx *gorm.DB, brandID, walletID string, fields map[string]interface{}) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Wallet{}).
		Where("id = ? AND brand_id = ?", walletID, brandID).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// UpdateWalletBalance with optimistic lock.
func (r *Repository) UpdateWalletBalance(ctx context.Context, tx *gorm.DB, walletID string, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", walletID, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *Repository) DeleteWallet(ctx context.Context, tx *gorm.DB, brandID, walletID string) (int64, error) {
	res := tx.WithContext(ctx).
		Where("id = ? AND brand_id = ?", walletID, brandID).
		Delete(&model.Wallet{})
	return res.RowsAffected, res.Error
}

func (r *Repository) CountWallets(ctx context.Context, brandID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("brand_id = ?", brandID).Count(&n).Error
	return n, err
}

func (r *Repository) SumWalletBalances(ctx context.Context, brandID string) (decimal.Decimal, error) {
	row := r.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("brand_id = ?", brandID).
		Select("COALESCE(SUM(balance), 0)").Row()
	var total decimal.Decimal
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// CreateTransaction inserts the immutable ledger record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.WalletTransaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *Repository) GetTransaction(ctx context.Context, brandID, txID string) (*model.WalletTransaction, error) {
	var t model.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("id = ? AND brand_id = ?", txID, brandID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) CountTransactions(ctx context.Context, brandID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).
		Where("brand_id = ?", brandID).Count(&n).Error
	return n, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// Cache keys are brand-scoped so a cached balance can never be read across
// brands.
func balanceKey(brandID, walletID string) string {
	return "balance:" + brandID + ":" + walletID
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, brandID, walletID string, bal decimal.Decimal) error {
	return r.rdb.Set(ctx, balanceKey(brandID, walletID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, brandID, walletID string) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, balanceKey(brandID, walletID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}

// DropCachedBalance invalidates the cache entry on wallet deletion.
func (r *Repository) DropCachedBalance(ctx context.Context, brandID, walletID string) error {
	return r.rdb.Del(ctx, balanceKey(brandID, walletID)).Err()
}
