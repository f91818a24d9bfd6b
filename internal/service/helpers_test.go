package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brandops/ledger-service/internal/logger"
	"github.com/brandops/ledger-service/internal/model"
	"github.com/brandops/ledger-service/internal/repo"
)

type testEnv struct {
	ctx       context.Context
	db        *gorm.DB
	repo      *repo.Repository
	redisMock redismock.ClientMock
	usage     *UsageService
	quota     *QuotaService
	wallets   *WalletService
	txs       *TransactionService
}

// newTestEnv wires the full service stack onto an in-memory SQLite DB.
// The redis mock has no expectations: cache calls fail, which the services
// treat as non-fatal, and reads fall back to the database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.WalletTransaction{},
		&model.UsageCounter{}, &model.Plan{}, &model.Subscription{},
		&model.OutboxEvent{},
	))

	rdb, rmock := redismock.NewClientMock()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	r := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	usage := NewUsageService(r, log)
	quota := NewQuotaService(usage, log)
	return &testEnv{
		ctx:       context.Background(),
		db:        db,
		repo:      r,
		redisMock: rmock,
		usage:     usage,
		quota:     quota,
		wallets:   NewWalletService(r, usage, quota, log),
		txs:       NewTransactionService(r, usage, quota, log),
	}
}

// wedgeUsageStore makes every usage_counter write abort while reads keep
// working, modelling a counter store outage alongside a healthy primary
// store.
func (e *testEnv) wedgeUsageStore(t *testing.T) {
	t.Helper()
	require.NoError(t, e.db.Exec(
		`CREATE TRIGGER usage_insert_down BEFORE INSERT ON usage_counter
		 BEGIN SELECT RAISE(ABORT, 'usage store down'); END`).Error)
	require.NoError(t, e.db.Exec(
		`CREATE TRIGGER usage_update_down BEFORE UPDATE ON usage_counter
		 BEGIN SELECT RAISE(ABORT, 'usage store down'); END`).Error)
}

func (e *testEnv) syncFailureEvents(t *testing.T) []model.OutboxEvent {
	t.Helper()
	var evts []model.OutboxEvent
	require.NoError(t, e.db.
		Where("event_type = ?", model.EventUsageSyncFailed).Find(&evts).Error)
	return evts
}

func (e *testEnv) seedSubscription(t *testing.T, userID string, limits model.PlanLimits) {
	t.Helper()
	plan := model.Plan{ID: uuid.NewString(), Name: "test plan", Limits: limits}
	require.NoError(t, e.db.Create(&plan).Error)
	sub := model.Subscription{
		ID: uuid.NewString(), UserID: userID,
		PlanID: plan.ID, Status: model.SubscriptionActive,
	}
	require.NoError(t, e.db.Create(&sub).Error)
}

func (e *testEnv) seedWallet(t *testing.T, brandID, name string, balance int64) *model.Wallet {
	t.Helper()
	w := &model.Wallet{
		ID: uuid.NewString(), BrandID: brandID, Name: name,
		Type: model.WalletTypeCustom, Currency: "EGP",
		Balance:   decimal.NewFromInt(balance),
		CreatedBy: "seed",
	}
	require.NoError(t, e.db.Create(w).Error)
	return w
}

func (e *testEnv) countTransactions(t *testing.T, brandID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.WalletTransaction{}).
		Where("brand_id = ?", brandID).Count(&n).Error)
	return n
}

func (e *testEnv) walletBalance(t *testing.T, walletID string) decimal.Decimal {
	t.Helper()
	var w model.Wallet
	require.NoError(t, e.db.First(&w, "id = ?", walletID).Error)
	return w.Balance
}
