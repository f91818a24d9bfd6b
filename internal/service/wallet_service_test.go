package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/brandops/ledger-service/internal/model"
)

func TestCreateWalletFullFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, unlimitedPlan())

	w, err := env.wallets.Create(env.ctx, testBrand, testActor, CreateWalletSpec{
		Name:     "Founder cash",
		Balance:  decimal.NewFromInt(500),
		Type:     model.WalletTypeFounder,
		Currency: "EGP",
		Color:    "#00aa55",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, testBrand, w.BrandID)
	assert.Equal(t, testActor, w.CreatedBy)
	// opening balance is not a ledger transaction
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))
	assert.EqualValues(t, 0, env.countTransactions(t, testBrand))

	// usage counter was bumped
	c, err := env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.CurrentCount)

	got, err := env.wallets.GetByID(env.ctx, testBrand, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Founder cash", got.Name)

	ws, err := env.wallets.List(env.ctx, testBrand)
	require.NoError(t, err)
	assert.Len(t, ws, 1)
}

func TestCreateWalletQuotaBlocked(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, model.PlanLimits{"wallets": 3})
	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceWallets, 3))

	_, err := env.wallets.Create(env.ctx, testBrand, testActor, CreateWalletSpec{
		Name: "One too many", Currency: "EGP",
	})
	var limitErr *LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.EqualValues(t, 0, limitErr.Remaining)

	// rejected before any row was written
	var n int64
	require.NoError(t, env.db.Model(&model.Wallet{}).Where("brand_id = ?", testBrand).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestCreateWalletNoSubscription(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.wallets.Create(env.ctx, testBrand, testActor, CreateWalletSpec{
		Name: "W", Currency: "EGP",
	})
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestUpdateWalletRejectsBalance(t *testing.T) {
	env := newTestEnv(t)
	w := env.seedWallet(t, testBrand, "A", 100)

	bal := decimal.NewFromInt(9999)
	_, err := env.wallets.Update(env.ctx, testBrand, w.ID, UpdateWalletSpec{Balance: &bal})
	assert.ErrorIs(t, err, ErrBalanceImmutable)
	assert.True(t, env.walletBalance(t, w.ID).Equal(decimal.NewFromInt(100)))

	name := "Renamed"
	typ := model.WalletTypeBusiness
	updated, err := env.wallets.Update(env.ctx, testBrand, w.ID, UpdateWalletSpec{Name: &name, Type: &typ})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, model.WalletTypeBusiness, updated.Type)

	_, err = env.wallets.Update(env.ctx, testBrand, "missing", UpdateWalletSpec{Name: &name})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteWalletDecrementsUsage(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, unlimitedPlan())

	w, err := env.wallets.Create(env.ctx, testBrand, testActor, CreateWalletSpec{
		Name: "Short lived", Currency: "EGP",
	})
	require.NoError(t, err)

	require.NoError(t, env.wallets.Delete(env.ctx, testBrand, w.ID, testActor))

	c, err := env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.EqualValues(t, 0, c.CurrentCount)

	_, err = env.wallets.GetByID(env.ctx, testBrand, w.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, env.wallets.Delete(env.ctx, testBrand, w.ID, testActor), gorm.ErrRecordNotFound)
}

func TestGetBalanceBrandScoped(t *testing.T) {
	env := newTestEnv(t)
	w := env.seedWallet(t, testBrand, "A", 123)

	// a cache hit is keyed by brand, so the owning brand reads it...
	env.redisMock.ExpectGet("balance:" + testBrand + ":" + w.ID).SetVal("123")
	bal, err := env.wallets.GetBalance(env.ctx, testBrand, w.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(123)))

	// ...and a foreign brand never sees it, cached or not
	_, err = env.wallets.GetBalance(env.ctx, "brand-2", w.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateWalletSurvivesUsageSyncFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, unlimitedPlan())
	env.wedgeUsageStore(t)

	w, err := env.wallets.Create(env.ctx, testBrand, testActor, CreateWalletSpec{
		Name: "Still created", Currency: "EGP",
	})
	require.NoError(t, err)

	// the wallet landed even though the counter write failed
	got, err := env.wallets.GetByID(env.ctx, testBrand, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Still created", got.Name)

	// the counter stayed untouched and the failure became observable
	_, err = env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceWallets)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NotEmpty(t, env.syncFailureEvents(t))
}

func TestGetBalanceFallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	w := env.seedWallet(t, testBrand, "A", 250)

	// cache mock has no expectations, so the read falls through to the DB
	bal, err := env.wallets.GetBalance(env.ctx, testBrand, w.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(250)))
}

func TestGetWalletWrongBrand(t *testing.T) {
	env := newTestEnv(t)
	w := env.seedWallet(t, testBrand, "A", 0)

	_, err := env.wallets.GetByID(env.ctx, "brand-2", w.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
