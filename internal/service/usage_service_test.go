package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandops/ledger-service/internal/model"
)

func TestIncrementUpsert(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceInventory, 1))
	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceInventory, 2))

	c, err := env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceInventory)
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.CurrentCount)
}

func TestDecrementClampsAtZero(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceInventory, 1))
	require.NoError(t, env.usage.Decrement(env.ctx, testActor, testBrand, model.ResourceInventory, 5))

	c, err := env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceInventory)
	require.NoError(t, err)
	assert.EqualValues(t, 0, c.CurrentCount)

	// decrement-from-nothing creates the row at zero
	require.NoError(t, env.usage.Decrement(env.ctx, testActor, testBrand, model.ResourceTeamMembers, 1))
	c, err = env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceTeamMembers)
	require.NoError(t, err)
	assert.EqualValues(t, 0, c.CurrentCount)
}

func TestDecrementExistingRow(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceWallets, 5))
	require.NoError(t, env.usage.Decrement(env.ctx, testActor, testBrand, model.ResourceWallets, 2))

	c, err := env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.CurrentCount)
}

func TestGetEvaluatesPlanLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, model.PlanLimits{"wallets": 3, "transactions": -1})
	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceWallets, 2))

	u, err := env.usage.Get(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.EqualValues(t, 2, u.Current)
	assert.EqualValues(t, 3, u.Limit)
	assert.False(t, u.IsUnlimited)

	u, err = env.usage.Get(env.ctx, testActor, testBrand, model.ResourceTransactions)
	require.NoError(t, err)
	assert.True(t, u.IsUnlimited)

	// a field missing from the plan's limits map is unlimited
	u, err = env.usage.Get(env.ctx, testActor, testBrand, model.ResourceInventory)
	require.NoError(t, err)
	assert.True(t, u.IsUnlimited)

	_, err = env.usage.Get(env.ctx, testActor, testBrand, model.ResourceType("bogus"))
	assert.ErrorIs(t, err, ErrUnknownResourceType)
}

func TestGetNoActiveSubscription(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.usage.Get(env.ctx, "nobody", testBrand, model.ResourceWallets)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)

	_, err = env.usage.GetAll(env.ctx, "nobody", testBrand)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestGetAll(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, model.PlanLimits{"wallets": 5, "inventoryItems": 10})
	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceWallets, 4))

	all, err := env.usage.GetAll(env.ctx, testActor, testBrand)
	require.NoError(t, err)
	assert.Len(t, all, len(model.KnownResourceTypes()))
	assert.EqualValues(t, 4, all[model.ResourceWallets].Current)
	assert.EqualValues(t, 5, all[model.ResourceWallets].Limit)
	assert.EqualValues(t, 0, all[model.ResourceInventory].Current)
	assert.True(t, all[model.ResourceTransactions].IsUnlimited)
}

func TestReconcileRepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, unlimitedPlan())
	for i := 0; i < 7; i++ {
		env.seedWallet(t, testBrand, "W", 0)
	}
	// cached counter drifted below ground truth
	require.NoError(t, env.repo.SetUsageCount(env.ctx, testActor, testBrand, model.ResourceWallets, 5))

	count, err := env.usage.Reconcile(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.EqualValues(t, 7, count)

	c, err := env.repo.GetUsage(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.EqualValues(t, 7, c.CurrentCount)

	// idempotent: a second run with no intervening mutations is a no-op
	count, err = env.usage.Reconcile(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.EqualValues(t, 7, count)
}

func TestReconcileExternalTable(t *testing.T) {
	env := newTestEnv(t)
	// the inventory table is owned by an external service; only its count
	// matters here
	require.NoError(t, env.db.Exec(
		`CREATE TABLE inventory_item (id TEXT PRIMARY KEY, brand_id TEXT NOT NULL)`).Error)
	for _, id := range []string{"i1", "i2", "i3"} {
		require.NoError(t, env.db.Exec(
			`INSERT INTO inventory_item (id, brand_id) VALUES (?, ?)`, id, testBrand).Error)
	}

	count, err := env.usage.Reconcile(env.ctx, testActor, testBrand, model.ResourceInventory)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestReconcileUnknownResource(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.usage.Reconcile(env.ctx, testActor, testBrand, model.ResourceType("projects"))
	assert.ErrorIs(t, err, ErrUnknownResourceType)
}

func TestQuotaBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, model.PlanLimits{"wallets": 3})

	d, err := env.quota.CanAdd(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.True(t, d.CanAdd)
	assert.EqualValues(t, 3, d.Remaining)

	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceWallets, 3))

	d, err = env.quota.CanAdd(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.False(t, d.CanAdd)
	assert.EqualValues(t, 3, d.Current)
	assert.EqualValues(t, 0, d.Remaining)

	var limitErr *LimitExceededError
	err = env.quota.Require(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, model.ResourceWallets, limitErr.Resource)
}

func TestQuotaUnlimited(t *testing.T) {
	env := newTestEnv(t)
	env.seedSubscription(t, testActor, model.PlanLimits{"wallets": -1})
	require.NoError(t, env.usage.Increment(env.ctx, testActor, testBrand, model.ResourceWallets, 1000))

	d, err := env.quota.CanAdd(env.ctx, testActor, testBrand, model.ResourceWallets)
	require.NoError(t, err)
	assert.True(t, d.CanAdd)
	assert.EqualValues(t, -1, d.Remaining)
}
