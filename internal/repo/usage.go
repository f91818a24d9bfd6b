package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brandops/ledger-service/internal/model"
)

// UsageRepository covers usage counters, plan lookups and authoritative
// resource counts. Counter mutations are single SQL statements; the engine
// never does read-modify-write on a counter in application code.
type UsageRepository interface {
	IncrementUsage(ctx context.Context, userID, brandID string, rt model.ResourceType, by int64) error
	DecrementUsage(ctx context.Context, userID, brandID string, rt model.ResourceType, by int64) (clamped bool, err error)
	GetUsage(ctx context.Context, userID, brandID string, rt model.ResourceType) (*model.UsageCounter, error)
	ListUsage(ctx context.Context, userID, brandID string) ([]model.UsageCounter, error)
	SetUsageCount(ctx context.Context, userID, brandID string, rt model.ResourceType, count int64) error
	AuthoritativeCount(ctx context.Context, brandID string, rt model.ResourceType) (int64, error)
	ActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error)
}

var usageKeyColumns = []clause.Column{
	{Name: "user_id"}, {Name: "brand_id"}, {Name: "resource_type"},
}

// IncrementUsage upserts: a missing counter starts at by, an existing one
// is bumped inside the database.
func (r *Repository) IncrementUsage(ctx context.Context, userID, brandID string, rt model.ResourceType, by int64) error {
	now := time.Now()
	c := model.UsageCounter{
		UserID: userID, BrandID: brandID, ResourceType: rt,
		CurrentCount: by, LastUpdated: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: usageKeyColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"current_count": gorm.Expr("current_count + ?", by),
			"last_updated":  now,
		}),
	}).Create(&c).Error
}

// DecrementUsage subtracts by, clamping at zero. The first statement only
// fires when the counter can absorb the full subtraction; the fallback
// upserts with the same clamped subtraction, so a concurrent increment
// landing between the two statements is decremented, never overwritten.
// clamped reports that the fallback ran, i.e. the counter was absent or
// smaller than by.
func (r *Repository) DecrementUsage(ctx context.Context, userID, brandID string, rt model.ResourceType, by int64) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.UsageCounter{}).
		Where("user_id = ? AND brand_id = ? AND resource_type = ? AND current_count >= ?",
			userID, brandID, rt, by).
		Updates(map[string]interface{}{
			"current_count": gorm.Expr("current_count - ?", by),
			"last_updated":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return false, nil
	}
	return true, r.clampDecrement(ctx, userID, brandID, rt, by, now)
}

// clampDecrement applies a clamped subtraction in one upsert statement;
// an absent row is created at zero.
func (r *Repository) clampDecrement(ctx context.Context, userID, brandID string, rt model.ResourceType, by int64, now time.Time) error {
	c := model.UsageCounter{
		UserID: userID, BrandID: brandID, ResourceType: rt,
		CurrentCount: 0, LastUpdated: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: usageKeyColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"current_count": gorm.Expr(
				"CASE WHEN current_count >= ? THEN current_count - ? ELSE 0 END", by, by),
			"last_updated": now,
		}),
	}).Create(&c).Error
}

func (r *Repository) GetUsage(ctx context.Context, userID, brandID string, rt model.ResourceType) (*model.UsageCounter, error) {
	var c model.UsageCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND brand_id = ? AND resource_type = ?", userID, brandID, rt).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ListUsage(ctx context.Context, userID, brandID string) ([]model.UsageCounter, error) {
	var cs []model.UsageCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND brand_id = ?", userID, brandID).
		Find(&cs).Error
	return cs, err
}

// SetUsageCount overwrites the cached count (reconcile path).
func (r *Repository) SetUsageCount(ctx context.Context, userID, brandID string, rt model.ResourceType, count int64) error {
	now := time.Now()
	c := model.UsageCounter{
		UserID: userID, BrandID: brandID, ResourceType: rt,
		CurrentCount: count, LastUpdated: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: usageKeyColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"current_count": count,
			"last_updated":  now,
		}),
	}).Create(&c).Error
}

// Owning table per resource type. inventory_item and brand_member belong to
// the external CRUD services; this engine only counts them.
var authoritativeTables = map[model.ResourceType]string{
	model.ResourceWallets:      "wallet",
	model.ResourceTransactions: "wallet_transaction",
	model.ResourceInventory:    "inventory_item",
	model.ResourceTeamMembers:  "brand_member",
}

// AuthoritativeCount runs the ground-truth COUNT(*) for rt.
func (r *Repository) AuthoritativeCount(ctx context.Context, brandID string, rt model.ResourceType) (int64, error) {
	table, ok := authoritativeTables[rt]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	var n int64
	err := r.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM "+table+" WHERE brand_id = ?", brandID).
		Scan(&n).Error
	return n, err
}

// ActiveSubscription loads the user's active subscription with its plan.
func (r *Repository) ActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ? AND status = ?", userID, model.SubscriptionActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
