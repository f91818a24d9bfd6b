package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brandops/ledger-service/internal/metrics"
	"github.com/brandops/ledger-service/internal/model"
	"github.com/brandops/ledger-service/internal/repo"
)

// Usage is the evaluated state of one resource type against the plan.
type Usage struct {
	Current     int64 `json:"current"`
	Limit       int64 `json:"limit"`
	IsUnlimited bool  `json:"isUnlimited"`
}

// UsageService maintains the cached per-(user, brand, resource) counters
// and repairs them against the authoritative tables.
type UsageService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewUsageService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *UsageService {
	return &UsageService{repo: r, log: logger}
}

// Increment bumps the counter, creating it at by when absent.
func (s *UsageService) Increment(ctx context.Context, userID, brandID string, rt model.ResourceType, by int64) error {
	if _, ok := model.PlanLimitField(rt); !ok {
		return ErrUnknownResourceType
	}
	return s.repo.IncrementUsage(ctx, userID, brandID, rt, by)
}

// Decrement subtracts from the counter, clamping at zero. A clamp means the
// counter had already drifted below the true count; it is logged and
// counted but not an error.
func (s *UsageService) Decrement(ctx context.Context, userID, brandID string, rt model.ResourceType, by int64) error {
	if _, ok := model.PlanLimitField(rt); !ok {
		return ErrUnknownResourceType
	}
	clamped, err := s.repo.DecrementUsage(ctx, userID, brandID, rt, by)
	if err != nil {
		return err
	}
	if clamped {
		metrics.UsageDecrementClamps.WithLabelValues(string(rt)).Inc()
		s.log.Warnw("usage decrement clamped at zero",
			"userId", userID, "brandId", brandID, "resource", rt, "by", by)
	}
	return nil
}

// Get evaluates current usage against the active plan's limit.
func (s *UsageService) Get(ctx context.Context, userID, brandID string, rt model.ResourceType) (Usage, error) {
	field, ok := model.PlanLimitField(rt)
	if !ok {
		return Usage{}, ErrUnknownResourceType
	}
	sub, err := s.repo.ActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Usage{}, ErrNoActiveSubscription
		}
		return Usage{}, err
	}
	limit := sub.Plan.Limit(field)

	var current int64
	c, err := s.repo.GetUsage(ctx, userID, brandID, rt)
	switch {
	case err == nil:
		current = c.CurrentCount
	case errors.Is(err, gorm.ErrRecordNotFound):
		current = 0
	default:
		return Usage{}, err
	}
	return Usage{
		Current:     current,
		Limit:       limit,
		IsUnlimited: limit == model.LimitUnlimited,
	}, nil
}

// GetAll evaluates every known resource type in one subscription lookup.
func (s *UsageService) GetAll(ctx context.Context, userID, brandID string) (map[model.ResourceType]Usage, error) {
	sub, err := s.repo.ActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	counters, err := s.repo.ListUsage(ctx, userID, brandID)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.ResourceType]int64, len(counters))
	for _, c := range counters {
		counts[c.ResourceType] = c.CurrentCount
	}
	out := make(map[model.ResourceType]Usage, len(model.KnownResourceTypes()))
	for _, rt := range model.KnownResourceTypes() {
		field, _ := model.PlanLimitField(rt)
		limit := sub.Plan.Limit(field)
		out[rt] = Usage{
			Current:     counts[rt],
			Limit:       limit,
			IsUnlimited: limit == model.LimitUnlimited,
		}
	}
	return out, nil
}

// Reconcile overwrites the cached counter with the authoritative COUNT(*)
// for the resource. Idempotent; safe to call at any time.
func (s *UsageService) Reconcile(ctx context.Context, userID, brandID string, rt model.ResourceType) (int64, error) {
	if _, ok := model.PlanLimitField(rt); !ok {
		return 0, ErrUnknownResourceType
	}
	truth, err := s.repo.AuthoritativeCount(ctx, brandID, rt)
	if err != nil {
		return 0, err
	}

	var before int64
	if c, err := s.repo.GetUsage(ctx, userID, brandID, rt); err == nil {
		before = c.CurrentCount
	}

	if err := s.repo.SetUsageCount(ctx, userID, brandID, rt, truth); err != nil {
		return 0, err
	}
	if before != truth {
		metrics.ReconcileDriftCorrected.WithLabelValues(string(rt)).Inc()
		s.log.Warnw("usage counter drift corrected",
			"userId", userID, "brandId", brandID, "resource", rt,
			"cached", before, "authoritative", truth)
		s.emitUsageEvent(ctx, brandID, model.EventUsageReconciled, map[string]interface{}{
			"userId": userID, "brandId": brandID, "resource": rt,
			"cached": before, "authoritative": truth,
		})
	}
	return truth, nil
}

// ReportSyncFailure records a counter update that failed alongside an
// otherwise-successful mutation. The primary operation is never failed for
// this; the event exists so external automation can trigger Reconcile.
func (s *UsageService) ReportSyncFailure(ctx context.Context, userID, brandID string, rt model.ResourceType, op string, cause error) {
	metrics.UsageSyncFailures.WithLabelValues(string(rt), op).Inc()
	s.log.Warnw("usage counter sync failed",
		"userId", userID, "brandId", brandID, "resource", rt, "op", op, "error", cause)
	s.emitUsageEvent(ctx, brandID, model.EventUsageSyncFailed, map[string]interface{}{
		"userId": userID, "brandId": brandID, "resource": rt,
		"op": op, "error": cause.Error(), "at": time.Now().UTC(),
	})
}

func (s *UsageService) emitUsageEvent(ctx context.Context, brandID, eventType string, payload map[string]interface{}) {
	body, _ := json.Marshal(payload)
	evt := &model.OutboxEvent{
		Aggregate: "Usage", AggregateID: brandID,
		EventType: eventType, Payload: string(body),
	}
	if err := s.repo.CreateOutboxEvent(ctx, s.repo.DB(ctx), evt); err != nil {
		s.log.Warnw("write usage outbox event", "event", eventType, "error", err)
	}
}
