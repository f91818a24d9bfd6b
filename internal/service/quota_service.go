package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/brandops/ledger-service/internal/metrics"
	"github.com/brandops/ledger-service/internal/model"
)

// QuotaDecision answers "may this brand add one more unit of the resource".
type QuotaDecision struct {
	CanAdd    bool  `json:"canAdd"`
	Current   int64 `json:"current"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// QuotaService is the single decision point consumed by every plan-limited
// creation path.
type QuotaService struct {
	usage *UsageService
	log   *zap.SugaredLogger
}

func NewQuotaService(usage *UsageService, logger *zap.SugaredLogger) *QuotaService {
	return &QuotaService{usage: usage, log: logger}
}

func (s *QuotaService) CanAdd(ctx context.Context, userID, brandID string, rt model.ResourceType) (QuotaDecision, error) {
	u, err := s.usage.Get(ctx, userID, brandID, rt)
	if err != nil {
		return QuotaDecision{}, err
	}
	if u.IsUnlimited {
		return QuotaDecision{CanAdd: true, Current: u.Current, Limit: u.Limit, Remaining: -1}, nil
	}
	remaining := u.Limit - u.Current
	if remaining < 0 {
		remaining = 0
	}
	return QuotaDecision{
		CanAdd:    u.Current < u.Limit,
		Current:   u.Current,
		Limit:     u.Limit,
		Remaining: remaining,
	}, nil
}

// Require denies with LimitExceededError when the quota is spent. Called
// before any row is written.
func (s *QuotaService) Require(ctx context.Context, userID, brandID string, rt model.ResourceType) error {
	d, err := s.CanAdd(ctx, userID, brandID, rt)
	if err != nil {
		return err
	}
	if !d.CanAdd {
		metrics.QuotaDenials.WithLabelValues(string(rt)).Inc()
		s.log.Infow("quota gate denied creation",
			"userId", userID, "brandId", brandID, "resource", rt,
			"current", d.Current, "limit", d.Limit)
		return &LimitExceededError{
			Resource: rt, Current: d.Current, Limit: d.Limit, Remaining: d.Remaining,
		}
	}
	return nil
}
