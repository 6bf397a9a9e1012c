package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ExpireStale moves waiting orders created before the cutoff to expired and
// returns how many were changed. Orders settled concurrently by a callback
// are left alone by the state machine.
func (s *Service) ExpireStale(ctx context.Context, before time.Time) (int, error) {
	numbers, err := s.orders.ListStale(ctx, StatusWaiting, before)
	if err != nil {
		return 0, errors.Wrap(err, "list stale orders")
	}

	lg := zctx.From(ctx)
	expired := 0
	for _, n := range numbers {
		outcome, err := s.Transition(ctx, n, StatusExpired)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			lg.Error("Expire order", zap.String("order_number", n), zap.Error(err))
			continue
		}
		if outcome == Applied {
			expired++
		}
	}
	if expired > 0 {
		lg.Info("Expired stale orders", zap.Int("expired", expired), zap.Int("candidates", len(numbers)))
	}
	return expired, nil
}

// RunExpiry sweeps waiting orders older than ttl every interval until ctx is
// cancelled. The first sweep runs immediately.
func (s *Service) RunExpiry(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ExpireStale(ctx, s.now().Add(-ttl)); err != nil {
			zctx.From(ctx).Error("Expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
