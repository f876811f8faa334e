package remote

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/models"
)

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerStore stops hammering an unreachable remote. While the circuit is
// open calls fail fast with gobreaker.ErrOpenState.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

var _ Store = (*BreakerStore)(nil)

func NewBreakerStore(name string, next Store, cfg BreakerConfig, logger *zap.Logger) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Remote circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Cancellation is the caller's choice, not a remote failure.
		IsSuccessful: func(err error) bool {
			return err == nil || err == context.Canceled
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state, for logging.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakerStore) PutCategorization(ctx context.Context, r models.RemoteRecord) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.PutCategorization(ctx, r)
	})
	return err
}

func (s *BreakerStore) ListCategorizations(ctx context.Context) ([]models.RemoteRecord, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.ListCategorizations(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.RemoteRecord), nil
}

func (s *BreakerStore) DeleteCategorization(ctx context.Context, itemID string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.DeleteCategorization(ctx, itemID)
	})
	return err
}
