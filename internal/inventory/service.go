package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

// Recomputer refreshes the cached stock of one item and returns it.
type Recomputer interface {
	Recompute(ctx context.Context, itemCd string) (int64, error)
}

// Deduper claims an event id so redelivered messages are processed once.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisDeduper struct {
	Redis   *redis.Client
	Service string
}

func (d *RedisDeduper) key(eventID string) string {
	return fmt.Sprintf(redisx.KeyDedup, d.Service, eventID)
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return redisx.Claim(ctx, d.Redis, d.key(eventID), redisx.TTLDedup)
}

func (d *RedisDeduper) Release(ctx context.Context, eventID string) error {
	return redisx.Release(ctx, d.Redis, d.key(eventID))
}

// Service keeps the stock cache in step with order lifecycle events.
type Service struct {
	Stock             Recomputer
	Dedup             Deduper
	LowStockThreshold int64
	Log               *zap.Logger
}

// HandleOrderEvent is installed as the consumer handler for every order topic.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		s.Log.Warn("drop undecodable event", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	if s.Dedup != nil && env.EventID != "" {
		fresh, err := s.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup claim: %w", err)
		}
		if !fresh {
			return nil
		}
	}

	if err := s.apply(ctx, env); err != nil {
		if s.Dedup != nil && env.EventID != "" {
			if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
				s.Log.Warn("dedup release failed", zap.String("event_id", env.EventID), zap.Error(rerr))
			}
		}
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		s.Log.Warn("drop event with bad payload",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return nil
	}

	seen := make(map[string]bool, len(p.Items))
	for _, it := range p.Items {
		if seen[it.ItemCd] {
			continue
		}
		seen[it.ItemCd] = true

		available, err := s.Stock.Recompute(ctx, it.ItemCd)
		if err != nil {
			return fmt.Errorf("recompute %s: %w", it.ItemCd, err)
		}
		if available <= s.LowStockThreshold {
			s.Log.Warn("low stock",
				zap.String("item_cd", it.ItemCd),
				zap.Int64("available", available),
				zap.Int64("threshold", s.LowStockThreshold),
				zap.Int64("order_id", p.OrderID),
				zap.String("trace_id", env.TraceID))
		}
	}

	s.Log.Debug("stock refreshed",
		zap.String("event_type", env.EventType),
		zap.Int64("order_id", p.OrderID),
		zap.Int("items", len(seen)),
		zap.Duration("lag", time.Since(env.OccurredAt)))
	return nil
}
