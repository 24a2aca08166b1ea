package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

// Cache keeps available stock per item in redis.
type Cache struct {
	Redis *redis.Client
	TTL   time.Duration
}

var _ orders.StockCache = (*Cache)(nil)

func stockKey(itemCd string) string {
	return fmt.Sprintf(redisx.KeyStock, itemCd)
}

func genKey(itemCd string) string {
	return fmt.Sprintf(redisx.KeyStockGen, itemCd)
}

func (c *Cache) ttl() time.Duration {
	if c.TTL <= 0 {
		return redisx.TTLStock
	}
	return c.TTL
}

func (c *Cache) Get(ctx context.Context, itemCd string) (int64, bool, error) {
	n, err := c.Redis.Get(ctx, stockKey(itemCd)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *Cache) Generation(ctx context.Context, itemCd string) (int64, error) {
	n, err := c.Redis.Get(ctx, genKey(itemCd)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Set writes only if the generation key still holds gen; a concurrent
// Invalidate aborts the transaction and the value is dropped.
func (c *Cache) Set(ctx context.Context, itemCd string, gen, available int64) error {
	gk := genKey(itemCd)
	err := c.Redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, stockKey(itemCd), available, c.ttl())
			return nil
		})
		return err
	}, gk)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *Cache) Invalidate(ctx context.Context, itemCds ...string) error {
	if len(itemCds) == 0 {
		return nil
	}
	_, err := c.Redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, cd := range itemCds {
			p.Incr(ctx, genKey(cd))
			p.Del(ctx, stockKey(cd))
		}
		return nil
	})
	return err
}
