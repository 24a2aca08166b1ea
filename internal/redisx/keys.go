package redisx

import "time"

const (
	// Available stock per item: stock:{item_cd} -> integer
	KeyStock = "stock:%s"

	// Invalidation counter per item: stock_gen:{item_cd} -> integer
	KeyStockGen = "stock_gen:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStock = 5 * time.Minute
	TTLDedup = 48 * time.Hour
)
