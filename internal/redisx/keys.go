package redisx

import "time"

const (
	// Cached order status: order_status:{buy_order} -> JSON status view
	KeyOrderStatus = "order_status:%s"

	// Cached product search: search:products:{normalized query}
	KeyProductSearch = "search:products:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Sorted set of product:branch members scored by current stock.
	KeyRestockBoard = "restock:board"

	// Hash product:branch -> latest alert JSON, companion of KeyRestockBoard.
	KeyRestockDetail = "restock:detail"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLSearchCache = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
