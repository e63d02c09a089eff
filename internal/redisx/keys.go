package redisx

import "time"

const (
	// Cached order view: order:{order_id} -> order JSON
	KeyOrder = "order:%d"

	// Version of the cached view: order:{order_id}:v -> updated_at micros
	KeyOrderVersion = "order:%d:v"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
