package redisx

import "time"

const (
	// KeyDedup is dedup:{service}:{id}.
	KeyDedup = "dedup:%s:%s"
)

var (
	// TTLDedup bounds how long a processed callback is remembered.
	TTLDedup = 48 * time.Hour
)
