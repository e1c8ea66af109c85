package cache

import "time"

const (
	// product:{id} -> product JSON
	KeyProduct = "product:%d"

	// order:{id} -> order JSON (with items)
	KeyOrder = "order:%d"

	// user:{id} -> user JSON
	KeyUser = "user:%d"
)

var (
	TTLProduct = 5 * time.Minute
	TTLOrder   = 5 * time.Minute
	TTLUser    = 10 * time.Minute
)
