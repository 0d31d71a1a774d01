package providers

import "github.com/go-redis/redis/v8"

// NewRedisProvider returns the client shared by the rate limiter. The report
// cache opens its own connection through the persistence registry.
func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}
