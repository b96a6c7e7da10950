package cache

import "context"

// KeySerializer builds a stable cache key from a method name plus
// arbitrary args (ids, owner pointers, flags).
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn loads a value from the source of truth on a cache miss.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through operations the repository
// facade needs for by-id lookups: fetch-or-populate, single-key
// eviction after writes, and namespace eviction after a full refresh.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// GetOrFetch is the type-safe wrapper over CacheService.GetOrFetch.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetch FetchFn[T]) (T, error) {
	result, err := service.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
