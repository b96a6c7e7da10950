// Package cache provides the read-through lookup cache used by the
// repository facade for single-record fetches.
//
// The snapshot package holds the collection-level cache with its TTL
// and offline-fallback semantics; this package covers the narrower
// by-id path (GetByID, ToggleFavorite's read side) where a bounded
// read-through cache with stampede protection is the better fit.
//
// Two interfaces are exported:
//
//   - CacheService: read-through get-or-fetch plus key and prefix
//     eviction
//   - KeySerializer: stable key construction from a method name and
//     its arguments
//
// Typical use inside the facade:
//
//	key := serializer.SerializeKey("FetchByID", id)
//	rec, err := cache.GetOrFetch(ctx, service, key, func(ctx context.Context) (*taxon.Genus, error) {
//		return gw.FetchByID(ctx, id)
//	})
//
// Keys are namespaced per entity type (see taxonrepo), so a full
// refresh can evict every lookup for one collection with a single
// DeleteByPrefix call without touching the others.
//
// The default CacheService implementation lives in internal/cacheinfra
// and is backed by sturdyc; construct it through NewCacheService.
package cache
