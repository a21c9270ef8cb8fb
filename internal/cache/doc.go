// Package cache provides the sharded LRU cache used to memoize shader
// variant resolution.
//
// Resolution runs on every Submit from every worker goroutine, so the cache
// is split into shards, each with its own lock, to keep workers from
// serializing on a single mutex.
//
//	c := cache.New[key, result](128, hashKey)
//	r := c.GetOrCreate(k, func() result { return resolve(k) })
//
// A Sharded cache is safe for concurrent use and must not be copied.
package cache
