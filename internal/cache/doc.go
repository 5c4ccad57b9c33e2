// Package cache provides a generic LRU cache bounded by the total cost of
// its values rather than their number.
//
//	c := cache.New[string, []byte](64<<20, func(b []byte) int64 { return int64(len(b)) })
//	c.Set("key", data)
//	data, ok := c.Get("key")
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
