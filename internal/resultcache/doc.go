// Package resultcache stores finished conversions keyed by source file
// identity, with LRU capacity eviction and age-based purging. Every removal
// path revokes the entry's download URL exactly once.
package resultcache
