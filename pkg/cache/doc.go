// Package cache provides the response cache used by the orchestrator.
//
// Two backends implement Cache: MemoryCache, an in-process LRU with per-entry
// expiry and a tag index, and RedisCache, which shares entries between
// processes. Values are opaque bytes; callers encode them.
package cache
