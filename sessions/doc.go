// Package sessions maintains the table binding connection identifiers to
// authenticated agent identities.
//
// All mutations are serialized through a single writer goroutine consuming a
// queue: enqueue order is completion order, strictly FIFO. Reads go straight
// to the store, which is internally safe for concurrent access. The Store
// port has an in-memory implementation (memorystore) and a Redis-backed one
// (redisstore) for deployments that want the table to survive a restart.
package sessions
