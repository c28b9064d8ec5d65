// Package store provides the ConflictStore implementations: an in-memory
// store for tests and embedded use, a GORM-backed store for durable
// single-node deployments, and a Redis-backed store for shared deployments.
//
// All implementations serialize Mutate calls per conflict, which is the
// property the applicator's check-then-commit depends on.
package store
