// Package store defines the persistence interfaces for the task
// ledger. Implementations live under internal/platform; the interfaces
// here keep the orchestrator and reconciler decoupled from any
// particular record store.
package store
