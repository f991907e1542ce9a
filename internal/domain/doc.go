// Package domain contains the core entities for video generation:
// requests, job units, aggregate results, ledger records, and the
// model catalog. Entities validate themselves and carry no knowledge
// of storage, transport, or the remote provider.
package domain
