package generation

import "context"

// Uploader resolves a local file or a temporary remote URL into a
// durable URL. It is an external collaborator: implementations must be
// safe to retry, and the core treats a failure as terminal for that
// upload attempt.
type Uploader interface {
	// Upload stores the source (a local path or a fetchable URL) and
	// returns the durable URL. destinationHint suggests a storage
	// grouping ("first_frame", "last_frame", "output") and may be
	// ignored by implementations.
	Upload(ctx context.Context, source string, destinationHint string) (string, error)
}
