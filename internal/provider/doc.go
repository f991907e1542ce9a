// Package provider defines the boundary between the application core
// and the remote video generation service. It abstracts task creation
// and status polling behind the Client interface so the orchestrator
// and reconciler never couple to a specific provider's wire format.
package provider
