// Package api implements the HTTP surface: submission of generation
// requests, listing of unsettled jobs, and chat reconciliation. Handlers
// stay thin; all orchestration lives in internal/generation.
package api
