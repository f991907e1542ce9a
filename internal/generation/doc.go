// Package generation contains the fan-out orchestrator that turns one
// user submission into independent generation jobs, the channel-serialized
// aggregate reducer that keeps the per-message rollup consistent under
// concurrent completions, and the recovery reconciler that adopts
// orphaned jobs after a process restart.
package generation
