// Package pool manages a fixed-size pool of inference engine handles that all
// share one parsed model artifact. It is split into small files by concern:
//
//   - pool.go: Pool type, Create, Close and simple getters.
//   - config.go: Config and package defaults.
//   - types.go: Artifact, InputImage, PredictionResult, Handle, Snapshot.
//   - backend.go: Backend/Model/Session capability interfaces.
//   - artifact.go: reading the artifact once from disk or memory.
//   - admission.go: Acquire/Release and the FIFO wait queue.
//   - predict.go: Predict, Warmup and label selection.
//   - errors.go: Error kinds and IsX helpers.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// The pool is passive: it runs no goroutines or timers of its own. A handle is
// held by at most one caller between Acquire and Release, which is what keeps
// backend sessions from being entered concurrently; Predict itself takes no
// per-handle lock.
//
// The first successful Predict on a handle is its warm-up. Backends typically
// allocate session buffers at that point, so the pool records which handles
// are warmed and what the first call cost, letting callers tell one-time
// setup apart from a leak.
package pool
