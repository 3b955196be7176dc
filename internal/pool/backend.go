package pool

import "context"

// Backend parses artifacts for one inference runtime. Concrete adapters live
// under internal/backend; the pool only depends on this surface.
type Backend interface {
	// Name identifies the backend in status output and logs.
	Name() string
	// Load parses the artifact once. The returned Model may keep a reference
	// to a.Data but must not modify it.
	Load(a *Artifact) (Model, error)
}

// Model is a parsed artifact shared by every session in a pool.
type Model interface {
	// Labels returns class labels in class-index order.
	Labels() []string
	// NewSession creates one engine instance. It must not re-parse the artifact.
	NewSession() (Session, error)
	// Close releases the parsed model. Called once, after all sessions are closed.
	Close() error
}

// Session is one engine instance. It is never entered by two goroutines at
// once; the pool's Acquire/Release contract guarantees that.
type Session interface {
	// Predict returns one score per class for the encoded image.
	Predict(ctx context.Context, img InputImage) ([]float32, error)
	// Close releases backend resources. Called at most once.
	Close() error
}

// WarmupReporter is optionally implemented by sessions that can report how
// much memory their first Predict allocated.
type WarmupReporter interface {
	WarmupBytes() int64
}
