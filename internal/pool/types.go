package pool

import "time"

// AcquireMode selects what Acquire does when every handle is busy.
type AcquireMode string

const (
	// AcquireNonBlocking fails immediately with ErrPoolExhausted.
	AcquireNonBlocking AcquireMode = "nonblocking"
	// AcquireBlocking waits in FIFO order up to Config.AcquireTimeout.
	AcquireBlocking AcquireMode = "blocking"
)

// Artifact is the model blob read once at pool creation. It is shared
// read-only by the parsed model and every session derived from it.
type Artifact struct {
	// Path is empty when the artifact was supplied as a byte buffer.
	Path     string
	Data     []byte
	Size     int64
	Digest   string // sha256, hex
	LoadedAt time.Time
}

// InputImage is one encoded image supplied per request. The pool never
// retains it after Predict returns.
type InputImage struct {
	Data     []byte
	Filename string
	Label    string
}

// PredictionResult is produced fresh by every successful Predict.
type PredictionResult struct {
	Label string
	// Scores holds one value per class in class-index order.
	Scores   []float32
	Index    int
	Score    float32
	HandleID int
	// Cold is true when this call was the handle's warm-up.
	Cold     bool
	Duration time.Duration
}

// Handle is one engine instance inside a Pool. Handles are created by Create
// and live until Close; callers only ever see them between Acquire and
// Release.
type Handle struct {
	id        int
	pool      *Pool
	session   Session
	createdAt time.Time

	// Guarded by pool.mu.
	busy bool
	// inflight is set while session.Predict runs; Close leaves such a
	// session to the returning Predict.
	inflight       bool
	sessionClosed  bool
	warmed         bool
	warmedAt       time.Time
	warmupDuration time.Duration
	warmupBytes    int64
	predictions    uint64
	failures       uint64
	lastUsed       time.Time
}

// ID is the handle's ordinal within its pool.
func (h *Handle) ID() int { return h.id }

// CreatedAt reports when the handle's session was created.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Warmed reports whether the handle has served at least one prediction.
func (h *Handle) Warmed() bool {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.warmed
}

// Info returns a copy of the handle's accounting.
func (h *Handle) Info() HandleInfo {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.infoLocked()
}

func (h *Handle) infoLocked() HandleInfo {
	return HandleInfo{
		ID:             h.id,
		Busy:           h.busy,
		Warmed:         h.warmed,
		CreatedAt:      h.createdAt,
		WarmedAt:       h.warmedAt,
		LastUsed:       h.lastUsed,
		WarmupDuration: h.warmupDuration,
		WarmupBytes:    h.warmupBytes,
		Predictions:    h.predictions,
		Failures:       h.failures,
	}
}

// HandleInfo is a read-only view of one handle.
type HandleInfo struct {
	ID             int
	Busy           bool
	Warmed         bool
	CreatedAt      time.Time
	WarmedAt       time.Time
	LastUsed       time.Time
	WarmupDuration time.Duration
	// WarmupBytes is what the backend reported allocating on the first call;
	// zero when the backend does not report it.
	WarmupBytes int64
	Predictions uint64
	Failures    uint64
}

// Snapshot is a read-only projection of the pool state.
type Snapshot struct {
	ID             string
	Backend        string
	ArtifactPath   string
	ArtifactSize   int64
	ArtifactDigest string
	Labels         []string
	Size           int
	Idle           int
	Busy           int
	Warmed         int
	Waiters        int
	Closed         bool
	CreatedAt      time.Time
	Handles        []HandleInfo
}
