package pool

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultPoolSize       = 1
	defaultAcquireTimeout = 30 * time.Second
	defaultDrainTimeout   = 5 * time.Second
	// DefaultName labels the metrics of pools that do not set Config.Name.
	DefaultName = "serving"
)

// Config encapsulates all tunables for pool construction.
type Config struct {
	// PoolSize is the number of engine handles; zero means 1.
	PoolSize int
	// ModelPath locates the artifact on disk. Ignored when ModelData is set.
	ModelPath string
	// ModelData supplies the artifact directly as a byte buffer.
	ModelData []byte
	Backend   Backend

	AcquireMode AcquireMode
	// AcquireTimeout bounds a blocking Acquire.
	AcquireTimeout time.Duration
	// DrainTimeout bounds how long Close waits for held handles.
	DrainTimeout time.Duration

	// Name is the "pool" label on the pool's metrics. Keep the set of names
	// small; it is a label value, not an id.
	Name string
	// OnSession, when set, is called by Create after each session is built.
	OnSession func(handle int)

	Logger    *zerolog.Logger
	Publisher EventPublisher
}

// withDefaults validates cfg and fills unset fields.
func (c Config) withDefaults() (Config, error) {
	if c.PoolSize < 0 {
		return c, fmt.Errorf("pool size must be >= 1, got %d", c.PoolSize)
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.Backend == nil {
		return c, fmt.Errorf("no backend configured")
	}
	switch c.AcquireMode {
	case "":
		c.AcquireMode = AcquireNonBlocking
	case AcquireNonBlocking, AcquireBlocking:
	default:
		return c, fmt.Errorf("unknown acquire mode %q", c.AcquireMode)
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	return c, nil
}
