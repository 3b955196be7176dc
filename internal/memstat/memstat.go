// Package memstat samples process memory.
package memstat

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/procfs"
)

// Sample is one memory reading. RSS is zero when /proc is unavailable; use
// Bytes for a value that is always populated.
type Sample struct {
	At        time.Time `json:"at"`
	RSS       int64     `json:"rss_bytes"`
	HeapAlloc int64     `json:"heap_alloc_bytes"`
	Sys       int64     `json:"sys_bytes"`
}

// Sampler returns the current memory reading. Tests substitute their own.
type Sampler func() Sample

// Read samples resident set size from /proc/self/stat and the Go runtime's
// heap statistics.
func Read() Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := Sample{At: time.Now(), HeapAlloc: int64(ms.HeapAlloc), Sys: int64(ms.Sys)}
	if p, err := procfs.Self(); err == nil {
		if st, err := p.Stat(); err == nil {
			s.RSS = int64(st.ResidentMemory())
		}
	}
	return s
}

// Bytes is RSS when known, otherwise the runtime's total obtained memory.
func (s Sample) Bytes() int64 {
	if s.RSS > 0 {
		return s.RSS
	}
	return s.Sys
}

// GB formats a byte count the way the probe report prints it.
func GB(b int64) string {
	return fmt.Sprintf("%.4f GB", float64(b)/(1<<30))
}
