package sqfuse

import (
	"sync/atomic"
)

// Stats contains session statistics
type Stats struct {
	Mountpoint  string
	Operations  uint64
	BytesRead   uint64
	Errors      uint64
	OpenHandles int

	// Image-level counters from the archive.
	MetadataCacheHitRate float64
	FragmentCacheHitRate float64
}

// statsCollector tracks session statistics
type statsCollector struct {
	operations atomic.Uint64
	bytesRead  atomic.Uint64
	errors     atomic.Uint64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

// recordOperation increments the operation counter
func (s *statsCollector) recordOperation() {
	s.operations.Add(1)
}

// recordRead increments bytes read
func (s *statsCollector) recordRead(n int) {
	s.bytesRead.Add(uint64(n))
}

// recordError increments error counter
func (s *statsCollector) recordError() {
	s.errors.Add(1)
}

// snapshot returns current statistics
func (s *statsCollector) snapshot() Stats {
	return Stats{
		Operations: s.operations.Load(),
		BytesRead:  s.bytesRead.Load(),
		Errors:     s.errors.Load(),
	}
}
