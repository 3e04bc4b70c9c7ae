// Package reading hands the latest estimator output to the control loop.
//
// A Shared cell has exactly one writer (the acquisition worker) and one
// reader (the control loop). Each Publish swaps in an immutable snapshot, so
// a reader always observes the voltage and battery fields from the same
// cycle. Readers get the freshest completed cycle, not every cycle.
package reading

import (
	"sync/atomic"
	"time"
)

// Reading is one completed estimator cycle.
type Reading struct {
	Volts      float64 // Mains RMS for consumers; 0 means no mains detected
	VoltsRaw   float64 // Smoothed RMS before the outage clamp
	RMSADC     float64 // Window standard deviation in ADC counts
	Samples    int     // Mains samples folded into the window
	ReadErrors int     // Failed reads during the window
	Battery    float64 // Volts
	At         time.Time
	Seq        uint64
}

// Acquired reports whether the window came from a working source. A window
// with no samples and failed reads is missing data, not a zero voltage.
func (r Reading) Acquired() bool {
	return r.Samples > 0 || r.ReadErrors == 0
}

// Shared is a single-slot lock-free handoff. The zero value is ready to use.
type Shared struct {
	cur atomic.Pointer[Reading]
	seq atomic.Uint64
}

// Publish stores r as the latest reading and stamps its sequence number.
func (s *Shared) Publish(r Reading) {
	r.Seq = s.seq.Add(1)
	s.cur.Store(&r)
}

// Load returns the latest reading. ok is false until the first Publish.
func (s *Shared) Load() (r Reading, ok bool) {
	p := s.cur.Load()
	if p == nil {
		return Reading{}, false
	}
	return *p, true
}
