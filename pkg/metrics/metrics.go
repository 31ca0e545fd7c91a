// Package metrics defines the sink the optimization gateway reports into.
// Counters are injected rather than kept as package globals so tests can
// assert on what was emitted.
package metrics

import "time"

// Sink receives counter increments and duration observations.
type Sink interface {
	Inc(name string, labels map[string]string)
	Observe(name string, d time.Duration, labels map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Inc(string, map[string]string)                    {}
func (Nop) Observe(string, time.Duration, map[string]string) {}
