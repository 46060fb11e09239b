// Package metrics defines the observability capability used across pagesync.
//
// Components accept a Hook at construction; callers that do not care pass
// nothing and get Noop behaviour. There is no global registry.
package metrics

// Hook receives counters and timings emitted by transport, executor, and
// upload components. Implementations must be safe for concurrent use.
type Hook interface {
	Increment(name string, value int, tags map[string]string)
	Timing(name string, ms float64, tags map[string]string)
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) Increment(name string, value int, tags map[string]string) {}

func (Noop) Timing(name string, ms float64, tags map[string]string) {}

// OrNoop returns hook if non-nil, otherwise a Noop.
func OrNoop(hook Hook) Hook {
	if hook == nil {
		return Noop{}
	}
	return hook
}
