package ctrl

// A BusyReporter exposes whether a component still has work in flight.
type BusyReporter interface {
	Busy() bool
}

// An Aggregator ORs the busy state of a set of reporters.
type Aggregator struct {
	reporters []BusyReporter
}

// NewAggregator creates an Aggregator over the given reporters.
func NewAggregator(reporters ...BusyReporter) *Aggregator {
	return &Aggregator{reporters: reporters}
}

// Busy returns true while any reporter is busy.
func (a *Aggregator) Busy() bool {
	for _, r := range a.reporters {
		if r.Busy() {
			return true
		}
	}

	return false
}
