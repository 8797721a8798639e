package mover

// channelJoin merges the engine's read-issuing and write-issuing streams
// onto the single external master port. When both streams want to issue in
// the same tick, the grant alternates; within each stream the order is never
// changed.
type channelJoin struct {
	lastGranted axKind
}

// readFirst decides which stream gets the first try this tick.
func (j *channelJoin) readFirst(wantRead, wantWrite bool) bool {
	if !wantWrite {
		return true
	}

	if !wantRead {
		return false
	}

	return j.lastGranted == axWrite
}

// granted records a successful issue for round-robin fairness.
func (j *channelJoin) granted(kind axKind) {
	j.lastGranted = kind
}
