package recon

// UnreadCount derives the aggregate badge count: every New record across
// the enabled streams. Resolved incidents can never classify as New, so the
// "needs action, not merely changed" restriction on incident streams is
// already encoded in Classify.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unreadLocked()
}

func (e *Engine) unreadLocked() int {
	total := 0
	for _, kind := range e.caps.EnabledStreams() {
		st := e.stateLocked(kind)
		for i := range st.records {
			if Classify(kind, &st.records[i], st.boundary, st.viewed, st.dismissed) == ClassNew {
				total++
			}
		}
	}
	return total
}
