package domain

// CallMetrics counts backend calls made on behalf of one conversation.
// Counters only ever grow. A turn is single-threaded, so no locking is needed;
// the process-wide counterpart lives in the transport package.
type CallMetrics struct {
	Attempts  int64 `json:"attempts"`
	Retries   int64 `json:"retries"`
	Successes int64 `json:"successes"`
	Aborts    int64 `json:"aborts"`
}

func (m *CallMetrics) RecordAttempt() { m.Attempts++ }
func (m *CallMetrics) RecordRetry()   { m.Retries++ }
func (m *CallMetrics) RecordSuccess() { m.Successes++ }
func (m *CallMetrics) RecordAbort()   { m.Aborts++ }

// Add folds o into m.
func (m *CallMetrics) Add(o CallMetrics) {
	m.Attempts += o.Attempts
	m.Retries += o.Retries
	m.Successes += o.Successes
	m.Aborts += o.Aborts
}

// Snapshot renders the counters as a plain map.
func (m CallMetrics) Snapshot() map[string]any {
	return map[string]any{
		"attempts":  m.Attempts,
		"retries":   m.Retries,
		"successes": m.Successes,
		"aborts":    m.Aborts,
	}
}
