package logging

import "sync/atomic"

// AuditCounters tracks process-wide request outcomes with lock-free
// accumulation, per spec.md §5 ("no mutable global counters on the hot
// path; audit metrics use lock-free aggregation or per-worker
// accumulators"). A single instance is process-wide; fields are updated
// with atomic adds only.
type AuditCounters struct {
	requestsTotal     atomic.Int64
	requestsExecuted  atomic.Int64
	requestsRefused   atomic.Int64
	requestsErrored   atomic.Int64
	attemptsTotal     atomic.Int64
	repairsApplied    atomic.Int64
}

// Global is the process-wide audit counter set.
var Global AuditCounters

func (c *AuditCounters) RecordRequest() { c.requestsTotal.Add(1) }

func (c *AuditCounters) RecordExecuted() { c.requestsExecuted.Add(1) }

func (c *AuditCounters) RecordRefused() { c.requestsRefused.Add(1) }

func (c *AuditCounters) RecordErrored() { c.requestsErrored.Add(1) }

func (c *AuditCounters) RecordAttempt() { c.attemptsTotal.Add(1) }

func (c *AuditCounters) RecordRepair() { c.repairsApplied.Add(1) }

// Snapshot returns a point-in-time copy of the counters for reporting.
type Snapshot struct {
	RequestsTotal    int64
	RequestsExecuted int64
	RequestsRefused  int64
	RequestsErrored  int64
	AttemptsTotal    int64
	RepairsApplied   int64
}

func (c *AuditCounters) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal:    c.requestsTotal.Load(),
		RequestsExecuted: c.requestsExecuted.Load(),
		RequestsRefused:  c.requestsRefused.Load(),
		RequestsErrored:  c.requestsErrored.Load(),
		AttemptsTotal:    c.attemptsTotal.Load(),
		RepairsApplied:   c.repairsApplied.Load(),
	}
}
