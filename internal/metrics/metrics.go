// Package metrics provides in-process counters for fusion cycle activity.
// Counters are updated with atomics from the cycle path and read as a
// consistent snapshot by the CLI and health surfaces.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector accumulates engine activity counters. The zero value is not
// usable; create one with NewCollector.
type Collector struct {
	startTime time.Time

	cyclesRun        atomic.Int64
	fetchSuccesses   atomic.Int64
	fetchFailures    atomic.Int64
	softFailures     atomic.Int64
	consensusRepairs atomic.Int64
	gapsFilled       atomic.Int64
	candlesFused     atomic.Int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Uptime           time.Duration `json:"uptime"`
	CyclesRun        int64         `json:"cycles_run"`
	FetchSuccesses   int64         `json:"fetch_successes"`
	FetchFailures    int64         `json:"fetch_failures"`
	SoftFailures     int64         `json:"soft_failures"`
	ConsensusRepairs int64         `json:"consensus_repairs"`
	GapsFilled       int64         `json:"gaps_filled"`
	CandlesFused     int64         `json:"candles_fused"`
}

// NewCollector creates a collector with its uptime clock started.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordCycle counts one completed fusion cycle.
func (c *Collector) RecordCycle() { c.cyclesRun.Add(1) }

// RecordFetch counts one adapter call outcome.
func (c *Collector) RecordFetch(success bool) {
	if success {
		c.fetchSuccesses.Add(1)
	} else {
		c.fetchFailures.Add(1)
	}
}

// RecordSoftFailure counts a timeframe skipped for lack of sources.
func (c *Collector) RecordSoftFailure() { c.softFailures.Add(1) }

// RecordConsensusRepairs counts candles repaired by median consensus.
func (c *Collector) RecordConsensusRepairs(n int) { c.consensusRepairs.Add(int64(n)) }

// RecordGapsFilled counts synthetic candles inserted by gap filling.
func (c *Collector) RecordGapsFilled(n int) { c.gapsFilled.Add(int64(n)) }

// RecordCandlesFused counts candles written to the fused store.
func (c *Collector) RecordCandlesFused(n int) { c.candlesFused.Add(int64(n)) }

// GetSnapshot returns a copy of all counters.
func (c *Collector) GetSnapshot() Snapshot {
	return Snapshot{
		Uptime:           time.Since(c.startTime),
		CyclesRun:        c.cyclesRun.Load(),
		FetchSuccesses:   c.fetchSuccesses.Load(),
		FetchFailures:    c.fetchFailures.Load(),
		SoftFailures:     c.softFailures.Load(),
		ConsensusRepairs: c.consensusRepairs.Load(),
		GapsFilled:       c.gapsFilled.Load(),
		CandlesFused:     c.candlesFused.Load(),
	}
}
