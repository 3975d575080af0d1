package player

import (
	"time"

	"learnplay/internal/media"
)

// LatencySink receives one startup latency sample per successful session.
type LatencySink interface {
	RecordStartupLatency(sample media.LatencySample)
}

// Probe measures the time from negotiation start to the first playable frame.
// It fires at most once between two calls to Start.
type Probe struct {
	now     func() time.Time
	t0      time.Time
	armed   bool
	emitted bool
}

// NewProbe returns a probe reading time from now.
func NewProbe(now func() time.Time) *Probe {
	if now == nil {
		now = time.Now
	}
	return &Probe{now: now}
}

// Start records t0 and re-arms the probe.
func (p *Probe) Start() {
	p.t0 = p.now()
	p.armed = true
	p.emitted = false
}

// Stop records t1 and returns t1-t0. ok is false when the probe is disarmed
// or has already fired.
func (p *Probe) Stop() (latency time.Duration, ok bool) {
	if !p.armed || p.emitted {
		return 0, false
	}
	p.emitted = true
	p.armed = false
	return p.now().Sub(p.t0), true
}

// Disarm prevents the pending measurement from firing.
func (p *Probe) Disarm() {
	p.armed = false
}
