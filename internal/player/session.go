package player

import (
	"math"

	"learnplay/internal/media"
)

// Source is the resolved backing source of a session. It is a closed set:
// adaptiveSoftware, adaptiveNative and progressive.
type Source interface {
	Kind() media.SourceKind
	activate(c *Controller, s *session) error
}

// adaptiveSoftware plays a manifest through a software Engine.
type adaptiveSoftware struct {
	url    string
	levels []media.Level
}

func (*adaptiveSoftware) Kind() media.SourceKind { return media.AdaptiveSoftware }

// adaptiveNative hands the manifest straight to the element.
type adaptiveNative struct {
	url string
}

func (*adaptiveNative) Kind() media.SourceKind { return media.AdaptiveNative }

// progressive plays one of a ranked list of fixed-quality files.
type progressive struct {
	candidates []media.Source
	active     int
	failed     map[int]bool
}

func (*progressive) Kind() media.SourceKind { return media.Progressive }

func (p *progressive) current() media.Source { return p.candidates[p.active] }

func (p *progressive) indexOf(url string) int {
	for i, c := range p.candidates {
		if c.URL == url {
			return i
		}
	}
	return -1
}

// qualitySwitch is an in-flight progressive reattachment.
type qualitySwitch struct {
	url        string
	prevIndex  int
	prevID     string
	position   float64
	wasPlaying bool
	restoring  bool
}

// recoveryBudget tracks the one-shot recovery attempts per error class.
type recoveryBudget struct {
	networkRetried bool
	mediaRecovered bool
}

func (b *recoveryBudget) reset() { *b = recoveryBudget{} }

// session is one playback of one descriptor. All fields are owned by the
// controller loop goroutine.
type session struct {
	id   string
	gen  uint64
	desc *media.SourceDescriptor

	source  Source
	catalog []media.QualityLevel
	engine  Engine
	probe   *Probe

	state         media.State
	lastVolume    float64
	playRequested bool
	playConfirmed bool

	switching *qualitySwitch
	recovery  recoveryBudget

	cleanups []func()
	released bool
}

// onRelease registers fn to run when the session releases its resources.
func (s *session) onRelease(fn func()) {
	s.cleanups = append(s.cleanups, fn)
}

// release runs the registered cleanups in reverse order, exactly once.
func (s *session) release() {
	if s.released {
		return
	}
	s.released = true
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
	s.engine = nil
	s.switching = nil
}

func (s *session) kind() media.SourceKind {
	if s.source == nil {
		return media.KindNone
	}
	return s.source.Kind()
}

func (s *session) setStatus(st media.Status) {
	s.state.Status = st
	if st != media.StatusError {
		s.state.Error = nil
	}
}

func (s *session) clampPosition(pos float64) float64 {
	if pos < 0 || math.IsNaN(pos) {
		return 0
	}
	if d := s.state.Duration; d > 0 && pos > d {
		return d
	}
	return pos
}
