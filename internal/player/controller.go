package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"learnplay/internal/log"
	"learnplay/internal/media"
	"learnplay/internal/subtitle"
)

// Observer is notified with a fresh snapshot after every state change.
// It runs on the controller goroutine and must not block.
type Observer interface {
	StateChanged(state media.State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(media.State)

func (f ObserverFunc) StateChanged(s media.State) { f(s) }

// Downloader saves a progressive source to disk.
type Downloader interface {
	Download(ctx context.Context, src media.Source, title, dir string) (string, error)
}

// Options configures a Controller.
type Options struct {
	Element          Element       // required
	Engines          EngineFactory // optional software adaptive engine
	NoNative         bool          // disables native adaptive playback on the element
	Sink             LatencySink   // optional
	Downloader       Downloader    // optional
	PreferredQuality string        // progressive default quality, "1080p" when empty
	CaptionLanguage  string        // fallback caption language when no track is marked default
	InitialVolume    float64       // 0..1, 1 when zero
	Logger           *zerolog.Logger
	Clock            func() time.Time
}

// Controller owns one playback element and runs one session at a time.
// Every command is queued and applied on the controller goroutine; callers
// observe the outcome through State or an Observer.
type Controller struct {
	el        Element
	engines   EngineFactory
	noNative  bool
	sink      LatencySink
	dl        Downloader
	preferred string
	language  string
	volume    float64
	logger    zerolog.Logger
	now       func() time.Time

	qmu    sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}

	mu        sync.RWMutex
	published media.State
	catalog   []media.QualityLevel
	active    media.Source
	title     string

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	// loop-owned
	sess *session
	desc *media.SourceDescriptor
	gen  uint64
}

// NewController starts a controller bound to opts.Element.
func NewController(opts Options) (*Controller, error) {
	if opts.Element == nil {
		return nil, fmt.Errorf("controller requires a playback element")
	}
	volume := opts.InitialVolume
	if volume <= 0 || volume > 1 {
		volume = 1
	}
	logger := log.WithComponent("player")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		el:        opts.Element,
		engines:   opts.Engines,
		sink:      opts.Sink,
		dl:        opts.Downloader,
		preferred: opts.PreferredQuality,
		noNative:  opts.NoNative,
		language:  opts.CaptionLanguage,
		volume:    volume,
		logger:    logger,
		now:       now,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		observers: make(map[int]Observer),
		published: media.State{Status: media.StatusIdle, Volume: volume},
	}
	go c.run()
	return c, nil
}

// post queues fn for the controller goroutine. It never blocks.
func (c *Controller) post(fn func()) {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		return
	}
	c.queue = append(c.queue, fn)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) pop() func() {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	fn := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return fn
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.quit:
			c.drain()
			return
		}
	}
}

func (c *Controller) drain() {
	for fn := c.pop(); fn != nil; fn = c.pop() {
		fn()
		c.publish()
	}
}

// Close ends the current session and stops the controller goroutine.
func (c *Controller) Close() {
	c.post(func() {
		c.endSession()
		c.sess = nil
		c.desc = nil
	})

	c.qmu.Lock()
	already := c.closed
	c.closed = true
	c.qmu.Unlock()
	if !already {
		close(c.quit)
	}
	<-c.done
}

// AddObserver registers o and returns a function that removes it.
func (c *Controller) AddObserver(o Observer) (remove func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = o
	c.obsMu.Unlock()
	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// State returns the latest snapshot.
func (c *Controller) State() media.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published
}

// Qualities returns the quality catalog of the current session.
func (c *Controller) Qualities() []media.QualityLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]media.QualityLevel, len(c.catalog))
	copy(out, c.catalog)
	return out
}

// CanDownload reports whether the current session can be saved as one file.
func (c *Controller) CanDownload() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published.Kind == media.Progressive && c.published.Status != media.StatusError
}

// Download saves the active progressive source into dir. Adaptive sessions
// fail with a DownloadUnsupported error and leave the session untouched.
func (c *Controller) Download(ctx context.Context, dir string) (string, error) {
	c.mu.RLock()
	kind, status := c.published.Kind, c.published.Status
	src, title := c.active, c.title
	c.mu.RUnlock()

	if kind != media.Progressive || status == media.StatusError {
		return "", media.NewError(media.DownloadUnsupported, fmt.Sprintf("%s sessions cannot be downloaded as a single file", kind))
	}
	if c.dl == nil {
		return "", fmt.Errorf("no downloader configured")
	}
	return c.dl.Download(ctx, src, title, dir)
}

// publish copies the session state into the snapshot and notifies observers
// when it changed.
func (c *Controller) publish() {
	var (
		st      media.State
		catalog []media.QualityLevel
		active  media.Source
		title   string
	)
	if s := c.sess; s != nil {
		st = s.state
		st.SessionID = s.id
		st.Kind = s.kind()
		catalog = s.catalog
		if p, ok := s.source.(*progressive); ok {
			active = p.current()
		}
		if s.desc != nil {
			title = s.desc.Title
		}
	} else {
		st = media.State{Status: media.StatusIdle, Volume: c.volume}
	}

	c.mu.Lock()
	prev := c.published
	changed := st != prev
	c.published = st
	c.catalog = catalog
	c.active = active
	c.title = title
	c.mu.Unlock()

	if !changed {
		return
	}
	if prev.Status != st.Status {
		c.logger.Debug().
			Str(log.FieldSessionID, st.SessionID).
			Str(log.FieldOldState, prev.Status.String()).
			Str(log.FieldNewState, st.Status.String()).
			Msg("state transition")
	}

	c.obsMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o)
	}
	c.obsMu.Unlock()
	for _, o := range observers {
		o.StateChanged(st)
	}
}

// Load starts a fresh session for desc, destroying the current one first.
func (c *Controller) Load(desc media.SourceDescriptor) {
	d := desc
	c.post(func() {
		c.desc = &d
		c.startSession(&d)
	})
}

// Retry renegotiates the current descriptor from scratch.
func (c *Controller) Retry() {
	c.post(func() {
		if c.desc != nil {
			c.startSession(c.desc)
		}
	})
}

// Clear destroys the current session and forgets its descriptor.
func (c *Controller) Clear() {
	c.post(func() {
		c.endSession()
		c.sess = nil
		c.desc = nil
	})
}

func (c *Controller) startSession(desc *media.SourceDescriptor) {
	c.endSession()
	c.gen++

	s := &session{
		id:         uuid.NewString(),
		gen:        c.gen,
		desc:       desc,
		probe:      NewProbe(c.now),
		lastVolume: c.volume,
	}
	s.state = media.State{Status: media.StatusInitializing, Volume: c.volume}
	c.sess = s
	s.probe.Start()

	logger := c.logger.With().Str(log.FieldSessionID, s.id).Logger()

	n := Negotiator{Engines: c.engines, Element: c.el, NoNative: c.noNative, PreferredQuality: c.preferred}
	res, err := n.Resolve(desc)
	if err != nil {
		c.fail(s, err)
		return
	}
	s.source = res.Source
	s.catalog = res.Catalog
	s.state.ActiveQualityID = res.DefaultQualityID()
	logger.Info().Str(log.FieldSourceKind, s.kind().String()).Msg("source negotiated")

	gen := s.gen
	unsubscribe := c.el.Subscribe(func(ev ElementEvent) {
		c.post(func() { c.onElementEvent(gen, ev) })
	})
	s.onRelease(unsubscribe)
	s.onRelease(func() {
		if err := c.el.Detach(); err != nil {
			logger.Warn().Err(err).Msg("detaching element")
		}
	})

	if err := c.el.SetVolume(s.state.Volume); err != nil {
		logger.Warn().Err(err).Msg("setting initial volume")
	}
	c.attachCaptions(s)

	if err := s.source.activate(c, s); err != nil {
		c.fail(s, media.WrapError(media.StreamUnrecoverable, "activating source", err))
	}
}

// attachCaptions adds every caption track out-of-band. The default track is
// the one flagged default, else the best match for the configured language.
func (c *Controller) attachCaptions(s *session) {
	tracks := s.desc.Captions
	if len(tracks) == 0 {
		return
	}
	selected := -1
	for i, t := range tracks {
		if t.IsDefault {
			selected = i
			break
		}
	}
	visible := selected >= 0
	if selected < 0 {
		if best := subtitle.BestMatch(tracks, c.language); best != nil {
			for i := range tracks {
				if tracks[i].URL == best.URL {
					selected = i
					break
				}
			}
		}
	}
	for i, t := range tracks {
		if err := c.el.AddTextTrack(t, i == selected); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldURL, t.URL).Msg("adding caption track")
		}
	}
	if err := c.el.SetCaptionsVisible(visible); err != nil {
		c.logger.Warn().Err(err).Msg("setting caption visibility")
	}
	s.state.CaptionsVisible = visible
}

// endSession releases the current session's listeners, engine and element.
func (c *Controller) endSession() {
	if c.sess == nil {
		return
	}
	c.sess.probe.Disarm()
	c.sess.release()
}

// current returns the session that callbacks for gen may act on.
func (c *Controller) current(gen uint64) *session {
	s := c.sess
	if s == nil || s.gen != gen || s.released {
		return nil
	}
	return s
}

// live returns the current session when it accepts commands.
func (c *Controller) live() *session {
	s := c.sess
	if s == nil || s.released || s.state.Status == media.StatusError {
		return nil
	}
	return s
}

// fail moves s into the terminal Error state after tearing everything down.
func (c *Controller) fail(s *session, err error) {
	if s.state.Status == media.StatusError {
		return
	}
	var merr *media.Error
	if !errors.As(err, &merr) {
		merr = media.WrapError(media.StreamUnrecoverable, "playback failed", err)
	}

	s.probe.Disarm()
	s.release()
	s.playRequested = false
	s.playConfirmed = false
	s.state.Status = media.StatusError
	s.state.Error = merr

	c.logger.Error().
		Str(log.FieldSessionID, s.id).
		Str(log.FieldErrorKind, merr.Kind.String()).
		Err(merr).
		Msg("session failed")
}

// markReady handles the first playable frame.
func (c *Controller) markReady(s *session) {
	if s.state.Status != media.StatusInitializing {
		return
	}
	s.setStatus(media.StatusReady)

	if latency, ok := s.probe.Stop(); ok {
		ms := latency.Milliseconds()
		c.logger.Info().Str(log.FieldSessionID, s.id).Int64(log.FieldLatencyMS, ms).Msg("startup latency")
		if c.sink != nil {
			c.sink.RecordStartupLatency(media.LatencySample{
				SessionID: s.id,
				Title:     s.desc.Title,
				Kind:      s.kind(),
				Millis:    ms,
				Recorded:  c.now().Unix(),
			})
		}
	}

	if s.playConfirmed {
		s.playConfirmed = false
		s.playRequested = false
		s.setStatus(media.StatusPlaying)
	}
}

func (c *Controller) onElementEvent(gen uint64, ev ElementEvent) {
	s := c.current(gen)
	if s == nil || s.state.Status == media.StatusError {
		return
	}

	switch ev.Type {
	case ElementLoaded:
		if s.switching != nil {
			c.completeSwitch(s, ev.URL)
		}

	case ElementFirstFrame:
		if s.kind() != media.AdaptiveSoftware && s.switching == nil {
			c.markReady(s)
		}

	case ElementPlaying:
		if s.switching != nil {
			return
		}
		if s.state.Status == media.StatusInitializing {
			s.playConfirmed = true
			return
		}
		s.playRequested = false
		s.setStatus(media.StatusPlaying)

	case ElementPaused:
		if s.switching != nil {
			return
		}
		s.playConfirmed = false
		s.playRequested = false
		if s.state.Status == media.StatusPlaying {
			s.setStatus(media.StatusPaused)
		}

	case ElementTimeUpdate:
		if s.switching != nil {
			return
		}
		s.state.Position = s.clampPosition(ev.Value)
		if d := s.state.Duration; d > 0 && s.state.Position >= d {
			c.markEnded(s)
		}

	case ElementDurationChange:
		if ev.Value > 0 {
			s.state.Duration = ev.Value
			s.state.Position = s.clampPosition(s.state.Position)
		}

	case ElementEnded:
		c.markEnded(s)

	case ElementFullscreenChanged:
		s.state.Fullscreen = ev.On

	case ElementError:
		c.onElementError(s, ev)
	}
}

func (c *Controller) markEnded(s *session) {
	switch s.state.Status {
	case media.StatusReady, media.StatusPlaying, media.StatusPaused:
		s.playRequested = false
		if d := s.state.Duration; d > 0 {
			s.state.Position = d
		}
		s.setStatus(media.StatusEnded)
	}
}

func (c *Controller) onElementError(s *session, ev ElementEvent) {
	if sw := s.switching; sw != nil {
		if ev.URL != "" && ev.URL != sw.url {
			return
		}
		c.failSwitch(s, ev.Err)
		return
	}

	switch src := s.source.(type) {
	case *adaptiveSoftware:
		// The engine observes the element and reports media errors itself.
		return
	case *progressive:
		if s.state.Status == media.StatusInitializing && src.nextCandidate() {
			c.logger.Warn().Err(ev.Err).
				Str(log.FieldSessionID, s.id).
				Str(log.FieldURL, src.current().URL).
				Msg("progressive source failed, trying next candidate")
			s.state.ActiveQualityID = src.current().URL
			if err := src.activate(c, s); err != nil {
				c.fail(s, media.WrapError(media.StreamUnrecoverable, "activating fallback source", err))
			}
			return
		}
	}
	c.fail(s, media.WrapError(media.StreamUnrecoverable, "playback element error", ev.Err))
}

// Play requests playback. The status turns Playing once the element confirms.
func (c *Controller) Play() {
	c.post(func() {
		s := c.live()
		if s == nil || s.state.Status == media.StatusPlaying || s.playRequested {
			return
		}
		if s.state.Status == media.StatusEnded {
			s.state.Position = 0
			if err := c.el.Seek(0); err != nil {
				c.logger.Warn().Err(err).Msg("rewinding before replay")
			}
		}
		s.playRequested = true
		if sw := s.switching; sw != nil {
			// Applied by completeSwitch once the new source is loaded.
			sw.wasPlaying = true
			return
		}
		if err := c.el.Play(); err != nil {
			s.playRequested = false
			c.logger.Warn().Err(err).Msg("play request failed")
		}
	})
}

// Pause pauses playback immediately.
func (c *Controller) Pause() {
	c.post(func() {
		s := c.live()
		if s == nil {
			return
		}
		if err := c.el.Pause(); err != nil {
			c.logger.Warn().Err(err).Msg("pause request failed")
		}
		s.playRequested = false
		s.playConfirmed = false
		if sw := s.switching; sw != nil {
			sw.wasPlaying = false
		}
		switch s.state.Status {
		case media.StatusReady, media.StatusPlaying:
			s.setStatus(media.StatusPaused)
		}
	})
}

// Seek moves to seconds, clamped into [0, duration]. NaN and infinite
// targets are ignored.
func (c *Controller) Seek(seconds float64) {
	c.post(func() {
		s := c.live()
		if s == nil || !finite(seconds) {
			return
		}
		target := s.clampPosition(seconds)
		s.state.Position = target
		if sw := s.switching; sw != nil {
			sw.position = target
			return
		}
		if err := c.el.Seek(target); err != nil {
			c.logger.Warn().Err(err).Msg("seek request failed")
		}
		if s.state.Status == media.StatusEnded {
			s.setStatus(media.StatusPaused)
		}
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SetVolume sets the volume, clamped into [0, 1]. Zero mutes. NaN and
// infinite values are ignored.
func (c *Controller) SetVolume(v float64) {
	c.post(func() {
		s := c.live()
		if s == nil || !finite(v) {
			return
		}
		switch {
		case v < 0:
			v = 0
		case v > 1:
			v = 1
		}
		s.state.Volume = v
		if v == 0 {
			s.state.Muted = true
		} else {
			s.state.Muted = false
			s.lastVolume = v
		}
		c.applyVolume(s)
	})
}

// ToggleMute mutes, or unmutes and restores the last non-zero volume.
func (c *Controller) ToggleMute() {
	c.post(func() {
		s := c.live()
		if s == nil {
			return
		}
		if s.state.Muted {
			s.state.Muted = false
			if s.state.Volume == 0 {
				s.state.Volume = s.lastVolume
			}
		} else {
			s.state.Muted = true
		}
		c.applyVolume(s)
	})
}

func (c *Controller) applyVolume(s *session) {
	if err := c.el.SetVolume(s.state.Volume); err != nil {
		c.logger.Warn().Err(err).Msg("setting volume")
	}
	if err := c.el.SetMuted(s.state.Muted); err != nil {
		c.logger.Warn().Err(err).Msg("setting mute")
	}
}

// ToggleFullscreen requests or leaves exclusive display of the playback surface.
func (c *Controller) ToggleFullscreen() {
	c.post(func() {
		s := c.live()
		if s == nil {
			return
		}
		want := !s.state.Fullscreen
		if err := c.el.SetFullscreen(want); err != nil {
			c.logger.Warn().Err(err).Msg("fullscreen request failed")
			return
		}
		s.state.Fullscreen = want
	})
}
