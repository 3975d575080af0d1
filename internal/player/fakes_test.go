package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"learnplay/internal/log"
	"learnplay/internal/media"
)

// fakeElement records every command and lets tests inject events.
type fakeElement struct {
	mu sync.Mutex

	canHLS     bool
	loadErr    map[string]error
	fsErr      error
	loads      []string
	plays      int
	pauses     int
	seeks      []float64
	volumes    []float64
	muted      []bool
	fullscreen []bool
	tracks     []media.CaptionTrack
	selected   []bool
	captions   []bool
	detaches   int

	subs map[int]func(ElementEvent)
	next int
}

func newFakeElement() *fakeElement {
	return &fakeElement{subs: make(map[int]func(ElementEvent)), loadErr: make(map[string]error)}
}

func (f *fakeElement) Load(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, url)
	return f.loadErr[url]
}

func (f *fakeElement) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return nil
}

func (f *fakeElement) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeElement) Seek(s float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, s)
	return nil
}

func (f *fakeElement) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, v)
	return nil
}

func (f *fakeElement) SetMuted(m bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = append(f.muted, m)
	return nil
}

func (f *fakeElement) SetFullscreen(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fsErr != nil {
		return f.fsErr
	}
	f.fullscreen = append(f.fullscreen, on)
	return nil
}

func (f *fakeElement) AddTextTrack(t media.CaptionTrack, selected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, t)
	f.selected = append(f.selected, selected)
	return nil
}

func (f *fakeElement) SetCaptionsVisible(v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions = append(f.captions, v)
	return nil
}

func (f *fakeElement) CanPlayType(mime string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canHLS && mime == media.HLSMimeType
}

func (f *fakeElement) Detach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
	return nil
}

func (f *fakeElement) Subscribe(fn func(ElementEvent)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeElement) emit(ev ElementEvent) {
	f.mu.Lock()
	subs := make([]func(ElementEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeElement) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeElement) lastLoad() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return ""
	}
	return f.loads[len(f.loads)-1]
}

func (f *fakeElement) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func (f *fakeElement) seekLog() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.seeks...)
}

// fakeEngine records recovery calls and lets tests inject engine events.
type fakeEngine struct {
	mu        sync.Mutex
	attached  Element
	source    string
	level     int
	levelSets []int
	startLoad int
	recovered int
	destroyed int
	subs      map[int]func(EngineEvent)
	next      int
}

func (e *fakeEngine) Attach(el Element) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attached = el
	return nil
}

func (e *fakeEngine) LoadSource(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = url
	return nil
}

func (e *fakeEngine) StartLoad() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLoad++
}

func (e *fakeEngine) RecoverMediaError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recovered++
}

func (e *fakeEngine) CurrentLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

func (e *fakeEngine) SetCurrentLevel(level int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.level = level
	e.levelSets = append(e.levelSets, level)
}

func (e *fakeEngine) Subscribe(fn func(EngineEvent)) func() {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed++
}

func (e *fakeEngine) emit(ev EngineEvent) {
	e.mu.Lock()
	subs := make([]func(EngineEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (e *fakeEngine) counts() (startLoad, recovered, destroyed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLoad, e.recovered, e.destroyed
}

// fakeFactory hands out fakeEngines and remembers them.
type fakeFactory struct {
	mu        sync.Mutex
	supported bool
	engines   []*fakeEngine
}

func (f *fakeFactory) Supported() bool { return f.supported }

func (f *fakeFactory) NewEngine() Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{level: AutoLevel, subs: make(map[int]func(EngineEvent))}
	f.engines = append(f.engines, e)
	return e
}

func (f *fakeFactory) last() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// fakeSink collects latency samples.
type fakeSink struct {
	mu      sync.Mutex
	samples []media.LatencySample
}

func (s *fakeSink) RecordStartupLatency(sample media.LatencySample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
}

func (s *fakeSink) all() []media.LatencySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.LatencySample(nil), s.samples...)
}

// fakeDownloader records the last download request.
type fakeDownloader struct {
	mu    sync.Mutex
	src   media.Source
	title string
	dir   string
}

func (d *fakeDownloader) Download(_ context.Context, src media.Source, title, dir string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.src, d.title, d.dir = src, title, dir
	if src.URL == "" {
		return "", errors.New("empty source")
	}
	return dir + "/" + title + ".mp4", nil
}

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type harness struct {
	c       *Controller
	el      *fakeElement
	engines *fakeFactory
	sink    *fakeSink
	dl      *fakeDownloader
}

func newHarness(t *testing.T, softwareEngine bool) *harness {
	t.Helper()
	h := &harness{
		el:      newFakeElement(),
		engines: &fakeFactory{supported: softwareEngine},
		sink:    &fakeSink{},
		dl:      &fakeDownloader{},
	}
	logger := log.Discard()
	clock := &fakeClock{now: time.Unix(1700000000, 0), step: 250 * time.Millisecond}
	c, err := NewController(Options{
		Element:         h.el,
		Engines:         h.engines,
		Sink:            h.sink,
		Downloader:      h.dl,
		CaptionLanguage: "english",
		Logger:          &logger,
		Clock:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewController() error: %v", err)
	}
	h.c = c
	t.Cleanup(c.Close)
	return h
}

// flush waits until every command and event queued so far has been applied.
func (h *harness) flush() {
	done := make(chan struct{})
	h.c.post(func() { close(done) })
	<-done
}

func (h *harness) state() media.State {
	h.flush()
	return h.c.State()
}

func (h *harness) emit(ev ElementEvent) {
	h.el.emit(ev)
	h.flush()
}
