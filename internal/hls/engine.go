package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"learnplay/internal/httputil"
	"learnplay/internal/log"
	"learnplay/internal/media"
	"learnplay/internal/player"
)

// Options configures engines created by a Factory.
type Options struct {
	Client    *http.Client // defaults to httputil.NewClient()
	MaxHeight int          // cap for automatic level selection, 0 for none
	Logger    *zerolog.Logger
}

// Factory creates engines sharing one HTTP client.
type Factory struct {
	opts Options
}

// NewFactory returns a factory for software HLS engines.
func NewFactory(opts Options) *Factory {
	if opts.Client == nil {
		opts.Client = httputil.NewClient()
	}
	return &Factory{opts: opts}
}

// Supported reports whether software HLS playback is available. It only
// needs an HTTP client, so it always is.
func (f *Factory) Supported() bool { return true }

// NewEngine returns a fresh, unattached engine.
func (f *Factory) NewEngine() player.Engine { return New(f.opts) }

// Engine fetches the master playlist, chooses a variant and feeds it to the
// element. Level switches reload the element at the current position.
type Engine struct {
	client    *http.Client
	maxHeight int
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	el          player.Element
	unsubscribe func()
	source      string
	levels      []media.Level
	current     int // level being played, -1 before the first load
	auto        bool
	position    float64
	loading     string  // URL handed to the element, awaiting Loaded
	restoreAt   float64 // position to seek to once loading completes
	subs        map[int]func(player.EngineEvent)
	nextSub     int
	destroyed   bool
}

// New returns an engine; Attach and LoadSource start playback.
func New(opts Options) *Engine {
	client := opts.Client
	if client == nil {
		client = httputil.NewClient()
	}
	logger := log.WithComponent("hls")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		client:    client,
		maxHeight: opts.MaxHeight,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		current:   -1,
		auto:      true,
		subs:      make(map[int]func(player.EngineEvent)),
	}
}

// Subscribe registers fn for every subsequent engine event.
func (e *Engine) Subscribe(fn func(player.EngineEvent)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) emit(ev player.EngineEvent) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	subs := make([]func(player.EngineEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Attach binds the engine to el and starts observing it.
func (e *Engine) Attach(el player.Element) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return errors.New("engine destroyed")
	}
	if e.el != nil {
		return errors.New("engine already attached")
	}
	e.el = el
	e.unsubscribe = el.Subscribe(e.onElementEvent)
	return nil
}

// LoadSource begins loading the manifest at rawURL.
func (e *Engine) LoadSource(rawURL string) error {
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("manifest URL: %w", err)
	}
	e.mu.Lock()
	if e.el == nil {
		e.mu.Unlock()
		return errors.New("engine not attached")
	}
	e.source = rawURL
	e.mu.Unlock()

	e.goLoadManifest()
	return nil
}

// StartLoad re-issues the manifest load, or reloads the current level when
// the manifest is already known.
func (e *Engine) StartLoad() {
	e.mu.Lock()
	haveLevels := len(e.levels) > 0
	e.mu.Unlock()

	if !haveLevels {
		e.goLoadManifest()
		return
	}
	e.reloadCurrent()
}

// RecoverMediaError reattaches the current level at the last known position.
func (e *Engine) RecoverMediaError() {
	e.reloadCurrent()
}

// CurrentLevel returns the level being played, -1 before the first load.
func (e *Engine) CurrentLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SetCurrentLevel pins level, or re-enables automatic selection for player.AutoLevel.
func (e *Engine) SetCurrentLevel(level int) {
	e.mu.Lock()
	if level == player.AutoLevel {
		e.auto = true
		level = e.autoLevelLocked()
	} else {
		e.auto = false
	}
	if level < 0 || level >= len(e.levels) || level == e.current {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.switchTo(level, true)
}

// Destroy stops all loading, detaches from the element and drops subscribers.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.el = nil
	e.subs = map[int]func(player.EngineEvent){}
	e.mu.Unlock()

	e.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	e.wg.Wait()
}

func (e *Engine) goLoadManifest() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loadManifest(e.ctx)
	}()
}

func (e *Engine) loadManifest(ctx context.Context) {
	e.mu.Lock()
	source := e.source
	e.mu.Unlock()

	base, err := url.Parse(source)
	if err != nil {
		e.emit(player.EngineEvent{Type: player.EngineError, ErrorType: player.NetworkError, Fatal: true, Err: err})
		return
	}

	body, err := httputil.Fetch(ctx, e.client, source)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn().Err(err).Str(log.FieldURL, source).Msg("manifest load failed")
		e.emit(player.EngineEvent{Type: player.EngineError, ErrorType: player.NetworkError, Fatal: true, Err: err})
		return
	}

	levels, err := ParseMaster(body, base)
	if err != nil {
		e.emit(player.EngineEvent{Type: player.EngineError, ErrorType: player.NetworkError, Fatal: true, Err: fmt.Errorf("parsing manifest: %w", err)})
		return
	}

	e.mu.Lock()
	e.levels = levels
	start := e.current
	if e.auto || start < 0 || start >= len(levels) {
		start = e.autoLevelLocked()
	}
	e.mu.Unlock()

	e.switchTo(start, false)
	e.emit(player.EngineEvent{Type: player.ManifestParsed, Levels: levels})
}

// autoLevelLocked picks the highest-bandwidth level within the height cap.
func (e *Engine) autoLevelLocked() int {
	best := -1
	for i, l := range e.levels {
		if e.maxHeight > 0 && l.Height > e.maxHeight {
			continue
		}
		best = i
	}
	if best < 0 && len(e.levels) > 0 {
		best = 0
	}
	return best
}

// switchTo loads level into the element, restoring the current position
// when keepPosition is set.
func (e *Engine) switchTo(level int, keepPosition bool) {
	e.mu.Lock()
	el := e.el
	if el == nil || e.destroyed || level < 0 || level >= len(e.levels) {
		e.mu.Unlock()
		return
	}
	target := e.levels[level].URL
	e.current = level
	e.loading = target
	e.restoreAt = 0
	if keepPosition {
		e.restoreAt = e.position
	}
	e.mu.Unlock()

	e.logger.Debug().Int("level", level).Str(log.FieldURL, target).Msg("loading level")
	if err := el.Load(target); err != nil {
		e.emit(player.EngineEvent{Type: player.EngineError, ErrorType: player.MediaError, Fatal: true, Err: err})
	}
}

func (e *Engine) reloadCurrent() {
	e.mu.Lock()
	level := e.current
	e.mu.Unlock()
	if level < 0 {
		e.goLoadManifest()
		return
	}
	e.switchTo(level, true)
}

func (e *Engine) onElementEvent(ev player.ElementEvent) {
	switch ev.Type {
	case player.ElementTimeUpdate:
		e.mu.Lock()
		if e.loading == "" {
			e.position = ev.Value
		}
		e.mu.Unlock()

	case player.ElementLoaded:
		e.mu.Lock()
		if ev.URL != e.loading || e.loading == "" {
			e.mu.Unlock()
			return
		}
		e.loading = ""
		level, restoreAt, el := e.current, e.restoreAt, e.el
		e.mu.Unlock()

		if restoreAt > 0 && el != nil {
			if err := el.Seek(restoreAt); err != nil {
				e.logger.Warn().Err(err).Msg("restoring position after level switch")
			}
		}
		e.emit(player.EngineEvent{Type: player.LevelSwitched, Level: level})

	case player.ElementFirstFrame:
		e.emit(player.EngineEvent{Type: player.FirstFrameRendered})

	case player.ElementError:
		e.mu.Lock()
		current := ""
		if e.current >= 0 && e.current < len(e.levels) {
			current = e.levels[e.current].URL
		}
		e.mu.Unlock()
		if ev.URL != "" && ev.URL != current {
			return
		}
		e.emit(player.EngineEvent{Type: player.EngineError, ErrorType: player.MediaError, Fatal: true, Err: ev.Err})
	}
}
