// Package player implements the adaptive playback controller and the playback
// elements it drives. The controller never renders; a UI binds to its State
// snapshots and issues commands.
package player

import (
	"fmt"

	"learnplay/internal/media"
)

// ElementEventType identifies an event reported by a playback element.
type ElementEventType int

const (
	ElementLoaded ElementEventType = iota + 1
	ElementFirstFrame
	ElementPlaying
	ElementPaused
	ElementTimeUpdate
	ElementDurationChange
	ElementEnded
	ElementFullscreenChanged
	ElementError
)

func (t ElementEventType) String() string {
	switch t {
	case ElementLoaded:
		return "loaded"
	case ElementFirstFrame:
		return "first_frame"
	case ElementPlaying:
		return "playing"
	case ElementPaused:
		return "paused"
	case ElementTimeUpdate:
		return "time_update"
	case ElementDurationChange:
		return "duration_change"
	case ElementEnded:
		return "ended"
	case ElementFullscreenChanged:
		return "fullscreen_changed"
	case ElementError:
		return "error"
	default:
		return "unknown"
	}
}

// ElementEvent is a notification from a playback element.
type ElementEvent struct {
	Type  ElementEventType
	URL   string  // Loaded, Error: the source the event belongs to
	Value float64 // TimeUpdate: position, DurationChange: duration (seconds)
	On    bool    // FullscreenChanged
	Err   error   // Error
}

// Element is the playback surface: it plays one URL at a time and reports
// what it is doing through events. Commands are requests; their outcome is
// observed through events.
type Element interface {
	Load(url string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetVolume(v float64) error
	SetMuted(muted bool) error
	SetFullscreen(on bool) error
	AddTextTrack(track media.CaptionTrack, selected bool) error
	SetCaptionsVisible(visible bool) error
	CanPlayType(mime string) bool

	// Subscribe registers fn for every subsequent event. Multiple subscribers are allowed.
	Subscribe(fn func(ElementEvent)) (unsubscribe func())

	// Detach stops playback and unloads the current source.
	Detach() error
}

// ErrorType classifies adaptive engine failures.
type ErrorType int

const (
	NetworkError ErrorType = iota + 1
	MediaError
	OtherError
)

func (t ErrorType) String() string {
	switch t {
	case NetworkError:
		return "network"
	case MediaError:
		return "media"
	default:
		return "other"
	}
}

// EngineEventType identifies an adaptive engine event.
type EngineEventType int

const (
	ManifestParsed EngineEventType = iota + 1
	LevelSwitched
	EngineError
	FirstFrameRendered
)

// EngineEvent is a notification from an adaptive engine.
type EngineEvent struct {
	Type      EngineEventType
	Levels    []media.Level // ManifestParsed
	Level     int           // LevelSwitched
	ErrorType ErrorType     // EngineError
	Fatal     bool          // EngineError
	Err       error         // EngineError
}

// AutoLevel is the engine level value that enables automatic selection.
const AutoLevel = -1

// Engine is a software adaptive-stream engine. It loads the manifest, feeds
// the element the rendition it picks and reports through four events.
type Engine interface {
	Attach(el Element) error
	LoadSource(url string) error
	StartLoad()
	RecoverMediaError()
	CurrentLevel() int
	SetCurrentLevel(level int)
	Subscribe(fn func(EngineEvent)) (unsubscribe func())
	Destroy()
}

// EngineFactory creates engines and reports whether the environment supports them.
type EngineFactory interface {
	Supported() bool
	NewEngine() Engine
}

// New creates a playback element by player name. mpv is the only element
// with an event stream the controller can follow.
func New(name string, opts MPVOptions) (*MPV, error) {
	switch name {
	case "mpv", "":
		return NewMPV(opts), nil
	default:
		return nil, fmt.Errorf("unsupported player %q", name)
	}
}
