// Package media defines shared types for the learnplay application.
package media

// SourceKind identifies which backing source a playback session resolved to.
type SourceKind int

const (
	KindNone SourceKind = iota
	AdaptiveSoftware
	AdaptiveNative
	Progressive
)

func (k SourceKind) String() string {
	switch k {
	case AdaptiveSoftware:
		return "adaptive_software"
	case AdaptiveNative:
		return "adaptive_native"
	case Progressive:
		return "progressive"
	default:
		return "none"
	}
}

// AutoQualityID is the quality identifier that lets the adaptive engine choose.
const AutoQualityID = "auto"

// HLSMimeType is the MIME type probed on the element for native adaptive playback.
const HLSMimeType = "application/vnd.apple.mpegurl"

// AdaptiveSource points at an adaptive-stream manifest.
type AdaptiveSource struct {
	URL string `toml:"url" json:"url"`
}

// Source is a single fixed-quality media file.
type Source struct {
	URL     string `toml:"url" json:"url"`
	Quality string `toml:"quality" json:"quality"` // e.g., "1080p", "480p"
}

// CaptionTrack is an out-of-band subtitle track.
type CaptionTrack struct {
	Kind         string `toml:"kind" json:"kind"`   // "subtitles" or "captions"
	Label        string `toml:"label" json:"label"` // Display label, e.g., "English - CC"
	LanguageCode string `toml:"language_code" json:"language_code"`
	URL          string `toml:"url" json:"url"` // usually WebVTT
	IsDefault    bool   `toml:"default" json:"default"`
}

// SourceDescriptor is everything the controller needs to start a session.
// It is treated as immutable once handed to the controller.
type SourceDescriptor struct {
	Adaptive    *AdaptiveSource `toml:"adaptive" json:"adaptive,omitempty"`
	Progressive []Source        `toml:"progressive" json:"progressive,omitempty"`
	WebM        []Source        `toml:"webm" json:"webm,omitempty"`
	Captions    []CaptionTrack  `toml:"captions" json:"captions,omitempty"`
	PosterURL   string          `toml:"poster" json:"poster,omitempty"`
	Title       string          `toml:"title" json:"title,omitempty"`
}

// HasAdaptive reports whether the descriptor carries an adaptive manifest URL.
func (d *SourceDescriptor) HasAdaptive() bool {
	return d != nil && d.Adaptive != nil && d.Adaptive.URL != ""
}

// Ranked merges progressive and webm sources into one list, progressive first.
func (d *SourceDescriptor) Ranked() []Source {
	if d == nil {
		return nil
	}
	ranked := make([]Source, 0, len(d.Progressive)+len(d.WebM))
	for _, s := range d.Progressive {
		if s.URL != "" {
			ranked = append(ranked, s)
		}
	}
	for _, s := range d.WebM {
		if s.URL != "" {
			ranked = append(ranked, s)
		}
	}
	return ranked
}

// Validate checks that at least one playable source is declared.
func (d *SourceDescriptor) Validate() error {
	if d == nil {
		return NewError(NoPlayableSource, "no source descriptor")
	}
	if !d.HasAdaptive() && len(d.Ranked()) == 0 {
		return NewError(NoPlayableSource, "descriptor has neither an adaptive nor a progressive source")
	}
	return nil
}

// QualityLevel is one selectable rendition in the quality catalog.
type QualityLevel struct {
	ID       string `json:"id"`    // "auto", a source URL, or an adaptive level index
	Label    string `json:"label"` // e.g., "720p", "Auto"
	HeightPx int    `json:"height_px,omitempty"`
}

// Level is a rendition discovered in an adaptive manifest.
type Level struct {
	Index     int
	URL       string
	Bandwidth int // bits per second
	Width     int
	Height    int
	Codecs    string
	Name      string
}

// Status is the playback session status.
type Status int

const (
	StatusIdle Status = iota
	StatusInitializing
	StatusReady
	StatusPlaying
	StatusPaused
	StatusEnded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a source is attached and controls should be enabled.
func (s Status) Active() bool {
	switch s {
	case StatusReady, StatusPlaying, StatusPaused, StatusEnded:
		return true
	default:
		return false
	}
}

// State is a snapshot of a playback session.
type State struct {
	SessionID       string
	Kind            SourceKind
	Status          Status
	Position        float64 // seconds
	Duration        float64 // seconds, 0 while unknown
	Volume          float64 // 0..1
	Muted           bool
	Fullscreen      bool
	ActiveQualityID string
	CaptionsVisible bool
	Error           *Error // set only when Status == StatusError
	Warning         *Error // last non-fatal controller notice, e.g. a failed quality switch
}

// HistoryEntry represents a remembered resume position for a title.
type HistoryEntry struct {
	Key      string  // Stable identity, usually the descriptor title or file path
	Title    string  // Display title
	Position float64 // Last playback position in seconds
	Duration float64 // Total duration in seconds
}

// LatencySample is one recorded startup latency measurement.
type LatencySample struct {
	SessionID string
	Title     string
	Kind      SourceKind
	Millis    int64
	Recorded  int64 // unix seconds
}
