package player

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"learnplay/internal/media"
)

// Negotiator picks the backing source for a descriptor.
//
// Precedence when several are viable: software adaptive engine, then native
// adaptive playback on the element, then the ranked progressive list.
type Negotiator struct {
	Engines          EngineFactory // nil disables the software engine
	Element          Element       // probed for native adaptive support
	NoNative         bool          // never hand the adaptive URL to the element
	PreferredQuality string        // progressive default, e.g. "1080p"
}

// Resolution is the outcome of negotiation.
type Resolution struct {
	Source  Source
	Catalog []media.QualityLevel
}

// Kind returns the resolved source kind.
func (r *Resolution) Kind() media.SourceKind { return r.Source.Kind() }

// DefaultQualityID is the catalog entry activated first.
func (r *Resolution) DefaultQualityID() string {
	if p, ok := r.Source.(*progressive); ok {
		return p.current().URL
	}
	return media.AutoQualityID
}

// Resolve maps a descriptor to a source kind and its initial quality catalog.
func (n Negotiator) Resolve(desc *media.SourceDescriptor) (*Resolution, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	if desc.HasAdaptive() {
		if n.Engines != nil && n.Engines.Supported() {
			return &Resolution{
				Source:  &adaptiveSoftware{url: desc.Adaptive.URL},
				Catalog: []media.QualityLevel{autoQuality()},
			}, nil
		}
		if !n.NoNative && n.Element != nil && n.Element.CanPlayType(media.HLSMimeType) {
			return &Resolution{
				Source:  &adaptiveNative{url: desc.Adaptive.URL},
				Catalog: []media.QualityLevel{autoQuality()},
			}, nil
		}
	}

	ranked := desc.Ranked()
	if len(ranked) == 0 {
		return nil, media.NewError(media.NoPlayableSource, "adaptive source is not playable in this environment and no progressive fallback exists")
	}

	preferred := n.PreferredQuality
	if preferred == "" {
		preferred = "1080p"
	}
	_, active, ok := lo.FindIndexOf(ranked, func(s media.Source) bool {
		return strings.EqualFold(s.Quality, preferred)
	})
	if !ok {
		active = 0
	}

	return &Resolution{
		Source:  &progressive{candidates: ranked, active: active, failed: map[int]bool{}},
		Catalog: progressiveCatalog(ranked),
	}, nil
}

func autoQuality() media.QualityLevel {
	return media.QualityLevel{ID: media.AutoQualityID, Label: "Auto"}
}

func progressiveCatalog(sources []media.Source) []media.QualityLevel {
	return lo.Map(sources, func(s media.Source, i int) media.QualityLevel {
		label := s.Quality
		if label == "" {
			label = fmt.Sprintf("Source %d", i+1)
		}
		return media.QualityLevel{ID: s.URL, Label: label, HeightPx: parseHeight(s.Quality)}
	})
}

// adaptiveCatalog prefixes the manifest levels with the auto entry.
func adaptiveCatalog(levels []media.Level) []media.QualityLevel {
	catalog := []media.QualityLevel{autoQuality()}
	return append(catalog, lo.Map(levels, func(l media.Level, _ int) media.QualityLevel {
		return media.QualityLevel{ID: strconv.Itoa(l.Index), Label: levelLabel(l), HeightPx: l.Height}
	})...)
}

func levelLabel(l media.Level) string {
	switch {
	case l.Name != "":
		return l.Name
	case l.Height > 0:
		return fmt.Sprintf("%dp", l.Height)
	case l.Bandwidth > 0:
		return fmt.Sprintf("%d kbps", l.Bandwidth/1000)
	default:
		return fmt.Sprintf("Level %d", l.Index+1)
	}
}

// parseHeight extracts 720 from "720p" or "720p60".
func parseHeight(quality string) int {
	digits := strings.TrimLeftFunc(quality, func(r rune) bool { return r < '0' || r > '9' })
	end := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		digits = digits[:end]
	}
	h, _ := strconv.Atoi(digits)
	return h
}

func (a *adaptiveSoftware) activate(c *Controller, s *session) error {
	eng := c.engines.NewEngine()
	if eng == nil {
		return fmt.Errorf("engine factory returned no engine")
	}
	s.engine = eng
	s.onRelease(eng.Destroy)

	gen := s.gen
	unsubscribe := eng.Subscribe(func(ev EngineEvent) {
		c.post(func() { c.onEngineEvent(gen, ev) })
	})
	s.onRelease(unsubscribe)

	if err := eng.Attach(c.el); err != nil {
		return fmt.Errorf("attaching engine: %w", err)
	}
	if err := eng.LoadSource(a.url); err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	return nil
}

func (a *adaptiveNative) activate(c *Controller, s *session) error {
	if err := c.el.Load(a.url); err != nil {
		return fmt.Errorf("loading native stream: %w", err)
	}
	return nil
}

func (p *progressive) activate(c *Controller, s *session) error {
	if err := c.el.Load(p.current().URL); err != nil {
		return fmt.Errorf("loading %s: %w", p.current().URL, err)
	}
	return nil
}

// nextCandidate marks the active source failed and advances to the next
// untried one. It reports false when every candidate has failed.
func (p *progressive) nextCandidate() bool {
	p.failed[p.active] = true
	for i := range p.candidates {
		if !p.failed[i] {
			p.active = i
			return true
		}
	}
	return false
}
