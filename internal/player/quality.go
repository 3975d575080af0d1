package player

import (
	"strconv"

	"learnplay/internal/log"
	"learnplay/internal/media"
)

// SelectQuality switches to the catalog entry id. For progressive sessions
// the newest request wins over any switch still in flight.
func (c *Controller) SelectQuality(id string) {
	c.post(func() {
		s := c.live()
		if s == nil {
			return
		}
		if !hasQuality(s.catalog, id) {
			c.logger.Warn().Str(log.FieldSessionID, s.id).Str(log.FieldQualityID, id).Msg("unknown quality id")
			return
		}

		switch src := s.source.(type) {
		case *adaptiveSoftware:
			c.selectLevel(s, id)
		case *adaptiveNative:
			// Only "auto" exists and it is always active.
		case *progressive:
			c.switchProgressive(s, src, id)
		}
	})
}

func hasQuality(catalog []media.QualityLevel, id string) bool {
	for _, q := range catalog {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (c *Controller) selectLevel(s *session, id string) {
	if id == s.state.ActiveQualityID || s.engine == nil {
		return
	}
	level := AutoLevel
	if id != media.AutoQualityID {
		idx, err := strconv.Atoi(id)
		if err != nil {
			return
		}
		level = idx
	}
	s.engine.SetCurrentLevel(level)
	s.state.ActiveQualityID = id
}

func (c *Controller) switchProgressive(s *session, src *progressive, id string) {
	idx := src.indexOf(id)
	if idx < 0 {
		return
	}

	sw := s.switching
	if sw == nil {
		if idx == src.active {
			return
		}
		sw = &qualitySwitch{
			prevIndex:  src.active,
			prevID:     s.state.ActiveQualityID,
			position:   s.state.Position,
			wasPlaying: s.state.Status == media.StatusPlaying || s.playRequested,
		}
		s.switching = sw
	}
	sw.url = src.candidates[idx].URL
	sw.restoring = false

	src.active = idx
	s.state.ActiveQualityID = id

	c.logger.Debug().
		Str(log.FieldSessionID, s.id).
		Str(log.FieldQualityID, id).
		Float64("position", sw.position).
		Msg("switching progressive source")

	if err := c.el.Load(sw.url); err != nil {
		c.failSwitch(s, err)
	}
}

// completeSwitch restores position and play intent once the element has
// loaded the newest requested URL. Loads of superseded URLs are ignored.
func (c *Controller) completeSwitch(s *session, url string) {
	sw := s.switching
	if sw == nil || url != sw.url {
		return
	}
	s.switching = nil
	if !sw.restoring {
		s.state.Warning = nil
	}

	if err := c.el.Seek(sw.position); err != nil {
		c.logger.Warn().Err(err).Msg("restoring position after switch")
	}
	s.state.Position = s.clampPosition(sw.position)

	if sw.wasPlaying {
		if err := c.el.Play(); err != nil {
			c.logger.Warn().Err(err).Msg("resuming after switch")
		}
	} else if err := c.el.Pause(); err != nil {
		c.logger.Warn().Err(err).Msg("pausing after switch")
	}
}

// failSwitch reverts to the previous source at the captured position.
func (c *Controller) failSwitch(s *session, cause error) {
	sw := s.switching
	src, ok := s.source.(*progressive)
	if sw == nil || !ok {
		return
	}
	if sw.restoring {
		c.fail(s, media.WrapError(media.StreamUnrecoverable, "previous source could not be restored after a failed quality switch", cause))
		return
	}

	c.logger.Warn().Err(cause).
		Str(log.FieldSessionID, s.id).
		Str(log.FieldQualityID, s.state.ActiveQualityID).
		Msg("quality switch failed, reverting")

	s.state.Warning = media.WrapError(media.QualitySwitchFailed, "switching to "+s.state.ActiveQualityID, cause)
	src.active = sw.prevIndex
	s.state.ActiveQualityID = sw.prevID

	sw.url = src.current().URL
	sw.restoring = true
	if err := c.el.Load(sw.url); err != nil {
		c.fail(s, media.WrapError(media.StreamUnrecoverable, "previous source could not be restored after a failed quality switch", err))
	}
}

// ToggleCaptions flips caption visibility. Without caption tracks it does nothing.
func (c *Controller) ToggleCaptions() {
	c.post(func() {
		s := c.live()
		if s == nil || s.desc == nil || len(s.desc.Captions) == 0 {
			return
		}
		visible := !s.state.CaptionsVisible
		if err := c.el.SetCaptionsVisible(visible); err != nil {
			c.logger.Warn().Err(err).Msg("toggling captions")
			return
		}
		s.state.CaptionsVisible = visible
	})
}
