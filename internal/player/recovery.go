package player

import (
	"learnplay/internal/log"
	"learnplay/internal/media"
)

func (c *Controller) onEngineEvent(gen uint64, ev EngineEvent) {
	s := c.current(gen)
	if s == nil || s.state.Status == media.StatusError {
		return
	}
	src, ok := s.source.(*adaptiveSoftware)
	if !ok {
		return
	}

	switch ev.Type {
	case ManifestParsed:
		// The catalog is fixed after the first manifest; reloads keep it.
		if len(src.levels) == 0 && len(ev.Levels) > 0 {
			src.levels = append([]media.Level(nil), ev.Levels...)
			s.catalog = adaptiveCatalog(src.levels)
		}

	case LevelSwitched:
		c.logger.Debug().Str(log.FieldSessionID, s.id).Int("level", ev.Level).Msg("level switched")

	case FirstFrameRendered:
		s.recovery.reset()
		c.markReady(s)

	case EngineError:
		c.supervise(s, ev)
	}
}

// supervise applies the recovery policy to an engine error. Non-fatal errors
// are left to the engine; fatal network and media errors get one recovery
// attempt each before the session fails.
func (c *Controller) supervise(s *session, ev EngineEvent) {
	logger := c.logger.With().
		Str(log.FieldSessionID, s.id).
		Str("error_type", ev.ErrorType.String()).
		Bool(log.FieldFatal, ev.Fatal).
		Logger()

	if !ev.Fatal {
		logger.Warn().Err(ev.Err).Msg("recoverable stream error")
		return
	}

	switch ev.ErrorType {
	case NetworkError:
		if !s.recovery.networkRetried && s.engine != nil {
			s.recovery.networkRetried = true
			logger.Warn().Err(ev.Err).Msg("fatal network error, reloading")
			s.engine.StartLoad()
			return
		}
		c.fail(s, media.WrapError(media.StreamUnrecoverable, "network error persisted after retry", ev.Err))

	case MediaError:
		if !s.recovery.mediaRecovered && s.engine != nil {
			s.recovery.mediaRecovered = true
			logger.Warn().Err(ev.Err).Msg("fatal media error, recovering")
			s.engine.RecoverMediaError()
			return
		}
		c.fail(s, media.WrapError(media.StreamUnrecoverable, "media error persisted after recovery", ev.Err))

	default:
		c.fail(s, media.WrapError(media.StreamUnrecoverable, "fatal stream error", ev.Err))
	}
}
