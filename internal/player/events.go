package player

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Observed mpv properties and their observe_property ids.
var observedProperties = []struct {
	id   int
	name string
}{
	{1, "pause"},
	{2, "time-pos"},
	{3, "duration"},
	{4, "eof-reached"},
	{5, "fullscreen"},
}

// eventDecoder turns mpv IPC lines into element events. It tracks which URL
// is loaded so events can be attributed to a source.
type eventDecoder struct {
	current           string
	loaded            bool
	firstFramePending bool
}

// setCurrent records a new loadfile request.
func (d *eventDecoder) setCurrent(url string) {
	d.current = url
	d.loaded = false
	d.firstFramePending = false
}

// decode parses one line. Unparseable lines and command replies yield nothing.
func (d *eventDecoder) decode(line []byte) []ElementEvent {
	var msg ipcMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil
	}

	switch msg.Event {
	case "":
		return nil

	case "file-loaded":
		d.loaded = true
		d.firstFramePending = true
		return []ElementEvent{{Type: ElementLoaded, URL: d.current}}

	case "playback-restart":
		if d.firstFramePending {
			d.firstFramePending = false
			return []ElementEvent{{Type: ElementFirstFrame, URL: d.current}}
		}
		return nil

	case "end-file":
		switch msg.Reason {
		case "error":
			d.loaded = false
			cause := msg.FileError
			if cause == "" {
				cause = "unknown error"
			}
			return []ElementEvent{{Type: ElementError, URL: d.current, Err: fmt.Errorf("mpv: %s", cause)}}
		case "eof":
			return []ElementEvent{{Type: ElementEnded, URL: d.current}}
		}
		return nil

	case "property-change":
		return d.decodeProperty(msg)
	}
	return nil
}

func (d *eventDecoder) decodeProperty(msg ipcMessage) []ElementEvent {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil
	}

	switch msg.Name {
	case "pause":
		var paused bool
		if err := json.Unmarshal(msg.Data, &paused); err != nil || !d.loaded {
			return nil
		}
		if paused {
			return []ElementEvent{{Type: ElementPaused}}
		}
		return []ElementEvent{{Type: ElementPlaying}}

	case "time-pos":
		var pos float64
		if err := json.Unmarshal(msg.Data, &pos); err != nil {
			return nil
		}
		return []ElementEvent{{Type: ElementTimeUpdate, Value: pos}}

	case "duration":
		var dur float64
		if err := json.Unmarshal(msg.Data, &dur); err != nil {
			return nil
		}
		return []ElementEvent{{Type: ElementDurationChange, Value: dur}}

	case "eof-reached":
		var eof bool
		if err := json.Unmarshal(msg.Data, &eof); err != nil || !eof {
			return nil
		}
		return []ElementEvent{{Type: ElementEnded, URL: d.current}}

	case "fullscreen":
		var on bool
		if err := json.Unmarshal(msg.Data, &on); err != nil {
			return nil
		}
		return []ElementEvent{{Type: ElementFullscreenChanged, On: on}}
	}
	return nil
}

// errNotStarted is returned by commands issued before Start.
var errNotStarted = errors.New("mpv is not running")
