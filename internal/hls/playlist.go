// Package hls implements the software adaptive-stream engine: it fetches an
// HLS master playlist, exposes its variants as levels and feeds the chosen
// variant to a playback element.
package hls

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"learnplay/internal/media"
)

// ErrNotPlaylist is returned when the body is not an M3U8 playlist.
var ErrNotPlaylist = errors.New("not an M3U8 playlist")

// ParseMaster extracts the variant streams of a master playlist, resolving
// their URIs against base. A media playlist yields a single level pointing at
// base itself. Levels are ordered by ascending bandwidth.
func ParseMaster(body []byte, base *url.URL) ([]media.Level, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() || strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF")) != "#EXTM3U" {
		return nil, ErrNotPlaylist
	}

	var (
		levels  []media.Level
		pending map[string]string
		isMedia bool
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			pending = parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
		case strings.HasPrefix(line, "#EXTINF:"), strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			isMedia = true
		case strings.HasPrefix(line, "#"):
			continue
		case pending != nil:
			level, err := newLevel(pending, line, base)
			if err != nil {
				return nil, err
			}
			levels = append(levels, level)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading playlist: %w", err)
	}

	if len(levels) == 0 {
		if !isMedia {
			return nil, fmt.Errorf("playlist declares no variants or segments")
		}
		return []media.Level{{Index: 0, URL: base.String()}}, nil
	}

	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Bandwidth < levels[j].Bandwidth })
	for i := range levels {
		levels[i].Index = i
	}
	return levels, nil
}

func newLevel(attrs map[string]string, uri string, base *url.URL) (media.Level, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return media.Level{}, fmt.Errorf("variant URI %q: %w", uri, err)
	}
	level := media.Level{
		URL:    base.ResolveReference(ref).String(),
		Codecs: attrs["CODECS"],
		Name:   attrs["NAME"],
	}
	level.Bandwidth, _ = strconv.Atoi(attrs["BANDWIDTH"])
	if res := attrs["RESOLUTION"]; res != "" {
		if w, h, ok := strings.Cut(res, "x"); ok {
			level.Width, _ = strconv.Atoi(w)
			level.Height, _ = strconv.Atoi(h)
		}
	}
	return level, nil
}

// parseAttributes splits an attribute list, honoring quoted values that
// contain commas (CODECS="avc1.4d401f,mp4a.40.2").
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inKey, inQuotes := true, false

	flush := func() {
		if k := strings.TrimSpace(key.String()); k != "" {
			attrs[strings.ToUpper(k)] = val.String()
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for _, r := range list {
		switch {
		case inKey && r == '=':
			inKey = false
		case inKey:
			key.WriteRune(r)
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			flush()
		default:
			val.WriteRune(r)
		}
	}
	flush()
	return attrs
}
