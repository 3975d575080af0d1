// Package subtitle handles caption-track matching and secure temp file management.
// Caption files are cached under os.MkdirTemp with random suffixes instead of
// predictable paths.
package subtitle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"learnplay/internal/httputil"
	"learnplay/internal/media"
)

// Filter returns tracks matching the preferred language (case-insensitive),
// by language code or label.
func Filter(tracks []media.CaptionTrack, language string) []media.CaptionTrack {
	if language == "" {
		return tracks
	}

	lang := strings.ToLower(language)
	var matched []media.CaptionTrack

	for _, t := range tracks {
		code := strings.ToLower(t.LanguageCode)
		if (code != "" && (code == lang || strings.HasPrefix(lang, code))) ||
			strings.Contains(strings.ToLower(t.Label), lang) {
			matched = append(matched, t)
		}
	}

	return matched
}

// BestMatch returns the best matching track for the given language.
// Prefers plain subtitles over SDH/CC variants, then the first match.
func BestMatch(tracks []media.CaptionTrack, language string) *media.CaptionTrack {
	if language == "" {
		return nil
	}
	filtered := Filter(tracks, language)
	if len(filtered) == 0 {
		return nil
	}

	for _, t := range filtered {
		label := strings.ToLower(t.Label)
		if !strings.Contains(label, "sdh") && t.Kind != "captions" {
			return &t
		}
	}

	return &filtered[0]
}

// TempDir manages a secure temporary directory for caption files.
type TempDir struct {
	path   string
	client *http.Client
}

// NewTempDir creates a randomized temporary directory for caption files.
// A nil client uses httputil.NewClient.
func NewTempDir(client *http.Client) (*TempDir, error) {
	dir, err := os.MkdirTemp("", "learnplay-subs-*")
	if err != nil {
		return nil, fmt.Errorf("creating subtitle temp dir: %w", err)
	}
	if client == nil {
		client = httputil.NewClient()
	}
	return &TempDir{path: dir, client: client}, nil
}

// Path returns the directory holding downloaded captions.
func (t *TempDir) Path() string { return t.path }

// Cleanup removes the temporary directory and all contents.
func (t *TempDir) Cleanup() {
	if t.path != "" {
		os.RemoveAll(t.path)
	}
}

// Download fetches a caption file to the temp directory and returns the local path.
func (t *TempDir) Download(ctx context.Context, track media.CaptionTrack) (string, error) {
	if !isRemote(track.URL) {
		return "", fmt.Errorf("invalid subtitle URL %q: not http(s)", track.URL)
	}

	filename := "subtitle.vtt"
	if u, err := url.Parse(track.URL); err == nil {
		if last := path.Base(u.Path); last != "." && last != "/" {
			filename = httputil.SanitizeFilename(last)
		}
	}
	if track.LanguageCode != "" {
		filename = httputil.SanitizeFilename(track.LanguageCode) + "-" + filename
	}

	localPath, err := httputil.SafeDownloadPath(t.path, filename)
	if err != nil {
		return "", err
	}

	body, err := httputil.Fetch(ctx, t.client, track.URL)
	if err != nil {
		return "", fmt.Errorf("downloading subtitle: %w", err)
	}
	if err := os.WriteFile(localPath, body, 0o600); err != nil {
		return "", fmt.Errorf("writing subtitle file: %w", err)
	}
	return localPath, nil
}

// Localize downloads every remote track and returns copies pointing at the
// local files. Tracks that fail to download keep their original URL.
func (t *TempDir) Localize(ctx context.Context, tracks []media.CaptionTrack) ([]media.CaptionTrack, []error) {
	out := make([]media.CaptionTrack, len(tracks))
	var errs []error
	for i, track := range tracks {
		out[i] = track
		if !isRemote(track.URL) {
			continue
		}
		local, err := t.Download(ctx, track)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", track.Label, err))
			continue
		}
		out[i].URL = local
	}
	return out, errs
}

func isRemote(raw string) bool {
	return strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://")
}
