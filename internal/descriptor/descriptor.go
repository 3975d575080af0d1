// Package descriptor builds source descriptors from TOML files, HTML pages
// carrying a <video> element, or a bare media URL.
package descriptor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"

	"learnplay/internal/httputil"
	"learnplay/internal/media"
)

// Load resolves arg to a descriptor. arg may be a .toml descriptor file, a
// local or remote HTML page, or a direct media URL or file.
func Load(ctx context.Context, client *http.Client, arg string) (*media.SourceDescriptor, error) {
	if isRemote(arg) {
		u, err := url.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("parsing URL: %w", err)
		}
		if desc := fromMediaURL(u.String()); desc != nil {
			return desc, nil
		}
		return Fetch(ctx, client, arg)
	}

	switch strings.ToLower(filepath.Ext(arg)) {
	case ".toml":
		return FromFile(arg)
	case ".html", ".htm":
		f, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("opening page: %w", err)
		}
		defer f.Close()
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving page path: %w", err)
		}
		return FromHTML(f, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
	}

	if _, err := os.Stat(arg); err != nil {
		return nil, fmt.Errorf("reading %s: %w", arg, err)
	}
	if desc := fromMediaURL(arg); desc != nil {
		return desc, nil
	}
	return nil, fmt.Errorf("%s is not a descriptor, page or media file", arg)
}

func isRemote(arg string) bool {
	return strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "http://")
}

// fromMediaURL builds a single-source descriptor when raw names a media
// container. It returns nil otherwise.
func fromMediaURL(raw string) *media.SourceDescriptor {
	name := refPath(raw)
	title := strings.TrimSuffix(path.Base(name), path.Ext(name))
	switch kindFor("", raw) {
	case sourceAdaptive:
		return &media.SourceDescriptor{Title: title, Adaptive: &media.AdaptiveSource{URL: raw}}
	case sourceWebM:
		return &media.SourceDescriptor{Title: title, WebM: []media.Source{{URL: raw}}}
	case sourceProgressive:
		return &media.SourceDescriptor{Title: title, Progressive: []media.Source{{URL: raw}}}
	}
	return nil
}

// FromFile decodes a TOML descriptor. Relative local paths are resolved
// against the file's directory.
func FromFile(file string) (*media.SourceDescriptor, error) {
	var desc media.SourceDescriptor
	if _, err := toml.DecodeFile(file, &desc); err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", file, err)
	}

	dir := filepath.Dir(file)
	resolve := func(ref string) string {
		if ref == "" || strings.Contains(ref, "://") || filepath.IsAbs(ref) {
			return ref
		}
		return filepath.Join(dir, ref)
	}
	if desc.Adaptive != nil {
		desc.Adaptive.URL = resolve(desc.Adaptive.URL)
	}
	for i := range desc.Progressive {
		desc.Progressive[i].URL = resolve(desc.Progressive[i].URL)
	}
	for i := range desc.WebM {
		desc.WebM[i].URL = resolve(desc.WebM[i].URL)
	}
	for i := range desc.Captions {
		desc.Captions[i].URL = resolve(desc.Captions[i].URL)
	}

	if err := Check(&desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Fetch downloads a page and extracts its <video> descriptor.
func Fetch(ctx context.Context, client *http.Client, pageURL string) (*media.SourceDescriptor, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}
	body, err := httputil.Fetch(ctx, client, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	return FromHTML(strings.NewReader(string(body)), base)
}

// Check verifies every URL in desc is a URL the player may open.
func Check(desc *media.SourceDescriptor) error {
	urls := lo.Map(desc.Ranked(), func(s media.Source, _ int) string { return s.URL })
	if desc.HasAdaptive() {
		urls = append(urls, desc.Adaptive.URL)
	}
	urls = append(urls, lo.Map(desc.Captions, func(c media.CaptionTrack, _ int) string { return c.URL })...)
	if desc.PosterURL != "" {
		urls = append(urls, desc.PosterURL)
	}
	for _, u := range urls {
		if err := httputil.ValidateMediaURL(u); err != nil {
			return fmt.Errorf("descriptor URL %q: %w", u, err)
		}
	}
	return nil
}
