package descriptor

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"learnplay/internal/media"
)

type sourceKind int

const (
	sourceUnknown sourceKind = iota
	sourceAdaptive
	sourceProgressive
	sourceWebM
)

// kindFor classifies a source by its declared MIME type, falling back to
// the extension of ref.
func kindFor(mimeType, ref string) sourceKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case media.HLSMimeType, "application/x-mpegurl", "audio/mpegurl":
		return sourceAdaptive
	case "video/webm":
		return sourceWebM
	case "video/mp4", "video/quicktime", "video/x-matroska":
		return sourceProgressive
	}

	switch strings.ToLower(path.Ext(refPath(ref))) {
	case ".m3u8":
		return sourceAdaptive
	case ".webm":
		return sourceWebM
	case ".mp4", ".m4v", ".mov", ".mkv":
		return sourceProgressive
	}
	return sourceUnknown
}

// refPath strips the query and fragment from a URL or file path.
func refPath(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return u.Path
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// FromHTML extracts the first <video> element of a page. Relative URLs are
// resolved against base.
func FromHTML(r io.Reader, base *url.URL) (*media.SourceDescriptor, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	video := doc.Find("video").First()
	if video.Length() == 0 {
		return nil, media.NewError(media.NoPlayableSource, "page has no <video> element")
	}

	desc := &media.SourceDescriptor{
		Title:     firstNonEmpty(attr(video, "title"), attr(video, "data-title"), strings.TrimSpace(doc.Find("title").First().Text())),
		PosterURL: resolve(base, attr(video, "poster")),
	}

	if src := attr(video, "src"); src != "" {
		addSource(desc, base, src, attr(video, "type"), "")
	}
	video.Find("source").Each(func(_ int, s *goquery.Selection) {
		quality := firstNonEmpty(attr(s, "data-quality"), attr(s, "label"), attr(s, "res"))
		if size := attr(s, "size"); quality == "" && size != "" {
			if _, err := strconv.Atoi(size); err == nil {
				quality = size + "p"
			}
		}
		addSource(desc, base, attr(s, "src"), attr(s, "type"), quality)
	})

	video.Find("track").Each(func(_ int, s *goquery.Selection) {
		kind := strings.ToLower(firstNonEmpty(attr(s, "kind"), "subtitles"))
		if kind != "subtitles" && kind != "captions" {
			return
		}
		src := resolve(base, attr(s, "src"))
		if src == "" {
			return
		}
		_, isDefault := s.Attr("default")
		desc.Captions = append(desc.Captions, media.CaptionTrack{
			Kind:         kind,
			Label:        firstNonEmpty(attr(s, "label"), attr(s, "srclang")),
			LanguageCode: attr(s, "srclang"),
			URL:          src,
			IsDefault:    isDefault,
		})
	})

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := Check(desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func addSource(desc *media.SourceDescriptor, base *url.URL, src, mimeType, quality string) {
	ref := resolve(base, src)
	if ref == "" {
		return
	}
	switch kindFor(mimeType, ref) {
	case sourceAdaptive:
		if desc.Adaptive == nil {
			desc.Adaptive = &media.AdaptiveSource{URL: ref}
		}
	case sourceWebM:
		desc.WebM = append(desc.WebM, media.Source{URL: ref, Quality: quality})
	case sourceProgressive, sourceUnknown:
		desc.Progressive = append(desc.Progressive, media.Source{URL: ref, Quality: quality})
	}
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme == "file" {
		return resolved.Path
	}
	return resolved.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
