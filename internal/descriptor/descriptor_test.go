package descriptor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"learnplay/internal/media"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading test fixture %s: %v", name, err)
	}
	return string(data)
}

func TestFromHTML(t *testing.T) {
	base, _ := url.Parse("https://portal.example.com/courses/go/intro")
	desc, err := FromHTML(strings.NewReader(loadFixture(t, "lesson.html")), base)
	if err != nil {
		t.Fatalf("FromHTML() error: %v", err)
	}

	if desc.Title != "Intro to Go" {
		t.Errorf("Title = %q", desc.Title)
	}
	if desc.PosterURL != "https://portal.example.com/img/poster.jpg" {
		t.Errorf("PosterURL = %q", desc.PosterURL)
	}
	if !desc.HasAdaptive() || desc.Adaptive.URL != "https://portal.example.com/hls/intro/master.m3u8" {
		t.Errorf("Adaptive = %+v", desc.Adaptive)
	}

	if len(desc.Progressive) != 2 {
		t.Fatalf("expected 2 progressive sources, got %d", len(desc.Progressive))
	}
	if desc.Progressive[0].Quality != "1080p" || desc.Progressive[1].Quality != "720p" {
		t.Errorf("qualities = %q, %q", desc.Progressive[0].Quality, desc.Progressive[1].Quality)
	}
	if desc.Progressive[1].URL != "https://portal.example.com/mp4/intro-720.mp4" {
		t.Errorf("Progressive[1].URL = %q", desc.Progressive[1].URL)
	}

	if len(desc.WebM) != 1 || desc.WebM[0].Quality != "480p" {
		t.Errorf("WebM = %+v", desc.WebM)
	}

	if len(desc.Captions) != 2 {
		t.Fatalf("expected 2 caption tracks (chapters skipped), got %d", len(desc.Captions))
	}
	if !desc.Captions[0].IsDefault || desc.Captions[0].LanguageCode != "en" {
		t.Errorf("Captions[0] = %+v", desc.Captions[0])
	}
	if desc.Captions[1].Kind != "captions" || desc.Captions[1].IsDefault {
		t.Errorf("Captions[1] = %+v", desc.Captions[1])
	}
}

func TestFromHTMLVideoSrc(t *testing.T) {
	page := `<html><head><title>Page Title</title></head><body><video src="clip.mp4"></video></body></html>`
	base, _ := url.Parse("https://example.com/lessons/")
	desc, err := FromHTML(strings.NewReader(page), base)
	if err != nil {
		t.Fatalf("FromHTML() error: %v", err)
	}
	if desc.Title != "Page Title" {
		t.Errorf("Title = %q, want the document title", desc.Title)
	}
	if len(desc.Progressive) != 1 || desc.Progressive[0].URL != "https://example.com/lessons/clip.mp4" {
		t.Errorf("Progressive = %+v", desc.Progressive)
	}
}

func TestFromHTMLNoVideo(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{"no video", `<html><body><p>nothing here</p></body></html>`},
		{"empty video", `<html><body><video></video></body></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromHTML(strings.NewReader(tt.page), nil)
			if !errors.Is(err, media.ErrNoPlayableSource) {
				t.Errorf("error = %v, want NoPlayableSource", err)
			}
		})
	}
}

func TestFromHTMLRejectsScheme(t *testing.T) {
	page := `<video><source src="javascript:alert(1)" type="video/mp4"></video>`
	if _, err := FromHTML(strings.NewReader(page), nil); err == nil {
		t.Error("expected javascript: source to be rejected")
	}
}

func TestFromFile(t *testing.T) {
	file := filepath.Join("testdata", "lesson.toml")
	desc, err := FromFile(file)
	if err != nil {
		t.Fatalf("FromFile() error: %v", err)
	}

	if desc.Title != "Intro to Go" || !desc.HasAdaptive() {
		t.Errorf("unexpected descriptor %+v", desc)
	}
	if len(desc.Progressive) != 2 || len(desc.WebM) != 1 {
		t.Fatalf("progressive=%d webm=%d", len(desc.Progressive), len(desc.WebM))
	}
	if want := filepath.Join("testdata", "intro-local-720.mp4"); desc.Progressive[1].URL != want {
		t.Errorf("relative source = %q, want %q", desc.Progressive[1].URL, want)
	}
	if len(desc.Captions) != 1 || !desc.Captions[0].IsDefault {
		t.Errorf("Captions = %+v", desc.Captions)
	}
	if want := filepath.Join("testdata", "subs", "intro.en.vtt"); desc.Captions[0].URL != want {
		t.Errorf("caption URL = %q, want %q", desc.Captions[0].URL, want)
	}
}

func TestFromFileInvalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.toml")
	os.WriteFile(file, []byte("title = [broken"), 0600)
	if _, err := FromFile(file); err == nil {
		t.Error("expected parse error")
	}

	file = filepath.Join(dir, "scheme.toml")
	os.WriteFile(file, []byte("[[progressive]]\nurl = \"ftp://example.com/a.mp4\"\n"), 0600)
	if _, err := FromFile(file); err == nil {
		t.Error("expected ftp source to be rejected")
	}
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		mime string
		ref  string
		want sourceKind
	}{
		{"application/vnd.apple.mpegurl", "https://x/stream", sourceAdaptive},
		{"application/x-mpegURL", "", sourceAdaptive},
		{"video/mp4; codecs=\"avc1\"", "", sourceProgressive},
		{"", "https://x/a.m3u8?token=1", sourceAdaptive},
		{"", "https://x/a.webm", sourceWebM},
		{"", "/videos/a.MP4", sourceProgressive},
		{"", "https://x/page", sourceUnknown},
	}
	for _, tt := range tests {
		if got := kindFor(tt.mime, tt.ref); got != tt.want {
			t.Errorf("kindFor(%q, %q) = %d, want %d", tt.mime, tt.ref, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><video title="Served"><source src="/v.mp4" type="video/mp4"></video></body></html>`))
	}))
	defer srv.Close()
	ctx := context.Background()

	desc, err := Load(ctx, srv.Client(), srv.URL+"/lesson")
	if err != nil {
		t.Fatalf("Load(page) error: %v", err)
	}
	if desc.Title != "Served" || len(desc.Progressive) != 1 || desc.Progressive[0].URL != srv.URL+"/v.mp4" {
		t.Errorf("page descriptor = %+v", desc)
	}

	desc, err = Load(ctx, srv.Client(), "https://cdn.example.com/course/master.m3u8")
	if err != nil {
		t.Fatalf("Load(manifest) error: %v", err)
	}
	if !desc.HasAdaptive() || desc.Title != "master" {
		t.Errorf("manifest descriptor = %+v", desc)
	}

	desc, err = Load(ctx, srv.Client(), filepath.Join("testdata", "lesson.toml"))
	if err != nil || desc.Title != "Intro to Go" {
		t.Errorf("Load(toml) = %+v, %v", desc, err)
	}

	local := filepath.Join(t.TempDir(), "clip.webm")
	os.WriteFile(local, []byte("x"), 0600)
	desc, err = Load(ctx, srv.Client(), local)
	if err != nil {
		t.Fatalf("Load(local) error: %v", err)
	}
	if len(desc.WebM) != 1 || desc.Title != "clip" {
		t.Errorf("local descriptor = %+v", desc)
	}

	if _, err := Load(ctx, srv.Client(), filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("expected error for missing file")
	}
}
