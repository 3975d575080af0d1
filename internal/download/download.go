// Package download provides secure ffmpeg-based media downloading.
// Uses exec.CommandContext with explicit argument slices and validates
// output paths against directory traversal attacks.
package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"learnplay/internal/httputil"
	"learnplay/internal/log"
	"learnplay/internal/media"
)

// Downloader saves progressive sources with ffmpeg.
type Downloader struct {
	// Binary is the ffmpeg executable, "ffmpeg" when empty.
	Binary string
	// Output receives ffmpeg's progress output. Defaults to io.Discard so
	// a running terminal UI is not disturbed.
	Output io.Writer
	Logger *zerolog.Logger
}

// New returns a Downloader using ffmpeg from PATH.
func New() *Downloader {
	return &Downloader{}
}

// Download copies src into dir without re-encoding and returns the written path.
func (d *Downloader) Download(ctx context.Context, src media.Source, title, dir string) (string, error) {
	if err := httputil.ValidateMediaURL(src.URL); err != nil {
		return "", fmt.Errorf("invalid source: %w", err)
	}

	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	ffmpegPath, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	// Create output directory if needed
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	outputPath, err := httputil.SafeDownloadPath(absDir, OutputName(title, src))
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	logger := log.WithComponent("download")
	if d.Logger != nil {
		logger = *d.Logger
	}
	logger.Info().Str(log.FieldURL, src.URL).Str("path", outputPath).Msg("downloading")

	out := d.Output
	if out == nil {
		out = io.Discard
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, Args(src, title, outputPath)...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		// Clean up partial download on failure
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg download failed: %w", err)
	}

	return outputPath, nil
}

// OutputName builds the file name for title, keeping the source's container.
func OutputName(title string, src media.Source) string {
	name := "video"
	if strings.TrimSpace(title) != "" {
		name = httputil.SanitizeFilename(title)
	}
	if src.Quality != "" {
		name += " [" + httputil.SanitizeFilename(src.Quality) + "]"
	}
	return name + containerExt(src.URL)
}

func containerExt(raw string) string {
	p := raw
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch ext := strings.ToLower(path.Ext(p)); ext {
	case ".webm", ".mkv", ".mov", ".m4v":
		return ext
	default:
		return ".mp4"
	}
}

// Args builds the ffmpeg argument list as an explicit slice.
func Args(src media.Source, title, outputPath string) []string {
	return []string{
		"-y", // Overwrite output
		"-loglevel", "error",
		"-i", src.URL,
		"-c", "copy", // Copy all streams (no re-encoding)
		"-metadata", fmt.Sprintf("title=%s", title),
		outputPath,
	}
}
