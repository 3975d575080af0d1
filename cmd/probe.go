package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"learnplay/internal/config"
	"learnplay/internal/descriptor"
	"learnplay/internal/hls"
	"learnplay/internal/httputil"
	"learnplay/internal/media"
	"learnplay/internal/player"
)

var probeCmd = &cobra.Command{
	Use:   "probe <page-url | descriptor.toml | media-file>",
	Short: "Show which source would be played and its quality catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  probeRun,
}

type probeResult struct {
	Title    string               `json:"title"`
	Kind     string               `json:"kind"`
	Default  string               `json:"default_quality"`
	Catalog  []media.QualityLevel `json:"catalog"`
	Levels   []media.Level        `json:"levels,omitempty"`
	Captions []media.CaptionTrack `json:"captions,omitempty"`
}

func probeRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := httputil.NewClient()

	desc, err := descriptor.Load(ctx, client, args[0])
	if err != nil {
		return fmt.Errorf("loading %s: %w", args[0], err)
	}

	// Native playback depends on the element, which probe does not start.
	var engines player.EngineFactory
	if cfg.AdaptiveEngine == config.EngineSoftware {
		engines = hls.NewFactory(hls.Options{Client: client, MaxHeight: cfg.MaxHeight})
	}
	res, err := player.Negotiator{
		Engines:          engines,
		NoNative:         cfg.AdaptiveEngine == config.EngineOff,
		PreferredQuality: cfg.Quality,
	}.Resolve(desc)
	if err != nil {
		return err
	}

	out := probeResult{
		Title:    desc.Title,
		Kind:     res.Kind().String(),
		Default:  res.DefaultQualityID(),
		Catalog:  res.Catalog,
		Captions: desc.Captions,
	}

	if res.Kind() == media.AdaptiveSoftware {
		base, err := url.Parse(desc.Adaptive.URL)
		if err != nil {
			return fmt.Errorf("manifest URL: %w", err)
		}
		body, err := httputil.Fetch(ctx, client, desc.Adaptive.URL)
		if err != nil {
			return fmt.Errorf("fetching manifest: %w", err)
		}
		if out.Levels, err = hls.ParseMaster(body, base); err != nil {
			return fmt.Errorf("parsing manifest: %w", err)
		}
	}

	if flagJSON {
		return printJSON(out)
	}

	fmt.Printf("%s\n  source:  %s\n  default: %s\n", out.Title, out.Kind, out.Default)
	for _, q := range out.Catalog {
		fmt.Printf("  quality: %-10s %s\n", q.Label, q.ID)
	}
	for _, l := range out.Levels {
		fmt.Printf("  level %d: %dx%d %d kbps\n", l.Index, l.Width, l.Height, l.Bandwidth/1000)
	}
	for _, c := range out.Captions {
		fmt.Printf("  captions: %s (%s)\n", c.Label, c.LanguageCode)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
