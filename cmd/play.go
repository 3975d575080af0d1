package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"learnplay/internal/config"
	"learnplay/internal/descriptor"
	"learnplay/internal/download"
	"learnplay/internal/history"
	"learnplay/internal/hls"
	"learnplay/internal/httputil"
	"learnplay/internal/log"
	"learnplay/internal/media"
	"learnplay/internal/player"
	"learnplay/internal/subtitle"
	"learnplay/internal/telemetry"
	"learnplay/internal/ui"
)

func playRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := ""
	if len(args) > 0 {
		target = args[0]
	} else {
		var err error
		target, err = ui.Input("Lesson URL or file")
		if err != nil {
			return err
		}
	}
	return playTarget(ctx, target)
}

// playTarget resolves target into a descriptor and plays or downloads it.
func playTarget(ctx context.Context, target string) error {
	// Local paths are stored in history, so make them independent of the working directory
	if !strings.Contains(target, "://") {
		if abs, err := filepath.Abs(target); err == nil {
			target = abs
		}
	}

	client := httputil.NewClient()
	desc, err := descriptor.Load(ctx, client, target)
	if err != nil {
		return fmt.Errorf("loading %s: %w", target, err)
	}

	if flagDownload != "" {
		return downloadDescriptor(ctx, desc, flagDownload)
	}
	return playDescriptor(ctx, client, target, *desc)
}

// downloadDescriptor saves the preferred progressive rendition without
// starting a player.
func downloadDescriptor(ctx context.Context, desc *media.SourceDescriptor, dir string) error {
	res, err := player.Negotiator{PreferredQuality: cfg.Quality}.Resolve(desc)
	if err != nil {
		return err
	}
	if res.Kind() != media.Progressive {
		return media.NewError(media.DownloadUnsupported, "only adaptive streams are available")
	}

	var src media.Source
	for _, s := range desc.Ranked() {
		if s.URL == res.DefaultQualityID() {
			src = s
			break
		}
	}

	path, err := download.New().Download(ctx, src, desc.Title, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Downloaded: %s\n", path)
	return nil
}

func playDescriptor(ctx context.Context, client *http.Client, key string, desc media.SourceDescriptor) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := log.WithComponent("cmd")

	if flagNoSubs {
		desc.Captions = nil
	} else if len(desc.Captions) > 0 {
		subs, err := subtitle.NewTempDir(client)
		if err != nil {
			logger.Warn().Err(err).Msg("captions disabled")
			desc.Captions = nil
		} else {
			defer subs.Cleanup()
			var errs []error
			desc.Captions, errs = subs.Localize(ctx, desc.Captions)
			for _, err := range errs {
				logger.Debug().Err(err).Msg("caption download failed, using remote URL")
			}
		}
	}

	el, err := player.New(cfg.Player, player.MPVOptions{Title: desc.Title})
	if err != nil {
		return err
	}
	if !el.Available() {
		return fmt.Errorf("player %q not found in PATH", cfg.Player)
	}
	if err := el.Start(ctx); err != nil {
		return fmt.Errorf("starting player: %w", err)
	}
	defer el.Close()

	var engines player.EngineFactory
	if cfg.AdaptiveEngine == config.EngineSoftware {
		engines = hls.NewFactory(hls.Options{Client: client, MaxHeight: cfg.MaxHeight})
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	sinks := telemetry.Fanout{metrics}

	var store *history.Store
	if cfg.History {
		store, err = history.OpenDefault()
		if err != nil {
			logger.Warn().Err(err).Msg("history disabled")
			store = nil
		} else {
			defer store.Close()
			hs := telemetry.NewHistorySink(store, nil)
			defer hs.Close()
			sinks = append(sinks, hs)
		}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logger.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics endpoint stopped")
			}
		}()
	}

	downloadDir, err := cfg.ExpandDownloadDir()
	if err != nil {
		return fmt.Errorf("resolving download dir: %w", err)
	}

	ctl, err := player.NewController(player.Options{
		Element:          el,
		Engines:          engines,
		NoNative:         cfg.AdaptiveEngine == config.EngineOff,
		Sink:             sinks,
		Downloader:       download.New(),
		PreferredQuality: cfg.Quality,
		CaptionLanguage:  cfg.SubsLanguage,
		InitialVolume:    cfg.Volume,
	})
	if err != nil {
		return err
	}
	defer ctl.Close()
	ctl.AddObserver(metrics)

	progress := &progressTracker{}
	ctl.AddObserver(progress)

	if flagContinue && store != nil {
		if entry, ok, err := store.Get(ctx, key); err != nil {
			logger.Warn().Err(err).Msg("reading resume position")
		} else if ok && entry.Position > 0 {
			ctl.AddObserver(resumeAt(ctl, entry.Position))
		}
	}

	// Registered before Load so a synchronous failure is still relayed.
	relay := newStateRelay()
	removeRelay := ctl.AddObserver(relay)
	defer removeRelay()

	ctl.Load(desc)
	ctl.Play()

	if flagJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		err = runHeadless(ctx, relay.ch, el.Done(), logger)
	} else {
		err = runInterface(ctx, ctl, relay.ch, el.Done(), desc.Title, downloadDir)
	}

	if store != nil {
		saveProgress(store, key, desc.Title, progress.last(), logger)
	}
	return err
}

// progressTracker remembers the latest snapshot for the resume store.
type progressTracker struct {
	mu    sync.Mutex
	state media.State
}

func (p *progressTracker) StateChanged(s media.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *progressTracker) last() media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// resumeAt seeks to position once the first session becomes playable.
func resumeAt(ctl *player.Controller, position float64) player.Observer {
	var once sync.Once
	return player.ObserverFunc(func(s media.State) {
		if s.Status.Active() {
			once.Do(func() { ctl.Seek(position) })
		}
	})
}

func saveProgress(store *history.Store, key, title string, st media.State, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch {
	case st.Status == media.StatusEnded:
		err = store.Remove(ctx, key)
	case st.Position > 0:
		err = store.Save(ctx, media.HistoryEntry{Key: key, Title: title, Position: st.Position, Duration: st.Duration})
	}
	if err != nil {
		logger.Warn().Err(err).Msg("saving history failed")
	}
}

// stateRelay hands the newest snapshot to a consumer goroutine without ever
// blocking the controller. Older unread snapshots are replaced.
type stateRelay struct {
	ch chan media.State
}

func newStateRelay() *stateRelay {
	return &stateRelay{ch: make(chan media.State, 1)}
}

func (r *stateRelay) StateChanged(s media.State) {
	for {
		select {
		case r.ch <- s:
			return
		default:
		}
		select {
		case <-r.ch:
		default:
		}
	}
}

// runHeadless logs state changes as JSON lines until playback ends, fails or
// the player window is closed.
func runHeadless(ctx context.Context, states <-chan media.State, closed <-chan struct{}, logger zerolog.Logger) error {
	var last media.Status = -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		case st := <-states:
			if st.Status == last {
				continue
			}
			last = st.Status
			ev := logger.Info().
				Str(log.FieldSessionID, st.SessionID).
				Str(log.FieldSourceKind, st.Kind.String()).
				Str(log.FieldNewState, st.Status.String()).
				Str(log.FieldQualityID, st.ActiveQualityID)
			if flagJSON {
				printJSON(map[string]interface{}{
					"session_id": st.SessionID,
					"status":     st.Status.String(),
					"kind":       st.Kind.String(),
					"quality":    st.ActiveQualityID,
					"position":   st.Position,
					"duration":   st.Duration,
				})
			}
			switch st.Status {
			case media.StatusEnded:
				ev.Msg("playback finished")
				return nil
			case media.StatusError:
				ev.Msg("playback failed")
				if st.Error != nil {
					return st.Error
				}
				return errors.New("playback failed")
			default:
				ev.Msg("state changed")
			}
		}
	}
}

// runInterface drives the bubbletea player screen until the user quits.
func runInterface(ctx context.Context, ctl *player.Controller, states <-chan media.State, closed <-chan struct{}, title, downloadDir string) error {
	model := ui.NewPlayer(ctl, title, downloadDir, ctl.State())
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-closed:
				prog.Quit()
				return
			case st := <-states:
				prog.Send(ui.StateMsg(st))
			}
		}
	}()

	final, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	if p, ok := final.(*ui.Player); ok {
		if st := p.State(); st.Status == media.StatusError && st.Error != nil {
			return st.Error
		}
	}
	return nil
}
