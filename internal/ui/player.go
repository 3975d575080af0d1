package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"learnplay/internal/media"
)

const (
	seekStep   = 10.0
	volumeStep = 0.1
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	paddingStyle = lipgloss.NewStyle().Padding(1, 2)
	badgeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Padding(0, 1)
)

// Controls is the command surface the player view drives.
type Controls interface {
	Play()
	Pause()
	Seek(seconds float64)
	SetVolume(v float64)
	ToggleMute()
	ToggleFullscreen()
	ToggleCaptions()
	SelectQuality(id string)
	Retry()
	Qualities() []media.QualityLevel
	CanDownload() bool
	Download(ctx context.Context, dir string) (string, error)
}

// StateMsg carries a controller snapshot into the program.
type StateMsg media.State

// clearNoticeMsg resets the notice line.
type clearNoticeMsg struct{}

// downloadDoneMsg reports the outcome of a download.
type downloadDoneMsg struct {
	path string
	err  error
}

// Player is the bubbletea model of the playback screen. It renders state
// snapshots and turns key presses into controller commands.
type Player struct {
	ctl         Controls
	title       string
	downloadDir string

	state  media.State
	keys   keymap
	helpC  help.Model
	barC   progress.Model
	notice string
	width  int
}

// NewPlayer returns the playback screen for ctl.
func NewPlayer(ctl Controls, title, downloadDir string, initial media.State) *Player {
	return &Player{
		ctl:         ctl,
		title:       title,
		downloadDir: downloadDir,
		state:       initial,
		keys:        newKeymap(),
		helpC:       help.New(),
		barC:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// State returns the last snapshot the view received.
func (p *Player) State() media.State { return p.state }

func (p *Player) Init() tea.Cmd { return nil }

func (p *Player) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		prev := p.state
		p.state = media.State(msg)
		if w := p.state.Warning; w != nil && w != prev.Warning {
			return p, p.notify(w.Error())
		}
		return p, nil

	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.helpC.Width = msg.Width
		p.barC.Width = lo.Clamp(msg.Width-20, 10, 80)
		return p, nil

	case downloadDoneMsg:
		if msg.err != nil {
			return p, p.notify("download failed: " + msg.err.Error())
		}
		return p, p.notify("saved to " + msg.path)

	case clearNoticeMsg:
		p.notice = ""
		return p, nil

	case tea.KeyMsg:
		return p, p.handleKey(msg)
	}
	return p, nil
}

func (p *Player) handleKey(msg tea.KeyMsg) tea.Cmd {
	st := p.state
	switch {
	case key.Matches(msg, p.keys.quit):
		return tea.Quit
	case key.Matches(msg, p.keys.help):
		p.helpC.ShowAll = !p.helpC.ShowAll
	case key.Matches(msg, p.keys.retry):
		if st.Status == media.StatusError {
			p.ctl.Retry()
		}
	}

	if !st.Status.Active() {
		return nil
	}

	switch {
	case key.Matches(msg, p.keys.playPause):
		if st.Status == media.StatusPlaying {
			p.ctl.Pause()
		} else {
			p.ctl.Play()
		}
	case key.Matches(msg, p.keys.seekBack):
		p.ctl.Seek(st.Position - seekStep)
	case key.Matches(msg, p.keys.seekForward):
		p.ctl.Seek(st.Position + seekStep)
	case key.Matches(msg, p.keys.volumeUp):
		p.ctl.SetVolume(st.Volume + volumeStep)
	case key.Matches(msg, p.keys.volumeDown):
		p.ctl.SetVolume(st.Volume - volumeStep)
	case key.Matches(msg, p.keys.mute):
		p.ctl.ToggleMute()
	case key.Matches(msg, p.keys.fullscreen):
		p.ctl.ToggleFullscreen()
	case key.Matches(msg, p.keys.captions):
		p.ctl.ToggleCaptions()
	case key.Matches(msg, p.keys.quality):
		if next, ok := nextQuality(p.ctl.Qualities(), st.ActiveQualityID); ok {
			p.ctl.SelectQuality(next.ID)
			return p.notify("quality: " + next.Label)
		}
	case key.Matches(msg, p.keys.download):
		if !p.ctl.CanDownload() {
			return p.notify("this stream cannot be downloaded as a single file")
		}
		ctl, dir := p.ctl, p.downloadDir
		return tea.Batch(p.notify("downloading..."), func() tea.Msg {
			path, err := ctl.Download(context.Background(), dir)
			return downloadDoneMsg{path: path, err: err}
		})
	}
	return nil
}

func (p *Player) notify(text string) tea.Cmd {
	p.notice = text
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg { return clearNoticeMsg{} })
}

// nextQuality returns the catalog entry after the active one, wrapping around.
func nextQuality(catalog []media.QualityLevel, active string) (media.QualityLevel, bool) {
	if len(catalog) < 2 {
		return media.QualityLevel{}, false
	}
	_, idx, found := lo.FindIndexOf(catalog, func(q media.QualityLevel) bool { return q.ID == active })
	if !found {
		return catalog[0], true
	}
	return catalog[(idx+1)%len(catalog)], true
}

func (p *Player) View() string {
	st := p.state
	lines := []string{
		titleStyle.Render(lo.Ternary(p.title != "", p.title, "learnplay")),
		"",
		statusBadge(st.Status) + " " + faintStyle.Render(st.Kind.String()),
		"",
	}

	percent := 0.0
	if st.Duration > 0 {
		percent = st.Position / st.Duration
	}
	lines = append(lines,
		p.barC.ViewAs(percent)+"  "+FormatDuration(st.Position)+" / "+FormatDuration(st.Duration),
		"",
		p.details(),
	)

	if st.Status == media.StatusError && st.Error != nil {
		lines = append(lines, "", errorStyle.Render(describeError(st.Error)), faintStyle.Render("press r to retry"))
	}
	if p.notice != "" {
		lines = append(lines, "", warningStyle.Render(p.notice))
	}
	lines = append(lines, "", p.helpC.View(p.keys))

	return paddingStyle.Render(strings.Join(lines, "\n"))
}

func (p *Player) details() string {
	st := p.state
	volume := fmt.Sprintf("vol %d%%", int(st.Volume*100+0.5))
	if st.Muted {
		volume = "muted"
	}

	quality := st.ActiveQualityID
	for _, q := range p.ctl.Qualities() {
		if q.ID == st.ActiveQualityID {
			quality = q.Label
			break
		}
	}

	parts := []string{volume}
	if quality != "" {
		parts = append(parts, "quality "+quality)
	}
	parts = append(parts, "captions "+lo.Ternary(st.CaptionsVisible, "on", "off"))
	if st.Fullscreen {
		parts = append(parts, "fullscreen")
	}
	return faintStyle.Render(strings.Join(parts, " · "))
}

func statusBadge(s media.Status) string {
	color := map[media.Status]string{
		media.StatusIdle:         "245",
		media.StatusInitializing: "111",
		media.StatusReady:        "149",
		media.StatusPlaying:      "42",
		media.StatusPaused:       "221",
		media.StatusEnded:        "183",
		media.StatusError:        "196",
	}[s]
	return badgeStyle.Background(lipgloss.Color(color)).Render(strings.ToUpper(s.String()))
}

func describeError(err *media.Error) string {
	switch {
	case errors.Is(err, media.ErrNoPlayableSource):
		return "This video cannot be played here: no compatible source."
	case errors.Is(err, media.ErrStreamUnrecoverable):
		return "Playback failed: " + err.Error()
	default:
		return err.Error()
	}
}

// FormatDuration renders seconds as M:SS or H:MM:SS.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
