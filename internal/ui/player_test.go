package ui

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"learnplay/internal/media"
)

type fakeControls struct {
	calls    []string
	seeks    []float64
	volumes  []float64
	selected []string
	catalog  []media.QualityLevel
	canDL    bool
	dlPath   string
	dlErr    error
	retries  int
}

func (f *fakeControls) Play()                           { f.calls = append(f.calls, "play") }
func (f *fakeControls) Pause()                          { f.calls = append(f.calls, "pause") }
func (f *fakeControls) Seek(s float64)                  { f.seeks = append(f.seeks, s) }
func (f *fakeControls) SetVolume(v float64)             { f.volumes = append(f.volumes, v) }
func (f *fakeControls) ToggleMute()                     { f.calls = append(f.calls, "mute") }
func (f *fakeControls) ToggleFullscreen()               { f.calls = append(f.calls, "fullscreen") }
func (f *fakeControls) ToggleCaptions()                 { f.calls = append(f.calls, "captions") }
func (f *fakeControls) SelectQuality(id string)         { f.selected = append(f.selected, id) }
func (f *fakeControls) Retry()                          { f.retries++ }
func (f *fakeControls) Qualities() []media.QualityLevel { return f.catalog }
func (f *fakeControls) CanDownload() bool               { return f.canDL }
func (f *fakeControls) Download(context.Context, string) (string, error) {
	return f.dlPath, f.dlErr
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var testCatalog = []media.QualityLevel{
	{ID: "auto", Label: "Auto"},
	{ID: "0", Label: "360p", HeightPx: 360},
	{ID: "1", Label: "720p", HeightPx: 720},
}

func playingState() media.State {
	return media.State{
		Kind:            media.AdaptiveSoftware,
		Status:          media.StatusPlaying,
		Position:        30,
		Duration:        600,
		Volume:          0.5,
		ActiveQualityID: "auto",
	}
}

func TestPlayerKeys(t *testing.T) {
	ctl := &fakeControls{catalog: testCatalog}
	p := NewPlayer(ctl, "Lecture 1", t.TempDir(), playingState())

	p.Update(keyRunes(" "))
	p.Update(tea.KeyMsg{Type: tea.KeyLeft})
	p.Update(tea.KeyMsg{Type: tea.KeyRight})
	p.Update(tea.KeyMsg{Type: tea.KeyUp})
	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	p.Update(keyRunes("m"))
	p.Update(keyRunes("f"))
	p.Update(keyRunes("c"))
	p.Update(keyRunes("v"))

	wantCalls := []string{"pause", "mute", "fullscreen", "captions"}
	if strings.Join(ctl.calls, ",") != strings.Join(wantCalls, ",") {
		t.Errorf("calls = %v, want %v", ctl.calls, wantCalls)
	}
	if len(ctl.seeks) != 2 || ctl.seeks[0] != 20 || ctl.seeks[1] != 40 {
		t.Errorf("seeks = %v, want [20 40]", ctl.seeks)
	}
	if len(ctl.volumes) != 2 || math.Abs(ctl.volumes[0]-0.6) > 1e-9 || math.Abs(ctl.volumes[1]-0.4) > 1e-9 {
		t.Errorf("volumes = %v, want [0.6 0.4]", ctl.volumes)
	}
	if len(ctl.selected) != 1 || ctl.selected[0] != "0" {
		t.Errorf("selected = %v, want [0]", ctl.selected)
	}
}

func TestPlayerPlayWhenPaused(t *testing.T) {
	ctl := &fakeControls{}
	st := playingState()
	st.Status = media.StatusPaused
	p := NewPlayer(ctl, "", "", st)

	p.Update(keyRunes(" "))
	if len(ctl.calls) != 1 || ctl.calls[0] != "play" {
		t.Errorf("calls = %v, want [play]", ctl.calls)
	}
}

func TestPlayerIgnoresKeysWhileInactive(t *testing.T) {
	ctl := &fakeControls{catalog: testCatalog}
	p := NewPlayer(ctl, "", "", media.State{Status: media.StatusInitializing})

	p.Update(keyRunes(" "))
	p.Update(tea.KeyMsg{Type: tea.KeyRight})
	p.Update(keyRunes("v"))
	if len(ctl.calls)+len(ctl.seeks)+len(ctl.selected) != 0 {
		t.Errorf("inactive player forwarded commands: %v %v %v", ctl.calls, ctl.seeks, ctl.selected)
	}
}

func TestPlayerRetry(t *testing.T) {
	ctl := &fakeControls{}
	p := NewPlayer(ctl, "", "", playingState())

	p.Update(keyRunes("r"))
	if ctl.retries != 0 {
		t.Fatalf("retry while playing")
	}

	st := media.State{Status: media.StatusError, Error: media.NewError(media.StreamUnrecoverable, "network")}
	p.Update(StateMsg(st))
	p.Update(keyRunes("r"))
	if ctl.retries != 1 {
		t.Errorf("retries = %d, want 1", ctl.retries)
	}
	if !strings.Contains(p.View(), "press r to retry") {
		t.Errorf("error view missing retry hint:\n%s", p.View())
	}
}

func TestPlayerQuit(t *testing.T) {
	p := NewPlayer(&fakeControls{}, "", "", media.State{})
	_, cmd := p.Update(keyRunes("q"))
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("quit key did not quit")
	}
}

func TestPlayerDownload(t *testing.T) {
	ctl := &fakeControls{canDL: true, dlPath: "/tmp/Lecture 1.mp4"}
	st := playingState()
	st.Kind = media.Progressive
	p := NewPlayer(ctl, "Lecture 1", "/tmp", st)

	_, cmd := p.Update(keyRunes("d"))
	if cmd == nil {
		t.Fatal("download key returned no command")
	}
	p.Update(downloadDoneMsg{path: ctl.dlPath})
	if !strings.Contains(p.View(), "saved to /tmp/Lecture 1.mp4") {
		t.Errorf("view missing download notice:\n%s", p.View())
	}

	p.Update(downloadDoneMsg{err: errors.New("ffmpeg exploded")})
	if !strings.Contains(p.View(), "download failed") {
		t.Errorf("view missing failure notice")
	}

	p.Update(clearNoticeMsg{})
	if strings.Contains(p.View(), "download failed") {
		t.Errorf("notice not cleared")
	}
}

func TestPlayerDownloadUnsupported(t *testing.T) {
	ctl := &fakeControls{}
	p := NewPlayer(ctl, "", "", playingState())
	p.Update(keyRunes("d"))
	if !strings.Contains(p.View(), "cannot be downloaded") {
		t.Errorf("view missing unsupported notice")
	}
}

func TestPlayerWarningNotice(t *testing.T) {
	p := NewPlayer(&fakeControls{}, "", "", playingState())
	st := playingState()
	st.Warning = media.NewError(media.QualitySwitchFailed, "720p unavailable")
	_, cmd := p.Update(StateMsg(st))
	if cmd == nil {
		t.Fatal("warning did not schedule a notice clear")
	}
	if !strings.Contains(p.View(), "720p unavailable") {
		t.Errorf("view missing warning")
	}
	if p.State().Warning != st.Warning {
		t.Errorf("state not stored")
	}
}

func TestNextQuality(t *testing.T) {
	tests := []struct {
		active string
		want   string
		ok     bool
	}{
		{"auto", "0", true},
		{"0", "1", true},
		{"1", "auto", true},
		{"missing", "auto", true},
	}
	for _, tt := range tests {
		got, ok := nextQuality(testCatalog, tt.active)
		if ok != tt.ok || got.ID != tt.want {
			t.Errorf("nextQuality(%q) = %q, %v; want %q, %v", tt.active, got.ID, ok, tt.want, tt.ok)
		}
	}
	if _, ok := nextQuality(testCatalog[:1], "auto"); ok {
		t.Errorf("single-entry catalog should not cycle")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{-5, "0:00"},
		{59.9, "0:59"},
		{61, "1:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
