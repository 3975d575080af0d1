package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// keymap holds the player key bindings.
type keymap struct {
	playPause, seekBack, seekForward,
	volumeUp, volumeDown, mute,
	fullscreen, captions, quality,
	download, retry, help, quit key.Binding
}

func newKeymap() keymap {
	return keymap{
		playPause:   key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/pause")),
		seekBack:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "-10s")),
		seekForward: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "+10s")),
		volumeUp:    key.NewBinding(key.WithKeys("up", "k", "+"), key.WithHelp("↑", "volume up")),
		volumeDown:  key.NewBinding(key.WithKeys("down", "j", "-"), key.WithHelp("↓", "volume down")),
		mute:        key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		fullscreen:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fullscreen")),
		captions:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "captions")),
		quality:     key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "next quality")),
		download:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		retry:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keymap) ShortHelp() []key.Binding {
	return []key.Binding{k.playPause, k.seekBack, k.seekForward, k.quality, k.help, k.quit}
}

func (k keymap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.playPause, k.seekBack, k.seekForward},
		{k.volumeUp, k.volumeDown, k.mute},
		{k.fullscreen, k.captions, k.quality},
		{k.download, k.retry, k.help, k.quit},
	}
}
