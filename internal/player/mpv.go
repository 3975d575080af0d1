package player

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"learnplay/internal/log"
	"learnplay/internal/media"
)

// MPVOptions configures the mpv-backed element.
type MPVOptions struct {
	Binary    string   // defaults to "mpv"
	Title     string   // window title
	ExtraArgs []string // appended after the built-in arguments
	Logger    *zerolog.Logger
}

// MPV implements Element on top of an idle mpv process driven over its
// JSON IPC socket. The process is launched with explicit argument slices
// (no shell) and a socket in a randomized temp directory.
type MPV struct {
	opts   MPVOptions
	logger zerolog.Logger

	cmd       *exec.Cmd
	socketDir string

	writeMu   sync.Mutex
	conn      net.Conn
	requestID int

	mu      sync.Mutex
	decoder eventDecoder
	tracks  []mpvTrack
	subs    map[int]func(ElementEvent)
	nextSub int

	readDone chan struct{}
}

// mpvTrack is an external subtitle that must be re-added after every
// loadfile, since mpv drops external tracks when the file is replaced.
type mpvTrack struct {
	track    media.CaptionTrack
	selected bool
}

// NewMPV returns an element that is usable after Start.
func NewMPV(opts MPVOptions) *MPV {
	if opts.Binary == "" {
		opts.Binary = "mpv"
	}
	logger := log.WithComponent("mpv")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &MPV{opts: opts, logger: logger, subs: make(map[int]func(ElementEvent))}
}

// Available checks if the mpv binary exists in PATH.
func (m *MPV) Available() bool {
	_, err := exec.LookPath(m.opts.Binary)
	return err == nil
}

// Start launches mpv in idle mode and connects to its IPC socket.
func (m *MPV) Start(ctx context.Context) error {
	// Randomized socket directory (prevents symlink attacks)
	socketDir, err := os.MkdirTemp("", "learnplay-mpv-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for mpv socket: %w", err)
	}
	socketPath := filepath.Join(socketDir, "socket")

	args := []string{
		"--idle=yes",
		"--force-window=yes",
		"--keep-open=yes",
		"--pause",
		"--really-quiet",
		"--input-ipc-server=" + socketPath,
	}
	if m.opts.Title != "" {
		args = append(args, "--force-media-title="+m.opts.Title)
	}
	args = append(args, m.opts.ExtraArgs...)

	cmd := exec.CommandContext(ctx, m.opts.Binary, args...)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(socketDir)
		return fmt.Errorf("starting mpv: %w", err)
	}

	if err := waitForSocket(socketPath); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		os.RemoveAll(socketDir)
		return err
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		os.RemoveAll(socketDir)
		return fmt.Errorf("connecting to mpv: %w", err)
	}

	m.cmd = cmd
	m.socketDir = socketDir
	return m.attachConn(conn)
}

// attachConn starts the event loop on conn and subscribes to the observed properties.
func (m *MPV) attachConn(conn net.Conn) error {
	m.writeMu.Lock()
	m.conn = conn
	m.writeMu.Unlock()

	m.readDone = make(chan struct{})
	go m.readLoop(conn)

	for _, prop := range observedProperties {
		if err := m.send("observe_property", prop.id, prop.name); err != nil {
			return fmt.Errorf("observe %s: %w", prop.name, err)
		}
	}
	return nil
}

// Done is closed when the mpv event stream ends, for example after the user
// closes the window. It is nil before Start.
func (m *MPV) Done() <-chan struct{} { return m.readDone }

// Close quits mpv and releases the socket directory.
func (m *MPV) Close() error {
	m.writeMu.Lock()
	conn := m.conn
	m.writeMu.Unlock()
	if conn == nil {
		return nil
	}

	_ = m.send("quit")
	conn.Close()
	<-m.readDone

	m.writeMu.Lock()
	m.conn = nil
	m.writeMu.Unlock()

	if m.cmd != nil {
		// mpv exits non-zero when quit mid-file, which is normal
		_ = m.cmd.Wait()
	}
	if m.socketDir != "" {
		os.RemoveAll(m.socketDir)
	}
	return nil
}

func (m *MPV) send(args ...interface{}) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.conn == nil {
		return errNotStarted
	}
	m.requestID++
	line, err := encodeCommand(m.requestID, args...)
	if err != nil {
		return err
	}
	if _, err := m.conn.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// readLoop dispatches newline-delimited events until the connection closes.
func (m *MPV) readLoop(conn net.Conn) {
	defer close(m.readDone)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()

		m.mu.Lock()
		events := m.decoder.decode(line)
		var tracks []mpvTrack
		for _, ev := range events {
			if ev.Type == ElementLoaded {
				tracks = append(tracks, m.tracks...)
			}
		}
		subs := make([]func(ElementEvent), 0, len(m.subs))
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
		m.mu.Unlock()

		for _, t := range tracks {
			if err := m.sendTrack(t); err != nil {
				m.logger.Warn().Err(err).Str("track", t.track.URL).Msg("adding subtitle track")
			}
		}
		for _, ev := range events {
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
	if err := scanner.Err(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		m.logger.Warn().Err(err).Msg("mpv event stream ended")
	}
}

// Subscribe registers fn for every subsequent event.
func (m *MPV) Subscribe(fn func(ElementEvent)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Load replaces the current file.
func (m *MPV) Load(url string) error {
	m.mu.Lock()
	m.decoder.setCurrent(url)
	m.mu.Unlock()
	return m.send("loadfile", url, "replace")
}

func (m *MPV) Play() error  { return m.send("set_property", "pause", false) }
func (m *MPV) Pause() error { return m.send("set_property", "pause", true) }

func (m *MPV) Seek(seconds float64) error {
	return m.send("seek", seconds, "absolute")
}

// SetVolume maps 0..1 onto mpv's 0..100 scale.
func (m *MPV) SetVolume(v float64) error {
	return m.send("set_property", "volume", v*100)
}

func (m *MPV) SetMuted(muted bool) error {
	return m.send("set_property", "mute", muted)
}

func (m *MPV) SetFullscreen(on bool) error {
	return m.send("set_property", "fullscreen", on)
}

// AddTextTrack adds an external subtitle file or URL. Tracks added before
// a file is loaded are sent once mpv reports file-loaded, and every track
// is re-added after each later load until Detach.
func (m *MPV) AddTextTrack(track media.CaptionTrack, selected bool) error {
	t := mpvTrack{track: track, selected: selected}
	m.mu.Lock()
	m.tracks = append(m.tracks, t)
	loaded := m.decoder.loaded
	m.mu.Unlock()
	if !loaded {
		return nil
	}
	return m.sendTrack(t)
}

func (m *MPV) sendTrack(t mpvTrack) error {
	flag := "auto"
	if t.selected {
		flag = "select"
	}
	return m.send("sub-add", t.track.URL, flag, t.track.Label, t.track.LanguageCode)
}

func (m *MPV) SetCaptionsVisible(visible bool) error {
	return m.send("set_property", "sub-visibility", visible)
}

// CanPlayType reports formats mpv demuxes natively, HLS included.
func (m *MPV) CanPlayType(mime string) bool {
	switch strings.ToLower(mime) {
	case media.HLSMimeType, "application/x-mpegurl", "video/mp4", "video/webm":
		return true
	default:
		return false
	}
}

// Detach stops playback, unloads the file and forgets subtitle tracks;
// mpv stays idle.
func (m *MPV) Detach() error {
	m.mu.Lock()
	m.decoder.setCurrent("")
	m.tracks = nil
	m.mu.Unlock()
	return m.send("stop")
}
