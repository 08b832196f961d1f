package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/album"
	"github.com/yplay/yplay/internal/cache"
	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/playback"
	"github.com/yplay/yplay/internal/prefetch"
)

const pollInterval = 500 * time.Millisecond

// Message types
type (
	// tickMsg asks for a new poll of the player and prefetcher.
	tickMsg struct{}

	// pollMsg carries the polled state.
	pollMsg struct {
		state    playback.State
		prefetch prefetch.Status
		// cached is nil when the cache was not scanned.
		cached map[string]bool
	}

	libraryMsg struct {
		entries []*cache.Entry
		err     error
	}

	albumsMsg struct {
		albums []*album.Album
		err    error
	}

	albumMsg struct {
		album *album.Album
		err   error
	}

	// actionMsg reports the outcome of a user action run off the UI loop.
	actionMsg struct {
		status string
		err    error
		reload bool
	}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.inputKind != inputNone {
			return m.updateInput(msg)
		}
		return m.handleKey(msg)

	case tickMsg:
		return m, m.poll()

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollMsg:
		if msg.state.Message != "" && msg.state.Message != m.state.Message {
			m.status = msg.state.Message
			m.statusErr = true
		}
		m.state = msg.state
		m.pstatus = msg.prefetch
		if msg.cached != nil {
			m.cached = msg.cached
		}
		return m, m.tick()

	case libraryMsg:
		if msg.err != nil {
			m.setStatus("reading library", msg.err)
			return m, nil
		}
		m.entries = msg.entries
		if m.mode == ModeLibrary {
			m.setRows(entryRows(msg.entries))
		}
		return m, nil

	case albumsMsg:
		if msg.err != nil {
			m.setStatus("reading albums", msg.err)
			return m, nil
		}
		m.albums = msg.albums
		if m.mode == ModeAlbums {
			m.setRows(albumRows(msg.albums))
		}
		return m, nil

	case albumMsg:
		if msg.err != nil {
			m.setStatus("opening album", msg.err)
			return m, nil
		}
		if m.mode != ModeAlbumDetail || m.albumName != msg.album.Name {
			m.cursor = 0
		}
		m.mode = ModeAlbumDetail
		m.albumName = msg.album.Name
		manifest := msg.album.Manifest()
		m.openQueue(manifest)
		m.setRows(manifestRows(manifest))
		return m, nil

	case actionMsg:
		m.busy = ""
		m.setStatus(msg.status, msg.err)
		if msg.reload {
			return m, m.reload()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case "enter":
		if m.mode == ModeAlbums {
			r, ok := m.selected()
			if !ok {
				return m, nil
			}
			return m, m.loadAlbum(r.album.Name)
		}
		return m.play(m.cursor)

	case " ":
		return m, m.action(func() (string, error) {
			if err := m.cfg.Player.TogglePause(); err != nil {
				return "", err
			}
			return "", nil
		}, false)

	case "s":
		return m, m.action(func() (string, error) {
			return "Stopped", m.cfg.Player.Stop()
		}, false)

	case "n":
		m.busy = "Loading next track..."
		return m, tea.Batch(m.action(func() (string, error) {
			if err := m.cfg.Player.Next(m.ctx); err != nil {
				return "next track", err
			}
			return "", nil
		}, false), m.spinner.Tick)

	case "p":
		m.busy = "Loading previous track..."
		return m, tea.Batch(m.action(func() (string, error) {
			if err := m.cfg.Player.Previous(m.ctx); err != nil {
				return "previous track", err
			}
			return "", nil
		}, false), m.spinner.Tick)

	case "l":
		mode := m.cfg.Player.CycleLoopMode()
		m.state.Loop = mode
		m.setStatus("Loop: "+mode.String(), nil)

	case "a":
		if m.mode != ModeAlbums {
			if m.mode != ModeAlbumDetail {
				m.back = m.mode
			}
			m.mode = ModeAlbums
			m.cursor = 0
			m.setRows(albumRows(m.albums))
		}
		return m, m.loadAlbums()

	case "b":
		return m.goBack()

	case "c":
		if m.cfg.Albums == nil {
			return m, nil
		}
		return m.startInput(inputCreateAlbum, row{}, "", "new album name")

	case "+":
		r, ok := m.trackRow()
		if !ok || m.cfg.Albums == nil {
			return m, nil
		}
		m.input.SetSuggestions(m.albumNames())
		return m.startInput(inputAddToAlbum, r, "", "album name")

	case "x":
		r, ok := m.trackRow()
		if !ok || m.mode != ModeAlbumDetail {
			return m, nil
		}
		name := m.albumName
		return m, m.action(func() (string, error) {
			if err := m.cfg.Albums.RemoveTrack(name, r.info.ID); err != nil {
				return "removing from album", err
			}
			return fmt.Sprintf("Removed %q from %s", r.info.DisplayTitle(), name), nil
		}, true)

	case "d":
		r, ok := m.trackRow()
		if !ok {
			return m, nil
		}
		return m, m.deleteTrack(r)

	case "r":
		r, ok := m.trackRow()
		if !ok {
			return m, nil
		}
		if r.entry == nil && !m.cached[r.info.ID] {
			m.setStatus("Not cached: "+r.info.DisplayTitle(), nil)
			return m, nil
		}
		return m.startInput(inputRename, r, r.info.DisplayTitle(), "new title")
	}

	return m, nil
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeAlbumDetail:
		m.mode = ModeAlbums
		m.cursor = 0
		m.setRows(albumRows(m.albums))
		return m, m.loadAlbums()
	case ModeAlbums:
		if m.back == ModePlaylist && m.playlist != nil {
			return m.showPlaylist(), nil
		}
		m.mode = ModeLibrary
		m.cursor = 0
		m.setRows(entryRows(m.entries))
		return m, m.loadLibrary()
	case ModePlaylist:
		m.mode = ModeLibrary
		m.cursor = 0
		m.setRows(entryRows(m.entries))
		return m, m.loadLibrary()
	}
	return m, nil
}

func (m Model) showPlaylist() Model {
	m.mode = ModePlaylist
	m.cursor = 0
	if m.queue == nil || m.queue.session.Manifest() != m.playlist {
		m.openQueue(m.playlist)
	}
	m.setRows(manifestRows(m.playlist))
	return m
}

// play starts track i of the current list.
func (m Model) play(i int) (tea.Model, tea.Cmd) {
	r, ok := m.selected()
	if !ok || r.album != nil {
		return m, nil
	}

	var q playback.Queue
	switch m.mode {
	case ModeLibrary:
		q = &entryQueue{entries: m.entries}
	case ModePlaylist, ModeAlbumDetail:
		if m.queue == nil {
			m.setStatus("", apperrors.Unsupported("playlist playback is not available"))
			return m, nil
		}
		if !m.queue.prefetch && m.cfg.Prefetcher != nil && m.cfg.PrefetchCount > 0 {
			m.cfg.Prefetcher.Start(m.ctx, m.queue.session.Manifest(), i, m.cfg.PrefetchCount)
			m.queue.prefetch = true
		}
		q = m.queue.session
	default:
		return m, nil
	}

	title := r.info.DisplayTitle()
	if r.entry == nil && !m.cached[r.info.ID] {
		m.busy = "Downloading " + title + "..."
	} else {
		m.busy = "Starting " + title + "..."
	}
	return m, tea.Batch(m.action(func() (string, error) {
		if err := m.cfg.Player.PlayQueue(m.ctx, q, i); err != nil {
			return "playing " + title, err
		}
		return "Playing " + title, nil
	}, false), m.spinner.Tick)
}

func (m Model) deleteTrack(r row) tea.Cmd {
	playing := m.state.Current != nil && m.state.Current.ID == r.info.ID
	return m.action(func() (string, error) {
		entry := r.entry
		if entry == nil {
			e, err := m.cfg.Library.Resolve(r.info.ID)
			if err != nil {
				if apperrors.IsNotFound(err) {
					return "Not cached: " + r.info.DisplayTitle(), nil
				}
				return "deleting", err
			}
			entry = e
		}
		if playing {
			if err := m.cfg.Player.Stop(); err != nil {
				m.logger.Debug("stop before delete", zap.Error(err))
			}
		}
		if err := m.cfg.Library.Delete(entry); err != nil {
			return "deleting " + entry.DisplayTitle(), err
		}
		return "Deleted " + entry.DisplayTitle(), nil
	}, true)
}

func (m Model) startInput(kind inputKind, owner row, value, placeholder string) (tea.Model, tea.Cmd) {
	m.inputKind = kind
	m.inputOwner = owner
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.inputKind = inputNone
		m.input.Blur()
		return m, nil

	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		kind, owner := m.inputKind, m.inputOwner
		m.inputKind = inputNone
		m.input.Blur()
		m.input.SetValue("")
		if value == "" {
			return m, nil
		}
		return m, m.submit(kind, owner, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(kind inputKind, owner row, value string) tea.Cmd {
	switch kind {
	case inputCreateAlbum:
		return m.action(func() (string, error) {
			a, err := m.cfg.Albums.Create(value, "")
			if err != nil {
				return "creating album", err
			}
			return "Created album " + a.Name, nil
		}, true)

	case inputAddToAlbum:
		return m.action(func() (string, error) {
			if err := m.cfg.Albums.AddTrack(value, owner.info); err != nil {
				return "adding to album", err
			}
			return fmt.Sprintf("Added %q to %s", owner.info.DisplayTitle(), value), nil
		}, true)

	case inputRename:
		return m.action(func() (string, error) {
			entry := owner.entry
			if entry == nil {
				e, err := m.cfg.Library.Resolve(owner.info.ID)
				if err != nil {
					return "renaming", err
				}
				entry = e
			}
			renamed, err := m.cfg.Library.Rename(entry, value)
			if err != nil {
				return "renaming", err
			}
			return "Renamed to " + renamed.DisplayTitle(), nil
		}, true)
	}
	return nil
}

// trackRow returns the highlighted row when it is a track.
func (m Model) trackRow() (row, bool) {
	r, ok := m.selected()
	if !ok || r.album != nil || r.info.ID == "" {
		return row{}, false
	}
	return r, true
}

func (m Model) albumNames() []string {
	names := make([]string, 0, len(m.albums))
	for _, a := range m.albums {
		names = append(names, a.Name)
	}
	return names
}

// tick schedules the next poll.
func (m Model) tick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// poll reads the player and prefetcher, and in track list modes the set
// of cached ids.
func (m Model) poll() tea.Cmd {
	player, prefetcher, library := m.cfg.Player, m.cfg.Prefetcher, m.cfg.Library
	scan := m.mode == ModePlaylist || m.mode == ModeAlbumDetail
	return func() tea.Msg {
		var msg pollMsg
		if player != nil {
			msg.state = player.Snapshot()
		}
		if prefetcher != nil {
			msg.prefetch = prefetcher.Status()
		}
		if scan && library != nil {
			entries, err := library.List()
			if err == nil {
				msg.cached = make(map[string]bool, len(entries))
				for _, e := range entries {
					msg.cached[e.ID] = true
				}
			}
		}
		return msg
	}
}

func (m Model) action(fn func() (string, error), reload bool) tea.Cmd {
	return func() tea.Msg {
		status, err := fn()
		if err != nil {
			m.logger.Debug("action failed", zap.String("action", status), zap.Error(err))
		}
		return actionMsg{status: status, err: err, reload: reload}
	}
}

// reload refreshes the current list and the album names.
func (m Model) reload() tea.Cmd {
	switch m.mode {
	case ModeAlbumDetail:
		return tea.Batch(m.loadAlbum(m.albumName), m.loadAlbums())
	case ModeLibrary:
		return tea.Batch(m.loadLibrary(), m.loadAlbums())
	}
	return m.loadAlbums()
}

func (m Model) loadLibrary() tea.Cmd {
	library := m.cfg.Library
	if library == nil {
		return nil
	}
	return func() tea.Msg {
		entries, err := library.List()
		return libraryMsg{entries: entries, err: err}
	}
}

func (m Model) loadAlbums() tea.Cmd {
	albums := m.cfg.Albums
	if albums == nil {
		return nil
	}
	return func() tea.Msg {
		list, err := albums.List()
		return albumsMsg{albums: list, err: err}
	}
}

func (m Model) loadAlbum(name string) tea.Cmd {
	albums := m.cfg.Albums
	if albums == nil {
		return nil
	}
	return func() tea.Msg {
		a, err := albums.Get(name)
		return albumMsg{album: a, err: err}
	}
}
