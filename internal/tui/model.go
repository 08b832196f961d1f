package tui

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/album"
	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
	"github.com/yplay/yplay/internal/playback"
	"github.com/yplay/yplay/internal/playlist"
	"github.com/yplay/yplay/internal/prefetch"
)

// Mode is the list the browser is showing.
type Mode int

const (
	ModeLibrary Mode = iota
	ModePlaylist
	ModeAlbums
	ModeAlbumDetail
)

func (m Mode) String() string {
	switch m {
	case ModePlaylist:
		return "Playlist"
	case ModeAlbums:
		return "Albums"
	case ModeAlbumDetail:
		return "Album"
	default:
		return "Library"
	}
}

// Library is the local track cache.
type Library interface {
	List() ([]*cache.Entry, error)
	Resolve(id string) (*cache.Entry, error)
	Delete(e *cache.Entry) error
	Rename(e *cache.Entry, newTitle string) (*cache.Entry, error)
}

// Player controls playback.
type Player interface {
	Snapshot() playback.State
	PlayQueue(ctx context.Context, q playback.Queue, i int) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	TogglePause() error
	Stop() error
	CycleLoopMode() playback.LoopMode
}

// Albums stores named track lists.
type Albums interface {
	List() ([]*album.Album, error)
	Create(name, description string) (*album.Album, error)
	Get(name string) (*album.Album, error)
	AddTrack(name string, info model.TrackInfo) error
	RemoveTrack(name, id string) error
}

// Sessions opens a playable session over a manifest.
type Sessions interface {
	NewSession(manifest *model.Manifest) *playlist.Session
}

// Prefetcher keeps upcoming playlist tracks downloaded.
type Prefetcher interface {
	Start(ctx context.Context, manifest *model.Manifest, cursor, n int)
	Advance(cursor int)
	Stop()
	Status() prefetch.Status
}

// Config wires the browser to the rest of the application.
type Config struct {
	Library    Library
	Player     Player
	Albums     Albums
	Sessions   Sessions
	Prefetcher Prefetcher
	// PrefetchCount is how many tracks after the current one are kept
	// downloaded; 0 disables prefetching.
	PrefetchCount int
	// Playlist, when set, opens the browser in playlist mode.
	Playlist *model.Manifest
	Logger   *zap.Logger
}

type inputKind int

const (
	inputNone inputKind = iota
	inputCreateAlbum
	inputRename
	inputAddToAlbum
)

// row is one line of the current list.
type row struct {
	info  model.TrackInfo
	entry *cache.Entry
	album *album.Album
}

// queueSession is a session the browser plays through, plus the switch that
// detaches it from the prefetcher once the browser moves on.
type queueSession struct {
	session  *playlist.Session
	live     *atomic.Bool
	prefetch bool
}

// Model is the Bubble Tea model for the browser.
type Model struct {
	cfg    Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mode    Mode
	back    Mode
	rows    []row
	cursor  int
	entries []*cache.Entry
	albums  []*album.Album

	playlist  *model.Manifest
	albumName string
	queue     *queueSession

	state   playback.State
	pstatus prefetch.Status
	cached  map[string]bool

	spinner    spinner.Model
	bar        progress.Model
	input      textinput.Model
	inputKind  inputKind
	inputOwner row

	status    string
	statusErr bool
	busy      string

	width  int
	height int
}

// NewModel creates the browser model.
func NewModel(cfg Config) Model {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 50
	ti.ShowSuggestions = true

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = warningStyle

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 24

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		cfg:     cfg,
		logger:  monitoring.Named(cfg.Logger, "tui"),
		ctx:     ctx,
		cancel:  cancel,
		mode:    ModeLibrary,
		input:   ti,
		spinner: sp,
		bar:     bar,
		cached:  make(map[string]bool),
		state:   playback.State{Index: -1},
	}
	if cfg.Playlist != nil {
		m.playlist = cfg.Playlist
		m.mode = ModePlaylist
		m.openQueue(cfg.Playlist)
		m.rows = manifestRows(cfg.Playlist)
	}
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick(), m.loadAlbums()}
	if m.mode == ModeLibrary {
		cmds = append(cmds, m.loadLibrary())
	}
	return tea.Batch(cmds...)
}

// Run starts the browser and blocks until the user quits.
func Run(cfg Config) error {
	m := NewModel(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.shutdown()
	} else {
		m.shutdown()
	}
	return err
}

// shutdown stops playback and background downloads.
func (m Model) shutdown() {
	m.detachQueue()
	if m.cfg.Prefetcher != nil {
		m.cfg.Prefetcher.Stop()
	}
	if m.cfg.Player != nil {
		if err := m.cfg.Player.Stop(); err != nil {
			m.logger.Debug("stop on exit", zap.Error(err))
		}
	}
	m.cancel()
}

// openQueue makes manifest the active queue. The prefetcher follows its
// cursor once the first track is played.
func (m *Model) openQueue(manifest *model.Manifest) {
	m.detachQueue()
	if m.cfg.Sessions == nil {
		return
	}
	q := &queueSession{
		session: m.cfg.Sessions.NewSession(manifest),
		live:    new(atomic.Bool),
	}
	q.live.Store(true)
	if p := m.cfg.Prefetcher; p != nil && m.cfg.PrefetchCount > 0 {
		live := q.live
		q.session.OnCursor(func(i int) {
			if live.Load() {
				p.Advance(i)
			}
		})
	}
	m.queue = q
}

// detachQueue disconnects the active session from the prefetcher and stops
// background downloads for it. Playback keeps going.
func (m *Model) detachQueue() {
	if m.queue == nil {
		return
	}
	m.queue.live.Store(false)
	if m.queue.prefetch && m.cfg.Prefetcher != nil {
		m.cfg.Prefetcher.Stop()
	}
	m.queue = nil
}

func manifestRows(manifest *model.Manifest) []row {
	rows := make([]row, 0, manifest.Len())
	for _, t := range manifest.Tracks {
		rows = append(rows, row{info: t})
	}
	return rows
}

func entryRows(entries []*cache.Entry) []row {
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, row{info: e.Info(), entry: e})
	}
	return rows
}

func albumRows(albums []*album.Album) []row {
	rows := make([]row, 0, len(albums))
	for _, a := range albums {
		rows = append(rows, row{album: a, info: model.TrackInfo{Title: a.Name}})
	}
	return rows
}

func (m Model) selected() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

func (m *Model) setRows(rows []row) {
	m.rows = rows
	if m.cursor >= len(rows) {
		m.cursor = len(rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setStatus(msg string, err error) {
	if err != nil {
		m.status = err.Error()
		if msg != "" {
			m.status = msg + ": " + err.Error()
		}
		m.statusErr = true
		return
	}
	m.status = msg
	m.statusErr = false
}
