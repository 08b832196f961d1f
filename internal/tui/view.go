package tui

import (
	"fmt"
	"strings"

	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/playback"
)

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("♪ yplay"))
	b.WriteString("\n")
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")

	b.WriteString(m.viewList())
	b.WriteString("\n")
	b.WriteString(m.viewNowPlaying())
	b.WriteString("\n")

	if line := m.viewPrefetch(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}

	switch {
	case m.inputKind != inputNone:
		b.WriteString(subtitleStyle.Render(m.inputLabel()))
		b.WriteString(" ")
		b.WriteString(m.input.View())
	case m.busy != "":
		b.WriteString(m.spinner.View() + " " + warningStyle.Render(m.busy))
	case m.status != "" && m.statusErr:
		b.WriteString(errorStyle.Render("✗ " + m.status))
	case m.status != "":
		b.WriteString(successStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(m.helpText()))

	return b.String()
}

func (m Model) viewHeader() string {
	switch m.mode {
	case ModePlaylist:
		title := "Playlist"
		if m.playlist != nil && m.playlist.Title != "" {
			title = m.playlist.Title
		}
		return subtitleStyle.Render(fmt.Sprintf("%s (%d tracks)", title, len(m.rows)))
	case ModeAlbums:
		return subtitleStyle.Render(fmt.Sprintf("Albums (%d)", len(m.rows)))
	case ModeAlbumDetail:
		return subtitleStyle.Render(fmt.Sprintf("Album: %s (%d tracks)", m.albumName, len(m.rows)))
	default:
		return subtitleStyle.Render(fmt.Sprintf("Library (%d tracks)", len(m.rows)))
	}
}

// visibleRange returns the rows that fit on screen around the cursor.
func (m Model) visibleRange() (int, int) {
	height := m.height - 12
	if height < 5 {
		height = 15
	}
	if len(m.rows) <= height {
		return 0, len(m.rows)
	}
	start := m.cursor - height/2
	if start < 0 {
		start = 0
	}
	end := start + height
	if end > len(m.rows) {
		end = len(m.rows)
		start = end - height
	}
	return start, end
}

func (m Model) viewList() string {
	if len(m.rows) == 0 {
		switch m.mode {
		case ModeAlbums:
			return dimStyle.Render("  No albums yet. Press c to create one.") + "\n"
		case ModeLibrary:
			return dimStyle.Render("  The cache is empty.") + "\n"
		default:
			return dimStyle.Render("  No tracks.") + "\n"
		}
	}

	inFlight := make(map[string]bool, len(m.pstatus.InFlight))
	for _, id := range m.pstatus.InFlight {
		inFlight[id] = true
	}

	var b strings.Builder
	start, end := m.visibleRange()
	for i := start; i < end; i++ {
		r := m.rows[i]
		var line string
		if r.album != nil {
			line = fmt.Sprintf("%-40s %s", truncate(r.album.Name, 40), dimStyle.Render(fmt.Sprintf("%d tracks", len(r.album.Tracks))))
		} else {
			line = fmt.Sprintf("%s %-50s %-20s %6s",
				m.marker(r, inFlight),
				truncate(r.info.DisplayTitle(), 50),
				truncate(r.info.Uploader, 20),
				model.FormatDuration(r.info.Duration))
		}

		if i == m.cursor {
			b.WriteString(selectedStyle.Render("› " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// marker returns the cache state column of a track row.
func (m Model) marker(r row, inFlight map[string]bool) string {
	switch {
	case m.state.Current != nil && m.state.Current.ID == r.info.ID:
		return successStyle.Render(markPlaying)
	case r.entry != nil || m.cached[r.info.ID]:
		return successStyle.Render(markCached)
	case inFlight[r.info.ID]:
		return warningStyle.Render(markInFlight)
	default:
		return " "
	}
}

func (m Model) viewNowPlaying() string {
	st := m.state
	parts := []string{}
	if st.Current != nil {
		parts = append(parts, fmt.Sprintf("%s %s", statusIcon(st.Status), st.Current.DisplayTitle()))
		if st.Current.Uploader != "" {
			parts = append(parts, dimStyle.Render(st.Current.Uploader))
		}
	} else {
		parts = append(parts, "■ stopped")
	}
	parts = append(parts, "loop: "+st.Loop.String())
	if st.Backend != "" {
		backend := st.Backend
		if !st.CanPause {
			backend += " (no pause)"
		}
		parts = append(parts, backend)
	}
	return boxStyle.Render(strings.Join(parts, "  •  "))
}

func statusIcon(s playback.Status) string {
	switch s {
	case playback.Playing:
		return "▶"
	case playback.Paused:
		return "⏸"
	case playback.Loading:
		return "↻"
	default:
		return "■"
	}
}

func (m Model) viewPrefetch() string {
	ps := m.pstatus
	if !ps.Running || (m.mode != ModePlaylist && m.mode != ModeAlbumDetail) {
		return ""
	}
	var percent float64
	if total := ps.Done + ps.Failed + ps.Skipped + len(ps.Pending) + len(ps.InFlight); total > 0 {
		percent = float64(ps.Done+ps.Failed+ps.Skipped) / float64(total)
	}
	return m.bar.ViewAs(percent) + " " + infoStyle.Render(fmt.Sprintf("prefetch %d-%d: %d queued, %d downloading, %d done, %d failed",
		ps.Window[0]+1, ps.Window[1], len(ps.Pending), len(ps.InFlight), ps.Done, ps.Failed))
}

func (m Model) inputLabel() string {
	switch m.inputKind {
	case inputCreateAlbum:
		return "Create album:"
	case inputRename:
		return "Rename:"
	case inputAddToAlbum:
		return "Add to album:"
	}
	return ""
}

func (m Model) helpText() string {
	if m.inputKind != inputNone {
		return "enter: confirm • esc: cancel • tab: complete"
	}
	switch m.mode {
	case ModeAlbums:
		return "enter: open • c: create • b: back • q: quit"
	case ModeAlbumDetail:
		return "enter: play • space: pause • s: stop • n: next • p: prev • l: loop • x: remove • d: delete • r: rename • b: back • q: quit"
	case ModePlaylist:
		return "enter: play • space: pause • s: stop • n: next • p: prev • l: loop • +: add to album • a: albums • d: delete • r: rename • b: library • q: quit"
	default:
		return "enter: play • space: pause • s: stop • n: next • p: prev • l: loop • +: add to album • a: albums • c: create album • d: delete • r: rename • q: quit"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
