package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/model"
)

// PlaylistFormat represents supported playlist file formats.
//
// Each format has different features and compatibility:
//   - M3U: Simple text format, widely supported
//   - PLS: INI-style format, used by Winamp
//   - WPL: XML format, Windows Media Player
//   - ZPL: XML format, Zune/Groove Music
type PlaylistFormat int

const (
	// FormatM3U creates .m3u files (most compatible).
	FormatM3U PlaylistFormat = iota

	// FormatPLS creates .pls files (Winamp/SHOUTcast format).
	FormatPLS

	// FormatWPL creates .wpl files (Windows Media Player).
	FormatWPL

	// FormatZPL creates .zpl files (Zune/Groove Music).
	FormatZPL
)

// FormatForPath picks the playlist format from a file extension.
func FormatForPath(path string) (PlaylistFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u", ".m3u8":
		return FormatM3U, true
	case ".pls":
		return FormatPLS, true
	case ".wpl":
		return FormatWPL, true
	case ".zpl":
		return FormatZPL, true
	}
	return FormatM3U, false
}

// PlaylistItem is one playlist line: a local file or a URL.
type PlaylistItem struct {
	Location string
	Title    string
	Uploader string
	Duration *int
}

// ItemsFromEntries lists cached tracks.
func ItemsFromEntries(entries []*cache.Entry) []PlaylistItem {
	items := make([]PlaylistItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, PlaylistItem{
			Location: e.AudioPath,
			Title:    e.DisplayTitle(),
			Uploader: e.Uploader,
			Duration: e.Duration,
		})
	}
	return items
}

// ItemsFromManifest lists a playlist's tracks, using the cached file when
// lookup finds one and the watch URL otherwise.
func ItemsFromManifest(m *model.Manifest, lookup func(id string) (*cache.Entry, error)) []PlaylistItem {
	items := make([]PlaylistItem, 0, m.Len())
	for _, t := range m.Tracks {
		item := PlaylistItem{
			Location: t.SourceURL(),
			Title:    t.DisplayTitle(),
			Uploader: t.Uploader,
			Duration: t.Duration,
		}
		if lookup != nil {
			if e, err := lookup(t.ID); err == nil {
				item.Location = e.AudioPath
				if item.Duration == nil {
					item.Duration = e.Duration
				}
			}
		}
		items = append(items, item)
	}
	return items
}

// PlaylistCreator generates playlist files in various formats.
//
// Example:
//
//	creator := NewPlaylistCreator(FormatM3U, true)
//	content := creator.CreatePlaylist(manifest.Title, ItemsFromManifest(manifest, store.Resolve))
//	os.WriteFile("mix.m3u", []byte(content), 0644)
//
//	// Result:
//	// #EXTM3U
//	// #EXTINF:213,Rick Astley - Never Gonna Give You Up
//	// /home/me/Music/yt-audio/Never Gonna Give You Up [dQw4w9Wg]/audio.mp3
type PlaylistCreator struct {
	format   PlaylistFormat
	extended bool // For M3U: include EXTINF lines with duration/title
	baseDir  string
}

// NewPlaylistCreator creates a new PlaylistCreator.
//
// Parameters:
//   - format: The playlist format to generate
//   - extended: For M3U format, whether to include #EXTINF lines
//     (ignored for other formats)
func NewPlaylistCreator(format PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{
		format:   format,
		extended: extended,
	}
}

// RelativeTo makes local paths relative to dir, the folder the playlist
// file will be written to.
func (p *PlaylistCreator) RelativeTo(dir string) *PlaylistCreator {
	p.baseDir = dir
	return p
}

// CreatePlaylist generates playlist content.
func (p *PlaylistCreator) CreatePlaylist(title string, items []PlaylistItem) string {
	switch p.format {
	case FormatPLS:
		return p.createPLS(items)
	case FormatWPL:
		return p.createWPL(title, items)
	case FormatZPL:
		return p.createZPL(title, items)
	default:
		return p.createM3U(items)
	}
}

func (p *PlaylistCreator) location(item PlaylistItem) string {
	loc := item.Location
	if p.baseDir == "" || strings.Contains(loc, "://") || !filepath.IsAbs(loc) {
		return loc
	}
	if rel, err := filepath.Rel(p.baseDir, loc); err == nil {
		return rel
	}
	return loc
}

func seconds(d *int) int {
	if d == nil {
		return -1
	}
	return *d
}

func label(item PlaylistItem) string {
	if item.Uploader == "" {
		return item.Title
	}
	return item.Uploader + " - " + item.Title
}

// createM3U generates an M3U playlist. Unknown durations are written as -1.
func (p *PlaylistCreator) createM3U(items []PlaylistItem) string {
	var sb strings.Builder

	if p.extended {
		sb.WriteString("#EXTM3U\n")
	}

	for _, item := range items {
		if p.extended {
			sb.WriteString(fmt.Sprintf("#EXTINF:%d,%s\n", seconds(item.Duration), label(item)))
		}
		sb.WriteString(p.location(item) + "\n")
	}

	return sb.String()
}

// createPLS generates a PLS playlist.
//
// PLS format is an INI-style text file:
//
//	[playlist]
//	File1=filename1.mp3
//	Title1=Song Title
//	Length1=180
//	NumberOfEntries=2
//	Version=2
func (p *PlaylistCreator) createPLS(items []PlaylistItem) string {
	var sb strings.Builder

	sb.WriteString("[playlist]\n")

	for i, item := range items {
		idx := i + 1
		sb.WriteString(fmt.Sprintf("File%d=%s\n", idx, p.location(item)))
		sb.WriteString(fmt.Sprintf("Title%d=%s\n", idx, label(item)))
		sb.WriteString(fmt.Sprintf("Length%d=%d\n", idx, seconds(item.Duration)))
	}

	sb.WriteString(fmt.Sprintf("NumberOfEntries=%d\n", len(items)))
	sb.WriteString("Version=2\n")

	return sb.String()
}

// createWPL generates a Windows Media Player playlist.
func (p *PlaylistCreator) createWPL(title string, items []PlaylistItem) string {
	var sb strings.Builder

	sb.WriteString("<?wpl version=\"1.0\"?>\n")
	sb.WriteString("<smil>\n")
	sb.WriteString("  <head>\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", escapeXML(title)))
	sb.WriteString("  </head>\n")
	sb.WriteString("  <body>\n")
	sb.WriteString("    <seq>\n")

	for _, item := range items {
		sb.WriteString(fmt.Sprintf("      <media src=\"%s\"/>\n", escapeXML(p.location(item))))
	}

	sb.WriteString("    </seq>\n")
	sb.WriteString("  </body>\n")
	sb.WriteString("</smil>\n")

	return sb.String()
}

// createZPL generates a Zune/Groove Music playlist with per-track metadata.
func (p *PlaylistCreator) createZPL(title string, items []PlaylistItem) string {
	var sb strings.Builder

	sb.WriteString("<?zpl version=\"2.0\"?>\n")
	sb.WriteString("<smil>\n")
	sb.WriteString("  <head>\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", escapeXML(title)))
	sb.WriteString("    <meta name=\"Generator\" content=\"yplay\"/>\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"ItemCount\" content=\"%d\"/>\n", len(items)))
	sb.WriteString("  </head>\n")
	sb.WriteString("  <body>\n")
	sb.WriteString("    <seq>\n")

	for _, item := range items {
		duration := 0
		if item.Duration != nil {
			duration = *item.Duration * 1000
		}
		sb.WriteString(fmt.Sprintf("      <media src=\"%s\" albumTitle=\"%s\" trackTitle=\"%s\" trackArtist=\"%s\" duration=\"%d\"/>\n",
			escapeXML(p.location(item)),
			escapeXML(title),
			escapeXML(item.Title),
			escapeXML(item.Uploader),
			duration))
	}

	sb.WriteString("    </seq>\n")
	sb.WriteString("  </body>\n")
	sb.WriteString("</smil>\n")

	return sb.String()
}

// escapeXML escapes special XML characters in a string.
//
// Replaces: & < > " '
// With:     &amp; &lt; &gt; &quot; &apos;
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
