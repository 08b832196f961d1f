package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/yplay/yplay/internal/download"
	"github.com/yplay/yplay/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	numberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500")).
			Width(4).
			Align(lipgloss.Right)
)

// printResults lists search results, one track per block.
func printResults(out io.Writer, query string, results []model.TrackInfo) {
	if len(results) == 0 {
		fmt.Fprintln(out, warningStyle.Render("No results for ")+query)
		return
	}
	fmt.Fprintf(out, "%s %q\n\n", headerStyle.Render("Results for"), query)
	for i, r := range results {
		fmt.Fprintf(out, "%s %s %s\n",
			numberStyle.Render(fmt.Sprintf("%d.", i+1)),
			r.DisplayTitle(),
			dimStyle.Render("["+model.FormatDuration(r.Duration)+"]"))
		if r.Uploader != "" {
			fmt.Fprintf(out, "     %s\n", infoStyle.Render(r.Uploader))
		}
		fmt.Fprintf(out, "     %s\n", dimStyle.Render(r.SourceURL()))
	}
}

// printFormats lists the audio-only formats of a video, best first.
func printFormats(out io.Writer, url string, formats []download.AudioFormat) {
	if len(formats) == 0 {
		fmt.Fprintln(out, warningStyle.Render("No audio-only formats for ")+url)
		return
	}
	fmt.Fprintf(out, "%s %s\n\n", headerStyle.Render("Audio formats for"), url)
	for _, f := range formats {
		line := fmt.Sprintf("%-6s %-5s %-10s", f.ID, f.Ext, f.Codec)
		details := []string{}
		if f.Bitrate > 0 {
			details = append(details, fmt.Sprintf("%.0fk", f.Bitrate))
		}
		if f.SampleRate > 0 {
			details = append(details, fmt.Sprintf("%dHz", f.SampleRate))
		}
		if f.Filesize > 0 {
			details = append(details, fmt.Sprintf("%.1fMB", float64(f.Filesize)/(1024*1024)))
		}
		if f.Note != "" {
			details = append(details, f.Note)
		}
		fmt.Fprintf(out, "  %s %s\n", infoStyle.Render(line), dimStyle.Render(strings.Join(details, "  ")))
	}
}

// printProgress returns a fetcher progress callback writing to out.
// Verbose events are dropped.
func printProgress(out io.Writer) func(download.ProgressEvent) {
	var mu sync.Mutex
	return func(event download.ProgressEvent) {
		var line string
		switch event.Level {
		case download.LevelVerbose:
			return
		case download.LevelError:
			line = errorStyle.Render("✗ " + event.Message)
		case download.LevelWarning:
			line = warningStyle.Render("! " + event.Message)
		case download.LevelSuccess:
			line = successStyle.Render("✓ " + event.Message)
		default:
			line = infoStyle.Render("› " + event.Message)
		}
		mu.Lock()
		fmt.Fprintln(out, line)
		mu.Unlock()
	}
}
