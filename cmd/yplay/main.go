package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/audio"
	"github.com/yplay/yplay/internal/config"
	"github.com/yplay/yplay/internal/download"
	ioutils "github.com/yplay/yplay/internal/io"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
	"github.com/yplay/yplay/internal/playback"
	"github.com/yplay/yplay/internal/tui"
	"github.com/yplay/yplay/internal/youtube"
)

// options are the flags that steer a run rather than configure components.
type options struct {
	browse       bool
	downloadOnly bool
	configPath   string
	export       string
	listFormats  bool
	help         bool
	args         []string
}

// flagKeys maps flag names onto settings keys.
var flagKeys = map[string]string{
	"dir":           "cache_dir",
	"format":        "format",
	"audio-quality": "audio_quality",
	"native":        "native",
	"player":        "player",
	"volume":        "volume",
	"prefetch":      "prefetch_count",
	"workers":       "prefetch_workers",
	"loop":          "loop",
	"yt-api-key":    "api_key",
	"log-level":     "logging.level",
	"metrics-addr":  "metrics_addr",
	"limit":         "search_limit",
}

func newFlagSet(out io.Writer) (*pflag.FlagSet, *options) {
	d := config.DefaultSettings()
	opts := &options{}

	fs := pflag.NewFlagSet("yplay", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false

	fs.String("dir", d.CacheDir, "cache directory")
	fs.String("format", d.Format, "audio format: "+strings.Join(download.SupportedFormats, ", "))
	fs.String("audio-quality", d.AudioQuality, "conversion quality: 0 (best) to 10, or a bitrate like 192K")
	fs.Bool("native", d.Native, "keep the source audio format when it is already playable")
	fs.Bool("no-meta", false, "do not embed metadata while downloading")
	fs.String("player", d.Player, "player to prefer: mpv, ffplay or afplay")
	fs.Float64("volume", d.Volume, "playback volume between 0 and 1")
	fs.String("loop", d.Loop, "loop mode: none, single or all")
	fs.BoolVar(&opts.browse, "browse", false, "browse the local library and albums")
	fs.Int("prefetch", d.PrefetchCount, "tracks to download ahead while a playlist plays")
	fs.Int("prefetch-count", d.PrefetchCount, "alias for --prefetch")
	_ = fs.MarkHidden("prefetch-count")
	fs.Int("workers", d.PrefetchWorkers, "parallel background downloads")
	fs.BoolVar(&opts.downloadOnly, "download-only", false, "download without playing")
	fs.BoolVar(&opts.listFormats, "list-formats", false, "list the audio formats of a video URL and exit")
	fs.String("yt-api-key", "", "YouTube Data API key (or YT_API_KEY)")
	fs.StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	fs.String("log-level", d.Logging.Level, "log level: debug, info, warn or error")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Int("limit", d.SearchLimit, "number of search results")
	fs.StringVar(&opts.export, "export", "", "write the playlist or library to a .m3u, .pls, .wpl or .zpl file")
	fs.BoolVarP(&opts.help, "help", "h", false, "show this help")

	fs.Usage = func() { printUsage(out, fs) }
	return fs, opts
}

// bindFlags routes flag values into v so they override the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return err
		}
	}
	if fs.Changed("prefetch-count") && !fs.Changed("prefetch") {
		n, _ := fs.GetInt("prefetch-count")
		v.Set("prefetch_count", n)
	}
	if noMeta, _ := fs.GetBool("no-meta"); noMeta {
		v.Set("embed_metadata", false)
	}
	return nil
}

func printUsage(out io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(out, headerStyle.Render("yplay")+" - cache and play YouTube audio")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  yplay [options] <search words>")
	fmt.Fprintln(out, "  yplay [options] <video or playlist URL>")
	fmt.Fprintln(out, "  yplay --browse")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  yplay lofi hip hop")
	fmt.Fprintln(out, "  yplay https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	fmt.Fprintln(out, "  yplay --list-formats https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	fmt.Fprintln(out, "  yplay --prefetch 5 'https://www.youtube.com/playlist?list=PL...'")
	fmt.Fprintln(out, "  yplay --download-only --export mix.m3u 'https://www.youtube.com/playlist?list=PL...'")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Options:")
	fmt.Fprint(out, fs.FlagUsages())
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs, opts := newFlagSet(stdout)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: ")+err.Error())
		return 2
	}
	opts.args = fs.Args()

	if opts.help || (len(opts.args) == 0 && !opts.browse) {
		fs.Usage()
		return 0
	}

	v := config.NewViper()
	if err := bindFlags(v, fs); err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: ")+err.Error())
		return 1
	}
	settings, err := config.Load(v, opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error loading config: ")+err.Error())
		return 1
	}

	if opts.listFormats && (opts.browse || len(opts.args) != 1 || !youtube.IsURL(opts.args[0]) || isPlaylistTarget(opts.args)) {
		fmt.Fprintln(stderr, errorStyle.Render("Error: ")+"--list-formats needs a single video URL")
		return 2
	}

	interactive := (opts.browse || isPlaylistTarget(opts.args)) && !opts.downloadOnly && opts.export == "" && !opts.listFormats
	if interactive {
		// Log lines would corrupt the full-screen UI.
		settings.Logging.Output = "file"
	}
	logger, err := monitoring.NewLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: ")+err.Error())
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.MetricsAddr != "" {
		go func() {
			if err := monitoring.ServeMetrics(ctx, settings.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	var progress func(download.ProgressEvent)
	if !interactive {
		progress = printProgress(stdout)
	}
	a, err := newApp(settings, logger, progress)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: ")+err.Error())
		return 1
	}

	switch {
	case opts.listFormats:
		err = a.listFormats(ctx, opts.args[0], stdout)
	case opts.browse:
		err = a.browse(ctx, opts, stdout)
	case isPlaylistTarget(opts.args):
		err = a.playPlaylist(ctx, opts.args[0], opts, stdout)
	case youtube.IsURL(opts.args[0]):
		err = a.playSingle(ctx, opts.args[0], opts, stdout)
	default:
		err = a.search(ctx, strings.Join(opts.args, " "), settings.SearchLimit, stdout)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		logger.Error("run failed", zap.Error(err))
		fmt.Fprintln(stderr, errorStyle.Render("Error: ")+err.Error())
		return 1
	}
	return 0
}

func isPlaylistTarget(args []string) bool {
	return len(args) == 1 && youtube.IsPlaylistURL(args[0])
}

func (a *app) search(ctx context.Context, query string, limit int, out io.Writer) error {
	results, err := a.resolver.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	printResults(out, query, results)
	return nil
}

func (a *app) listFormats(ctx context.Context, url string, out io.Writer) error {
	formats, err := a.downloader.ListFormats(ctx, url)
	if err != nil {
		return err
	}
	printFormats(out, url, formats)
	return nil
}

// playSingle downloads one track and plays it until it ends or the user
// interrupts.
func (a *app) playSingle(ctx context.Context, url string, opts *options, out io.Writer) error {
	entry, err := a.playlists.Resolve(ctx, url)
	if err != nil {
		return err
	}
	if opts.downloadOnly {
		fmt.Fprintln(out, successStyle.Render("✓ ")+entry.DisplayTitle())
		fmt.Fprintln(out, dimStyle.Render("  "+entry.AudioPath))
		return nil
	}

	controller, err := a.newController()
	if err != nil {
		return err
	}
	defer controller.Close()

	if err := controller.Play(ctx, entry); err != nil {
		return err
	}
	fmt.Fprintln(out, infoStyle.Render("▶ ")+entry.DisplayTitle()+dimStyle.Render("  "+model.FormatDuration(entry.Duration)))
	return waitForStop(ctx, controller, out)
}

// waitForStop blocks until playback stops or ctx ends, stopping the player
// in the latter case.
func waitForStop(ctx context.Context, controller *playback.Controller, out io.Writer) error {
	stopped := make(chan playback.State, 1)
	controller.OnChange(func(s playback.State) {
		if s.Status == playback.Stopped {
			select {
			case stopped <- s:
			default:
			}
		}
	})

	var st playback.State
	if snap := controller.Snapshot(); snap.Status == playback.Stopped {
		st = snap
	} else {
		select {
		case st = <-stopped:
		case <-ctx.Done():
			fmt.Fprintln(out, dimStyle.Render("stopping..."))
			return controller.Stop()
		}
	}
	if st.Message != "" {
		return errors.New(st.Message)
	}
	return nil
}

// playPlaylist opens a playlist and either downloads it or browses it with
// prefetch.
func (a *app) playPlaylist(ctx context.Context, url string, opts *options, out io.Writer) error {
	manifest, err := a.playlists.Open(ctx, url)
	if err != nil {
		return err
	}

	if opts.downloadOnly {
		fmt.Fprintf(out, "%s %s (%d tracks)\n", infoStyle.Render("↓"), manifest.Title, manifest.Len())
		st := a.downloadAll(ctx, manifest)
		fmt.Fprintf(out, "%s %d downloaded, %d already cached, %d failed\n",
			successStyle.Render("✓"), st.Done, st.Skipped, st.Failed)
	}
	if opts.export != "" {
		return a.exportManifest(opts.export, manifest, out)
	}
	if opts.downloadOnly {
		return nil
	}

	controller, err := a.newController()
	if err != nil {
		return err
	}
	defer controller.Close()

	return tui.Run(tui.Config{
		Library:       a.store,
		Player:        controller,
		Albums:        a.albums,
		Sessions:      a.playlists,
		Prefetcher:    a.prefetcher,
		PrefetchCount: a.settings.PrefetchCount,
		Playlist:      manifest,
		Logger:        a.logger,
	})
}

func (a *app) browse(ctx context.Context, opts *options, out io.Writer) error {
	if opts.export != "" {
		entries, err := a.store.List()
		if err != nil {
			return err
		}
		return a.writePlaylist(opts.export, "yplay library", audio.ItemsFromEntries(entries), out)
	}

	controller, err := a.newController()
	if err != nil {
		return err
	}
	defer controller.Close()

	return tui.Run(tui.Config{
		Library:       a.store,
		Player:        controller,
		Albums:        a.albums,
		Sessions:      a.playlists,
		Prefetcher:    a.prefetcher,
		PrefetchCount: a.settings.PrefetchCount,
		Logger:        a.logger,
	})
}

func (a *app) exportManifest(path string, manifest *model.Manifest, out io.Writer) error {
	items := audio.ItemsFromManifest(manifest, a.store.Resolve)
	return a.writePlaylist(path, manifest.Title, items, out)
}

func (a *app) writePlaylist(path, title string, items []audio.PlaylistItem, out io.Writer) error {
	format, ok := audio.FormatForPath(path)
	if !ok {
		return fmt.Errorf("unsupported playlist extension %q (want .m3u, .pls, .wpl or .zpl)", filepath.Ext(path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	creator := audio.NewPlaylistCreator(format, a.settings.M3UExtended).RelativeTo(filepath.Dir(abs))
	if err := ioutils.WriteFileAtomic(abs, []byte(creator.CreatePlaylist(title, items))); err != nil {
		return fmt.Errorf("writing playlist: %w", err)
	}
	fmt.Fprintf(out, "%s wrote %d tracks to %s\n", successStyle.Render("✓"), len(items), abs)
	return nil
}
