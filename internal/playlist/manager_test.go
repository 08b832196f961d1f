package playlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/download"
	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/prefetch"
)

type fakeResolver struct {
	manifest *model.Manifest
	video    model.TrackInfo
	err      error
}

func (f *fakeResolver) Video(ctx context.Context, idOrURL string) (model.TrackInfo, error) {
	if f.err != nil {
		return model.TrackInfo{}, f.err
	}
	return f.video, nil
}

func (f *fakeResolver) Playlist(ctx context.Context, url string) (*model.Manifest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.manifest, nil
}

// slowDownloader writes audio after the gate opens and counts calls per id.
type slowDownloader struct {
	mu    sync.Mutex
	calls map[string]int
	total int32
	gate  chan struct{}
}

func (d *slowDownloader) Fetch(ctx context.Context, idOrURL, destDir string) (download.Result, error) {
	atomic.AddInt32(&d.total, 1)
	d.mu.Lock()
	d.calls[idOrURL]++
	d.mu.Unlock()
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return download.Result{}, ctx.Err()
		}
	}
	p := filepath.Join(destDir, "audio.mp3")
	if err := os.WriteFile(p, []byte("audio"), 0644); err != nil {
		return download.Result{}, err
	}
	return download.Result{AudioPath: p}, nil
}

func newFixture(t *testing.T, dl download.Downloader, res *fakeResolver) (*Manager, *cache.Store, *download.Fetcher) {
	t.Helper()
	store, err := cache.New(t.TempDir(), cache.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatal(err)
	}
	fetcher := download.NewFetcher(store, dl, download.WithArtworkURL(nil))
	return NewManager(res, fetcher, zaptest.NewLogger(t)), store, fetcher
}

func testManifest() *model.Manifest {
	return &model.Manifest{
		URL:   "https://www.youtube.com/playlist?list=PLabcdefghij",
		Title: "Mix",
		Tracks: []model.TrackInfo{
			{ID: "aaaaaaaaaaa", Title: "First"},
			{ID: "bbbbbbbbbbb", Title: "Second"},
			{ID: "ccccccccccc", Title: "Third"},
		},
	}
}

func TestOpen(t *testing.T) {
	unavailable := apperrors.ResolverUnavailable("no API key", nil)

	tests := []struct {
		name     string
		resolver *fakeResolver
		wantKind apperrors.Kind
	}{
		{"ok", &fakeResolver{manifest: testManifest()}, ""},
		{"empty playlist", &fakeResolver{manifest: &model.Manifest{}}, apperrors.KindNotFound},
		{"resolver down", &fakeResolver{err: unavailable}, apperrors.KindResolverUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newFixture(t, &slowDownloader{calls: map[string]int{}}, tt.resolver)

			got, err := m.Open(context.Background(), "https://www.youtube.com/playlist?list=PLabcdefghij")
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				if got.Len() != 3 {
					t.Errorf("Len = %d", got.Len())
				}
				return
			}
			if got != nil || !apperrors.IsKind(err, tt.wantKind) {
				t.Errorf("Open = %v, %v; want kind %s", got, err, tt.wantKind)
			}
		})
	}
}

func TestTrackAtOutOfRangePanics(t *testing.T) {
	m, _, _ := newFixture(t, &slowDownloader{calls: map[string]int{}}, &fakeResolver{})

	for _, i := range []int{-1, 3} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("TrackAt(%d) did not panic", i)
				}
			}()
			m.TrackAt(context.Background(), testManifest(), i)
		}()
	}
}

func TestTrackAtDownloadsOnceThenHits(t *testing.T) {
	dl := &slowDownloader{calls: map[string]int{}}
	m, _, _ := newFixture(t, dl, &fakeResolver{})
	manifest := testManifest()

	for i := 0; i < 2; i++ {
		e, err := m.TrackAt(context.Background(), manifest, 1)
		if err != nil {
			t.Fatal(err)
		}
		if e.ID != "bbbbbbbbbbb" || e.Title != "Second" {
			t.Errorf("entry = %+v", e)
		}
	}
	if dl.total != 1 {
		t.Errorf("downloads = %d, want 1", dl.total)
	}
}

func TestResolveFallsBackToBareID(t *testing.T) {
	tests := []struct {
		name      string
		resolver  *fakeResolver
		input     string
		wantTitle string
		wantErr   bool
	}{
		{"metadata from resolver", &fakeResolver{video: model.TrackInfo{ID: "dQw4w9WgXcQ", Title: "Rick"}}, "https://youtu.be/dQw4w9WgXcQ", "Rick", false},
		{"resolver unavailable", &fakeResolver{err: apperrors.ResolverUnavailable("no key", nil)}, "dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"resolver not found", &fakeResolver{err: apperrors.NotFound("gone")}, "dQw4w9WgXcQ", "", true},
		{"not an id", &fakeResolver{}, "hello world", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newFixture(t, &slowDownloader{calls: map[string]int{}}, tt.resolver)

			e, err := m.Resolve(context.Background(), tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && e.DisplayTitle() != tt.wantTitle {
				t.Errorf("title = %q, want %q", e.DisplayTitle(), tt.wantTitle)
			}
		})
	}
}

func TestSessionCursorObservers(t *testing.T) {
	m, _, _ := newFixture(t, &slowDownloader{calls: map[string]int{}}, &fakeResolver{})
	s := m.NewSession(testManifest())

	var seen []int
	s.OnCursor(func(i int) { seen = append(seen, i) })

	if s.Cursor() != -1 {
		t.Errorf("initial cursor = %d", s.Cursor())
	}
	for _, i := range []int{0, 0, 2} {
		if _, err := s.EntryAt(context.Background(), i); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 2 {
		t.Errorf("observed %v, want [0 2]", seen)
	}
	if s.Len() != 3 || s.Cursor() != 2 {
		t.Errorf("Len = %d, Cursor = %d", s.Len(), s.Cursor())
	}
}

func TestForegroundAndPrefetchShareOneDownload(t *testing.T) {
	dl := &slowDownloader{calls: map[string]int{}, gate: make(chan struct{})}
	m, store, fetcher := newFixture(t, dl, &fakeResolver{})
	manifest := testManifest()

	p := prefetch.New(store, fetcher)
	defer p.Stop()
	p.Start(context.Background(), manifest, 0, 1) // prefetches index 1

	deadline := time.Now().Add(2 * time.Second)
	for !p.IsInFlight("bbbbbbbbbbb") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.TrackAt(context.Background(), manifest, 1)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(dl.gate)

	if err := <-done; err != nil {
		t.Fatalf("TrackAt: %v", err)
	}
	p.Wait()

	dl.mu.Lock()
	calls := dl.calls[model.WatchURLPrefix+"bbbbbbbbbbb"]
	dl.mu.Unlock()
	if calls != 1 {
		t.Errorf("downloads of index 1 = %d, want 1", calls)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("cache holds %d entries, want 1", len(entries))
	}
}

func TestOpenPropagatesContextError(t *testing.T) {
	m, _, _ := newFixture(t, &slowDownloader{calls: map[string]int{}}, &fakeResolver{err: context.Canceled})
	if _, err := m.Open(context.Background(), "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
