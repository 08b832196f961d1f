package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/model"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := New(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// stage writes a fake download into a fresh staging dir.
func stage(t *testing.T, s *Store, id, ext string) string {
	t.Helper()
	dir, err := s.StagingDir(id)
	if err != nil {
		t.Fatalf("StagingDir: %v", err)
	}
	p := filepath.Join(dir, "audio."+ext)
	if err := os.WriteFile(p, []byte("ID3fake-audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func visibleNames(t *testing.T, dir string) []string {
	t.Helper()
	dirents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range dirents {
		names = append(names, d.Name())
	}
	return names
}

func TestPersistResolveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	info := model.TrackInfo{ID: "dQw4w9WgXcQ", Title: "Never: Gonna/Give", Uploader: "Rick", Duration: model.IntPtr(213)}

	staged := stage(t, s, info.ID, "mp3")
	persisted, err := s.Persist(info, staged)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	wantDir := filepath.Join(s.Root(), "Never GonnaGive [dQw4w9Wg]")
	if persisted.Dir != wantDir {
		t.Errorf("Dir = %q, want %q", persisted.Dir, wantDir)
	}

	got, err := s.Resolve(info.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Layout != LayoutPerTrack {
		t.Errorf("Layout = %v", got.Layout)
	}
	st, err := os.Stat(got.AudioPath)
	if err != nil || st.Size() == 0 {
		t.Fatalf("audio missing or empty: %v", err)
	}
	if filepath.Base(got.AudioPath) != "audio.mp3" {
		t.Errorf("audio name = %q", filepath.Base(got.AudioPath))
	}
	if got.Title != info.Title || got.Uploader != "Rick" || got.Duration == nil || *got.Duration != 213 {
		t.Errorf("metadata = %+v", got)
	}
	if got.SourceURL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("SourceURL = %q", got.SourceURL)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("staged file should have been moved")
	}
}

func TestResolveMiss(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Resolve("missing123")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPersistIdempotent(t *testing.T) {
	s := newTestStore(t)
	info := model.TrackInfo{ID: "abcdefghijk", Title: "Song"}

	first, err := s.Persist(info, stage(t, s, info.ID, "mp3"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Persist(info, stage(t, s, info.ID, "m4a"))
	if err != nil {
		t.Fatalf("second Persist should succeed: %v", err)
	}
	if second.AudioPath != first.AudioPath {
		t.Errorf("second persist created a new entry: %q vs %q", second.AudioPath, first.AudioPath)
	}
}

func TestConcurrentPersistSameID(t *testing.T) {
	s := newTestStore(t)
	info := model.TrackInfo{ID: "abcdefghijk", Title: "Race"}

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		paths[i] = stage(t, s, info.ID, "mp3")
	}
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			if _, err := s.Persist(info, p); err != nil {
				t.Errorf("Persist: %v", err)
			}
		}(p)
	}
	wg.Wait()

	folders := 0
	for _, name := range visibleNames(t, s.Root()) {
		if strings.HasSuffix(name, "[abcdefgh]") {
			folders++
		}
	}
	if folders != 1 {
		t.Errorf("expected exactly one folder, found %d", folders)
	}
	if n := s.locks.size(); n != 0 {
		t.Errorf("lock table not drained: %d", n)
	}
}

func TestDeletePerTrackLeavesNoResidue(t *testing.T) {
	s := newTestStore(t)
	info := model.TrackInfo{ID: "abcdefghijk", Title: "Gone"}
	e, err := s.Persist(info, stage(t, s, info.ID, "mp3"))
	if err != nil {
		t.Fatal(err)
	}
	// Staging dirs are the downloader's to clean; drop them so the
	// residue check only sees what Delete left behind.
	for _, name := range visibleNames(t, s.Root()) {
		if strings.HasPrefix(name, stagingPrefix) {
			os.RemoveAll(filepath.Join(s.Root(), name))
		}
	}

	if err := s.Delete(e); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Resolve(info.ID); !apperrors.IsNotFound(err) {
		t.Errorf("Resolve after delete = %v, want NotFound", err)
	}
	if names := visibleNames(t, s.Root()); len(names) != 0 {
		t.Errorf("residue left in cache: %v", names)
	}
}

func TestDeleteLegacyPair(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s.Root(), "old", `{"id":"legacyid1","title":"Old Song"}`, "mp3")

	e, err := s.Resolve("legacyid1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := s.Delete(e); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if names := visibleNames(t, s.Root()); len(names) != 0 {
		t.Errorf("residue left in cache: %v", names)
	}
}

func TestDeleteLegacyRollsBack(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s.Root(), "old", `{"id":"legacyid1","title":"Old Song"}`, "mp3")
	e, err := s.Resolve("legacyid1")
	if err != nil {
		t.Fatal(err)
	}
	// Point the sidecar at a missing file so hiding it fails.
	e.SidecarPath = filepath.Join(s.Root(), "nope.json")

	err = s.Delete(e)
	if !apperrors.IsKind(err, apperrors.KindPartialFailure) {
		t.Fatalf("expected PartialFailure, got %v", err)
	}
	if _, err := s.Resolve("legacyid1"); err != nil {
		t.Errorf("entry should still resolve after rollback: %v", err)
	}
}

func TestRenamePerTrackKeepsSuffix(t *testing.T) {
	s := newTestStore(t)
	info := model.TrackInfo{ID: "abcdefghijk", Title: "Song"}
	e, err := s.Persist(info, stage(t, s, info.ID, "mp3"))
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := s.Rename(e, "New Title")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if filepath.Base(renamed.Dir) != "New Title [abcdefgh]" {
		t.Errorf("Dir = %q", filepath.Base(renamed.Dir))
	}
	if _, err := os.Stat(e.Dir); !os.IsNotExist(err) {
		t.Error("old folder still present")
	}

	got, err := s.Resolve(info.ID)
	if err != nil {
		t.Fatalf("Resolve after rename: %v", err)
	}
	if got.Title != "New Title" {
		t.Errorf("sidecar title = %q", got.Title)
	}
}

type recordingTagger struct {
	mu     sync.Mutex
	titles map[string]string
}

func (r *recordingTagger) SetTitle(path, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.titles == nil {
		r.titles = map[string]string{}
	}
	r.titles[path] = title
	return nil
}

func TestRenameRetagsMP3(t *testing.T) {
	tagger := &recordingTagger{}
	s := newTestStore(t, WithTagger(tagger))
	info := model.TrackInfo{ID: "abcdefghijk", Title: "Song"}
	e, err := s.Persist(info, stage(t, s, info.ID, "mp3"))
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := s.Rename(e, "Tagged")
	if err != nil {
		t.Fatal(err)
	}
	if tagger.titles[renamed.AudioPath] != "Tagged" {
		t.Errorf("tagger saw %v", tagger.titles)
	}
}

func TestRenameLegacyPair(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s.Root(), "legacyid1", `{"title":"Old Song"}`, "m4a")

	e, err := s.Resolve("legacyid1")
	if err != nil {
		t.Fatal(err)
	}
	renamed, err := s.Rename(e, "Fresh Name")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if filepath.Base(renamed.AudioPath) != "Fresh Name.m4a" || filepath.Base(renamed.SidecarPath) != "Fresh Name.json" {
		t.Errorf("renamed paths = %q, %q", renamed.AudioPath, renamed.SidecarPath)
	}

	got, err := s.Resolve("legacyid1")
	if err != nil {
		t.Fatalf("Resolve by id after legacy rename: %v", err)
	}
	if got.Title != "Fresh Name" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestListBothLayouts(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s.Root(), "old", `{"id":"legacyid1","title":"old"}`, "mp3")
	writeLegacy(t, s.Root(), "dup", `{"id":"abcdefghijk","title":"Shadowed"}`, "mp3")
	if _, err := s.Persist(model.TrackInfo{ID: "abcdefghijk", Title: "Beta"}, stage(t, s, "abcdefghijk", "mp3")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Persist(model.TrackInfo{ID: "zzzzzzzzzzz", Title: "alpha"}, stage(t, s, "zzzzzzzzzzz", "opus")); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, e := range entries {
		got = append(got, e.ID+":"+e.Layout.String())
	}
	want := []string{"zzzzzzzzzzz:per_track", "abcdefghijk:per_track", "legacyid1:legacy"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestLegacyEntryPlayable(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s.Root(), "old", `{"id":"legacyid1","title":"Old","duration":"3:33","webpage_url":"https://youtu.be/legacyid1"}`, "mp3")

	e, err := s.Resolve("legacyid1")
	if err != nil {
		t.Fatal(err)
	}
	if e.AudioPath != filepath.Join(s.Root(), "old.mp3") {
		t.Errorf("AudioPath = %q", e.AudioPath)
	}
	if e.Duration == nil || *e.Duration != 213 {
		t.Errorf("Duration = %v", e.Duration)
	}
	if e.SourceURL != "https://youtu.be/legacyid1" {
		t.Errorf("SourceURL = %q", e.SourceURL)
	}
}

func TestPartialFolderNotResolvedAndSwept(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.Root(), "Half [abcdefgh]")
	os.Mkdir(dir, 0755)
	os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"id":"abcdefghijk","title":"Half"}`), 0644)

	if _, err := s.Resolve("abcdefghijk"); !apperrors.IsNotFound(err) {
		t.Fatalf("partial entry resolved: %v", err)
	}
	if _, err := s.List(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("incomplete folder should be removed by List")
	}
}

func TestListSweepsStaleWorkDirs(t *testing.T) {
	s := newTestStore(t)
	stale := filepath.Join(s.Root(), ".staging-abc-old")
	fresh := filepath.Join(s.Root(), ".partial-new")
	os.Mkdir(stale, 0755)
	os.Mkdir(fresh, 0755)
	old := time.Now().Add(-2 * time.Hour)
	os.Chtimes(stale, old, old)

	if _, err := s.List(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale staging dir should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh partial dir should be kept")
	}
}

func TestLegacyOrphanKept(t *testing.T) {
	s := newTestStore(t)
	orphan := filepath.Join(s.Root(), "lonely.mp3")
	os.WriteFile(orphan, []byte("audio"), 0644)

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("orphan listed: %v", entries)
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Error("orphan audio must not be deleted")
	}
}

type fakeMeasurer struct {
	secs  int
	err   error
	calls int
}

func (f *fakeMeasurer) Measure(ctx context.Context, path string) (int, error) {
	f.calls++
	return f.secs, f.err
}

func TestResolveBackfillsDuration(t *testing.T) {
	tests := []struct {
		name     string
		measurer *fakeMeasurer
		want     *int
	}{
		{"measured", &fakeMeasurer{secs: 185}, model.IntPtr(185)},
		{"measure fails", &fakeMeasurer{err: errors.New("no ffprobe")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, WithMeasurer(tt.measurer))
			if _, err := s.Persist(model.TrackInfo{ID: "abcdefghijk", Title: "T"}, stage(t, s, "abcdefghijk", "mp3")); err != nil {
				t.Fatal(err)
			}

			e, err := s.Resolve("abcdefghijk")
			if err != nil {
				t.Fatalf("Resolve must succeed regardless of measurement: %v", err)
			}
			if (e.Duration == nil) != (tt.want == nil) || (e.Duration != nil && *e.Duration != *tt.want) {
				t.Errorf("Duration = %v, want %v", e.Duration, tt.want)
			}

			sc, err := readSidecar(e.SidecarPath)
			if err != nil {
				t.Fatal(err)
			}
			if (sc.Duration == nil) != (tt.want == nil) {
				t.Errorf("sidecar duration = %v, want %v", sc.Duration, tt.want)
			}
		})
	}
}

func TestPersistRejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	txt := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(txt, []byte("x"), 0644)
	empty := filepath.Join(t.TempDir(), "audio.mp3")
	os.WriteFile(empty, nil, 0644)

	tests := []struct {
		name string
		id   string
		path string
	}{
		{"bad id", "../escape", empty},
		{"unknown ext", "abcdefghijk", txt},
		{"empty audio", "abcdefghijk", empty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Persist(model.TrackInfo{ID: tt.id}, tt.path)
			if !apperrors.IsKind(err, apperrors.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPersistPrefixCollision(t *testing.T) {
	s := newTestStore(t)
	a := model.TrackInfo{ID: "abcdefgh111", Title: "Same"}
	b := model.TrackInfo{ID: "abcdefgh222", Title: "Same"}

	if _, err := s.Persist(a, stage(t, s, a.ID, "mp3")); err != nil {
		t.Fatal(err)
	}
	eb, err := s.Persist(b, stage(t, s, b.ID, "mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(eb.Dir) != "Same [abcdefgh222]" {
		t.Errorf("Dir = %q", filepath.Base(eb.Dir))
	}
	for _, id := range []string{a.ID, b.ID} {
		if _, err := s.Resolve(id); err != nil {
			t.Errorf("Resolve(%s): %v", id, err)
		}
	}
}

func TestDotLeadingTitles(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantDir string
	}{
		{"ellipsis", "...Baby One More Time", "Baby One More Time [C-u5WLJ9]"},
		{"single dot", ".hack//Sign OST", "hackSign OST [C-u5WLJ9]"},
		{"dots only", "...", "C-u5WLJ9Yk4 [C-u5WLJ9]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			info := model.TrackInfo{ID: "C-u5WLJ9Yk4", Title: tt.title}
			e, err := s.Persist(info, stage(t, s, info.ID, "mp3"))
			if err != nil {
				t.Fatalf("Persist: %v", err)
			}
			if filepath.Base(e.Dir) != tt.wantDir {
				t.Errorf("Dir = %q, want %q", filepath.Base(e.Dir), tt.wantDir)
			}
			got, err := s.Resolve(info.ID)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Title != tt.title {
				t.Errorf("Title = %q, want %q", got.Title, tt.title)
			}
			entries, err := s.List()
			if err != nil || len(entries) != 1 {
				t.Fatalf("List = %v, %v", entries, err)
			}
		})
	}
}

func TestRenameToDotLeadingTitle(t *testing.T) {
	s := newTestStore(t)
	info := model.TrackInfo{ID: "C-u5WLJ9Yk4", Title: "Sign"}
	e, err := s.Persist(info, stage(t, s, info.ID, "mp3"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Rename(e, ".hack//Sign OST"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, err := s.Resolve(info.ID)
	if err != nil {
		t.Fatalf("Resolve after rename: %v", err)
	}
	if got.Title != ".hack//Sign OST" {
		t.Errorf("Title = %q", got.Title)
	}
	if entries, _ := s.List(); len(entries) != 1 {
		t.Errorf("List len = %d, want 1", len(entries))
	}
}

func TestDotLeadingFolderFromOlderCacheResolves(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.Root(), "...Baby One More Time [C-u5WLJ9]")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "audio.mp3"), []byte("ID3audio"), 0644)
	os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"id":"C-u5WLJ9Yk4","title":"...Baby One More Time"}`), 0644)

	got, err := s.Resolve("C-u5WLJ9Yk4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Dir != dir {
		t.Errorf("Dir = %q", got.Dir)
	}
}

func TestPersistSkipsUnreadableShortSuffixFolder(t *testing.T) {
	s := newTestStore(t)
	foreign := filepath.Join(s.Root(), "Same [abcdefgh]")
	if err := os.Mkdir(foreign, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(foreign, "audio.mp3"), []byte("ID3audio"), 0644)
	os.WriteFile(filepath.Join(foreign, "meta.json"), []byte("{not json"), 0644)

	info := model.TrackInfo{ID: "abcdefgh222", Title: "Same"}
	e, err := s.Persist(info, stage(t, s, info.ID, "mp3"))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if filepath.Base(e.Dir) != "Same [abcdefgh222]" {
		t.Errorf("Dir = %q", filepath.Base(e.Dir))
	}
	if _, err := os.Stat(filepath.Join(foreign, "audio.mp3")); err != nil {
		t.Error("unreadable folder of another id was removed")
	}
}

func TestDiscardStagingGuardsPath(t *testing.T) {
	s := newTestStore(t)
	if err := s.DiscardStaging(s.Root()); err == nil {
		t.Error("discarding the cache root must fail")
	}
	dir, _ := s.StagingDir("abcdefghijk")
	if err := s.DiscardStaging(dir); err != nil {
		t.Errorf("DiscardStaging: %v", err)
	}
}

func writeLegacy(t *testing.T, root, base, meta, ext string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, base+".json"), []byte(meta), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, base+"."+ext), []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
}
