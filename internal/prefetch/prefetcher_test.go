package prefetch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/download"
	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/model"
)

// memStore is an in-memory cache whose Fetch marks ids as cached.
type memStore struct {
	mu      sync.Mutex
	cached  map[string]bool
	fetched []string
	fail    map[string]bool
	gate    chan struct{}
	started chan string
}

func newMemStore() *memStore {
	return &memStore{cached: map[string]bool{}, fail: map[string]bool{}, started: make(chan string, 16)}
}

func (m *memStore) Resolve(id string) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached[id] {
		return &cache.Entry{ID: id}, nil
	}
	return nil, apperrors.NotFound("%s", id)
}

func (m *memStore) Fetch(ctx context.Context, info model.TrackInfo, mode download.Mode) (*cache.Entry, error) {
	if mode != download.Background {
		return nil, fmt.Errorf("unexpected mode %s", mode)
	}
	m.started <- info.ID
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, info.ID)
	if m.fail[info.ID] {
		return nil, apperrors.DownloadFailed(apperrors.DownloadNetwork, "HTTP Error 503", nil)
	}
	m.cached[info.ID] = true
	return &cache.Entry{ID: info.ID}, nil
}

func (m *memStore) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.fetched...)
	sort.Strings(out)
	return out
}

func manifestOf(n int) *model.Manifest {
	m := &model.Manifest{URL: "https://www.youtube.com/playlist?list=PLtest"}
	for i := 0; i < n; i++ {
		m.Tracks = append(m.Tracks, model.NewTrackInfo(fmt.Sprintf("t%d", i)))
	}
	return m
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWindowFromStart(t *testing.T) {
	store := newMemStore()
	p := New(store, store, WithLogger(zaptest.NewLogger(t)))
	defer p.Stop()

	p.Start(context.Background(), manifestOf(5), 0, 3)
	p.Wait()

	if got, want := store.Fetched(), []string{"t1", "t2", "t3"}; !equal(got, want) {
		t.Errorf("fetched %v, want %v", got, want)
	}
	if st := p.Status(); st.Window != [2]int{1, 4} || st.Done != 3 {
		t.Errorf("status = %+v", st)
	}

	p.Advance(1)
	p.Wait()
	if got, want := store.Fetched(), []string{"t1", "t2", "t3", "t4"}; !equal(got, want) {
		t.Errorf("after advance fetched %v, want %v", got, want)
	}
}

func TestWindowClampedAtEnd(t *testing.T) {
	tests := []struct {
		name   string
		cursor int
		n      int
		window [2]int
		want   []string
	}{
		{"last track", 4, 3, [2]int{5, 5}, nil},
		{"near end", 3, 3, [2]int{4, 5}, []string{"t4"}},
		{"zero n", 0, 0, [2]int{1, 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			p := New(store, store)
			defer p.Stop()

			p.Start(context.Background(), manifestOf(5), tt.cursor, tt.n)
			p.Wait()

			if got := store.Fetched(); !equal(got, tt.want) {
				t.Errorf("fetched %v, want %v", got, tt.want)
			}
			if st := p.Status(); st.Window != tt.window {
				t.Errorf("window = %v, want %v", st.Window, tt.window)
			}
		})
	}
}

func TestAdvanceDropsPendingButFinishesInFlight(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	p := New(store, store)
	defer p.Stop()

	p.Start(context.Background(), manifestOf(6), 0, 2)
	if id := <-store.started; id != "t1" {
		t.Fatalf("first download = %s", id)
	}

	p.Advance(3)
	st := p.Status()
	if !equal(st.Pending, []string{"t4", "t5"}) || !equal(st.InFlight, []string{"t1"}) {
		t.Errorf("status after advance = %+v", st)
	}

	close(store.gate)
	p.Wait()

	if got, want := store.Fetched(), []string{"t1", "t4", "t5"}; !equal(got, want) {
		t.Errorf("fetched %v, want %v", got, want)
	}
}

func TestCachedTracksSkipped(t *testing.T) {
	store := newMemStore()
	store.cached["t2"] = true
	p := New(store, store)
	defer p.Stop()

	p.Start(context.Background(), manifestOf(5), 0, 3)
	p.Wait()

	if got, want := store.Fetched(), []string{"t1", "t3"}; !equal(got, want) {
		t.Errorf("fetched %v, want %v", got, want)
	}
	if st := p.Status(); st.Skipped != 1 || st.Done != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestFailuresAreNotRetried(t *testing.T) {
	store := newMemStore()
	store.fail["t1"] = true
	p := New(store, store)
	defer p.Stop()

	m := manifestOf(5)
	p.Start(context.Background(), m, 0, 2)
	p.Wait()

	// t1 leaves the window and comes back.
	p.Advance(2)
	p.Wait()
	p.Advance(0)
	p.Wait()

	count := 0
	for _, id := range store.Fetched() {
		if id == "t1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("t1 attempted %d times, want 1", count)
	}
	if st := p.Status(); st.Failed != 1 {
		t.Errorf("Failed = %d, want 1", st.Failed)
	}
}

func TestStopAbandonsInFlight(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	p := New(store, store)

	p.Start(context.Background(), manifestOf(5), 0, 3)
	<-store.started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if got := store.Fetched(); len(got) != 0 {
		t.Errorf("fetched %v after stop", got)
	}
	if st := p.Status(); st.Running || len(st.Pending) != 0 {
		t.Errorf("status = %+v", st)
	}
	p.Wait()
}

func TestParentContextEndsWait(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	p := New(store, store)
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, manifestOf(5), 0, 3)
	<-store.started
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestWithWorkersClamped(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 1},
		{-3, 1},
		{2, 2},
		{10, MaxWorkers},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			p := New(nil, nil, WithWorkers(tt.in))
			if p.workers != tt.want {
				t.Errorf("workers = %d, want %d", p.workers, tt.want)
			}
		})
	}
}

func TestParallelWorkers(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	p := New(store, store, WithWorkers(3))
	defer p.Stop()

	p.Start(context.Background(), manifestOf(5), 0, 3)
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-store.started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d downloads started in parallel", len(seen))
		}
	}
	close(store.gate)
	p.Wait()

	if len(seen) != 3 {
		t.Errorf("started %v", seen)
	}
}
