package modelstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// storeContract exercises the behaviour every Store backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	blob, found, err := s.Load(ctx, "solar")
	if err != nil {
		t.Fatalf("Load unknown key returned error: %v", err)
	}
	if found || blob != nil {
		t.Fatalf("Load unknown key = (%q, %v), want absent", blob, found)
	}

	if err := s.Save(ctx, "solar", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	blob, found, err = s.Load(ctx, "solar")
	if err != nil || !found {
		t.Fatalf("Load after Save = found %v, err %v", found, err)
	}
	if string(blob) != `{"v":1}` {
		t.Errorf("Load = %q", blob)
	}

	// saving twice is an overwrite
	for range 2 {
		if err := s.Save(ctx, "solar", []byte(`{"v":2}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	blob, _, _ = s.Load(ctx, "solar")
	if string(blob) != `{"v":2}` {
		t.Errorf("Load after overwrite = %q", blob)
	}

	if _, _, err := s.Load(ctx, "../etc/passwd"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for path-like key, got %v", err)
	}
	if err := s.Save(ctx, "", nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty key, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	storeContract(t, s)
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestMemoryStore_CopiesBlobs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	in := []byte("abc")
	if err := s.Save(ctx, "load", in); err != nil {
		t.Fatal(err)
	}
	in[0] = 'X'

	out, _, _ := s.Load(ctx, "load")
	if string(out) != "abc" {
		t.Errorf("stored blob aliased caller slice: %q", out)
	}
}

func TestMemoryStore_ContextCanceled(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Save(ctx, "solar", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Save error = %v, want context.Canceled", err)
	}
	if _, _, err := s.Load(ctx, "solar"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load error = %v, want context.Canceled", err)
	}
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	storeContract(t, s)

	if _, err := os.Stat(filepath.Join(dir, "solar.json")); err != nil {
		t.Errorf("expected solar.json on disk: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, _ := NewFileStore(dir)
	if err := first.Save(ctx, "load", []byte("state")); err != nil {
		t.Fatal(err)
	}

	second, _ := NewFileStore(dir)
	blob, found, err := second.Load(ctx, "load")
	if err != nil || !found || string(blob) != "state" {
		t.Errorf("reopened Load = (%q, %v, %v)", blob, found, err)
	}
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

type countingStore struct {
	*MemoryStore
	loads   int
	failing bool
}

func (c *countingStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	c.loads++
	return c.MemoryStore.Load(ctx, key)
}

func (c *countingStore) Save(ctx context.Context, key string, blob []byte) error {
	if c.failing {
		return errors.New("backend down")
	}
	return c.MemoryStore.Save(ctx, key, blob)
}

func TestCachedStore(t *testing.T) {
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	s, err := NewCachedStore(backend, 4)
	if err != nil {
		t.Fatalf("NewCachedStore failed: %v", err)
	}
	storeContract(t, s)
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	_ = backend.MemoryStore.Save(ctx, "solar", []byte("v1"))

	s, _ := NewCachedStore(backend, 4)
	for range 3 {
		blob, found, err := s.Load(ctx, "solar")
		if err != nil || !found || string(blob) != "v1" {
			t.Fatalf("Load = (%q, %v, %v)", blob, found, err)
		}
	}
	if backend.loads != 1 {
		t.Errorf("backend loads = %d, want 1", backend.loads)
	}
	if s.Len() != 1 {
		t.Errorf("cache Len = %d, want 1", s.Len())
	}
}

func TestCachedStore_FailedSaveInvalidates(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	s, _ := NewCachedStore(backend, 4)

	if err := s.Save(ctx, "solar", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	backend.failing = true
	if err := s.Save(ctx, "solar", []byte("v2")); err == nil {
		t.Fatal("expected save error")
	}

	blob, _, _ := s.Load(ctx, "solar")
	if string(blob) != "v1" {
		t.Errorf("Load = %q, want backend value v1", blob)
	}
}

func TestNewCachedStore_InvalidSize(t *testing.T) {
	if _, err := NewCachedStore(NewMemoryStore(), 0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "solar")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("observed %d concurrent holders, want 1", maxSeen)
	}
	if l.Len() != 0 {
		t.Errorf("locker retained %d entries after release", l.Len())
	}
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlockSolar, err := l.Lock(ctx, "solar")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockSolar()

	done := make(chan struct{})
	go func() {
		unlock, err := l.Lock(ctx, "load")
		if err == nil {
			unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "solar")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "solar"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock error = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock() // second call is a no-op

	if l.Len() != 0 {
		t.Errorf("locker retained %d entries", l.Len())
	}
}
