package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/toolshelf/internal/storage"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBackup(t *testing.T, maxGenerations int) (*Service, *storage.Store, *testClock) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &testClock{t: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)}
	svc := NewService(store.DB(), filepath.Join(t.TempDir(), "backups"), maxGenerations, WithClock(clock.Now))
	return svc, store, clock
}

func addTool(t *testing.T, store *storage.Store, id, name string) {
	t.Helper()
	if _, err := store.CreateTool(context.Background(), storage.Tool{ID: id, Name: name, Filepath: id + "/index.html"}); err != nil {
		t.Fatalf("CreateTool: %v", err)
	}
}

func TestCreateAndList(t *testing.T) {
	svc, store, _ := newTestBackup(t, 3)
	addTool(t, store, "t1", "Timer")

	info, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if info.Filename != "tools_20240601_103000.db" {
		t.Errorf("Filename = %q", info.Filename)
	}
	if info.SizeBytes == 0 || info.SizeHuman == "" {
		t.Errorf("size = %d (%q)", info.SizeBytes, info.SizeHuman)
	}
	if !info.CreatedAt.Equal(time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", info.CreatedAt)
	}

	list, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Filename != info.Filename {
		t.Errorf("List = %+v", list)
	}
}

func TestCreate_SameSecondRejected(t *testing.T) {
	svc, _, _ := newTestBackup(t, 3)
	if _, err := svc.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(context.Background()); !errors.Is(err, ErrBackupExists) {
		t.Fatalf("second Create = %v, want ErrBackupExists", err)
	}
}

func TestCreate_RotatesOldest(t *testing.T) {
	svc, _, clock := newTestBackup(t, 3)
	ctx := context.Background()

	var names []string
	for i := 0; i < 5; i++ {
		info, err := svc.Create(ctx)
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		names = append(names, info.Filename)
		clock.Advance(time.Hour)
	}

	list, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("backups = %d, want 3", len(list))
	}
	for i, want := range []string{names[4], names[3], names[2]} {
		if list[i].Filename != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Filename, want)
		}
	}
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	svc, _, _ := newTestBackup(t, 3)
	if err := os.MkdirAll(svc.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"notes.txt", "tools_latest.db"} {
		if err := os.WriteFile(filepath.Join(svc.dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	list, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List = %+v, want empty", list)
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"tools_20240101_000000.db", true},
		{"../tools_20240101_000000.db", false},
		{"sub/tools_20240101_000000.db", false},
		{`sub\tools_20240101_000000.db`, false},
		{"tools_2024_000000.db", false},
		{"tools_20240101_000000.db.bak", false},
		{"", false},
	}
	for _, tt := range tests {
		err := ValidateFilename(tt.name)
		if tt.ok && err != nil {
			t.Errorf("ValidateFilename(%q) = %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidFilename) {
			t.Errorf("ValidateFilename(%q) = %v, want ErrInvalidFilename", tt.name, err)
		}
	}
}

func TestDelete(t *testing.T) {
	svc, _, _ := newTestBackup(t, 3)
	info, err := svc.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete("../etc/passwd"); !errors.Is(err, ErrInvalidFilename) {
		t.Errorf("Delete(traversal) = %v, want ErrInvalidFilename", err)
	}
	if err := svc.Delete("tools_19990101_000000.db"); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("Delete(missing) = %v, want ErrBackupNotFound", err)
	}
	if err := svc.Delete(info.Filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if list, _ := svc.List(); len(list) != 0 {
		t.Errorf("List after delete = %+v", list)
	}
}

func TestRestore_ReplacesRows(t *testing.T) {
	svc, store, clock := newTestBackup(t, 3)
	ctx := context.Background()

	addTool(t, store, "keep", "Stopwatch")
	if _, err := store.CreateSnapshot(ctx, "keep", "<p>v1</p>", storage.KindManual, nil); err != nil {
		t.Fatal(err)
	}
	info, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(time.Minute)

	addTool(t, store, "later", "Calendar")
	if _, _, err := store.DeleteTool(ctx, "keep"); err != nil {
		t.Fatal(err)
	}

	if err := svc.Restore(ctx, info.Filename); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if _, err := store.GetTool(ctx, "keep"); err != nil {
		t.Errorf("restored tool missing: %v", err)
	}
	if _, err := store.GetTool(ctx, "later"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tool created after backup survived restore: %v", err)
	}
	if n, _ := store.CountSnapshots(ctx, "keep"); n != 1 {
		t.Errorf("snapshots = %d, want 1", n)
	}

	found, err := store.SearchTools(ctx, "stopwatch", storage.ListOptions{})
	if err != nil {
		t.Fatalf("SearchTools: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("search after restore = %d results, want 1", len(found))
	}
	gone, err := store.SearchTools(ctx, "calendar", storage.ListOptions{})
	if err != nil {
		t.Fatalf("SearchTools: %v", err)
	}
	if len(gone) != 0 {
		t.Errorf("search index kept removed tool")
	}
}

func TestRestore_CorruptBackupLeavesDatabase(t *testing.T) {
	svc, store, _ := newTestBackup(t, 3)
	ctx := context.Background()
	addTool(t, store, "t1", "Live")

	if err := os.MkdirAll(svc.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	name := "tools_20240101_000000.db"
	if err := os.WriteFile(filepath.Join(svc.dir, name), []byte("definitely not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := svc.Restore(ctx, name); err == nil {
		t.Fatal("Restore of corrupt file succeeded")
	}
	if _, err := store.GetTool(ctx, "t1"); err != nil {
		t.Errorf("live data lost: %v", err)
	}
}

func TestRestore_Validation(t *testing.T) {
	svc, _, _ := newTestBackup(t, 3)
	ctx := context.Background()
	if err := svc.Restore(ctx, "tools.db"); !errors.Is(err, ErrInvalidFilename) {
		t.Errorf("Restore(bad name) = %v, want ErrInvalidFilename", err)
	}
	if err := svc.Restore(ctx, "tools_20240101_000000.db"); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("Restore(missing) = %v, want ErrBackupNotFound", err)
	}
}

func TestScheduler_BacksUpOnStartup(t *testing.T) {
	svc, _, _ := newTestBackup(t, 3)
	sched := NewScheduler(svc, time.Hour, true)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sched.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		list, err := svc.List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no startup backup was created")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
