package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/logging"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5}, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates nested directory", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "a", "b", "macs.db")
		s := openTestStore(t, path)

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if s.Path() != path {
			t.Errorf("Path() = %q, want %q", s.Path(), path)
		}
	})

	t.Run("without WAL", func(t *testing.T) {
		t.Parallel()

		s, err := Open(Config{Path: filepath.Join(t.TempDir(), "macs.db"), BusyTimeout: 1}, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer s.Close() //nolint:errcheck // test cleanup

		if err := s.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})
}

func TestHealthCheck_Closed(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "macs.db")}, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on closed store = nil, want error")
	}
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "macs.db"))

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	for _, kv := range [][2]string{
		{"macs_mood", "happy"},
		{"macs_brightness", "40"},
		{"macs_mood", "thinking"},
	} {
		if err := s.Save(ctx, kv[0], kv[1]); err != nil {
			t.Fatalf("Save(%q) error = %v", kv[0], err)
		}
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]string{"macs_mood": "thinking", "macs_brightness": "40"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	var ts int64
	if err := s.db.QueryRowContext(ctx, "SELECT updated_at FROM entity_state WHERE entity_id = ?", "macs_mood").Scan(&ts); err != nil {
		t.Fatalf("query updated_at: %v", err)
	}
	if ts != fixed.Unix() {
		t.Errorf("updated_at = %d, want %d", ts, fixed.Unix())
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "macs.db")

	first, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5}, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cat := catalog.Default()
	cat.Subscribe(first)

	mood, _ := cat.Get(catalog.IDMood)
	mood.Set("sleeping")
	charging, _ := cat.Get(catalog.IDCharging)
	charging.Set(true)
	bright, _ := cat.Get(catalog.IDBrightness)
	bright.Set(250)

	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := openTestStore(t, path)
	restored := catalog.Default()
	if err := second.RestoreCatalog(ctx, restored); err != nil {
		t.Fatalf("RestoreCatalog() error = %v", err)
	}

	for id, want := range map[string]string{
		catalog.IDMood:       "sleeping",
		catalog.IDCharging:   catalog.StateOn,
		catalog.IDBrightness: "100",
		catalog.IDDebug:      "None",
	} {
		e, _ := restored.Get(id)
		if e.State() != want {
			t.Errorf("%s State() = %q, want %q", id, e.State(), want)
		}
	}
}

func TestRestoreCatalog_InvalidKeepsDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var buf bytes.Buffer
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "macs.db")}, logging.NewWithWriter(logging.LevelWarn, &buf))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close() //nolint:errcheck // test cleanup

	if err := s.Save(ctx, catalog.IDMood, "furious"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, catalog.IDAnimationsEnabled, "maybe"); err != nil {
		t.Fatal(err)
	}

	c := catalog.Default()
	if err := s.RestoreCatalog(ctx, c); err != nil {
		t.Fatalf("RestoreCatalog() error = %v", err)
	}

	mood, _ := c.Get(catalog.IDMood)
	if mood.State() != "idle" {
		t.Errorf("mood State() = %q, want idle", mood.State())
	}
	anim, _ := c.Get(catalog.IDAnimationsEnabled)
	if anim.State() != catalog.StateOn {
		t.Errorf("animations State() = %q, want on", anim.State())
	}
	if !strings.Contains(buf.String(), "Ignoring invalid persisted state") {
		t.Errorf("expected warning in log, got %q", buf.String())
	}
}

func TestEntityChanged_PersistsNotifiedState(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "macs.db"))
	c := catalog.Default()
	e, _ := c.Get(catalog.IDMood)
	e.Set("happy")

	// The store writes the state it is handed, not the current one.
	s.EntityChanged(e, "sad")

	states, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if states[catalog.IDMood] != "sad" {
		t.Errorf("persisted state = %q, want sad", states[catalog.IDMood])
	}
}
