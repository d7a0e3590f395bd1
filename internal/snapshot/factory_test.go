package snapshot

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/supplychain/notifyconsole/internal/notify"
)

func sampleSnapshot() []notify.StoredNotification {
	return []notify.StoredNotification{
		{
			NormalizedEvent: notify.NormalizedEvent{
				ID:        "n-2",
				Type:      "LOW_STOCK",
				Message:   "Widget below threshold",
				Recipient: "ops@example.com",
				Timestamp: "2025-01-02T10:00:00Z",
				Raw:       notify.RecordPayload{"notificationId": "n-2", "type": "LOW_STOCK"},
			},
			Read: true,
		},
		{
			NormalizedEvent: notify.NormalizedEvent{
				ID:        "n-1",
				Type:      notify.UnknownType,
				Message:   "plain text",
				Timestamp: "2025-01-02T09:00:00Z",
				Raw:       notify.StringPayload("plain text"),
			},
		},
	}
}

func assertSampleSnapshot(t *testing.T, got []notify.StoredNotification) {
	t.Helper()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "n-2" || !got[0].Read || got[0].Recipient != "ops@example.com" {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].ID != "n-1" || got[1].Read {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
	if raw, ok := got[1].Raw.(notify.StringPayload); !ok || raw != "plain text" {
		t.Fatalf("expected string raw payload to survive, got %#v", got[1].Raw)
	}
	if raw, ok := got[0].Raw.(notify.RecordPayload); !ok || raw["type"] != "LOW_STOCK" {
		t.Fatalf("expected record raw payload to survive, got %#v", got[0].Raw)
	}
}

func TestBuildFromDSNMemory(t *testing.T) {
	backend, err := BuildFromDSN("memory://")
	if err != nil {
		t.Fatalf("build memory backend failed: %v", err)
	}
	loaded, err := backend.Load()
	if err != nil || loaded != nil {
		t.Fatalf("expected empty initial load, got %v, %v", loaded, err)
	}
	if err := backend.Save(sampleSnapshot()); err != nil {
		t.Fatalf("memory backend save failed: %v", err)
	}
	loaded, err = backend.Load()
	if err != nil {
		t.Fatalf("memory backend load failed: %v", err)
	}
	assertSampleSnapshot(t, loaded)
}

func TestBuildFromDSNFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	backend, err := BuildFromDSN("file://" + path)
	if err != nil {
		t.Fatalf("build file backend failed: %v", err)
	}
	if fb, ok := backend.(*FileBackend); !ok || fb.Path != path {
		t.Fatalf("expected file backend at %s, got %#v", path, backend)
	}
	if err := backend.Save(sampleSnapshot()); err != nil {
		t.Fatalf("file backend save failed: %v", err)
	}
	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("file backend load failed: %v", err)
	}
	assertSampleSnapshot(t, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the snapshot file to remain, got %d entries", len(entries))
	}
}

func TestBuildFromDSNRelativePaths(t *testing.T) {
	backend, err := BuildFromDSN(".notifyconsole/ui_notifications_v1.json")
	if err != nil {
		t.Fatalf("build plain path backend failed: %v", err)
	}
	if fb := backend.(*FileBackend); fb.Path != ".notifyconsole/ui_notifications_v1.json" {
		t.Fatalf("unexpected plain path %q", fb.Path)
	}
	backend, err = BuildFromDSN("file://state/ui.json")
	if err != nil {
		t.Fatalf("build relative file backend failed: %v", err)
	}
	if fb := backend.(*FileBackend); fb.Path != "state/ui.json" {
		t.Fatalf("unexpected relative file path %q", fb.Path)
	}
}

func TestBuildFromDSNEmpty(t *testing.T) {
	backend, err := BuildFromDSN("  ")
	if err != nil || backend != nil {
		t.Fatalf("expected nil backend for empty dsn, got %v, %v", backend, err)
	}
}

func TestBuildFromDSNPostgresAndUnsupported(t *testing.T) {
	backend, err := BuildFromDSN("postgres://localhost/notify?sslmode=disable&key=console-a")
	if err != nil {
		t.Fatalf("expected postgres backend to be available, got %v", err)
	}
	pg, ok := backend.(*PostgresBackend)
	if !ok {
		t.Fatalf("expected *PostgresBackend, got %T", backend)
	}
	if pg.key != "console-a" {
		t.Fatalf("expected key console-a, got %q", pg.key)
	}
	if pg.dsn != "postgres://localhost/notify?sslmode=disable" {
		t.Fatalf("expected key param stripped from dsn, got %q", pg.dsn)
	}
	if _, err := BuildFromDSN("mysql://localhost/notify"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected not implemented error for mysql, got %v", err)
	}
	if _, err := BuildFromDSN("ftp://example.com/x"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestBuildFromDSNRedis(t *testing.T) {
	backend, err := BuildFromDSN("redis://localhost:6379/2?key=console-b")
	if err != nil {
		t.Fatalf("build redis backend failed: %v", err)
	}
	rb, ok := backend.(*RedisBackend)
	if !ok {
		t.Fatalf("expected *RedisBackend, got %T", backend)
	}
	defer rb.Close()
	if rb.key != "console-b" {
		t.Fatalf("expected key console-b, got %q", rb.key)
	}
	if got := rb.client.Options().DB; got != 2 {
		t.Fatalf("expected redis db 2, got %d", got)
	}
}

func TestRegisterFactory(t *testing.T) {
	scheme := "snapshottestcustom"
	calls := 0
	RegisterFactory(scheme, func(dsn string) (Backend, error) {
		calls++
		return NewMemoryBackend(), nil
	})
	backend, err := BuildFromDSN(scheme + "://example")
	if err != nil {
		t.Fatalf("build backend via registered factory failed: %v", err)
	}
	if backend == nil || calls != 1 {
		t.Fatalf("expected registered factory to be used once, got backend=%v calls=%d", backend, calls)
	}
}

func TestSplitKey(t *testing.T) {
	parsed, _ := url.Parse("redis://h:1/0")
	clean, key := splitKey(parsed)
	if clean != "redis://h:1/0" || key != "" {
		t.Fatalf("unexpected split result %q %q", clean, key)
	}
}
