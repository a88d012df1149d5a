package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestFilePersisterPreservesUnrelatedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	initial := `{"access_token":"old","refresh_token":"old-r","custom_field":"keep me","nested":{"a":1}}`
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewFilePersister(path)
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := p.Save(context.Background(), Stored{AccessToken: "new", RefreshToken: "new-r", LastUpdated: updated}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}

	if doc["custom_field"] != "keep me" {
		t.Errorf("custom_field = %v", doc["custom_field"])
	}
	if nested, _ := doc["nested"].(map[string]any); nested["a"] != float64(1) {
		t.Errorf("nested = %v", doc["nested"])
	}
	if doc["access_token"] != "new" || doc["refresh_token"] != "new-r" {
		t.Errorf("tokens = %v / %v", doc["access_token"], doc["refresh_token"])
	}
	if doc["last_updated"] != "2025-06-01T12:00:00Z" {
		t.Errorf("last_updated = %v", doc["last_updated"])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestFilePersisterCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "auth.json")
	p := NewFilePersister(path)

	if _, err := p.Load(context.Background()); !errors.Is(err, ErrNotPersisted) {
		t.Fatalf("Load on missing file: %v", err)
	}
	if err := p.Save(context.Background(), Stored{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := p.Load(context.Background())
	if err != nil || got.RefreshToken != "r" {
		t.Errorf("Load = %+v, %v", got, err)
	}
}

func TestFilePersisterReplacesCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewFilePersister(path)
	if _, err := p.Load(context.Background()); err == nil || errors.Is(err, ErrNotPersisted) {
		t.Fatalf("Load = %v, want parse error", err)
	}
	if err := p.Save(context.Background(), Stored{RefreshToken: "r"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, err := p.Load(context.Background()); err != nil || got.RefreshToken != "r" {
		t.Errorf("Load = %+v, %v", got, err)
	}
}

func TestFilePersisterClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte(`{"refresh_token":"r","custom_field":1}`), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewFilePersister(path)
	if err := p.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := p.Load(context.Background()); !errors.Is(err, ErrNotPersisted) {
		t.Errorf("Load after Clear: %v", err)
	}

	data, _ := os.ReadFile(path)
	var doc map[string]any
	_ = json.Unmarshal(data, &doc)
	if doc["custom_field"] != float64(1) {
		t.Errorf("custom_field lost: %s", data)
	}

	if err := NewFilePersister(filepath.Join(t.TempDir(), "none.json")).Clear(context.Background()); err != nil {
		t.Errorf("Clear on missing file: %v", err)
	}
}

func TestKeyringPersister(t *testing.T) {
	keyring.MockInit()

	p := NewKeyringPersister("droidproxy-test", "default")
	ctx := context.Background()

	if _, err := p.Load(ctx); !errors.Is(err, ErrNotPersisted) {
		t.Fatalf("Load on empty keyring: %v", err)
	}

	if err := keyring.Set("droidproxy-test", "default", `{"refresh_token":"old","custom_field":"x"}`); err != nil {
		t.Fatal(err)
	}
	if err := p.Save(ctx, Stored{AccessToken: "a", RefreshToken: "new"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	secret, err := keyring.Get("droidproxy-test", "default")
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(secret), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["custom_field"] != "x" || doc["refresh_token"] != "new" {
		t.Errorf("secret = %s", secret)
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := p.Load(ctx); !errors.Is(err, ErrNotPersisted) {
		t.Errorf("Load after Clear: %v", err)
	}
}
