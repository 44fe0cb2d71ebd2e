package statestore

import (
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	in := map[string]any{"collapsed": true, "mode": "single"}
	if err := store.Set("uiState_7", in); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var out map[string]any
	ok, err := store.Get("uiState_7", &out)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() = false; want true")
	}
	if out["mode"] != "single" {
		t.Fatalf("Get() mode = %v; want single", out["mode"])
	}
}

func TestGetMissingKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var out map[string]any
	ok, err := store.Get("viewMode_99", &out)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() = true for missing key; want false")
	}
}

func TestRemoveToleratesMissingKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := store.Set("checklistState_7", []string{"a"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Remove("checklistState_7", "uiState_7", "viewMode_7"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	var out []string
	ok, err := store.Get("checklistState_7", &out)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() = true after Remove(); want false")
	}
}

func TestOnChangeFiresForSetAndRemove(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var changed []string
	store.OnChange(func(key string) { changed = append(changed, key) })

	if err := store.Set("viewMode_7", "single"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Remove("viewMode_7"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if len(changed) != 2 || changed[0] != "viewMode_7" || changed[1] != "viewMode_7" {
		t.Fatalf("change notifications = %v; want two for viewMode_7", changed)
	}
}

func TestRejectsInvalidKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := store.Set("../escape", 1); err == nil {
		t.Fatal("Set() = nil error for path-traversal key; want error")
	}
	if _, err := store.Get("", nil); err == nil {
		t.Fatal("Get() = nil error for empty key; want error")
	}
}
