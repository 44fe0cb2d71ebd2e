package hub

import (
	"errors"
	"sort"
	"testing"
)

func TestTabRemovedClosesWindowsOncePerDistinctWindow(t *testing.T) {
	env := newTestHub(t, Options{})
	env.attachContent(t, 7)
	env.attachPopout(t, 7, 10)
	env.attachPopout(t, 7, 10) // second channel in the same window
	env.attachPopout(t, 7, 11)
	keep, _ := env.attachPopout(t, 9, 12)

	env.hub.TabRemoved(7)

	removed := env.windows.removedWindows()
	sort.Ints(removed)
	if len(removed) != 2 || removed[0] != 10 || removed[1] != 11 {
		t.Fatalf("removed windows = %v; want [10 11]", removed)
	}
	if got := len(env.hub.reg.PopoutsFor(7)); got != 0 {
		t.Fatalf("PopoutsFor(7) = %d; want 0", got)
	}
	if got := env.hub.reg.PopoutsFor(9); len(got) != 1 || got[0] != keep {
		t.Fatalf("unrelated popout affected: PopoutsFor(9) = %v", got)
	}
}

func TestTabRemovedClearsPerTabStateKeys(t *testing.T) {
	env := newTestHub(t, Options{})
	env.hub.TabRemoved(7)

	want := []string{"checklistState_7", "uiState_7", "viewMode_7"}
	got := env.store.removedKeys()
	if len(got) != len(want) {
		t.Fatalf("removed keys = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("removed keys = %v; want %v", got, want)
		}
	}
}

func TestTabRemovedToleratesWindowRemovalFailure(t *testing.T) {
	env := newTestHub(t, Options{})
	env.windows.removeErr = errors.New("no window with id")
	env.attachPopout(t, 7, 10)

	env.hub.TabRemoved(7)

	if got := len(env.hub.reg.PopoutsFor(7)); got != 0 {
		t.Fatalf("PopoutsFor(7) = %d; want 0 despite removal failure", got)
	}
}

func TestWindowRemovedUnregistersHostedChannels(t *testing.T) {
	env := newTestHub(t, Options{})
	env.attachPopout(t, 7, 42)
	env.attachTracking(t, 42)
	survivor, _ := env.attachPopout(t, 7, 43)

	env.hub.WindowRemoved(42)

	left := env.hub.reg.PopoutsFor(7)
	if len(left) != 1 || left[0] != survivor {
		t.Fatalf("PopoutsFor(7) = %v; want only window 43's popout", left)
	}
	if got := env.hub.reg.Len(); got != 1 {
		t.Fatalf("registry len = %d; want 1", got)
	}
}

func TestTabLoadingReloadsPopoutWindows(t *testing.T) {
	env := newTestHub(t, Options{})
	env.attachPopout(t, 7, 10)
	env.attachPopout(t, 7, 11)

	env.hub.TabLoading(7)

	env.windows.mu.Lock()
	reloaded := append([]int(nil), env.windows.reloaded...)
	env.windows.mu.Unlock()
	sort.Ints(reloaded)
	if len(reloaded) != 2 || reloaded[0] != 10 || reloaded[1] != 11 {
		t.Fatalf("reloaded windows = %v; want [10 11]", reloaded)
	}
	if got := len(env.hub.reg.PopoutsFor(7)); got != 2 {
		t.Fatalf("PopoutsFor(7) = %d; want 2 (reload succeeded)", got)
	}
}

func TestTabLoadingReloadFailureUnregistersStaleBinding(t *testing.T) {
	env := newTestHub(t, Options{})
	env.windows.reloadErr = errors.New("target detached")
	env.attachPopout(t, 7, 10)

	env.hub.TabLoading(7)

	if got := len(env.hub.reg.PopoutsFor(7)); got != 0 {
		t.Fatalf("PopoutsFor(7) = %d; want 0 after failed reload", got)
	}
}
