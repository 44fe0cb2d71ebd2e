package hub

import (
	"testing"

	"github.com/google/uuid"
)

func makeChannel(kind Kind, tabID, windowID int) *Channel {
	ch := newChannel(uuid.NewString(), kind, &fakePort{})
	ch.bind(tabID, windowID)
	return ch
}

func TestContentIndexHoldsOneChannelPerTab(t *testing.T) {
	reg := NewRegistry()

	first := makeChannel(KindContentScript, 7, 0)
	if evicted := reg.Register(first); evicted != nil {
		t.Fatalf("Register(first) evicted = %v; want nil", evicted.ID())
	}

	second := makeChannel(KindContentScript, 7, 0)
	evicted := reg.Register(second)
	if evicted != first {
		t.Fatalf("Register(second) evicted = %v; want first channel", evicted)
	}

	if got := reg.ContentFor(7); got != second {
		t.Fatalf("ContentFor(7) = %v; want second channel", got)
	}
	if got := reg.Len(); got != 1 {
		t.Fatalf("Len() = %d; want 1", got)
	}
}

func TestContentSupersedeLeavesPopoutsAlone(t *testing.T) {
	reg := NewRegistry()

	popout := makeChannel(KindPopout, 7, 42)
	reg.Register(popout)

	reg.Register(makeChannel(KindContentScript, 7, 0))
	reg.Register(makeChannel(KindContentScript, 7, 0))

	popouts := reg.PopoutsFor(7)
	if len(popouts) != 1 || popouts[0] != popout {
		t.Fatalf("PopoutsFor(7) = %v; want the original popout", popouts)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	ch := makeChannel(KindPopout, 7, 42)
	reg.Register(ch)

	if !reg.Unregister(ch.ID()) {
		t.Fatalf("Unregister() first call = false; want true")
	}
	if reg.Unregister(ch.ID()) {
		t.Fatalf("Unregister() second call = true; want false")
	}
	if got := reg.Len(); got != 0 {
		t.Fatalf("Len() = %d; want 0", got)
	}
	if got := reg.PopoutsFor(7); len(got) != 0 {
		t.Fatalf("PopoutsFor(7) = %v; want empty", got)
	}
}

func TestUnregisterContentUsesIdentity(t *testing.T) {
	reg := NewRegistry()

	old := makeChannel(KindContentScript, 7, 0)
	reg.Register(old)
	successor := makeChannel(KindContentScript, 7, 0)
	reg.Register(successor)

	// The evicted channel's own teardown must not remove the successor.
	reg.Unregister(old.ID())

	if got := reg.ContentFor(7); got != successor {
		t.Fatalf("ContentFor(7) = %v; want successor", got)
	}
}

func TestPopoutsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	a := makeChannel(KindPopout, 7, 10)
	b := makeChannel(KindPopout, 7, 11)
	c := makeChannel(KindPopout, 7, 12)
	reg.Register(a)
	reg.Register(b)
	reg.Register(c)

	got := reg.PopoutsFor(7)
	if len(got) != 3 || got[0] != a || got[1] != b || got[2] != c {
		t.Fatalf("PopoutsFor(7) order wrong: got %d channels", len(got))
	}
}

func TestBindMovesPopoutBetweenTabs(t *testing.T) {
	reg := NewRegistry()
	ch := newChannel(uuid.NewString(), KindPopout, &fakePort{})
	reg.Register(ch)

	reg.Bind(ch, 7, 42)
	if got := reg.PopoutsFor(7); len(got) != 1 {
		t.Fatalf("PopoutsFor(7) = %d channels; want 1", len(got))
	}

	reg.Bind(ch, 9, 42)
	if got := reg.PopoutsFor(7); len(got) != 0 {
		t.Fatalf("PopoutsFor(7) after rebind = %d channels; want 0", len(got))
	}
	if got := reg.PopoutsFor(9); len(got) != 1 {
		t.Fatalf("PopoutsFor(9) = %d channels; want 1", len(got))
	}
}

func TestBindIgnoresUnregisteredChannel(t *testing.T) {
	reg := NewRegistry()
	ch := newChannel(uuid.NewString(), KindPopout, &fakePort{})

	reg.Bind(ch, 7, 42)
	if got := reg.PopoutsFor(7); len(got) != 0 {
		t.Fatalf("PopoutsFor(7) = %d channels; want 0", len(got))
	}
}

func TestByWindowMatchesAllKinds(t *testing.T) {
	reg := NewRegistry()
	popout := makeChannel(KindPopout, 7, 42)
	tracking := makeChannel(KindTracking, 0, 42)
	other := makeChannel(KindPopout, 7, 43)
	reg.Register(popout)
	reg.Register(tracking)
	reg.Register(other)

	got := reg.ByWindow(42)
	if len(got) != 2 {
		t.Fatalf("ByWindow(42) = %d channels; want 2", len(got))
	}
}

func TestSnapshotReflectsState(t *testing.T) {
	reg := NewRegistry()
	reg.Register(makeChannel(KindContentScript, 7, 0))
	reg.Register(makeChannel(KindPopout, 7, 42))

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() = %d entries; want 2", len(snap))
	}
	counts := reg.CountByKind()
	if counts["content-script"] != 1 || counts["popout"] != 1 {
		t.Fatalf("CountByKind() = %v; want one of each", counts)
	}
}
