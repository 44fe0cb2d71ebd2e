package hub

import (
	"context"
	"fmt"
	"log/slog"
)

// statePrefixes are the persisted per-tab key families cleared when a tab
// closes. Keys follow "<prefix>_<tabId>".
var statePrefixes = []string{"checklistState", "uiState", "viewMode"}

func perTabStateKeys(tabID int) []string {
	keys := make([]string, 0, len(statePrefixes))
	for _, p := range statePrefixes {
		keys = append(keys, fmt.Sprintf("%s_%d", p, tabID))
	}
	return keys
}

// Reconciler adjusts routing state to match external lifecycle changes.
// Failures from the window collaborator are confirmation that a binding is
// stale, never a reason to propagate an error.
type Reconciler struct {
	reg     *Registry
	windows WindowManager
	store   StateRemover
	drop    func(ch *Channel, reason string)
}

// TabRemoved closes every popout window bound to the tab, unregisters the
// popout channels, and clears the tab's persisted state keys. Window
// removal is issued once per distinct window.
func (rc *Reconciler) TabRemoved(ctx context.Context, tabID int) {
	popouts := rc.reg.PopoutsFor(tabID)
	closed := make(map[int]bool)
	for _, ch := range popouts {
		if win := ch.WindowID(); win != 0 && !closed[win] {
			closed[win] = true
			if err := rc.windows.RemoveWindow(ctx, win); err != nil {
				slog.Debug("popout window already gone", "tab", tabID, "window", win, "error", err)
			}
		}
		rc.drop(ch, "owning tab removed")
	}
	if err := rc.store.Remove(perTabStateKeys(tabID)...); err != nil {
		slog.Warn("per-tab state cleanup failed", "tab", tabID, "error", err)
	}
	slog.Info("tab reconciled", "tab", tabID, "popouts_closed", len(popouts))
}

// WindowRemoved unregisters every channel hosted by the window. This covers
// the user closing a popout or tracking window directly.
func (rc *Reconciler) WindowRemoved(windowID int) {
	for _, ch := range rc.reg.ByWindow(windowID) {
		rc.drop(ch, "owning window removed")
	}
}

// TabLoading reloads every popout window bound to a navigating tab so the
// popouts mirror the refreshed context. A failed reload means the binding
// is stale and the channel is unregistered.
func (rc *Reconciler) TabLoading(ctx context.Context, tabID int) {
	for _, ch := range rc.reg.PopoutsFor(tabID) {
		win := ch.WindowID()
		if win == 0 {
			continue
		}
		if err := rc.windows.ReloadWindow(ctx, win); err != nil {
			slog.Debug("popout reload failed, unregistering", "tab", tabID, "window", win, "error", err)
			rc.drop(ch, "popout reload failed")
		}
	}
}
