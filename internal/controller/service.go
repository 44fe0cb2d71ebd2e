// Package controller wraps hub and browser operations behind the admin API.
package controller

import (
	"context"
	"time"

	"github.com/strandhog/porthub/internal/browser"
	"github.com/strandhog/porthub/internal/hub"
)

// Service exposes relay administration operations.
type Service struct {
	hub     *hub.Hub
	browser *browser.Manager
	started time.Time
}

func NewService(h *hub.Hub, b *browser.Manager) *Service {
	return &Service{hub: h, browser: b, started: time.Now()}
}

// HealthInfo summarizes the running relay.
type HealthInfo struct {
	Status        string         `json:"status"`
	Mode          string         `json:"mode"`
	Channels      map[string]int `json:"channels"`
	Tabs          int            `json:"tabs"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

func (s *Service) requireTabID(tabID int) error {
	if tabID < 1 {
		return &browser.CodedError{Code: browser.CodeValidation, Message: "tab_id must be a positive integer"}
	}
	return nil
}

func (s *Service) Health(ctx context.Context) HealthInfo {
	_ = ctx
	return HealthInfo{
		Status:        "ok",
		Mode:          s.hub.Mode().String(),
		Channels:      s.hub.Counts(),
		Tabs:          s.browser.TabCount(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
}

func (s *Service) ListChannels(ctx context.Context) []hub.ChannelInfo {
	_ = ctx
	return s.hub.Snapshot()
}

func (s *Service) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	return s.browser.QueryTabs(ctx)
}

// OpenPopout opens a popout window serving the given tab and returns the
// new window id.
func (s *Service) OpenPopout(ctx context.Context, tabID int) (int, error) {
	if err := s.requireTabID(tabID); err != nil {
		return 0, err
	}
	return s.hub.OpenPopout(ctx, tabID)
}

// OpenTracking opens the shared tracking window and returns its window id.
func (s *Service) OpenTracking(ctx context.Context) (int, error) {
	return s.hub.OpenTracking(ctx)
}

func (s *Service) ReloadTab(ctx context.Context, tabID int) error {
	if err := s.requireTabID(tabID); err != nil {
		return err
	}
	return s.browser.ReloadTab(ctx, tabID)
}
