// Package api exposes the relay's admin HTTP API with OpenAPI docs.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/strandhog/porthub/internal/browser"
	"github.com/strandhog/porthub/internal/controller"
	"github.com/strandhog/porthub/internal/hub"
)

type Service interface {
	Health(ctx context.Context) controller.HealthInfo
	ListChannels(ctx context.Context) []hub.ChannelInfo
	ListTabs(ctx context.Context) ([]browser.TabInfo, error)
	OpenPopout(ctx context.Context, tabID int) (int, error)
	OpenTracking(ctx context.Context) (int, error)
	ReloadTab(ctx context.Context, tabID int) error
}

// NewServer builds the admin router. The returned mux is still open for
// mounting additional routes (the WebSocket port endpoint in particular).
func NewServer(svc Service) *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Porthub Relay API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHandlers(api, svc)
	return router
}

func registerHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body controller.HealthInfo
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Relay health and channel counts", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body = svc.Health(ctx)
			return out, nil
		})

	type channelsOutput struct {
		Body struct {
			Channels []hub.ChannelInfo `json:"channels"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-channels", Method: http.MethodGet, Path: "/api/v1/channels", Summary: "List registered channels", Tags: []string{"Channels"}},
		func(ctx context.Context, input *struct{}) (*channelsOutput, error) {
			out := &channelsOutput{}
			out.Body.Channels = svc.ListChannels(ctx)
			return out, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []browser.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tracked browser tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type windowOutput struct {
		Body struct {
			WindowID int `json:"window_id"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "open-popout", Method: http.MethodPost, Path: "/api/v1/popouts", Summary: "Open a popout window for a tab", Tags: []string{"Windows"}},
		func(ctx context.Context, input *struct {
			Body struct {
				TabID int `json:"tab_id" doc:"Tab the popout should serve"`
			}
		}) (*windowOutput, error) {
			windowID, err := svc.OpenPopout(ctx, input.Body.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &windowOutput{}
			out.Body.WindowID = windowID
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "open-tracking", Method: http.MethodPost, Path: "/api/v1/tracking", Summary: "Open the shared tracking window", Tags: []string{"Windows"}},
		func(ctx context.Context, input *struct{}) (*windowOutput, error) {
			windowID, err := svc.OpenTracking(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &windowOutput{}
			out.Body.WindowID = windowID
			return out, nil
		})

	type reloadOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "reload-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/reload", Summary: "Reload a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID int `path:"tab_id"`
		}) (*reloadOutput, error) {
			if err := svc.ReloadTab(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			out := &reloadOutput{}
			out.Body.Status = "reloading"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *browser.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case browser.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case browser.CodeTabNotFound, browser.CodeWindowNotFound:
			return huma.Error404NotFound(coded.Message)
		case browser.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if errors.Is(err, hub.ErrMissingTab) {
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
