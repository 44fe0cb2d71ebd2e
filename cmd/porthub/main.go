package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/strandhog/porthub/internal/api"
	"github.com/strandhog/porthub/internal/browser"
	"github.com/strandhog/porthub/internal/config"
	"github.com/strandhog/porthub/internal/controller"
	"github.com/strandhog/porthub/internal/hub"
	"github.com/strandhog/porthub/internal/netutil"
	"github.com/strandhog/porthub/internal/statestore"
	"github.com/strandhog/porthub/internal/transport"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("porthub config loaded",
		"bind_addr", cfg.BindAddr,
		"relay_mode", cfg.RelayMode,
		"probe_interval_sec", cfg.ProbeIntervalSec,
		"cdp_url", cfg.CDPURL(),
		"launch_browser", cfg.LaunchBrowser,
		"state_dir", cfg.StateDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	mode, err := hub.ParseMode(cfg.RelayMode)
	if err != nil {
		slog.Error("invalid relay mode", "mode", cfg.RelayMode, "error", err)
		os.Exit(1)
	}

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.LaunchConfig{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("browser launch failed", "error", err)
			os.Exit(1)
		}
		if launcher.Running() {
			defer launcher.Stop()
		}
	}

	manager := browser.NewManager(cfg.CDPURL())

	store, err := statestore.New(cfg.StateDir)
	if err != nil {
		slog.Error("failed to open state store", "dir", cfg.StateDir, "error", err)
		os.Exit(1)
	}

	classes := hub.DefaultClasses()
	if cfg.ChannelConfigPath != "" {
		classes, err = hub.LoadClasses(cfg.ChannelConfigPath)
		if err != nil {
			slog.Error("failed to load channel config", "path", cfg.ChannelConfigPath, "error", err)
			os.Exit(1)
		}
	}

	relay := hub.New(manager, manager, store, classes, hub.Options{
		Mode:            mode,
		ProbeInterval:   time.Duration(cfg.ProbeIntervalSec) * time.Second,
		ExternalTimeout: time.Duration(cfg.ExternalTimeoutSec) * time.Second,
		PopoutURL:       cfg.PopoutURL,
		TrackingURL:     cfg.TrackingURL,
		PopoutWidth:     cfg.PopoutWidth,
		PopoutHeight:    cfg.PopoutHeight,
		TrackingWidth:   cfg.TrackingWidth,
		TrackingHeight:  cfg.TrackingHeight,
	})

	manager.SetListener(relay)
	if err := manager.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			slog.Debug("browser manager close failed", "error", err)
		}
	}()

	svc := controller.NewService(relay, manager)
	router := api.NewServer(svc)
	transport.NewHandler(relay).Register(router)

	srv := &http.Server{Addr: bindAddr, Handler: router}

	go func() {
		slog.Info("porthub listening",
			"addr", bindAddr,
			"docs", "http://"+bindAddr+"/docs",
			"ports", "ws://"+bindAddr+"/ports/{name}",
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("porthub server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("porthub shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
