package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/modgate/modgate/pkg/archive"
	"github.com/modgate/modgate/pkg/bus"
	"github.com/modgate/modgate/pkg/channels"
	"github.com/modgate/modgate/pkg/config"
	"github.com/modgate/modgate/pkg/health"
	"github.com/modgate/modgate/pkg/history"
	"github.com/modgate/modgate/pkg/logger"
	"github.com/modgate/modgate/pkg/pipeline"
	"github.com/modgate/modgate/pkg/providers"
	"github.com/modgate/modgate/pkg/safety"
)

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".modgate", "config.json")
}

func gatewayCmd(configPath string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	// .env is optional; environment variables win either way.
	if err := godotenv.Load(".env"); err != nil {
		logger.DebugC("gateway", ".env not loaded: "+err.Error())
	}

	if configPath == "" {
		configPath = defaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Configuration errors are fatal: no partial startup.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("error creating provider: %w", err)
	}
	logger.InfoCF("gateway", "provider selected", map[string]any{
		"provider": provider.Name(),
		"model":    cfg.Provider.Model,
	})

	filter, err := safety.NewFilter(cfg.Moderation.ExtraKeywords...)
	if err != nil {
		return fmt.Errorf("error building content filter: %w", err)
	}

	var archiver pipeline.Archiver
	if client := archive.NewClient(archive.Config{
		URL:    cfg.Archive.URL,
		APIKey: cfg.Archive.APIKey,
		Table:  cfg.Archive.Table,
	}); client != nil {
		archiver = client
		logger.InfoC("gateway", "archive writes enabled")
	} else {
		logger.InfoC("gateway", "archive not configured, persistence disabled")
	}

	msgBus := bus.NewMessageBus()
	store := history.NewStore(cfg.Moderation.MaxTurns)
	pipe := pipeline.New(cfg, provider, msgBus, store, filter, archiver)

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("error creating channel manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("error starting channels: %w", err)
	}
	logger.InfoCF("gateway", "channels started", map[string]any{
		"channels": channelManager.EnabledChannels(),
	})

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "health server error", map[string]any{"error": err.Error()})
		}
	}()
	logger.InfoCF("gateway", "liveness endpoint up", map[string]any{
		"addr": fmt.Sprintf("http://%s:%d/health", cfg.Gateway.Host, cfg.Gateway.Port),
	})

	go pipe.Run(ctx)
	logger.InfoC("gateway", "relay started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	logger.InfoC("gateway", "shutting down")
	cancel()
	channelManager.StopAll(context.Background())
	msgBus.Close()
	pipe.Stop()
	healthServer.Stop(context.Background())
	logger.InfoC("gateway", "gateway stopped")

	return nil
}
