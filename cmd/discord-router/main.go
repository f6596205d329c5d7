// Command discord-router runs the event router: it owns the Discord
// connections and serves workflow executions over the IPC endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sipeed/discord-router/pkg/api"
	"github.com/sipeed/discord-router/pkg/config"
	"github.com/sipeed/discord-router/pkg/discord"
	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/health"
	"github.com/sipeed/discord-router/pkg/infrastructure/eventbus"
	"github.com/sipeed/discord-router/pkg/ipc"
	"github.com/sipeed/discord-router/pkg/logger"
	"github.com/sipeed/discord-router/pkg/router"
)

func main() {
	configPath := flag.String("config", os.Getenv("ROUTER_CONFIG"), "Path to config YAML file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "discord-router:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Level(cfg.Log.Level), cfg.Log.Format); err != nil {
		return err
	}
	defer logger.Sync()

	bus := eventbus.New()
	defer bus.Close()
	eventbus.LogBridge(bus)
	events := api.NewEventLog(api.DefaultEventLogSize)
	events.Attach(bus)

	// Core
	registry := router.NewRegistry(bus)
	supervisor := router.NewSupervisor(discord.Dial, registry, bus)
	defer supervisor.Shutdown()

	composer := router.NewComposer(cfg.Discord.DownloadTimeout, int(cfg.Discord.MaxAttachmentBytes))
	executor := router.NewExecutor(supervisor, composer, bus)
	executor.ConfirmTimeout = cfg.Discord.ConfirmTimeout

	// IPC + HTTP
	handler := ipc.NewHandler(supervisor, registry, executor)
	handler.RequestTimeout = cfg.Router.RequestTimeout
	hub := ipc.NewHub(handler, bus)
	hub.RateLimit = rate.Limit(cfg.Router.RequestsPerSecond)
	hub.Burst = cfg.Router.Burst
	server := api.NewServer(cfg, supervisor, registry, hub, events)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus.Publish(domain.NewEvent(domain.EventSystemStartup, "router", map[string]interface{}{
		"addr": cfg.Addr(),
	}))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })

	if cfg.Health.Enabled {
		reporter, err := health.NewReporter(cfg.Health.Schedule, supervisor, registry, hub, bus)
		if err != nil {
			return err
		}
		g.Go(func() error { return reporter.Run(ctx) })
	}

	err = g.Wait()

	logger.InfoC("main", "Shutting down")
	bus.Publish(domain.NewEvent(domain.EventSystemShutdown, "router", nil))
	return err
}
