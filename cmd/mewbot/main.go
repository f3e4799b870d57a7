package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/config"
	"github.com/kittynXR/mewbot/internal/discord"
	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/internal/handler"
	"github.com/kittynXR/mewbot/internal/hub"
	"github.com/kittynXR/mewbot/internal/obs"
	"github.com/kittynXR/mewbot/internal/osc"
	"github.com/kittynXR/mewbot/internal/router"
	"github.com/kittynXR/mewbot/internal/service"
	"github.com/kittynXR/mewbot/internal/state"
	"github.com/kittynXR/mewbot/internal/supervisor"
	"github.com/kittynXR/mewbot/internal/twitch"
	"github.com/kittynXR/mewbot/internal/vrchat"
	"github.com/kittynXR/mewbot/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log.Init(cfg.Log)
	logger := log.L().With().Str(log.FieldService, "mewbot").Logger()
	logger.Info().Msg("starting bridge")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New(cfg.Bus.Capacity)
	defer eventBus.Close()

	integrations := []domain.IntegrationID{
		domain.IntegrationTwitch,
		domain.IntegrationDiscord,
		domain.IntegrationVRChat,
		domain.IntegrationOSC,
	}
	for _, inst := range cfg.OBS.Instances {
		integrations = append(integrations, domain.OBSIntegration(inst.ID))
	}
	store := state.New(integrations)

	twitchClient := twitch.NewClient(cfg.Twitch, eventBus)
	discordClient := discord.NewClient(cfg.Discord, eventBus)
	vrchatClient := vrchat.NewClient(cfg.VRChat, eventBus)
	oscSender := osc.NewSender(cfg.OSC)

	twitchSup := supervisor.New(domain.IntegrationTwitch, twitchClient, eventBus, cfg.Retry)
	discordSup := supervisor.New(domain.IntegrationDiscord, discordClient, eventBus, cfg.Retry)
	vrchatSup := supervisor.New(domain.IntegrationVRChat, vrchatClient, eventBus, cfg.Retry)
	oscSup := supervisor.New(domain.IntegrationOSC, oscSender, eventBus, cfg.Retry)

	twitchClient.Bind(twitchSup.Guard)
	discordClient.Bind(discordSup.Guard)
	oscSender.Bind(oscSup.Guard)

	tools := make([]router.SceneTool, 0, len(cfg.OBS.Instances))
	obsSups := make([]*supervisor.Supervisor, 0, len(cfg.OBS.Instances))
	for _, inst := range cfg.OBS.Instances {
		client := obs.NewClient(inst, eventBus)
		sup := supervisor.New(domain.OBSIntegration(inst.ID), client, eventBus, cfg.Retry)
		client.Bind(sup.Guard)
		sup.Start(ctx)
		tools = append(tools, client)
		obsSups = append(obsSups, sup)
	}

	twitchSup.Start(ctx)
	discordSup.Start(ctx)
	vrchatSup.Start(ctx)
	oscSup.Start(ctx)

	commands := router.New(store, twitchClient, discordClient, oscSender, tools)

	clientHub := hub.NewHub(cfg.WebSocket)
	bridge := service.New(clientHub, store, commands, eventBus.Subscribe("dashboard"))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(log.GinMiddleware(log.L()))

	wsHandler := handler.NewWSHandler(clientHub, bridge, cfg.WebSocket)
	apiHandler := handler.NewAPIHandler(cfg, store, cfg.Twitch.Channel)
	handler.RegisterRoutes(engine, wsHandler, apiHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		clientHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("bridge exited with error")
	}

	twitchSup.Stop()
	discordSup.Stop()
	vrchatSup.Stop()
	oscSup.Stop()
	for _, sup := range obsSups {
		sup.Stop()
	}
	logger.Info().Msg("bridge stopped")
}
