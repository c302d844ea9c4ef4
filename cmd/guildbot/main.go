package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calyptra/guildbot/internal/api/dashboard"
	"github.com/calyptra/guildbot/internal/cache"
	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/discord"
	"github.com/calyptra/guildbot/internal/docstore"
	"github.com/calyptra/guildbot/internal/gist"
	"github.com/calyptra/guildbot/internal/repository"
	"github.com/calyptra/guildbot/internal/service/leveling"
	"github.com/calyptra/guildbot/internal/service/linking"
	"github.com/calyptra/guildbot/internal/service/modlog"
	"github.com/calyptra/guildbot/internal/service/scheduler"
	"github.com/calyptra/guildbot/internal/service/tickets"
	"github.com/calyptra/guildbot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().Msg("Starting guildbot")

	// Database
	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Redis backs both the leaderboard cache and the link document store.
	redisClient, err := cache.NewRedisClient(&cfg.Database.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	levelRepo := repository.NewLevelRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	linkRepo := repository.NewLinkRepository(db)

	store := docstore.NewStore(redisClient, log)
	gistClient := gist.NewClient(&cfg.Gist, log)
	if !gistClient.Configured() {
		log.Warn().Msg("Gist credentials missing, ticket system disabled")
	}

	// Discord session and the session-backed adapters.
	session, err := discord.NewSession(&cfg.Discord)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create discord session")
	}
	router := discord.NewRouter(&cfg.Discord, session, log)
	notifier := discord.NewNotifier(session, router, log)
	ticketChannels := discord.NewTicketChannels(&cfg.Tickets, session, func() string {
		if session.State.User != nil {
			return session.State.User.ID
		}
		return ""
	}, log)

	// Services
	levelingService := leveling.NewService(levelRepo, cache.NewRedisCache(redisClient), &cfg.Leveling, log)
	modlogService := modlog.NewService(auditRepo, notifier, log)
	linkingService := linking.NewService(&cfg.Linking, store, linkRepo, notifier, log)
	ticketService := tickets.NewService(&cfg.Tickets, gistClient, ticketChannels, log)

	bot := discord.NewBot(cfg, session, levelingService, modlogService, linkingService, ticketService, log)
	if err := bot.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start discord bot")
	}
	defer func() {
		if err := bot.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop discord bot")
		}
	}()

	// Daily digest
	collector := scheduler.NewCollector(levelingService, modlogService, linkingService, ticketService)
	schedulerService := scheduler.NewService(cfg, collector, notifier, log)
	if err := schedulerService.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer schedulerService.Stop()

	// Dashboard API and metrics
	var apiServer *http.Server
	if cfg.Dashboard.Enabled {
		if cfg.Dashboard.Environment == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		engine := gin.New()
		engine.Use(gin.Recovery())

		handler := dashboard.NewHandler(cfg, levelingService, modlogService, linkingService, ticketService, db, log)
		handler.RegisterRoutes(engine)

		if cfg.Metrics.Enabled {
			engine.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
		}

		apiServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Dashboard.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Int("port", cfg.Dashboard.Port).Msg("Dashboard API listening")
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Dashboard API server failed")
			}
		}()
	}

	log.Info().Msg("guildbot is running, press Ctrl+C to exit")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down dashboard API")
		}
	}
}
