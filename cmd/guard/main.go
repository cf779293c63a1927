// Package main is the entry point for the Techitoon Guard Go application.
// It initializes all systems and starts the group protection pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TechitoonStudios/TechitoonGuardGo/internal/events"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/guardian"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/ledger"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/moderation"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/recovery"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/shadow"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/config"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/database"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/errors"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/gateway"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.Init(cfg.ErrorWebhook, cfg.LogsWebhook)
	defer log.Close()

	logger.System("Iniciando Techitoon Guard Go...", "Main")
	logger.Info(fmt.Sprintf("Directorio de trabajo: %s", getCurrentDir()), "Main")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize error handler
	errors.Init(cfg.ErrorWebhook, func() {
		stop()
	})

	// Initialize database
	db, err := database.Init(cfg.MongoDBURL, cfg.DBName)
	if err != nil {
		logger.Error(fmt.Sprintf("Error connecting to database: %v", err), "Main")
		// Continue without database- it will attempt to reconnect
	}
	defer func() {
		if db != nil {
			err := db.Disconnect()
			if err != nil {
				return
			}
		}
	}()

	// Initialize global DataManagers
	if db != nil {
		database.InitGlobalDataManagers(db)

		// Initialize blacklist cache at startup and start auto-refresh
		if err := database.InitBlacklistCache(); err != nil {
			logger.Warn(fmt.Sprintf("Error inicializando caché de blacklist: %v", err), "Main")
		}
		database.StartBlacklistCacheRefresh()
		defer database.StopBlacklistCacheRefresh()
	}

	// Initialize MQTT gateway to the transport process
	gatewayClientID := "techitoonguard"
	if !cfg.IsProd() {
		gatewayClientID = "techitoonguard_canary"
	}

	mqttClient := gateway.Init(
		cfg.MQTTHost,
		cfg.MQTTPort,
		cfg.MQTTUser,
		cfg.MQTTPassword,
		gatewayClientID,
	)
	defer mqttClient.Destroy()

	bridge := gateway.NewBridgeClient(mqttClient)

	// Build the protection core
	violations := database.NewViolationStore()
	blacklist := database.NewBlacklistStore()
	invites := database.NewInviteStore()
	shadows := database.NewShadowStore()
	superadmins := database.NewSuperadminStore()

	thresholds := ledger.Thresholds{
		Sales:      cfg.SalesThreshold,
		Link:       cfg.LinkThreshold,
		AdminAbuse: cfg.AdminAbuseThreshold,
	}
	violationLedger := ledger.New(violations, blacklist, thresholds)

	recoveryManager := recovery.NewManager(bridge, invites, recovery.SystemClock(), cfg.RecoveryMaxAttempts, cfg.RecoveryDelay)
	defer recoveryManager.Stop()

	guard := guardian.New(violationLedger, bridge, superadmins, invites, recoveryManager, cfg.BotJID, cfg.OwnerJID)
	recoveryManager.SetRestorer(guard)

	coordinator := moderation.New(violationLedger, bridge, bridge, bridge, cfg.BotJID)
	shadowCache := shadow.New(shadows, bridge, bridge, cfg.BotJID, cfg.ShadowRetention)

	// Initialize web server
	webServer := web.Init(cfg.LogsWebhook)
	web.SetupAPIRoutes(webServer, web.APIDeps{
		Ledger:   violationLedger,
		Recovery: recoveryManager,
	})
	webServer.StartAsync(cfg.Port)

	// Subscribe to the gateway event stream and start dispatching
	stream, err := gateway.NewEventStream(mqttClient)
	if err != nil {
		logger.Critical(fmt.Sprintf("Error suscribiendo al stream de eventos: %v", err), "Main")
		os.Exit(1)
	}
	defer stream.Close()

	events.StartDispatch(ctx, stream, events.Handlers{
		Coordinator: coordinator,
		Guardian:    guard,
		Shadow:      shadowCache,
		Feed:        webServer.Feed(),
	})

	// Background sweeps: group integrity and shadow retention
	guard.StartIntegritySweep(ctx, cfg.IntegritySweepInterval)
	shadowCache.StartRetentionSweep(ctx, cfg.SweepInterval)

	logger.Success("Techitoon Guard Go iniciado correctamente!", "Main")

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	select {
	case <-sc:
	case <-ctx.Done():
	}

	logger.System("Apagando Techitoon Guard Go...", "Main")
}

// getCurrentDir returns the current working directory
func getCurrentDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return dir
}
