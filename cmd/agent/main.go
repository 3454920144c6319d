package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"
	"watchsync/internal/core/services"
	httphandlers "watchsync/internal/handlers/http"
	"watchsync/internal/infrastructure/hub"
	"watchsync/internal/infrastructure/middleware"
	"watchsync/internal/infrastructure/monitoring"
	"watchsync/internal/infrastructure/player"
	"watchsync/internal/infrastructure/rest"
	"watchsync/internal/infrastructure/session"
	"watchsync/pkg/config"
	"watchsync/pkg/logger"
	"watchsync/pkg/snapshot"
	"watchsync/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		roomFlag   = flag.String("room", "", "room to join")
		userFlag   = flag.String("user", "", "user id (generated when empty)")
		nameFlag   = flag.String("username", "", "display name for the room")
		stateDir   = flag.String("state-dir", ".watchsync", "directory for session snapshots")
	)
	flag.Parse()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}
	if *configPath != "" {
		configPaths = []string{*configPath}
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	roomID := domain.RoomID(*roomFlag)
	if roomID == "" {
		log.Fatal("room is required (-room)")
	}
	identity := domain.Identity{
		UserID:   domain.UserID(*userFlag),
		Username: *nameFlag,
	}
	if identity.UserID == "" {
		identity.UserID = domain.UserID(uuid.NewString())
	}
	if identity.Username == "" {
		short := string(identity.UserID)
		if len(short) > 8 {
			short = short[:8]
		}
		identity.Username = "guest-" + short
	}
	log = logger.Session(log, string(roomID), string(identity.UserID))

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	collector := monitoring.NewCollector(registry)

	clock := clockwork.NewRealClock()

	// Rooms API client with caching
	roomsClient := rest.NewClient(rest.OptionsFromConfig(cfg), log)
	directory := rest.NewCachedDirectory(roomsClient, cfg.RoomsAPI.CacheTTL)
	defer directory.Close()

	// Verify the room before dialing the hub
	lookupCtx, lookupCancel := context.WithTimeout(
		logger.WithRoom(context.Background(), string(roomID)), cfg.RoomsAPI.Timeout)
	room, err := directory.GetRoom(lookupCtx, roomID)
	lookupCancel()
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			log.Fatal("room does not exist")
		}
		log.Warnw("room lookup failed, joining anyway", "error", err)
	} else {
		log.Infow("joining room", "name", room.Name)
	}

	// Session snapshots for resume across restarts
	var snapshots *snapshot.Service
	if storage, serr := snapshot.NewFileStorage(*stateDir); serr != nil {
		log.Warnw("snapshot storage unavailable", "error", serr)
	} else {
		snapshots = snapshot.NewService(storage, "1.0.0")
		if snap, ok, _ := snapshots.Load(context.Background(), roomID); ok {
			log.Infow("previous session found",
				"position", snap.Playback.Position,
				"saved_at", snap.Timestamp,
			)
		}
	}

	// Realtime channel and session manager
	hubClient := hub.NewClient(hub.OptionsFromConfig(cfg), log)
	manager := session.NewManager(hubClient, session.OptionsFromConfig(cfg), clock, log, collector)

	// Local player surface
	virtual := player.NewVirtual(clock, log)
	defer virtual.Close()

	// Reconciler glues the two together
	reconciler := services.NewReconciler(services.PolicyFromConfig(cfg), manager, virtual, clock, log, collector)

	manager.OnHealthChange(reconciler.OnHealthChange)
	// Both frame kinds can carry a video change; the player needs the new
	// media bounds before the reconciler applies the state.
	loadMedia := func(state domain.PlaybackState) {
		if state.HasVideo() {
			virtual.LoadMedia(state.VideoID, state.Duration())
		}
	}
	manager.OnStateFrames(
		func(state domain.PlaybackState) {
			loadMedia(state)
			reconciler.OnInitialState(state)
		},
		func(state domain.PlaybackState) {
			loadMedia(state)
			reconciler.OnRemoteState(state)
		},
	)
	virtual.OnProgress(func(p ports.Progress) {
		reconciler.OnLocalProgress(p.PlayedSeconds)
	})

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = manager.Connect(connectCtx, roomID, identity)
	connectCancel()
	if err != nil {
		log.Fatalw("failed to join room", "error", err)
	}

	// Status server
	var statusSrv *http.Server
	if cfg.Status.Enabled {
		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(middleware.RecoveryMiddleware(log))
		router.Use(middleware.ErrorHandlerMiddleware(log))

		statusHandler := httphandlers.NewStatusHandler(manager, reconciler, directory, roomID)
		statusHandler.SetupRoutes(router)
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

		statusSrv = &http.Server{
			Addr:         cfg.Status.Address,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Infow("status server listening", "address", cfg.Status.Address)
			if serveErr := statusSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
				log.Errorw("status server failed", "error", serveErr)
			}
		}()
	}

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if snapshots != nil {
		snap := &snapshot.Snapshot{
			RoomID:   roomID,
			UserID:   identity.UserID,
			Username: identity.Username,
			Playback: reconciler.Snapshot(),
		}
		if err := snapshots.Save(shutdownCtx, snap); err != nil {
			log.Warnw("failed to save session snapshot", "error", err)
		}
	}

	reconciler.Close()
	if err := manager.Close(shutdownCtx); err != nil {
		log.Warnw("session close failed", "error", err)
	}
	if statusSrv != nil {
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("status server shutdown failed", "error", err)
		}
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("tracing shutdown failed", "error", err)
	}

	log.Info("agent stopped")
}
