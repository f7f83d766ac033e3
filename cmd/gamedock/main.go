// Command gamedock runs the game library and acquisition service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gamedock/gamedock/internal/acquisition"
	"github.com/gamedock/gamedock/internal/auth"
	"github.com/gamedock/gamedock/internal/config"
	"github.com/gamedock/gamedock/internal/database"
	"github.com/gamedock/gamedock/internal/debrid"
	"github.com/gamedock/gamedock/internal/download"
	"github.com/gamedock/gamedock/internal/extract"
	"github.com/gamedock/gamedock/internal/library"
	"github.com/gamedock/gamedock/internal/logger"
	"github.com/gamedock/gamedock/internal/metadata"
	"github.com/gamedock/gamedock/internal/mount"
	"github.com/gamedock/gamedock/internal/procwait"
	"github.com/gamedock/gamedock/internal/progress"
	"github.com/gamedock/gamedock/internal/reputation"
	"github.com/gamedock/gamedock/internal/scheduler"
	"github.com/gamedock/gamedock/internal/scraper"
	"github.com/gamedock/gamedock/internal/search"
	"github.com/gamedock/gamedock/internal/search/sources"
	"github.com/gamedock/gamedock/internal/search/status"
	"github.com/gamedock/gamedock/internal/settings"
	"github.com/gamedock/gamedock/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gamedock: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().Str("version", config.Version).Msg("Starting gamedock")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	settingsSvc := settings.NewService(db.Conn(), settings.View{
		InstallRoot:      cfg.Library.InstallRoot,
		MinScore:         cfg.Search.MinScore,
		DebridConfigured: cfg.Debrid.APIKey != "",
	}, log.Logger)
	if err := settingsSvc.Load(context.Background()); err != nil {
		return err
	}
	effective := settingsSvc.Current()

	hub := websocket.NewHub()
	go hub.Run()

	progressMgr := progress.NewManager(hub, log.Logger)

	// Search stack.
	fetcher := scraper.NewHTTPFetcher(cfg.Search.FetchTimeout)
	tracker := status.NewTracker(log.Logger)
	resolver := metadata.NewClient(cfg.Metadata.BaseURL, cfg.Metadata.APIKey, log.Logger)

	trusted := []sources.Source{
		sources.NewFitGirlSource(cfg.Sources.FitGirlURL, fetcher, log.Logger),
		sources.NewElAmigosSource(cfg.Sources.ElAmigosURL, fetcher, log.Logger),
	}
	secondary := []sources.Source{
		sources.NewAggregatorSource("aggregator", cfg.Sources.AggregatorURL, fetcher, log.Logger),
	}
	tertiary := []sources.Source{
		sources.NewFallbackSource("fallback", cfg.Sources.FallbackURL, fetcher, log.Logger),
	}

	searchSvc := search.NewService(trusted, secondary, tertiary, resolver, tracker, search.Config{
		MinScore:      effective.MinScore,
		MaxResults:    cfg.Search.MaxResults,
		SourceTimeout: cfg.Search.SourceTimeout,
	}, log.Logger)
	searchSvc.SetBroadcaster(hub)

	// Library stack.
	store := library.NewStore(db.Conn(), log.Logger)
	scanner := library.NewFSScanner(log.Logger)
	librarySvc := library.NewService(store, scanner, effective.InstallRoot, log.Logger)
	librarySvc.SetBroadcaster(hub)
	verifier := library.NewVerifier(librarySvc, library.VerifyConfig{
		Attempts: cfg.Acquisition.VerifyAttempts,
		Interval: cfg.Acquisition.VerifyInterval,
	}, log.Logger)

	// Acquisition stack.
	mounter := mount.NewLoopMounter("", log.Logger)
	sched, err := scheduler.New(mounter, log.Logger)
	if err != nil {
		return err
	}

	acquisitionMgr := acquisition.NewManager(acquisition.Deps{
		Resolver: debrid.NewClient(debrid.Config{
			APIKey:       cfg.Debrid.APIKey,
			BaseURL:      cfg.Debrid.BaseURL,
			PollAttempts: cfg.Debrid.PollAttempts,
			PollInterval: cfg.Debrid.PollInterval,
		}, log.Logger),
		Reputation: reputation.NewClient(cfg.Reputation.BaseURL, cfg.Reputation.APIKey, log.Logger),
		Downloader: download.NewDownloader(log.Logger),
		Extractor:  extract.NewExtractor(cfg.Acquisition.ExtractTool, log.Logger),
		Mounter:    mounter,
		Processes: procwait.NewCoordinator(nil, procwait.Config{
			WaitTimeout:  cfg.Acquisition.ProcessWaitTimeout,
			PollInterval: cfg.Acquisition.ProcessPollEvery,
		}, log.Logger),
		Verifier:    verifier,
		History:     librarySvc,
		UnmountLate: sched,
	}, acquisition.Config{
		DownloadDir: cfg.Acquisition.DownloadDir,
	}, log.Logger)
	acquisitionMgr.SetBroadcaster(hub)

	// Background rescan keeps the catalog honest even when nothing was
	// installed through an acquisition job.
	if cfg.Library.RescanInterval > 0 && effective.InstallRoot != "" {
		err := sched.RegisterInterval("library-rescan", cfg.Library.RescanInterval, func(ctx context.Context) error {
			activity := progressMgr.StartActivity("library-rescan", progress.ActivityTypeLibraryScan, "Rescanning library")
			games, err := librarySvc.Rescan(ctx)
			if err != nil {
				progressMgr.FailActivity(activity.ID, err.Error())
				return err
			}
			progressMgr.CompleteActivity(activity.ID, fmt.Sprintf("%d games", len(games)))
			return nil
		})
		if err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server.
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("Request")
			return nil
		},
	}))

	authSvc := auth.NewService(auth.Config{
		JWTSecret:    cfg.Auth.JWTSecret,
		PasswordHash: cfg.Auth.PasswordHash,
	}, log.Logger)

	api := e.Group("/api/v1")
	auth.NewHandlers(authSvc).RegisterRoutes(api.Group("/auth"))

	protected := api.Group("", authSvc.Middleware())
	search.NewHandlers(searchSvc).RegisterRoutes(protected.Group("/search"))
	acquisition.NewHandlers(acquisitionMgr).RegisterRoutes(protected.Group("/acquisitions"))
	library.NewHandlers(librarySvc).RegisterRoutes(protected.Group("/library"))
	settings.NewHandlers(settingsSvc).RegisterRoutes(protected.Group("/settings"))
	protected.GET("/activities", func(c echo.Context) error {
		return c.JSON(http.StatusOK, progressMgr.GetAllActivities())
	})
	e.GET("/ws", hub.HandleWebSocket)
	e.GET("/api/v1/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": config.Version})
	})

	// Serve until interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Address()
		log.Info().Str("address", addr).Msg("HTTP server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
