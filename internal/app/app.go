package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fruworg/stash/internal/config"
	"github.com/fruworg/stash/internal/db"
	"github.com/fruworg/stash/internal/guard"
	"github.com/fruworg/stash/internal/handler"
	middie "github.com/fruworg/stash/internal/middleware"
	"github.com/fruworg/stash/internal/quota"
	"github.com/fruworg/stash/internal/reaper"
	"github.com/fruworg/stash/internal/storage"
	"github.com/fruworg/stash/internal/upload"
)

// App represents the application.
type App struct {
	server *echo.Echo
	reaper *reaper.Reaper
	abuse  *guard.Guard
	config *config.Config
	db     *db.DB
}

// New creates a new application instance.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	configData, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	log.Printf("Configuration:\n%s", string(configData))

	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	enforcer := quota.NewEnforcer(store, cfg)
	tracker := upload.NewTracker(store, enforcer, cfg)
	abuse := guard.New(cfg)
	rp := reaper.New(cfg, database, store, tracker)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Chunk uploads can take a while on slow links.
	e.Server.ReadTimeout = 10 * time.Minute
	e.Server.WriteTimeout = 10 * time.Minute
	e.Server.IdleTimeout = 15 * time.Minute
	e.Server.ReadHeaderTimeout = 30 * time.Second

	app := &App{
		server: e,
		reaper: rp,
		abuse:  abuse,
		config: cfg,
		db:     database,
	}

	e.Use(middleware.Recover())
	e.Use(middie.SecurityHeaders())

	registerRoutes(e, app, handler.NewHandler(cfg, database, store, enforcer, tracker))
	return app, nil
}

// Start starts the reaper and the HTTP server.
func (a *App) Start() {
	a.reaper.Start()

	serverAddr := fmt.Sprintf(":%d", a.config.Port)

	go func() {
		if err := a.server.Start(serverAddr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	log.Printf("Server started on %s", serverAddr)
}

// Stop stops all background services.
func (a *App) Stop() {
	a.reaper.Stop()
	a.abuse.Stop()
	a.db.Close()
}

// Shutdown gracefully shuts down the server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// registerRoutes registers all HTTP routes.
func registerRoutes(e *echo.Echo, app *App, h *handler.Handler) {
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", app.config.MaxFileSizeMB)))

	e.GET("/health", h.HandleHealth)

	// Link management interface for the external command layer.
	api := e.Group("/api", h.RequireAPIKey())
	api.POST("/links", h.HandleCreateLink)
	api.POST("/links/:link_id/extend", h.HandleExtendLink)

	// Link-scoped storage surface, behind the abuse guard.
	space := e.Group("/:link_id", app.abuse.RateLimit(), app.abuse.CSRF())
	space.GET("", h.HandleList)
	space.POST("/upload", h.HandleChunkUpload)
	space.POST("/delete/:filename", h.HandleDeleteFile)
	space.POST("/delete-all", h.HandleDeleteAll)
	space.GET("/download/:filename", h.HandleDownload)
	space.POST("/download-multiple", h.HandleDownloadMultiple)
}
