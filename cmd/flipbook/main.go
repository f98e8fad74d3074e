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

	"github.com/aravindthiru29/flipbook/internal/cache"
	"github.com/aravindthiru29/flipbook/internal/config"
	"github.com/aravindthiru29/flipbook/internal/library"
	"github.com/aravindthiru29/flipbook/internal/render"
	"github.com/aravindthiru29/flipbook/internal/server"
	"github.com/aravindthiru29/flipbook/internal/source"
	"github.com/aravindthiru29/flipbook/internal/store"
	"github.com/aravindthiru29/flipbook/internal/warm"
	"github.com/aravindthiru29/flipbook/pkg/logger"
	"github.com/aravindthiru29/flipbook/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	listenAddr := flag.String("addr", "", "listen address (overrides config)")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	log := logger.New(logger.WithPrefix("[flipbook] "))
	log.SetVerbose(*verbose)

	if *showVersion {
		log.Info("%s", version.GetVersionInfo())
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("Error loading config: %v", err)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	// Everything is initialized before the listener opens; no handler
	// depends on lazy setup.
	st, err := store.Open(cfg.LibraryFile, log)
	if err != nil {
		log.Fatal("Error opening library store: %v", err)
	}

	resolver, err := source.NewResolver(cfg.WorkDir, log)
	if err != nil {
		log.Fatal("Error setting up source resolver: %v", err)
	}

	renderer := render.NewRenderer(render.DefaultTiers, log)

	pageCache, err := cache.New(cfg.PagesDir, resolver, renderer, log)
	if err != nil {
		log.Fatal("Error setting up render cache: %v", err)
	}

	pool := warm.NewPool(cfg.Warm.Workers, cfg.Warm.QueueSize, pageCache, resolver,
		func(path string) (cache.Doc, error) {
			return render.OpenDocument(path)
		}, log)
	pool.Start()

	lib := library.New(st, pageCache, resolver, pool,
		time.Duration(cfg.TOCCacheMinutes)*time.Minute, log,
		library.WithUploadDir(cfg.UploadDir))

	srv, err := server.New(lib, cfg.UploadDir, cfg.MaxUploadMB, log)
	if err != nil {
		log.Fatal("Error setting up server: %v", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("%s listening on %s", version.GetVersionInfo(), cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown: %v", err)
	}
	pool.Shutdown()
	log.Info("Bye.")
}
