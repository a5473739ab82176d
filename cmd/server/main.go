package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/slide-migrator/api/handlers"
	"github.com/feichai0017/slide-migrator/api/routes"
	"github.com/feichai0017/slide-migrator/config"
	"github.com/feichai0017/slide-migrator/internal/app"
	"github.com/feichai0017/slide-migrator/internal/utils/validator"
	"github.com/feichai0017/slide-migrator/pkg/logger"
	"github.com/feichai0017/slide-migrator/pkg/queue"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Log, "slide-migrator-api")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to assemble migrator", logger.Error(err))
	}
	defer a.Close()

	var tasks queue.Queue
	if a.Queue != nil {
		tasks = a.Queue
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	h := handlers.NewHandlers(a.Migrator, tasks, a.Query, validator.NewParamValidator(nil), log)
	routes.SetupRoutes(r, h, cfg.Server.AllowedOrigins, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
