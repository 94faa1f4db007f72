package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/collab-whiteboard/backend/internal/admin"
	"github.com/collab-whiteboard/backend/internal/config"
	"github.com/collab-whiteboard/backend/internal/db"
	"github.com/collab-whiteboard/backend/internal/dispatch"
	"github.com/collab-whiteboard/backend/internal/hub"
	"github.com/collab-whiteboard/backend/internal/logger"
	"github.com/collab-whiteboard/backend/internal/metrics"
	"github.com/collab-whiteboard/backend/internal/registry"
	"github.com/collab-whiteboard/backend/internal/repository"
	"github.com/collab-whiteboard/backend/internal/server"
)

const shutdownTimeout = 5 * time.Second

// serve runs the line server and the admin server until ctx is canceled.
func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	var audit *repository.ConnectionRepository
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		database, err := db.InitDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.CloseDB()

		audit = repository.NewConnectionRepository(database)
		// Records still open were left by a previous process.
		if n, err := audit.CloseAllOpen(ctx, "restart"); err != nil {
			return err
		} else if n > 0 {
			log.Info("closed stale connection records", "count", n)
		}
	}

	if cfg.TranscriptDir != "" {
		if err := os.MkdirAll(cfg.TranscriptDir, 0755); err != nil {
			return fmt.Errorf("create transcript directory: %w", err)
		}
	}
	transcripts := logger.NewStore(cfg.TranscriptDir, logger.DefaultTailLines)

	reg := registry.New(nil)
	router := hub.NewRouter()
	router.SetOnDrop(func(userID int) {
		m.SlowConsumerDropped()
		log.Warn("outbound queue full", "user_id", userID)
	})
	router.SetOnDeliver(m.ResponsesQueued)

	d := dispatch.NewDispatcher(reg, router, dispatch.Config{
		Logger:     log,
		Metrics:    m,
		SendBuffer: cfg.SendBuffer,
	})
	handler := server.NewHandler(d, reg, server.HandlerConfig{
		Logger:       log,
		Metrics:      m,
		Transcripts:  transcripts,
		Audit:        audit,
		MaxLineBytes: cfg.MaxLineBytes,
	})

	lineServer := server.New(handler, log)
	if err := lineServer.Listen(cfg.ListenAddr()); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return lineServer.Serve(gctx)
	})

	if cfg.AdminAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		engine := admin.NewRouter(admin.NewHandler(reg, transcripts, audit), admin.Options{
			Logger:    log,
			Gatherer:  promReg,
			WebSocket: handler,
		})
		httpServer := &http.Server{Addr: cfg.AdminAddr, Handler: engine}

		g.Go(func() error {
			log.Info("admin server listening", "addr", cfg.AdminAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			// Hijacked WebSocket connections are closed by the line server's
			// handler shutdown, not by the HTTP server.
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	router.Close()
	log.Info("shut down", "users_left", len(reg.Users()))
	return err
}
