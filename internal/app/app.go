package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/scrumdeck/core/internal/config"
	http_catalog "github.com/scrumdeck/core/internal/delivery/http/catalog"
	http_init "github.com/scrumdeck/core/internal/delivery/http/init"
	http_room "github.com/scrumdeck/core/internal/delivery/http/room"
	http_user "github.com/scrumdeck/core/internal/delivery/http/user"
	ws_session "github.com/scrumdeck/core/internal/delivery/ws/session"
	"github.com/scrumdeck/core/internal/directory"
	"github.com/scrumdeck/core/internal/gateway"
	infra_sqlite_catalog "github.com/scrumdeck/core/internal/infra/sqlite/catalog"
	infra_sqlite_room "github.com/scrumdeck/core/internal/infra/sqlite/room"
	"github.com/scrumdeck/core/internal/realtime"
)

const shutdownGrace = 10 * time.Second

func Go(cfg *config.Config) {
	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	roomStore, err := infra_sqlite_room.New(filepath.Join(cfg.Database.Folder, cfg.Database.RoomsFolder), logger)
	if err != nil {
		logger.Error("failed to open room storage", "error", err)
		os.Exit(1)
	}
	catalogStore, err := infra_sqlite_catalog.New(filepath.Join(cfg.Database.Folder, cfg.Database.CatalogFile), logger)
	if err != nil {
		logger.Error("failed to open catalog storage", "error", err)
		os.Exit(1)
	}

	// Reconciliation pass: index persisted rooms, drop leftover ephemeral
	// or unreadable units from a previous run.
	summaries, err := roomStore.ListRoomSummaries(context.Background())
	if err != nil {
		logger.Error("failed to index rooms", "error", err)
		os.Exit(1)
	}
	dir := directory.NewFrom(summaries)
	logger.Info("room directory ready", "rooms", len(summaries))

	registry := realtime.NewRegistry(logger)
	broadcaster := realtime.NewBroadcaster(registry, logger)
	gw := gateway.New(roomStore, catalogStore, dir, broadcaster, registry, uuid.NewString, logger)

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_room.New(gw))
	controllerPool.Add(http_catalog.New(gw))
	controllerPool.Add(http_user.New(gw))
	controllerPool.Add(ws_session.NewController(registry, gw, uuid.NewString, logger))
	controllerPool.Register()

	server := controllerPool.Server(net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port))
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("server started", "addr", server.Addr)

	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, syscall.SIGINT, syscall.SIGTERM)
	<-ctrlc
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	// Ephemeral rooms do not survive the process.
	gw.Cleanup(ctx)
	logger.Info("bye")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
