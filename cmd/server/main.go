package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"notes-server/internal/config"
	"notes-server/internal/handler"
	"notes-server/internal/middleware"
	"notes-server/internal/repository"
	"notes-server/internal/repository/couchdb"
	"notes-server/internal/repository/memory"
	"notes-server/internal/repository/postgres"
	"notes-server/internal/server"
	"notes-server/internal/service"
	"notes-server/internal/tokenstore"
	"notes-server/internal/websocket"
	"notes-server/pkg/hash"
	"notes-server/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(logger.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Error("server exited with error", zap.Error(err))
		zlog.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Database, zlog)
	if err != nil {
		return err
	}

	checks := map[string]handler.Pinger{"database": store}

	var revoked tokenstore.Store
	if cfg.Redis.URL != "" {
		redisStore, err := tokenstore.NewRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			store.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		checks["redis"] = redisStore
		revoked = redisStore
		zlog.Info("token revocation backed by Redis")
	} else {
		revoked = tokenstore.NewMemoryStore()
	}

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}, zlog.Named("websocket"))

	wsCtx, stopWS := context.WithCancel(context.Background())
	wsDone := make(chan struct{})
	go func() {
		defer close(wsDone)
		wsManager.Run(wsCtx)
	}()

	authService := service.NewAuthService(
		store.Users(),
		revoked,
		hash.NewHasher(hash.DefaultCost),
		cfg.JWT.Secret,
		cfg.JWT.Expiration,
		cfg.JWT.RefreshTokenExpiration,
	)
	userService := service.NewUserService(store.Users())
	noteService := service.NewNoteService(store, wsManager, zlog.Named("notes"))

	v := handler.NewValidator()
	router := server.NewRouter(server.Handlers{
		Home:      handler.NewHomeHandler(checks, zlog),
		Auth:      handler.NewAuthHandler(authService, v, zlog),
		User:      handler.NewUserHandler(userService, zlog),
		Note:      handler.NewNoteHandler(noteService, v, zlog),
		WebSocket: handler.NewWebSocketHandler(wsManager, authService, cfg.CORS.AllowedOrigins, zlog),
	}, server.RouterOptions{
		Validator: authService,
		CORS: middleware.CORSOptions{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
		Logger: zlog,
	})

	srv := server.New(router, server.Options{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, zlog)

	// Registered first, stopped last.
	srv.OnShutdown("database", func(ctx context.Context) error {
		return store.Close()
	})
	srv.OnShutdown("token store", func(ctx context.Context) error {
		return revoked.Close()
	})
	srv.OnShutdown("websocket", func(ctx context.Context) error {
		stopWS()
		select {
		case <-wsDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	zlog.Info("starting notes server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("env", cfg.Server.Env),
		zap.String("db_driver", cfg.Database.Driver),
	)
	return srv.Run(ctx)
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, zlog *zap.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(postgres.Options{
			DSN:             cfg.URL,
			MaxIdleConns:    cfg.MaxIdleConns,
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, zlog)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		zlog.Info("connected to PostgreSQL")
		return store, nil

	case config.DriverCouchDB:
		store, err := couchdb.Open(ctx, couchdb.Options{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Name:     cfg.Name,
		}, zlog.Named("couchdb"))
		if err != nil {
			return nil, err
		}
		zlog.Info("connected to CouchDB", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
		return store, nil

	default:
		zlog.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	}
}
