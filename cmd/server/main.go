package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go-messenger/internal/chat"
	"go-messenger/internal/config"
	"go-messenger/internal/db"
	"go-messenger/internal/group"
	myMiddleware "go-messenger/internal/middleware"
	"go-messenger/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & logger
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. PostgreSQL
	database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("Closing database...")
		_ = database.Close()
	}()
	if err := database.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("Database schema initialized")

	// 3. Group memberships, cached in Redis when configured
	var groups group.Store = group.NewRepository(database.Conn)
	if cfg.CacheEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		groups = group.NewCachedStore(groups, rdb, cfg.MembershipCacheTTL, log)
		log.Info("Membership cache enabled", "redis", cfg.RedisAddr, "ttl", cfg.MembershipCacheTTL)
	}

	// 4. Users
	userService := user.NewService(user.NewRepository(database.Conn), cfg.JWTSecret, cfg.TokenTTL)
	userHandler := user.NewHandler(userService)

	// 5. Chat coordinator
	hub := chat.NewHub(chat.NewRepository(database.Conn), groups, chat.Options{
		PageSize:  cfg.HistoryPageSize,
		Directory: userService,
		Logger:    log,
	})
	chatHandler := chat.NewHandler(hub, cfg.SendBufferSize)
	groupHandler := group.NewHandler(group.NewService(groups, hub, log), log)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService, log)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/ws", chatHandler.ServeWs)
		r.Get("/api/messages", chatHandler.GetChatHistory)
		r.Get("/api/users/online", chatHandler.GetOnlineUsers)
		r.Get("/api/users/search", userHandler.SearchUsers)
		groupHandler.Routes(r)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	errChan := make(chan error, 1)
	go func() {
		log.Info("Server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
