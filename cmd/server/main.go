package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/blazeit/quest-engine/internal/asset"
	"github.com/blazeit/quest-engine/internal/config"
	"github.com/blazeit/quest-engine/internal/feed"
	"github.com/blazeit/quest-engine/internal/limits"
	"github.com/blazeit/quest-engine/internal/metrics"
	"github.com/blazeit/quest-engine/internal/quest"
	"github.com/blazeit/quest-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Asset catalog and price feed ---
	catalog, err := asset.NewUniverse(cfg.Catalog)
	if err != nil {
		slog.Error("asset catalog invalid", "err", err)
		os.Exit(1)
	}
	priceFeed := feed.NewHTTPFeed(cfg.FeedBaseURL, cfg.FeedAPIKey)

	// --- Trade limits ---
	limiter := limits.NewTradeLimiter(cfg.MaxAssetShare)

	// --- WebSocket hub ---
	wsHub := quest.NewWSHub()
	go wsHub.Run()

	// --- Quest service ---
	questSvc := quest.NewService(st, priceFeed, catalog, limiter, cfg.PrizeShares, wsHub)

	// --- Lifecycle scheduler ---
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()
	go quest.NewScheduler(questSvc, cfg.SchedulerInterval).Run(schedCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"quest-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade and price updates.
		r.Get("/ws", wsHub.HandleWS)

		// Asset catalog.
		r.Get("/assets", questSvc.ListAssets)

		// Quest management.
		r.Get("/quests", questSvc.ListQuests)
		r.Post("/quests", questSvc.CreateQuest)
		r.Get("/quests/{questID}", questSvc.GetQuest)
		r.Post("/quests/{questID}/join", questSvc.JoinQuest)

		// Trade execution and history.
		r.Post("/quests/{questID}/trade", questSvc.ExecuteTrade)
		r.Get("/quests/{questID}/trades", questSvc.GetQuestTrades)

		// Snapshots and leaderboard.
		r.Post("/quests/{questID}/snapshots/{kind}", questSvc.CaptureSnapshotHandler)
		r.Get("/quests/{questID}/leaderboard", questSvc.GetLeaderboard)

		// Portfolio queries.
		r.Get("/quests/{questID}/portfolio/{actorID}", questSvc.GetPortfolio)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("quest-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSched()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down quest-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("quest-engine stopped")
}
