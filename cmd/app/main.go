package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/config"
	"github.com/ReilBleem13/HelloChat/internal/logger"
	"github.com/ReilBleem13/HelloChat/internal/repository"
	"github.com/ReilBleem13/HelloChat/internal/repository/cache"
	"github.com/ReilBleem13/HelloChat/internal/repository/database"
	"github.com/ReilBleem13/HelloChat/internal/repository/memory"
	"github.com/ReilBleem13/HelloChat/internal/repository/mongodb"
	"github.com/ReilBleem13/HelloChat/internal/repository/queue"
	"github.com/ReilBleem13/HelloChat/internal/server"
	"github.com/ReilBleem13/HelloChat/internal/service"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Chat service stopped", "error", err)
		os.Exit(1)
	}
}

type store struct {
	chats    service.ChatRepoIn
	messages service.MessageRepoIn
	close    func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.ChatConfig, log *slog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		log.Warn("Using in-memory store, data is lost on restart")
		return &store{
			chats:    memory.NewChatRepo(),
			messages: memory.NewMessageRepo(),
			close:    func(context.Context) error { return nil },
		}, nil

	case config.StoreMongo:
		client, err := mongodb.NewClient(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureIndexes(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		log.Info("MongoDB inited", "database", cfg.Mongo.Database)
		return &store{
			chats:    mongodb.NewChatRepo(client),
			messages: mongodb.NewMessageRepo(client),
			close:    client.Close,
		}, nil
	}

	db, err := database.NewPostgresClient(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	log.Info("Database inited")

	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Migrations completed")

	return &store{
		chats:    repository.NewChatRepo(db),
		messages: repository.NewMessageRepo(db),
		close: func(ctx context.Context) error {
			var err error
			if cfg.Database.MigrateDownOnExit {
				if err = database.MigrateDown(ctx, db); err == nil {
					log.Info("Migrations down")
				}
			}
			return multierr.Append(err, db.Close())
		},
	}, nil
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file, using process environment")
	}

	cfg, err := config.LoadChat()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	messageCache := cache.NewMessageCache(cfg.Redis.CacheTTL)
	q := queue.New(queue.NewMemoryBackend(cfg.Queue.MemoryCapacity), log)

	var reconciler *queue.Reconciler
	if cfg.Redis.URL != "" {
		reconciler = queue.NewReconciler(q, func(ctx context.Context) (queue.Backend, error) {
			client, err := cache.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.ConnectTimeout)
			if err != nil {
				return nil, err
			}
			messageCache.Attach(client)
			return queue.NewRedisBackend(client, cfg.Queue.Key), nil
		}, queue.ReconcilerConfig{
			ConnectTimeout: cfg.Redis.ConnectTimeout,
			Interval:       cfg.Queue.ReconnectInterval,
			Attempts:       cfg.Queue.ReconnectAttempts,
		}, log)
	} else {
		log.Warn("REDIS_URL not set, delivery queue stays in memory")
	}

	presence := service.NewPresence()
	hub := service.NewHub(presence, log)
	gateway := service.NewGateway(hub, log)
	deliverer := service.NewDeliverer(st.chats, st.messages, messageCache, hub, presence, log)
	consumer := service.NewConsumer(q, deliverer, service.ConsumerConfig{
		PollInterval: cfg.Delivery.PollInterval,
		BatchSize:    cfg.Delivery.BatchSize,
		Workers:      cfg.Delivery.Workers,
	}, log)
	chatSrv := service.NewChatService(st.chats, st.messages, q, deliverer, hub, presence, log)

	srv := server.NewServer(
		server.WithLogger(log),
		server.WithChatRoutes(server.NewHandler(chatSrv, gateway, cfg.JWT.Secret, log)),
		server.WithReadiness(func() server.ReadinessResponse {
			state := queue.StateIdle
			if reconciler != nil {
				state = reconciler.State()
			}
			status := "ok"
			if state != queue.StateConnected {
				status = "degraded"
			}
			return server.ReadinessResponse{
				Status:  status,
				Queue:   state.String(),
				Backend: q.ActiveName(),
				Cache:   messageCache.Attached(),
			}
		}),
	)

	g, gctx := errgroup.WithContext(ctx)

	if reconciler != nil {
		reconciler.Start(gctx)
	}

	g.Go(func() error {
		return consumer.Run(gctx)
	})

	g.Go(func() error {
		return srv.Run(gctx, ":"+cfg.App.Port)
	})

	g.Go(func() error {
		<-gctx.Done()
		hub.Stop()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if reconciler != nil {
		<-reconciler.Done()
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if pending, perr := q.Pending(closeCtx); perr == nil && pending > 0 {
		log.Warn("Shutting down with undelivered jobs", "pending", pending, "backend", q.ActiveName())
	}

	return multierr.Combine(err, q.Close(), st.close(closeCtx))
}
