package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/storefront/internal/checkout"
	"github.com/flicky/storefront/internal/config"
	"github.com/flicky/storefront/internal/handler"
	"github.com/flicky/storefront/internal/lock"
	"github.com/flicky/storefront/internal/logger"
	"github.com/flicky/storefront/internal/repository"
	"github.com/flicky/storefront/internal/repository/memory"
	"github.com/flicky/storefront/internal/repository/mongostore"
	"github.com/flicky/storefront/internal/service"
	"github.com/flicky/storefront/internal/telemetry"
	"github.com/flicky/storefront/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service:   cfg.Telemetry.ServiceName,
		Env:       cfg.App.Env,
		Level:     cfg.App.LogLevel,
		AddSource: cfg.App.LogAddSource,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("storefront exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// stores is the persistence backend chosen by STORE_BACKEND.
type stores struct {
	users    repository.UserRepository
	products repository.ProductRepository
	carts    repository.CartRepository
	orders   repository.OrderRepository
	checks   []handler.ReadinessCheck
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse db config: %w", err)
		}
		poolCfg.MaxConns = cfg.DB.MaxConns

		dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if cfg.DB.AutoMigrate {
			if err := repository.Migrate(ctx, dbPool); err != nil {
				dbPool.Close()
				return nil, err
			}
		}
		log.Info("connected to PostgreSQL", "auto_migrate", cfg.DB.AutoMigrate)

		return &stores{
			users:    repository.NewUserRepository(dbPool),
			products: repository.NewProductRepository(dbPool),
			carts:    repository.NewCartRepository(dbPool),
			orders:   repository.NewOrderRepository(dbPool),
			checks:   []handler.ReadinessCheck{handler.PostgresCheck(dbPool)},
			close:    dbPool.Close,
		}, nil

	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Info("connected to MongoDB", "database", cfg.Mongo.Database)

		return &stores{
			users:    mongostore.NewUserRepository(db),
			products: mongostore.NewProductRepository(db),
			carts:    mongostore.NewCartRepository(db),
			orders:   mongostore.NewOrderRepository(db),
			checks:   []handler.ReadinessCheck{handler.MongoCheck(client)},
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		log.Warn("using in-memory store; data is lost on restart")
		store := memory.New()
		return &stores{
			users:    store.Users(),
			products: store.Products(),
			carts:    store.Carts(),
			orders:   store.Orders(),
			close:    func() {},
		}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("tracer shutdown", "error", err)
		}
	}()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()
	checks := st.checks

	// Redis backs the product cache, the distributed cart lock and worker
	// idempotency. A pure in-memory dev setup runs without it.
	var redisClient *redis.Client
	if cfg.Store.Backend != config.StoreMemory || cfg.Lock.Backend == config.LockRedis || cfg.RabbitMQ.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		checks = append(checks, handler.RedisCheck(redisClient))
		log.Info("connected to Redis")
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Lock.Backend == config.LockRedis {
		locker = lock.NewRedis(redisClient, cfg.Lock.TTL, cfg.Lock.Wait, log)
	}

	var (
		events     service.EventPublisher
		commands   service.CommandPublisher
		consumerCh *amqp.Channel
	)
	if cfg.RabbitMQ.Enabled {
		amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		defer amqpConn.Close()

		publishCh, err := amqpConn.Channel()
		if err != nil {
			return fmt.Errorf("open RabbitMQ channel: %w", err)
		}
		defer publishCh.Close()

		if err := worker.SetupRabbitMQ(publishCh); err != nil {
			return fmt.Errorf("setup RabbitMQ: %w", err)
		}

		consumerCh, err = amqpConn.Channel()
		if err != nil {
			return fmt.Errorf("open RabbitMQ consumer channel: %w", err)
		}
		defer consumerCh.Close()
		if err := consumerCh.Qos(1, 0, false); err != nil {
			return fmt.Errorf("set QoS: %w", err)
		}

		publisher := worker.NewPublisher(publishCh)
		events, commands = publisher, publisher
		checks = append(checks, handler.RabbitMQCheck(amqpConn))
		log.Info("connected to RabbitMQ")
	}

	// Services
	authSvc := service.NewAuthService(st.users, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(st.products, redisClient, cfg.Redis.ProductCacheTTL, log)
	cartSvc := service.NewCartService(st.carts, st.products, locker, log)
	orderSvc := service.NewOrderService(st.orders, st.carts, st.products, locker,
		checkout.SimulatedAuthorizer{}, events, log)
	fulfillmentSvc := service.NewFulfillmentService(st.orders, locker, commands, log)

	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc, log),
		Product: handler.NewProductHandler(productSvc, log),
		Cart:    handler.NewCartHandler(cartSvc, log),
		Order:   handler.NewOrderHandler(orderSvc, fulfillmentSvc, log),
		Health:  handler.NewHealthHandler(checks...),
	}, cfg.Telemetry.ServiceName, cfg.JWT.Secret, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if consumerCh != nil {
		fulfillmentWorker := worker.NewFulfillmentWorker(consumerCh, fulfillmentSvc, redisClient, log)
		g.Go(func() error { return fulfillmentWorker.Start(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
