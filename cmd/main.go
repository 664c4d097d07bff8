package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sokoni/internal/config"
	"sokoni/internal/database"
	"sokoni/internal/fare"
	"sokoni/internal/geoindex"
	"sokoni/internal/logger"
	"sokoni/internal/messaging"
	"sokoni/internal/ratelimit"
	"sokoni/internal/services/checkout"
	"sokoni/internal/services/courier"
	"sokoni/internal/services/notification"
	"sokoni/internal/services/orders"
)

const checkoutAttemptsPerMinute = 10

func main() {
	// Parse command line flags
	var (
		mode              = flag.String("mode", "", "Service mode (order-service, courier-worker, notification-subscriber)")
		port              = flag.Int("port", 3000, "HTTP port")
		riderName         = flag.String("rider-name", "", "Rider name (required for courier-worker mode)")
		riderPhone        = flag.String("rider-phone", "", "Rider phone number")
		stageID           = flag.Int64("stage-id", 0, "Stage the rider reports to")
		heartbeatInterval = flag.Int("heartbeat-interval", 30, "Heartbeat interval in seconds")
		prefetch          = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	// Validate required mode flag
	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": *port,
	})

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	// Route to appropriate service
	switch *mode {
	case "order-service":
		if err := runOrderService(ctx, cfg, log, *port); err != nil {
			log.Error("service_failed", "Order service failed", requestID, err, nil)
			os.Exit(1)
		}
	case "courier-worker":
		if *riderName == "" {
			log.Error("validation_failed", "rider-name is required for courier-worker mode", requestID, nil, nil)
			os.Exit(1)
		}
		if err := runCourierWorker(ctx, cfg, log, *riderName, *riderPhone, *stageID, *heartbeatInterval, *prefetch); err != nil {
			log.Error("service_failed", "Courier worker failed", requestID, err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		if err := runNotificationSubscriber(ctx, cfg, log, *prefetch); err != nil {
			log.Error("service_failed", "Notification subscriber failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runOrderService runs the HTTP-facing checkout and order lifecycle service
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger, port int) error {
	requestID := logger.GenerateRequestID()

	// Initialize database
	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	// Run database migrations
	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize messaging
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)

	// Initialize Redis for rate limiting and the geospatial index
	redisClient := newRedisClient(cfg)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("redis_connected", "Connected to Redis", requestID, nil)

	limiter := ratelimit.NewRedisLimiter(redisClient, checkoutAttemptsPerMinute, time.Minute)
	geoIndex := geoindex.NewRedisIndex(redisClient)

	// Wire checkout and lifecycle services onto one mux
	checkoutService := checkout.NewService(
		checkout.NewPostgresRepository(db),
		fare.NewCalculator(cfg.Fare),
		limiter,
		publisher,
		geoIndex,
		log,
	)
	ordersService := orders.NewService(orders.NewPostgresRepository(db), publisher, log)

	mux := http.NewServeMux()
	checkout.NewHandler(checkoutService, log).Register(mux)
	orders.NewHandler(ordersService, log).Register(mux)
	mux.HandleFunc("/health", healthHandler(db, "order-service"))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Info("service_started", fmt.Sprintf("Order service started on port %d", port), requestID, map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// runCourierWorker runs a rider dispatch worker
func runCourierWorker(ctx context.Context, cfg *config.Config, log *logger.Logger,
	riderName, riderPhone string, stageID int64, heartbeatInterval, prefetch int) error {

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	redisClient := newRedisClient(cfg)
	defer redisClient.Close()

	publisher := messaging.NewPublisher(conn, log)
	// The dispatch handler blocks for the ride to the customer before
	// marking delivery, so it needs more headroom than the default.
	consumer := messaging.NewConsumer(conn, log, "rider_dispatch_queue", riderName, prefetch).
		WithHandlerTimeout(2 * time.Minute)
	lifecycle := orders.NewService(orders.NewPostgresRepository(db), publisher, log)

	worker := courier.NewWorker(riderName, riderPhone, stageID,
		time.Duration(heartbeatInterval)*time.Second,
		db, consumer, lifecycle, geoindex.NewRedisIndex(redisClient), log)

	return worker.Start(ctx)
}

// runNotificationSubscriber runs the customer-facing notification fanout
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, "notifications_queue", "notification-subscriber", prefetch)
	subscriber := notification.NewSubscriber(consumer, log)

	return subscriber.Start(ctx)
}

func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func healthHandler(db *database.DB, service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unhealthy","service":%q}`, service)
			return
		}
		fmt.Fprintf(w, `{"status":"ok","service":%q,"timestamp":%q}`, service, time.Now().UTC().Format(time.RFC3339))
	}
}
