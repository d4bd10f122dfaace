package main

// @title           Read Later API
// @version         1.0
// @description     Sends URLs to connected read-later services and keeps post interactions in sync across views.

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/readlater/internal/adapters/driven/auth"
	"github.com/custodia-labs/readlater/internal/adapters/driven/eventbus"
	"github.com/custodia-labs/readlater/internal/adapters/driven/mastodon"
	"github.com/custodia-labs/readlater/internal/adapters/driven/memory"
	"github.com/custodia-labs/readlater/internal/adapters/driven/metrics"
	"github.com/custodia-labs/readlater/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/readlater/internal/adapters/driven/redis"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/instapaper"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/omnivore"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/pocket"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/raindrop"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/readwise"
	"github.com/custodia-labs/readlater/internal/adapters/driven/secrets"
	"github.com/custodia-labs/readlater/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/readlater/internal/adapters/driving/http"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
	"github.com/custodia-labs/readlater/internal/core/services"
	"github.com/custodia-labs/readlater/internal/worker"
)

var version = "dev"

// credentialSalt scopes the derived credential key to this application
const credentialSalt = "readlater-credentials"

func main() {
	setupLogging(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "text"))

	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	switch mode {
	case "serve":
		runServe()
	case "token":
		runToken(os.Args[2:])
	default:
		log.Fatalf("Unknown mode: %s (use: serve or token)", mode)
	}
}

func runServe() {
	log.Printf("readlater %s starting", version)

	// Configuration from environment
	jwtSecret := getEnv("JWT_SECRET", "development-secret-change-in-production")
	credentialSecret := getEnv("CREDENTIAL_SECRET", "development-credential-secret")
	port := getEnvInt("PORT", 8080)
	databaseURL := getEnv("DATABASE_URL", "")
	sqlitePath := getEnv("SQLITE_PATH", "readlater.db")
	redisURL := getEnv("REDIS_URL", "")
	baseURL := getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port))

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	encryptor, err := secrets.NewEncryptorFromPassphrase(credentialSecret, credentialSalt)
	if err != nil {
		log.Fatalf("Failed to create credential encryptor: %v", err)
	}

	// ===== Storage (PostgreSQL if configured, otherwise SQLite) =====
	var (
		configStore driven.ServiceConfigStore
		credStore   driven.CredentialStore
		handshakes  driven.HandshakeStore
		cleaner     worker.Cleaner
		dbPinger    http.Pinger
	)

	if databaseURL != "" {
		log.Println("Connecting to PostgreSQL...")
		dbConfig := postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE", time.Minute),
		}
		db, err := postgres.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("PostgreSQL connected and migrations applied")

		configStore = postgres.NewServiceConfigStore(db.DB)
		credStore = postgres.NewCredentialStore(db.DB, encryptor)
		pgHandshakes := postgres.NewHandshakeStore(db.DB, encryptor)
		handshakes = pgHandshakes
		cleaner = pgHandshakes
		dbPinger = db
	} else {
		log.Printf("Opening SQLite database at %s...", sqlitePath)
		db, err := sqlite.Open(ctx, sqlitePath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		log.Println("SQLite opened and migrations applied")

		configStore = sqlite.NewServiceConfigStore(db)
		credStore = sqlite.NewCredentialStore(db, encryptor)
		dbPinger = db
	}

	// ===== Events (local bus, fanned out through Redis when available) =====
	saveBus := eventbus.NewSaveResults(slog.Default())
	postBus := eventbus.NewPostStates(slog.Default())
	var savePublisher driven.SaveResultPublisher = saveBus
	var postPublisher driven.PostStatePublisher = postBus
	var redisPinger http.Pinger
	var relay *redisadapter.EventPublisher
	var registryPublisher driven.RegistryChangePublisher

	if redisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")

		// Redis handshakes expire by key TTL and survive restarts
		handshakes = redisadapter.NewHandshakeStore(redisClient, encryptor)
		cleaner = nil

		relay = redisadapter.NewEventPublisher(redisClient, slog.Default())
		savePublisher = eventbus.FanoutSaveResults{saveBus, relay}
		postPublisher = eventbus.FanoutPostStates{postBus, relay}
		registryPublisher = relay
		redisPinger = relay
		log.Println("Using Redis handshake store and event relay")
	}

	if handshakes == nil {
		memHandshakes := memory.NewHandshakeStore()
		defer memHandshakes.Close()
		handshakes = memHandshakes
		log.Println("Using in-memory handshake store")
	}

	// ===== Provider adapters =====
	saverOpts := savers.Options{
		Timeout:       getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		RatePerSecond: getEnvFloat("PROVIDER_RATE_PER_SEC", 2),
		Logger:        slog.Default(),
	}
	pocketBuilder := pocket.NewBuilder(saverOpts)
	instapaperBuilder := instapaper.NewBuilder(saverOpts)
	readwiseBuilder := readwise.NewBuilder(saverOpts)
	raindropBuilder := raindrop.NewBuilder(saverOpts)
	factory := savers.NewFactory(
		pocketBuilder,
		instapaperBuilder,
		omnivore.NewBuilder(saverOpts),
		readwiseBuilder,
		raindropBuilder,
	)

	saveMetrics := metrics.NewSaveMetrics(nil)

	// ===== Services =====
	saveService := services.NewSaveOrchestrator(services.SaveOrchestratorConfig{
		Store:     configStore,
		Creds:     credStore,
		Factory:   factory,
		Publisher: savePublisher,
		Metrics:   saveMetrics,
		Logger:    slog.Default(),
		Registry:  registryPublisher,
	})
	saveService.LoadConfigurations(ctx)
	log.Printf("Loaded %d configured services", len(saveService.Snapshot().Services))

	if relay != nil {
		go func() {
			if err := relay.Relay(ctx, saveBus, postBus, saveService); err != nil {
				slog.Error("event relay stopped", "error", err)
			}
		}()
	}

	connectService := services.NewConnectService(services.ConnectServiceConfig{
		Saves:      saveService,
		Handshakes: handshakes,
		Pocket:     pocketBuilder,
		Instapaper: instapaperBuilder,
		Readwise:   readwiseBuilder,
		Raindrop:   raindropBuilder,
		BaseURL:    baseURL,
		Logger:     slog.Default(),
	})

	interactionService := services.NewInteractionService(services.InteractionServiceConfig{
		Client: mastodon.NewClient(mastodon.Config{
			BaseURL: getEnv("MASTODON_URL", "https://mastodon.social"),
			Token:   getEnv("MASTODON_TOKEN", ""),
			Timeout: getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
			Logger:  slog.Default(),
		}),
		Publisher: postPublisher,
		Metrics:   saveMetrics,
		Logger:    slog.Default(),
	})

	authService := services.NewAuthService(auth.NewAdapter(jwtSecret))

	// ===== Background refresh worker =====
	w := worker.NewWorker(worker.WorkerConfig{
		Refresher:       interactionService,
		Cleaner:         cleaner,
		Logger:          slog.Default(),
		Concurrency:     getEnvInt("WORKER_CONCURRENCY", 2),
		QueueSize:       getEnvInt("WORKER_QUEUE_SIZE", 64),
		CleanupInterval: getEnvDuration("HANDSHAKE_CLEANUP_INTERVAL", 5*time.Minute),
	})
	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	defer w.Stop()

	// ===== HTTP =====
	var metricsHandler stdhttp.Handler
	if getEnvBool("METRICS_ENABLED", true) {
		metricsHandler = saveMetrics.Handler()
	}

	server := http.NewServer(http.Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           port,
		Version:        version,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		Logger:         slog.Default(),
	}, http.Dependencies{
		Auth:         authService,
		Saves:        saveService,
		Connect:      connectService,
		Interactions: interactionService,
		SaveEvents:   saveBus,
		PostEvents:   postBus,
		RefreshQueue: w,
		Metrics:      metricsHandler,
		DB:           dbPinger,
		Redis:        redisPinger,
	})

	log.Printf("API server starting on :%d", port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// runToken prints a signed API token for the given subject and scopes.
func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "reader", "token subject")
	scopes := fs.String("scopes", "", "comma-separated scopes (save, services, posts); empty grants all")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	for _, scope := range splitList(*scopes) {
		if !domain.IsValidScope(scope) {
			log.Fatalf("Unknown scope: %s", scope)
		}
	}

	authService := services.NewAuthService(auth.NewAdapter(getEnv("JWT_SECRET", "development-secret-change-in-production")))
	token, err := authService.IssueToken(context.Background(), *subject, splitList(*scopes), *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func setupLogging(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%g", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
