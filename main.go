package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/example/repochat/modules/api"
	"github.com/example/repochat/modules/auth"
	"github.com/example/repochat/modules/broadcast"
	"github.com/example/repochat/modules/cache"
	"github.com/example/repochat/modules/chat"
	"github.com/example/repochat/modules/messages"
	"github.com/example/repochat/modules/presence"
	"github.com/example/repochat/modules/ratelimit"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== repochat - repository-scoped chat ===")

	// Configuration from environment
	port := getEnv("PORT", "3000")
	dbPath := getEnv("DB_PATH", "repochat.db")
	redisAddr := getEnv("REDIS_ADDR", "")
	authRequired := getEnvBool("SOCKET_AUTH_REQUIRED", false)
	ticketSecret := getEnv("SOCKET_TICKET_SECRET", "")

	if ticketSecret == "" {
		if authRequired {
			log.Fatal("SOCKET_TICKET_SECRET is required when SOCKET_AUTH_REQUIRED=true")
		}
		ticketSecret = "dev-only-ticket-secret"
		log.Println("Warning: SOCKET_TICKET_SECRET not set, using development secret")
	}

	policy := chat.AllowRoomMembers
	switch getEnv("CHAT_EDIT_POLICY", "any") {
	case "any":
	case "sender":
		policy = chat.SenderOnly
	default:
		log.Println("Warning: invalid CHAT_EDIT_POLICY, using default: any")
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	messagesModule := messages.NewModule(dbPath, getEnvBool("DB_DEBUG", false), logger)
	authModule := auth.NewModule(auth.TicketConfig{
		SecretKey: ticketSecret,
		TTL:       getEnvDuration("SOCKET_TICKET_TTL", 2*time.Minute),
	}, logger)
	presenceModule, err := presence.NewModule(getEnvDuration("PRESENCE_OFFLINE_TTL", 0), logger)
	if err != nil {
		log.Fatalf("Failed to create presence module: %v", err)
	}
	registry := presenceModule.Registry()
	broadcastModule := broadcast.NewModule(registry, getEnvInt("CONNECTION_BUFFER_SIZE", 64), logger)
	hub := broadcastModule.Hub()
	registry.SetDeliverer(hub)

	chatModule := chat.NewModule(hub, chat.Config{
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		QueueSize:    getEnvInt("ROOM_QUEUE_SIZE", 256),
		FailureAcks:  getEnvBool("CHAT_FAILURE_ACKS", true),
		Policy:       policy,
	}, logger)
	cacheModule := cache.NewModule(redisAddr, getEnvDuration("HISTORY_CACHE_TTL", time.Minute), logger)
	rateLimitModule := ratelimit.NewModule(ratelimit.Config{
		EventsPerSecond: getEnvInt("EVENTS_PER_SECOND", 10),
		Burst:           getEnvInt("EVENT_BURST", 20),
	}, redisAddr, logger)

	apiModule := api.NewModule(api.Config{
		Port:           port,
		AuthRequired:   authRequired,
		ServiceKey:     getEnv("AUTH_SERVICE_KEY", ""),
		AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
	}, logger)

	// Inject in-process collaborators into the API module
	// (these are not exposed via ServiceContainer)
	apiModule.SetPresence(registry)
	apiModule.SetHub(hub)
	apiModule.SetChat(chatModule)
	apiModule.SetHistory(cacheModule)
	apiModule.SetLimiter(rateLimitModule)
	apiModule.SetHealthSources(
		messagesModule, presenceModule, broadcastModule,
		chatModule, cacheModule, rateLimitModule,
	)

	// Register modules with the framework.
	// Order: providers first, then modules with dependencies
	// - messages: message store (ServiceProviderModule)
	// - auth: socket tickets (ServiceProviderModule)
	// - presence: connection registry and roster
	// - broadcast: per-connection writers
	// - chat: per-room action workers (depends on messages, emits MessageChanged)
	// - cache: history cache (depends on messages, consumes MessageChanged)
	// - ratelimit: inbound event limiter
	// - api: Fiber HTTP/WebSocket server (depends on auth)
	for _, module := range []mono.Module{
		messagesModule,
		authModule,
		presenceModule,
		broadcastModule,
		chatModule,
		cacheModule,
		rateLimitModule,
		apiModule,
	} {
		if err := app.Register(module); err != nil {
			log.Fatalf("Failed to register %s module: %v", module.Name(), err)
		}
	}

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(port, dbPath, redisAddr, authRequired)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(port, dbPath, redisAddr string, authRequired bool) {
	redisInfo := redisAddr
	if redisInfo == "" {
		redisInfo = "disabled (local rate limiting, uncached history)"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  - Message store: SQLite (%s)", dbPath)
	log.Printf("  - Redis: %s", redisInfo)
	log.Printf("  - Socket tickets required: %v", authRequired)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                          - Module health")
	log.Println("  POST   /api/v1/auth/ticket              - Mint a socket ticket")
	log.Println("  GET    /api/v1/repos/:repoId/messages   - Message history")
	log.Println("  GET    /api/v1/repos/:repoId/presence   - Current roster")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws?token=<ticket>):", port)
	log.Println("  Client events: joinRepo, typing, stopTyping, sendMessage, read_message, messageAction")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}

// getEnv returns environment variable or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
