package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/sorobuild/rpc-gateway/internal/blacklist"
	"github.com/sorobuild/rpc-gateway/internal/config"
	"github.com/sorobuild/rpc-gateway/internal/logging"
	"github.com/sorobuild/rpc-gateway/internal/server"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

// Server command flags
var (
	serverEnvFile       string
	serverListenAddr    string
	serverDatabasePath  string
	serverLogLevel      string
	serverLogFile       string
	serverUpstreamsPath string
	debugMode           bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the gateway server",
	Long:  `Start the gateway server using configuration from the environment.`,
	Run:   runServer,
}

func init() {
	serverCmd.Flags().StringVar(&serverEnvFile, "env", config.EnvString("ENV_FILE", ".env"), "Path to .env file")
	serverCmd.Flags().StringVar(&serverListenAddr, "addr", config.EnvString("LISTEN_ADDR", ""), "Address to listen on (overrides env var)")
	serverCmd.Flags().StringVar(&serverDatabasePath, "db", config.EnvString("DATABASE_PATH", ""), "Path to SQLite database (overrides env var)")
	serverCmd.Flags().StringVar(&serverLogLevel, "log-level", config.EnvString("LOG_LEVEL", ""), "Log level: debug, info, warn, error (overrides env var)")
	serverCmd.Flags().StringVar(&serverLogFile, "log-file", config.EnvString("LOG_FILE", ""), "Path to log file (overrides env var, default: stdout)")
	serverCmd.Flags().StringVarP(&serverUpstreamsPath, "upstreams", "u", config.EnvString("UPSTREAM_CONFIG_PATH", ""), "Path to YAML file with upstream URLs (overrides env var)")
	serverCmd.Flags().BoolVarP(&debugMode, "debug", "v", config.EnvBool("DEBUG", false), "Enable debug logging (overrides log-level)")
}

func runServer(cmd *cobra.Command, args []string) {
	// Load .env file if it exists
	if _, err := os.Stat(serverEnvFile); err == nil {
		if err := godotenv.Load(serverEnvFile); err != nil {
			log.Printf("Warning: Error loading %s file: %v", serverEnvFile, err)
		} else {
			log.Printf("Loaded environment from %s", serverEnvFile)
		}
	}

	// Apply command line overrides to environment variables
	if serverListenAddr != "" {
		if err := os.Setenv("LISTEN_ADDR", serverListenAddr); err != nil {
			log.Fatalf("Failed to set LISTEN_ADDR environment variable: %v", err)
		}
	}
	if serverDatabasePath != "" {
		if err := os.Setenv("DATABASE_PATH", serverDatabasePath); err != nil {
			log.Fatalf("Failed to set DATABASE_PATH environment variable: %v", err)
		}
	}
	if serverLogLevel != "" {
		if err := os.Setenv("LOG_LEVEL", serverLogLevel); err != nil {
			log.Fatalf("Failed to set LOG_LEVEL environment variable: %v", err)
		}
	}
	if serverLogFile != "" {
		if err := os.Setenv("LOG_FILE", serverLogFile); err != nil {
			log.Fatalf("Failed to set LOG_FILE environment variable: %v", err)
		}
	}
	if serverUpstreamsPath != "" {
		if err := os.Setenv("UPSTREAM_CONFIG_PATH", serverUpstreamsPath); err != nil {
			log.Fatalf("Failed to set UPSTREAM_CONFIG_PATH environment variable: %v", err)
		}
	}
	if debugMode || os.Getenv("DEBUG") == "1" {
		_ = os.Setenv("LOG_LEVEL", "debug")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := zapLogger.Sync(); err != nil {
			if !strings.Contains(err.Error(), "inappropriate ioctl for device") {
				log.Printf("Error syncing zap logger: %v", err)
			}
		}
	}()

	// Handle graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Fail fast if the configured address is already in use
	if ln, err := net.Listen("tcp", cfg.ListenAddr); err != nil {
		zapLogger.Fatal("Listen address unavailable (already in use?)", zap.String("addr", cfg.ListenAddr), zap.Error(err))
	} else {
		_ = ln.Close()
	}

	db, err := store.New(store.Config{
		Driver:       store.DriverType(cfg.DatabaseDriver),
		Path:         cfg.DatabasePath,
		DatabaseURL:  cfg.DatabaseURL,
		MaxOpenConns: cfg.DatabasePoolSize,
		MaxIdleConns: cfg.DatabasePoolSize / 2,
	})
	if err != nil {
		switch cfg.DatabaseDriver {
		case "postgres":
			zapLogger.Fatal("Failed to connect to PostgreSQL database", zap.Error(err))
		default:
			zapLogger.Fatal("Failed to connect to SQLite database", zap.Error(err))
		}
	}
	defer func() { _ = db.Close() }()

	switch cfg.DatabaseDriver {
	case "postgres":
		zapLogger.Info("Connected to PostgreSQL database")
	default:
		zapLogger.Info("Connected to SQLite database", zap.String("path", cfg.DatabasePath))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		cancel()
		zapLogger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancel()
	zapLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	s, err := server.New(cfg, db, blacklist.New(redisClient))
	if err != nil {
		zapLogger.Fatal("Failed to initialize server", zap.Error(err))
	}

	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server error", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("addr", cfg.ListenAddr))

	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Println("Press Ctrl+C to stop")
	}

	<-done
	zapLogger.Info("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited gracefully")
}
