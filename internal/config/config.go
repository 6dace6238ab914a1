// Package config handles application configuration loading and validation
// from environment variables, providing a type-safe configuration structure.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration values loaded from environment variables.
// It provides a centralized, type-safe way to access configuration throughout the application.
type Config struct {
	// Server configuration
	ListenAddr      string        // Address to listen on (e.g., ":8080")
	UpstreamTimeout time.Duration // Timeout for upstream Stellar API requests
	MaxRequestSize  int64         // Maximum size of incoming requests in bytes

	// Environment
	Env     string // Environment: 'production', 'development', 'test'
	DevMode bool   // Derived from Env; relaxes the CORS origin checks for loopback hosts

	// Database configuration
	DatabaseDriver   string // "sqlite" or "postgres"
	DatabasePath     string // Path to the SQLite database file (sqlite driver)
	DatabaseURL      string // Connection string (postgres driver)
	DatabasePoolSize int    // Number of connections in the database pool

	// Authentication
	JWTSecret      string        // HMAC secret for signing app and identity tokens
	IDTokenTTL     time.Duration // Lifetime of identity tokens issued at signin
	EncryptionKey  string        // Base64-encoded 32-byte AES key for project credentials
	APIID          string        // Client id expected at the app-token endpoint
	APISecret      string        // Shared secret required on credentialed server-to-server calls
	GoogleClientID string        // OAuth audience for Google sign-in tokens (optional)
	PlaintextKeys  bool          // Accept plaintext composite keys on proxy routes (local development)

	// Upstreams
	UpstreamConfigPath string       // Optional YAML file overriding the upstream URL table
	Upstreams          UpstreamURLs // Resolved upstream URL table

	// Logging
	LogLevel  string // Log level (debug, info, warn, error)
	LogFormat string // Log format (json, console)
	LogFile   string // Path to log file (empty for stdout)

	// Rate limiting
	FreePlanLimit   int           // Requests per window for the free plan
	ProPlanLimit    int           // Requests per window for the pro plan
	AuthRateLimit   int           // Requests per window per client IP on the auth endpoints
	RateLimitWindow time.Duration // Fixed window duration shared by all plans

	// Credit metering
	CallCost int64 // Credits consumed per admitted upstream call

	// Token blacklist
	RedisAddr     string // Redis server address (e.g., "localhost:6379")
	RedisDB       int    // Redis database number (default: 0)
	RedisPassword string // Redis password (empty for none)

	// Monitoring
	EnableMetrics bool   // Whether to enable a lightweight metrics endpoint
	MetricsPath   string // Path for metrics endpoint
}

// UpstreamURLs is the base URL table the proxy forwards to, keyed by
// API family and network.
type UpstreamURLs struct {
	RPCTestnet     string `yaml:"rpc_testnet"`
	RPCPublic      string `yaml:"rpc_public"`
	HorizonTestnet string `yaml:"horizon_testnet"`
	HorizonPublic  string `yaml:"horizon_public"`
}

// New creates a new configuration with values from environment variables.
// It applies default values where environment variables are not set,
// and validates required configuration settings.
//
// Returns a populated Config struct and nil error on success,
// or nil and an error if validation fails.
func New() (*Config, error) {
	env := EnvString("GATEWAY_ENV", "development")

	config := &Config{
		// Server defaults
		ListenAddr:      EnvString("LISTEN_ADDR", ":8080"),
		UpstreamTimeout: EnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		MaxRequestSize:  EnvInt64("MAX_REQUEST_SIZE", 1*1024*1024), // 1MB

		// Environment
		Env:     env,
		DevMode: env != "production",

		// Database defaults
		DatabaseDriver:   EnvString("DATABASE_DRIVER", "sqlite"),
		DatabasePath:     EnvString("DATABASE_PATH", "./data/rpc-gateway.db"),
		DatabaseURL:      EnvString("DATABASE_URL", ""),
		DatabasePoolSize: EnvInt("DATABASE_POOL_SIZE", 10),

		// Authentication
		JWTSecret:      EnvString("JWT_SECRET", ""),
		IDTokenTTL:     EnvDuration("ID_TOKEN_TTL", 24*time.Hour),
		EncryptionKey:  EnvString("ENCRYPTION_KEY", ""),
		APIID:          EnvString("API_ID", "gateway"),
		APISecret:      EnvString("API_SECRET", ""),
		GoogleClientID: EnvString("GOOGLE_CLIENT_ID", ""),
		PlaintextKeys:  EnvBool("GATEWAY_PLAINTEXT_KEYS", false),

		// Upstreams
		UpstreamConfigPath: EnvString("UPSTREAM_CONFIG_PATH", ""),
		Upstreams: UpstreamURLs{
			RPCTestnet:     EnvString("RPC_TESTNET_URL", ""),
			RPCPublic:      EnvString("RPC_PUBLIC_URL", ""),
			HorizonTestnet: EnvString("HORIZON_TESTNET_URL", ""),
			HorizonPublic:  EnvString("HORIZON_PUBLIC_URL", ""),
		},

		// Logging defaults
		LogLevel:  EnvString("LOG_LEVEL", "info"),
		LogFormat: EnvString("LOG_FORMAT", "json"),
		LogFile:   EnvString("LOG_FILE", ""),

		// Rate limiting defaults
		FreePlanLimit:   EnvInt("FREE_PLAN_LIMIT", 1500),
		ProPlanLimit:    EnvInt("PRO_PLAN_LIMIT", 2000),
		AuthRateLimit:   EnvInt("AUTH_RATE_LIMIT", 5),
		RateLimitWindow: EnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		// Credit metering defaults
		CallCost: EnvInt64("CALL_COST", 2),

		// Token blacklist
		RedisAddr:     EnvString("REDIS_ADDR", "localhost:6379"),
		RedisDB:       EnvInt("REDIS_DB", 0),
		RedisPassword: EnvString("REDIS_PASSWORD", ""),

		// Monitoring defaults
		EnableMetrics: EnvBool("ENABLE_METRICS", true),
		MetricsPath:   EnvString("METRICS_PATH", "/metrics"),
	}

	if config.UpstreamConfigPath != "" {
		urls, err := LoadUpstreamURLs(config.UpstreamConfigPath)
		if err != nil {
			return nil, fmt.Errorf("loading upstream config: %w", err)
		}
		config.Upstreams = mergeUpstreams(config.Upstreams, urls)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that every setting the admission pipeline depends on is present.
// A gateway booted with a partial upstream table would fail requests at runtime,
// so missing values are fatal at startup.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY environment variable is required")
	}
	if c.APISecret == "" {
		return fmt.Errorf("API_SECRET environment variable is required")
	}

	missing := c.Upstreams.missing()
	if len(missing) > 0 {
		return fmt.Errorf("upstream URLs are required: %s", strings.Join(missing, ", "))
	}

	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	return nil
}

func (u UpstreamURLs) missing() []string {
	var missing []string
	if u.RPCTestnet == "" {
		missing = append(missing, "RPC_TESTNET_URL")
	}
	if u.RPCPublic == "" {
		missing = append(missing, "RPC_PUBLIC_URL")
	}
	if u.HorizonTestnet == "" {
		missing = append(missing, "HORIZON_TESTNET_URL")
	}
	if u.HorizonPublic == "" {
		missing = append(missing, "HORIZON_PUBLIC_URL")
	}
	return missing
}

// mergeUpstreams overlays file-provided URLs on top of the env-provided table.
// File values win where both are set.
func mergeUpstreams(env, file UpstreamURLs) UpstreamURLs {
	if file.RPCTestnet != "" {
		env.RPCTestnet = file.RPCTestnet
	}
	if file.RPCPublic != "" {
		env.RPCPublic = file.RPCPublic
	}
	if file.HorizonTestnet != "" {
		env.HorizonTestnet = file.HorizonTestnet
	}
	if file.HorizonPublic != "" {
		env.HorizonPublic = file.HorizonPublic
	}
	return env
}

// EnvString retrieves a string value from an environment variable,
// falling back to the provided default value if the variable is not set.
func EnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// EnvBool retrieves a boolean value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a boolean.
func EnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.ParseBool(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// EnvInt retrieves an integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as an integer.
func EnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.Atoi(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// EnvInt64 retrieves a 64-bit integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a 64-bit integer.
func EnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// EnvDuration retrieves a duration value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a duration.
func EnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := time.ParseDuration(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}
