// Package config loads per-service configuration from the process
// environment. Each service gets its own struct and its own prefix,
// mirroring the env_prefix pattern of the original's pydantic-settings
// config classes. No settings library appears anywhere in the retrieval
// pack, so this layer is plain stdlib os/strconv.
package config

import (
	"os"
	"strconv"
	"time"
)

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// ProxyConfig configures the public-facing proxy tier (C10).
type ProxyConfig struct {
	GRPCHost string
	GRPCPort int

	CatalogDSN string
	RedisURL   string
	StreamName string

	TokenSecret    string
	TokenMaxAge    time.Duration
	GateCacheTTL   time.Duration
	GateCacheSize  int
}

func LoadProxyConfig() ProxyConfig {
	return ProxyConfig{
		GRPCHost:      getenv("PROXY_GRPC_HOST", "0.0.0.0"),
		GRPCPort:      getenvInt("PROXY_GRPC_PORT", 7000),
		CatalogDSN:    getenv("PROXY_CATALOG_DSN", "postgres://localhost:5432/qbrix"),
		RedisURL:      getenv("PROXY_REDIS_URL", "redis://localhost:6379/0"),
		StreamName:    getenv("PROXY_STREAM_NAME", "feedback"),
		TokenSecret:   getenv("PROXY_TOKEN_SECRET", ""),
		TokenMaxAge:   getenvDuration("PROXY_TOKEN_MAX_AGE", 0),
		GateCacheTTL:  getenvDuration("PROXY_GATE_CACHE_TTL", 30*time.Second),
		GateCacheSize: getenvInt("PROXY_GATE_CACHE_SIZE", 4096),
	}
}

// MotorConfig configures the selector tier (C8).
type MotorConfig struct {
	GRPCHost string
	GRPCPort int

	RedisURL string

	AgentCacheTTL  time.Duration
	AgentCacheSize int
	ParamCacheTTL  time.Duration
	ParamCacheSize int
}

func LoadMotorConfig() MotorConfig {
	return MotorConfig{
		GRPCHost:       getenv("MOTOR_GRPC_HOST", "0.0.0.0"),
		GRPCPort:       getenvInt("MOTOR_GRPC_PORT", 7001),
		RedisURL:       getenv("MOTOR_REDIS_URL", "redis://localhost:6379/0"),
		AgentCacheTTL:  getenvDuration("MOTOR_AGENT_CACHE_TTL", 60*time.Second),
		AgentCacheSize: getenvInt("MOTOR_AGENT_CACHE_SIZE", 4096),
		ParamCacheTTL:  getenvDuration("MOTOR_PARAM_CACHE_TTL", 15*time.Second),
		ParamCacheSize: getenvInt("MOTOR_PARAM_CACHE_SIZE", 4096),
	}
}

// CortexConfig configures the trainer tier (C9).
type CortexConfig struct {
	RedisURL      string
	CatalogDSN    string
	StreamName    string
	ConsumerGroup string
	ConsumerName  string

	BatchSize        int
	BatchBlock       time.Duration
	FlushInterval    time.Duration
	MinIdle          time.Duration
	ErrorBackoff     time.Duration
	LeaderElection   bool
	LeaseLockName    string
	LeaseNamespace   string
}

func LoadCortexConfig() CortexConfig {
	return CortexConfig{
		RedisURL:       getenv("CORTEX_REDIS_URL", "redis://localhost:6379/0"),
		CatalogDSN:     getenv("CORTEX_CATALOG_DSN", "postgres://localhost:5432/qbrix"),
		StreamName:     getenv("CORTEX_STREAM_NAME", "feedback"),
		ConsumerGroup:  getenv("CORTEX_CONSUMER_GROUP", "trainer"),
		ConsumerName:   getenv("CORTEX_CONSUMER_NAME", "trainer-1"),
		BatchSize:      getenvInt("CORTEX_BATCH_SIZE", 256),
		BatchBlock:     getenvDuration("CORTEX_BATCH_BLOCK", 200*time.Millisecond),
		FlushInterval:  getenvDuration("CORTEX_FLUSH_INTERVAL", 2*time.Second),
		MinIdle:        getenvDuration("CORTEX_MIN_IDLE", 30*time.Second),
		ErrorBackoff:   getenvDuration("CORTEX_ERROR_BACKOFF", 1*time.Second),
		LeaderElection: getenv("CORTEX_LEADER_ELECTION", "") != "",
		LeaseLockName:  getenv("CORTEX_LEASE_LOCK_NAME", "qbrix-trainer"),
		LeaseNamespace: getenv("CORTEX_LEASE_NAMESPACE", "default"),
	}
}
