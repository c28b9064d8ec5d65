package config

import "time"

// DefaultConfig returns the built-in defaults for every section.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Engine:    DefaultEngineConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultEngineConfig returns the default orchestration configuration.
// Full quorum is required by default: a conflict where any involved agent
// fails to vote escalates to a human rather than auto-resolving on a
// unanimous subset.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AgentCallTimeout:  30 * time.Second,
		RequireFullQuorum: true,
		EscalationBuffer:  64,
	}
}

// DefaultSchedulerConfig returns the default execution configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:           4,
		QueueSize:         64,
		AttemptsPerWindow: 5,
		RateWindow:        time.Minute,
		MaxAttempts:       3,
		RetryDelay:        120 * time.Second,
	}
}

// DefaultDatabaseConfig returns the default store configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Path:            "accord.db",
		MaxOpenConns:    100,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "accord:conflict:",
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
// Disabled by default; enabling it requires a reachable OTLP endpoint.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "accord",
		SampleRate:   1.0,
	}
}
