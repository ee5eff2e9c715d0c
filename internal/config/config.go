package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	// loads .env from the working directory when present
	_ "github.com/joho/godotenv/autoload"
)

const (
	DefaultGracePeriod  = 50 * time.Millisecond
	DefaultMoveOverhead = 30 * time.Millisecond
	DefaultHashMB       = 16
	DefaultMaxDepth     = 64
)

// EngineConfig describes the engine binary served over UCI.
type EngineConfig struct {
	Name         string
	Author       string
	GracePeriod  time.Duration
	MoveOverhead time.Duration
	HashMB       int
	MaxDepth     int
}

// LoadEngineConfig reads UCI_* variables, falling back to defaults for
// anything that is unset.
func LoadEngineConfig() (*EngineConfig, error) {
	grace, err := getEnvMillis("UCI_GRACE_PERIOD_MS", DefaultGracePeriod)
	if err != nil {
		return nil, err
	}
	overhead, err := getEnvMillis("UCI_MOVE_OVERHEAD_MS", DefaultMoveOverhead)
	if err != nil {
		return nil, err
	}
	hash, err := getEnvInt("UCI_HASH_MB", DefaultHashMB)
	if err != nil {
		return nil, err
	}
	maxDepth, err := getEnvInt("UCI_MAX_DEPTH", DefaultMaxDepth)
	if err != nil {
		return nil, err
	}

	return &EngineConfig{
		Name:         getEnv("UCI_ENGINE_NAME", "chessuci 1"),
		Author:       getEnv("UCI_ENGINE_AUTHOR", "cricklet"),
		GracePeriod:  grace,
		MoveOverhead: overhead,
		HashMB:       hash,
		MaxDepth:     maxDepth,
	}, nil
}

type ServerConfig struct {
	Port int
}

func LoadServerConfig() (*ServerConfig, error) {
	port, err := getEnvInt("UCI_SERVER_PORT", 8002)
	if err != nil {
		return nil, err
	}
	return &ServerConfig{Port: port}, nil
}

// AnalysisConfig configures cmd/analyze. RedisURL is optional; without it
// results are only cached in memory.
type AnalysisConfig struct {
	EnginePath string
	Depth      int
	RedisURL   string
	KeyPrefix  string
}

func LoadAnalysisConfig() (*AnalysisConfig, error) {
	depth, err := getEnvInt("ANALYSIS_DEPTH", 12)
	if err != nil {
		return nil, err
	}
	return &AnalysisConfig{
		EnginePath: getEnv("ANALYSIS_ENGINE_PATH", "stockfish"),
		Depth:      depth,
		RedisURL:   os.Getenv("ANALYSIS_REDIS_URL"),
		KeyPrefix:  getEnv("ANALYSIS_KEY_PREFIX", "chessuci:analysis:"),
	}, nil
}

func getEnv(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("error converting %s=%q to int: %w", key, value, err)
	}
	return n, nil
}

func getEnvMillis(key string, fallback time.Duration) (time.Duration, error) {
	n, err := getEnvInt(key, int(fallback/time.Millisecond))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	return time.Duration(n) * time.Millisecond, nil
}
