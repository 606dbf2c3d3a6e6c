package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	HTTPAddr  string
	GRPCAddr  string
	RateLimit time.Duration
}

type Storage struct {
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
	ArchivePath   string
}

type Market struct {
	OrderRetention time.Duration
	HistoryCap     int
	// TradeRetention of 0 keeps every trade in memory.
	TradeRetention int
	SweepInterval  time.Duration
	// DriftInterval of 0 disables the price drift.
	DriftInterval time.Duration
	DriftSeed     uint64
}

type Config struct {
	Server   Server
	Storage  Storage
	Market   Market
	LogLevel string
}

func Default() Config {
	return Config{
		Server: Server{
			HTTPAddr:  ":8080",
			GRPCAddr:  ":9090",
			RateLimit: 100 * time.Millisecond,
		},
		Storage: Storage{
			RedisTTL:   5 * time.Minute,
			KafkaTopic: "trades",
		},
		Market: Market{
			OrderRetention: 24 * time.Hour,
			HistoryCap:     1000,
			SweepInterval:  time.Minute,
			DriftInterval:  5 * time.Second,
			DriftSeed:      1,
		},
		LogLevel: "info",
	}
}

// Load reads an optional .env file then the environment on top of Default.
// Priority: ENV > .env file > defaults. A malformed value keeps its default
// and is reported in the returned error; the Config is always usable.
func Load(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration, allowZero bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || (d == 0 && !allowZero) {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}
	num := func(key string, dst *int, min int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < min {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}

	str("HTTP_ADDR", &cfg.Server.HTTPAddr)
	str("GRPC_ADDR", &cfg.Server.GRPCAddr)
	dur("RATE_LIMIT", &cfg.Server.RateLimit, true)

	str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("REDIS_ADDR", &cfg.Storage.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Storage.RedisPassword)
	num("REDIS_DB", &cfg.Storage.RedisDB, 0)
	dur("REDIS_TTL", &cfg.Storage.RedisTTL, true)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Storage.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Storage.KafkaTopic = v
	}
	str("ARCHIVE_PATH", &cfg.Storage.ArchivePath)

	dur("ORDER_RETENTION", &cfg.Market.OrderRetention, false)
	num("HISTORY_CAP", &cfg.Market.HistoryCap, 1)
	num("TRADE_RETENTION", &cfg.Market.TradeRetention, 0)
	dur("SWEEP_INTERVAL", &cfg.Market.SweepInterval, false)
	dur("DRIFT_INTERVAL", &cfg.Market.DriftInterval, true)
	if v := os.Getenv("DRIFT_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DRIFT_SEED: invalid seed %q", v))
		} else {
			cfg.Market.DriftSeed = seed
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg, errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
