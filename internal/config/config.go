package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPServer struct {
	Host string
	Port string
}

type RedisCache struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	Channel  string
}

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Store struct {
	Driver  string
	Retries int
	Backoff time.Duration
}

type Coordinator struct {
	CodeMax         int
	CodeRetries     int
	CleanupPeriod   int
	CleanupInterval time.Duration
	WaitingTTL      time.Duration
	PlayingTTL      time.Duration
	TerminalTTL     time.Duration
}

type Log struct {
	Level  string
	Format string
}

type Config struct {
	HTTP        HTTPServer
	Redis       RedisCache
	Postgres    Postgres
	Store       Store
	Coordinator Coordinator
	Log         Log
}

const logtag = "[config]"

func Load() *Config {
	configPath := flag.String("config", "", "path env file")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			log.Fatalf("%s err loading env from file : %v", logtag, err)
		}
		log.Printf("%s using env from : %s", logtag, *configPath)
	} else {
		log.Printf("%s using env from .env", logtag)
		_ = godotenv.Load()
	}

	return FromEnv()
}

// FromEnv builds the config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		HTTP:        *newHTTP(),
		Redis:       *newRedis(),
		Postgres:    *newPostgres(),
		Store:       *newStore(),
		Coordinator: *newCoordinator(),
		Log:         *newLog(),
	}
}

func newHTTP() *HTTPServer {
	return &HTTPServer{
		Port: getenv("HTTP_PORT", "8080"),
		Host: getenv("HTTP_HOST", "localhost"),
	}
}

func newRedis() *RedisCache {
	return &RedisCache{
		Enabled:  getbool("REDIS_ENABLED", false),
		Port:     getenv("REDIS_PORT", "6379"),
		Host:     getenv("REDIS_HOST", "redis"),
		Password: getenv("REDIS_PASSWORD", ""),
		Channel:  getenv("REDIS_ROOM_CHANNEL", "room_events"),
	}
}

func newPostgres() *Postgres {
	return &Postgres{
		Host:     getenv("DB_HOST", "localhost"),
		Port:     getenv("DB_PORT", "5432"),
		User:     getenv("DB_USER", "admin"),
		Password: getenv("DB_PASSWORD", "shared"),
		DBName:   getenv("DB_NAME", "towerduels"),
		SSLMode:  getenv("DB_SSLMODE", "disable"),
		Migrate:  getbool("DB_MIGRATE", true),
	}
}

func newStore() *Store {
	return &Store{
		Driver:  getenv("STORE_DRIVER", StoreMemory),
		Retries: getint("STORE_RETRIES", 3),
		Backoff: getduration("STORE_BACKOFF", 50*time.Millisecond),
	}
}

func newCoordinator() *Coordinator {
	return &Coordinator{
		CodeMax:         getint("CODE_MAX", 99999),
		CodeRetries:     getint("CODE_RETRIES", 8),
		CleanupPeriod:   getint("CLEANUP_PERIOD", 20),
		CleanupInterval: getduration("CLEANUP_INTERVAL", time.Minute),
		WaitingTTL:      getduration("WAITING_TTL", 10*time.Minute),
		PlayingTTL:      getduration("PLAYING_TTL", 2*time.Hour),
		TerminalTTL:     getduration("TERMINAL_TTL", time.Hour),
	}
}

func newLog() *Log {
	return &Log{
		Level:  getenv("LOG_LEVEL", "info"),
		Format: getenv("LOG_FORMAT", "console"),
	}
}

func getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		fmt.Printf("%s %s undefined. Using default value %s\n", logtag, key, displayValue(key, defaultValue))
		return defaultValue
	}
	fmt.Printf("%s %s = %s\n", logtag, key, displayValue(key, val))
	return val
}

// displayValue hides secrets from the startup printout.
func displayValue(key, val string) string {
	if strings.HasSuffix(key, "_PASSWORD") && val != "" {
		return "******"
	}
	return val
}

func getint(key string, defaultValue int) int {
	raw := getenv(key, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		fmt.Printf("%s %s = %q is not a positive integer. Using default value %d\n", logtag, key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func getbool(key string, defaultValue bool) bool {
	raw := getenv(key, strconv.FormatBool(defaultValue))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return b
}

func getduration(key string, defaultValue time.Duration) time.Duration {
	raw := getenv(key, defaultValue.String())
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Printf("%s %s = %q is not a positive duration. Using default value %s\n", logtag, key, raw, defaultValue)
		return defaultValue
	}
	return d
}
