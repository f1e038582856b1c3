// Package config loads the environment contract described in spec §6.3:
// the orchestrator-supplied port/URL, local-mode toggle, and the
// installer/init-script inputs. Mirrors the teacher's server.go
// applyEnvOverrides/getenvTrim/.env-discovery pattern.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ReadinessProbeHeader identifies the orchestrator's health probe so
// the activity monitor does not treat it as user traffic.
const ReadinessProbeHeader = "X-Apify-Container-Server-Readiness-Probe"

// Config is the process-wide environment contract.
type Config struct {
	Port        int
	PublicURL   string
	LocalMode   bool
	RedisAddr   string
	SandboxRoot string

	IdleTimeoutSeconds int

	NodeDependencies   map[string]string
	PythonRequirements string
	InitScript         string

	NatsURL        string
	CheckpointCron string
}

// Load populates Config from the process environment, loading a .env
// file first (if present) the way the teacher's loadEnvFile looks in
// the working directory and up to two parent directories for one.
func Load() *Config {
	if err := loadEnvFile(); err != nil {
		log.Printf("note: no .env file loaded: %v (continuing without it)", err)
	}

	cfg := &Config{
		Port:               envInt("ACTOR_WEB_SERVER_PORT", 8080),
		PublicURL:          getenvTrim("ACTOR_WEB_SERVER_URL"),
		LocalMode:          strings.EqualFold(getenvTrim("MODE"), "local"),
		RedisAddr:          normalizeRedisAddr(getenvTrim("REDIS_URL")),
		SandboxRoot:        getenvDefault("SANDBOX_ROOT", "/sandbox"),
		IdleTimeoutSeconds: envInt("IDLE_TIMEOUT_SECONDS", 600),
		PythonRequirements: os.Getenv("PYTHON_REQUIREMENTS"),
		InitScript:         os.Getenv("INIT_SCRIPT"),
		NodeDependencies:   map[string]string{},
		NatsURL:            getenvTrim("NATS_URL"),
		CheckpointCron:     getenvTrim("MIGRATION_CHECKPOINT_CRON"),
	}

	if raw := getenvTrim("NODE_DEPENDENCIES_JSON"); raw != "" {
		deps, err := parseNodeDeps(raw)
		if err != nil {
			log.Printf("⚠️  [CONFIG] could not parse NODE_DEPENDENCIES_JSON: %v", err)
		} else {
			cfg.NodeDependencies = deps
		}
	}

	fc, err := loadFileConfig()
	if err != nil {
		log.Printf("⚠️  [CONFIG] ignoring sandbox.yaml: %v", err)
	} else {
		applyFileConfig(cfg, fc)
	}

	return cfg
}

func getenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getenvDefault(key, def string) string {
	if v := getenvTrim(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := getenvTrim(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  [CONFIG] invalid integer for %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

// loadEnvFile mirrors the teacher's three-level .env discovery: the
// working directory, its parent, and its grandparent.
func loadEnvFile() error {
	if err := godotenv.Load(".env"); err == nil {
		log.Printf("✅ [CONFIG] loaded .env from current directory")
		return nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		envPath := filepath.Join(dir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("✅ [CONFIG] loaded .env from: %s", envPath)
			return nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return os.ErrNotExist
}

// normalizeRedisAddr strips a redis:// scheme and trailing slash and
// supplies a default host:port, matching the teacher's helper.
func normalizeRedisAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost:6379"
	}
	addr = strings.TrimPrefix(addr, "redis://")
	addr = strings.TrimSuffix(addr, "/")
	if !strings.Contains(addr, ":") {
		addr += ":6379"
	}
	return addr
}
