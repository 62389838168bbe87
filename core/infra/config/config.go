package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDataDir      = ".modhost"
	defaultModulesDir   = "src/modules"
	defaultRouteFile    = "generated-routes.ts"
	defaultRedisURL     = "redis://localhost:6379"
	defaultNATSURL      = "nats://localhost:4222"
	defaultMetricsAddr  = ":9464"
	defaultStoreBackend = StoreFile

	envDataDir       = "MODHOST_DATA_DIR"
	envModulesDir    = "MODHOST_MODULES_DIR"
	envBackupDir     = "MODHOST_BACKUP_DIR"
	envWorkDir       = "MODHOST_WORK_DIR"
	envInboxDir      = "MODHOST_INBOX_DIR"
	envRegistryDoc   = "MODHOST_REGISTRY_PATH"
	envHistoryDoc    = "MODHOST_HISTORY_PATH"
	envMenuDoc       = "MODHOST_MENU_PATH"
	envRouteArtifact = "MODHOST_ROUTE_ARTIFACT"
	envStoreBackend  = "MODHOST_STORE"
	envLockBackend   = "MODHOST_LOCKS"
	envRedisURL      = "REDIS_URL"
	envNATSURL       = "NATS_URL"
	envEvents        = "MODHOST_EVENTS"
	envMetricsAddr   = "MODHOST_METRICS_ADDR"
	envPolicyPath    = "MODHOST_POLICY_PATH"
)

// Store backends for the registry, history and menu documents.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Lock backends. An empty backend disables locking.
const (
	LocksNone   = ""
	LocksMemory = "memory"
	LocksRedis  = "redis"
)

// Config holds runtime configuration for the module host tooling.
type Config struct {
	ModulesDir        string
	BackupDir         string
	WorkDir           string
	InboxDir          string
	RegistryDoc       string
	HistoryDoc        string
	MenuDoc           string
	RouteArtifactPath string
	StoreBackend      string
	LockBackend       string
	RedisURL          string
	NatsURL           string
	EventsEnabled     bool
	MetricsAddr       string
	PolicyPath        string
	Policy            Policy
}

// Load returns configuration using environment variables with sane defaults,
// then applies the optional YAML policy file.
func Load() (*Config, error) {
	dataDir := envOr(envDataDir, defaultDataDir)
	modulesDir := envOr(envModulesDir, defaultModulesDir)

	cfg := &Config{
		ModulesDir:        modulesDir,
		BackupDir:         envOr(envBackupDir, filepath.Join(dataDir, "backups")),
		WorkDir:           envOr(envWorkDir, filepath.Join(dataDir, "tmp")),
		InboxDir:          envOr(envInboxDir, filepath.Join(dataDir, "inbox")),
		RegistryDoc:       envOr(envRegistryDoc, filepath.Join(dataDir, "registry.json")),
		HistoryDoc:        envOr(envHistoryDoc, filepath.Join(dataDir, "import-history.json")),
		MenuDoc:           envOr(envMenuDoc, filepath.Join(dataDir, "menu.json")),
		RouteArtifactPath: envOr(envRouteArtifact, filepath.Join(modulesDir, defaultRouteFile)),
		StoreBackend:      strings.ToLower(envOr(envStoreBackend, defaultStoreBackend)),
		LockBackend:       strings.ToLower(strings.TrimSpace(os.Getenv(envLockBackend))),
		RedisURL:          envOr(envRedisURL, defaultRedisURL),
		NatsURL:           envOr(envNATSURL, defaultNATSURL),
		EventsEnabled:     parseBool(os.Getenv(envEvents)),
		MetricsAddr:       envOr(envMetricsAddr, defaultMetricsAddr),
		PolicyPath:        strings.TrimSpace(os.Getenv(envPolicyPath)),
		Policy:            DefaultPolicy(),
	}

	switch cfg.StoreBackend {
	case StoreFile, StoreRedis:
	default:
		return nil, fmt.Errorf("unsupported %s %q", envStoreBackend, cfg.StoreBackend)
	}
	switch cfg.LockBackend {
	case LocksNone, LocksMemory, LocksRedis:
	default:
		return nil, fmt.Errorf("unsupported %s %q", envLockBackend, cfg.LockBackend)
	}

	if abs, err := filepath.Abs(cfg.BackupDir); err == nil {
		cfg.BackupDir = abs
	}

	if cfg.PolicyPath != "" {
		policy, err := LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
