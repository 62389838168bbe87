// Package host assembles the stores and the import service from configuration.
package host

import (
	"errors"
	"fmt"

	"github.com/cordum/modhost/core/infra/bus"
	"github.com/cordum/modhost/core/infra/config"
	"github.com/cordum/modhost/core/infra/docstore"
	"github.com/cordum/modhost/core/infra/locks"
	"github.com/cordum/modhost/core/infra/logging"
	"github.com/cordum/modhost/core/infra/metrics"
	"github.com/cordum/modhost/core/modules/history"
	"github.com/cordum/modhost/core/modules/importer"
	"github.com/cordum/modhost/core/modules/installer"
	"github.com/cordum/modhost/core/modules/menu"
	"github.com/cordum/modhost/core/modules/registry"
)

// Redis keys for the documents when the redis backend is selected.
const (
	redisRegistryDoc = "registry"
	redisHistoryDoc  = "import-history"
	redisMenuDoc     = "menu"
)

// Host is a wired module host.
type Host struct {
	Config    *config.Config
	Registry  *registry.Store
	History   *history.Store
	Menu      *menu.Store
	Installer *installer.Installer
	Service   *importer.Service

	closers []func() error
}

// Option customizes Open.
type Option func(*importer.Options)

// WithMetrics records import metrics.
func WithMetrics(m metrics.ImportMetrics) Option {
	return func(o *importer.Options) { o.Metrics = m }
}

// Open connects the configured backends. Close releases them.
func Open(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	h := &Host{Config: cfg}

	var docs docstore.Store
	registryDoc, historyDoc, menuDoc := cfg.RegistryDoc, cfg.HistoryDoc, cfg.MenuDoc
	switch cfg.StoreBackend {
	case config.StoreRedis:
		rs, err := docstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, rs.Close)
		docs = rs
		registryDoc, historyDoc, menuDoc = redisRegistryDoc, redisHistoryDoc, redisMenuDoc
	default:
		docs = docstore.NewFileStore("")
	}

	h.Registry = registry.NewStore(docs, registryDoc, cfg.ModulesDir, cfg.RouteArtifactPath)
	h.History = history.NewStore(docs, historyDoc)
	h.Menu = menu.NewStore(docs, menuDoc)
	h.Installer = installer.New(cfg.ModulesDir, cfg.BackupDir, cfg.WorkDir)
	h.Installer.MaxExtractBytes = cfg.Policy.MaxExtractBytes

	svcOpts := importer.Options{
		Registry:  h.Registry,
		History:   h.History,
		Installer: h.Installer,
		Policy:    cfg.Policy,
		Menu:      h.Menu,
	}

	switch cfg.LockBackend {
	case config.LocksMemory:
		svcOpts.Locks = locks.NewMemoryStore()
	case config.LocksRedis:
		ls, err := locks.NewRedisStore(cfg.RedisURL)
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		h.closers = append(h.closers, ls.Close)
		svcOpts.Locks = ls
	}

	if cfg.EventsEnabled {
		pub, err := bus.NewNatsPublisher(cfg.NatsURL)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		h.closers = append(h.closers, func() error { pub.Close(); return nil })
		svcOpts.Events = pub
	}

	for _, opt := range opts {
		opt(&svcOpts)
	}
	h.Service = importer.New(svcOpts)
	logging.Info("host", "ready", "store", cfg.StoreBackend, "locks", cfg.LockBackend, "events", cfg.EventsEnabled, "modules_dir", cfg.ModulesDir)
	return h, nil
}

// Close releases backend connections.
func (h *Host) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}
