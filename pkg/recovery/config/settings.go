/*
Package config loads recovery settings from YAML or JSON.

Config wraps a map[string]any with typed accessors that fall back to
defaults on missing keys or type mismatches. Settings is the typed view the
composition root builds the orchestrator and strategies from:

	recovery:
	  cooldown: 5s
	  max_attempts: 5
	  history_size: 20
	  preferred_order: [auto-save, component-reset]
	  critical_categories: [runtime, rendering, global]
	strategies:
	  component_reset:
	    settle_delay: 150ms
	  soft_reload:
	    fallback_delay: 3s
	  backup_restore:
	    retention: 10
	store:
	  driver: sqlite          # memory | sqlite | redis | file
	  path: ./recovery.db
	  redis:
	    url: ${REDIS_URL:-redis://localhost:6379/0}
	errors:
	  dedup_cache_size: 256
	log:
	  level: info
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
)

// Settings is the typed recovery configuration.
type Settings struct {
	Cooldown           time.Duration
	MaxAttempts        int
	HistorySize        int
	PreferredOrder     []string
	CriticalCategories []apperror.Category

	SettleDelay     time.Duration
	FallbackDelay   time.Duration
	BackupRetention int

	Store store.Options

	DedupCacheSize int
	LogLevel       slog.Level
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Cooldown:    5 * time.Second,
		MaxAttempts: 5,
		HistorySize: 20,
		CriticalCategories: []apperror.Category{
			apperror.CategoryRuntime,
			apperror.CategoryRendering,
			apperror.CategoryGlobal,
		},
		SettleDelay:     150 * time.Millisecond,
		FallbackDelay:   3 * time.Second,
		BackupRetention: 10,
		Store:           store.Options{Driver: store.DriverMemory},
		DedupCacheSize:  apperror.DefaultStoreSize,
		LogLevel:        slog.LevelInfo,
	}
}

// LoadSettings extracts Settings from cfg, filling gaps from DefaultSettings.
func LoadSettings(cfg Config) (Settings, error) {
	s := DefaultSettings()

	s.Cooldown = cfg.Duration("recovery.cooldown", s.Cooldown)
	s.MaxAttempts = cfg.Int("recovery.max_attempts", s.MaxAttempts)
	s.HistorySize = cfg.Int("recovery.history_size", s.HistorySize)
	s.PreferredOrder = cfg.StringSlice("recovery.preferred_order", s.PreferredOrder)
	if names := cfg.StringSlice("recovery.critical_categories", nil); names != nil {
		s.CriticalCategories = make([]apperror.Category, 0, len(names))
		for _, n := range names {
			s.CriticalCategories = append(s.CriticalCategories, apperror.ParseCategory(n))
		}
	}

	s.SettleDelay = cfg.Duration("strategies.component_reset.settle_delay", s.SettleDelay)
	s.FallbackDelay = cfg.Duration("strategies.soft_reload.fallback_delay", s.FallbackDelay)
	s.BackupRetention = cfg.Int("strategies.backup_restore.retention", s.BackupRetention)

	redis := cfg.Sub("store.redis")
	s.Store = store.Options{
		Driver: strings.ToLower(cfg.String("store.driver", s.Store.Driver)),
		Path:   cfg.String("store.path", ""),
		Redis: store.RedisConfig{
			URL:       redis.String("url", ""),
			Password:  redis.String("password", ""),
			KeyPrefix: redis.String("key_prefix", ""),
		},
	}

	s.DedupCacheSize = cfg.Int("errors.dedup_cache_size", s.DedupCacheSize)

	if lvl := cfg.String("log.level", ""); lvl != "" {
		if err := s.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return s, fmt.Errorf("log.level: %w", err)
		}
	}

	return s, s.Validate()
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.Cooldown < 0 {
		errs = append(errs, errors.New("recovery.cooldown must not be negative"))
	}
	if s.MaxAttempts < 1 {
		errs = append(errs, errors.New("recovery.max_attempts must be at least 1"))
	}
	if s.HistorySize < 1 {
		errs = append(errs, errors.New("recovery.history_size must be at least 1"))
	}
	if s.SettleDelay < 0 || s.FallbackDelay < 0 {
		errs = append(errs, errors.New("strategy delays must not be negative"))
	}
	if s.BackupRetention < 1 {
		errs = append(errs, errors.New("strategies.backup_restore.retention must be at least 1"))
	}
	switch s.Store.Driver {
	case store.DriverMemory, store.DriverSQLite:
	case store.DriverRedis:
		if s.Store.Redis.URL == "" {
			errs = append(errs, errors.New("store.redis.url is required for the redis driver"))
		}
	case store.DriverFile:
		if s.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", s.Store.Driver))
	}
	return errors.Join(errs...)
}

// CriticalityGate returns the gate predicate for the configured categories.
func (s Settings) CriticalityGate() func(*apperror.Record) bool {
	return apperror.CriticalIn(s.CriticalCategories...)
}
