package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"parkpay/backend/services/parking-service/internal/clock"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/tariff"
)

const defaultLocalTTL = 30 * time.Second

// RateOptions tunes the in-process table cache.
type RateOptions struct {
	LocalTTL time.Duration
	Clock    clock.Clock
}

type loadedTable struct {
	table   *tariff.RateTable
	expires time.Time
}

// RateService provides rate tables with cache, store and configured fallback.
// Tables are parsed when loaded and kept in process for LocalTTL.
type RateService struct {
	store    RateStore
	cache    RateCache
	defaults map[string]*tariff.RateTable
	localTTL time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	mu     sync.RWMutex
	loaded map[string]loadedTable
}

// NewRateService returns service instance. Default specs are parsed and validated up front.
func NewRateService(store RateStore, cache RateCache, defaults map[string]tariff.RateTableSpec, opts RateOptions, logger *zap.Logger) (*RateService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = defaultLocalTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	parsed := make(map[string]*tariff.RateTable, len(defaults))
	for class, spec := range defaults {
		class = normalizeClass(class)
		table, err := tariff.ParseRateTable(class, spec)
		if err != nil {
			return nil, fmt.Errorf("default rates for %q: %w", class, err)
		}
		parsed[class] = table
	}
	return &RateService{
		store:    store,
		cache:    cache,
		defaults: parsed,
		localTTL: opts.LocalTTL,
		clock:    opts.Clock,
		logger:   logger,
		loaded:   make(map[string]loadedTable),
	}, nil
}

// RateTable returns the table for a class, or models.ErrRateTableNotFound.
func (s *RateService) RateTable(ctx context.Context, vehicleClass string) (*tariff.RateTable, error) {
	class := normalizeClass(vehicleClass)
	if class == "" {
		return nil, &ValidationError{Field: "vehicle_class", Reason: "is required"}
	}

	now := s.clock.Now()
	s.mu.RLock()
	entry, ok := s.loaded[class]
	s.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.table, nil
	}

	table, err := s.load(ctx, class)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.loaded[class] = loadedTable{table: table, expires: now.Add(s.localTTL)}
	s.mu.Unlock()
	return table, nil
}

// load reads and parses a table from cache, store, then defaults.
func (s *RateService) load(ctx context.Context, class string) (*tariff.RateTable, error) {
	if s.cache != nil {
		spec, err := s.cache.Get(ctx, class)
		if err == nil {
			table, parseErr := tariff.ParseRateTable(class, spec)
			if parseErr == nil {
				return table, nil
			}
			s.logger.Warn("discarding invalid cached rate table", zap.String("vehicle_class", class), zap.Error(parseErr))
			_ = s.cache.Delete(ctx, class)
		} else if !errors.Is(err, models.ErrCacheMiss) {
			s.logger.Warn("rate cache read failed", zap.String("vehicle_class", class), zap.Error(err))
		}
	}

	if s.store != nil {
		spec, err := s.store.Get(ctx, class)
		switch {
		case err == nil:
			table, parseErr := tariff.ParseRateTable(class, spec)
			if parseErr != nil {
				s.logger.Error("stored rate table is invalid", zap.String("vehicle_class", class), zap.Error(parseErr))
				return s.fallback(class, parseErr)
			}
			if s.cache != nil {
				if cacheErr := s.cache.Save(ctx, class, spec); cacheErr != nil {
					s.logger.Warn("failed to cache rate table", zap.String("vehicle_class", class), zap.Error(cacheErr))
				}
			}
			return table, nil
		case errors.Is(err, models.ErrRateTableNotFound):
		default:
			s.logger.Warn("rate store read failed", zap.String("vehicle_class", class), zap.Error(err))
			return s.fallback(class, err)
		}
	}

	return s.fallback(class, models.ErrRateTableNotFound)
}

// Save validates and stores a spec, then evicts the cached copy.
func (s *RateService) Save(ctx context.Context, vehicleClass string, spec tariff.RateTableSpec) (*tariff.RateTable, error) {
	class := normalizeClass(vehicleClass)
	if class == "" {
		return nil, &ValidationError{Field: "vehicle_class", Reason: "is required"}
	}
	table, err := tariff.ParseRateTable(class, spec)
	if err != nil {
		return nil, &ValidationError{Field: "rates", Reason: err.Error()}
	}
	if s.store == nil {
		return nil, errors.New("rates: no store configured")
	}
	if err := s.store.Save(ctx, class, spec); err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.loaded, class)
	s.mu.Unlock()
	if s.cache != nil {
		if err := s.cache.Delete(ctx, class); err != nil {
			s.logger.Warn("failed to evict cached rate table", zap.String("vehicle_class", class), zap.Error(err))
		}
	}
	return table, nil
}

// DefaultClasses lists classes with a configured fallback table.
func (s *RateService) DefaultClasses() []string {
	classes := make([]string, 0, len(s.defaults))
	for class := range s.defaults {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

func (s *RateService) fallback(class string, cause error) (*tariff.RateTable, error) {
	if table, ok := s.defaults[class]; ok {
		return table, nil
	}
	return nil, cause
}

func normalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}
