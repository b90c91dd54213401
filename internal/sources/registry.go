package sources

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// Health is the runtime health state of a source.
type Health string

const (
	// HealthActive means the source is eligible for scheduling.
	HealthActive Health = "active"
	// HealthSuspended means repeated failures or a configuration error
	// removed the source from scheduling until it recovers.
	HealthSuspended Health = "suspended"
)

// entry pairs a source definition with its runtime health.
type entry struct {
	src    types.Source
	health Health
}

// Registry holds the live set of sources. Sources are added or
// disabled by reload; they are never deleted at runtime.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	reloadFns []func()
	log       logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     log,
	}
}

// Load replaces or adds the given sources. Sources with an invalid
// rate policy are registered suspended and reported as configuration
// errors; they must not halt the rest of the pipeline.
func (r *Registry) Load(sources []types.Source) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cfgErrs []error

	for _, src := range sources {
		health := HealthActive
		if err := src.Rate.Validate(); err != nil {
			health = HealthSuspended
			cfgErrs = append(cfgErrs, &domain.ConfigurationError{
				SourceID: src.ID,
				Reason:   err.Error(),
			})
		}

		r.entries[src.ID] = &entry{src: src, health: health}
	}

	r.log.Info("sources loaded",
		logger.Int("count", len(sources)),
		logger.Int("config_errors", len(cfgErrs)),
	)

	return cfgErrs
}

// Get returns a source by ID.
func (r *Registry) Get(id string) (types.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return types.Source{}, false
	}
	return e.src, true
}

// Health returns the health state of a source.
func (r *Registry) Health(id string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.health, true
}

// Calibration returns a source's cultural calibration factor, 1.0 for
// unknown sources so analysis never stalls on a registry miss.
func (r *Registry) Calibration(sourceID string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sourceID]
	if !ok {
		return 1.0
	}
	return e.src.EffectiveCalibration()
}

// Active returns all sources currently eligible for scheduling:
// enabled in configuration and not suspended.
func (r *Registry) Active() []types.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Source, 0, len(r.entries))
	for _, e := range r.entries {
		if e.health == HealthActive && !e.src.Disabled {
			out = append(out, e.src)
		}
	}
	return out
}

// Suspend flips a source to suspended. Called by the fetcher when a
// circuit breaker opens or by the registry itself on config errors.
func (r *Registry) Suspend(id, reason string) {
	r.setHealth(id, HealthSuspended, reason)
}

// Resume flips a source back to active, typically when its circuit
// breaker closes after a successful trial fetch.
func (r *Registry) Resume(id string) {
	r.setHealth(id, HealthActive, "")
}

func (r *Registry) setHealth(id string, h Health, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.health == h {
		return
	}

	e.health = h
	fields := []logger.Field{
		logger.String("source_id", id),
		logger.String("health", string(h)),
	}
	if reason != "" {
		fields = append(fields, logger.String("reason", reason))
	}
	r.log.Info("source health changed", fields...)
}

// LoadFromFile loads sources from a YAML file into the registry.
func (r *Registry) LoadFromFile(path string) error {
	srcs, invalid, err := LoadFile(path)
	if err != nil {
		return err
	}

	for _, invalidErr := range invalid {
		r.log.Warn("invalid source skipped", logger.Error(invalidErr))
	}

	for _, cfgErr := range r.Load(srcs) {
		r.log.Warn("source suspended on load", logger.Error(cfgErr))
	}

	r.mu.RLock()
	fns := r.reloadFns
	r.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}

	return nil
}

// OnReload registers a callback invoked after every successful load
// from file, letting collaborators pick up newly added sources.
func (r *Registry) OnReload(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloadFns = append(r.reloadFns, fn)
}

// Watch re-loads the sources file whenever it changes, supporting
// add/disable of sources without a restart. Returns the viper
// instance so callers can stop watching by discarding it.
func (r *Registry) Watch(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("watch sources file %s: %w", path, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := r.LoadFromFile(path); err != nil {
			r.log.Error("sources reload failed", logger.Error(err))
			return
		}
		r.log.Info("sources reloaded", logger.String("path", path))
	})
	v.WatchConfig()

	return v, nil
}
