package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/adapter/litellm"
)

// ModelDiscoverer lists configured models and their reachability.
type ModelDiscoverer interface {
	DiscoverModels(ctx context.Context) ([]litellm.DiscoveredModel, error)
}

// ModelRegistry maintains an in-memory cache of discovered models with
// their health status, periodically refreshed from the proxy. It reports
// model availability to the Selector.
type ModelRegistry struct {
	mu          sync.RWMutex
	models      map[string]litellm.DiscoveredModel
	lastRefresh time.Time
	interval    time.Duration
	discoverer  ModelDiscoverer
}

// NewModelRegistry creates a new registry with the given poll interval.
// Pass interval <= 0 to disable periodic polling (manual refresh only).
func NewModelRegistry(d ModelDiscoverer, interval time.Duration) *ModelRegistry {
	return &ModelRegistry{discoverer: d, interval: interval}
}

// Start launches the background refresh goroutine. The first refresh is
// performed synchronously so the caller has models available immediately.
// Subsequent refreshes happen on the configured interval until ctx is cancelled.
func (r *ModelRegistry) Start(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		slog.Warn("model registry: initial refresh failed", "error", err)
	}

	if r.interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					slog.Warn("model registry: periodic refresh failed", "error", err)
				}
			}
		}
	}()
}

// Refresh rediscovers models. A failed refresh keeps the previous view.
func (r *ModelRegistry) Refresh(ctx context.Context) error {
	models, err := r.discoverer.DiscoverModels(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]litellm.DiscoveredModel, len(models))
	reachable := 0
	for _, m := range models {
		next[m.ModelName] = m
		if m.Status == litellm.StatusReachable {
			reachable++
		}
	}

	r.mu.Lock()
	r.models = next
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	slog.Debug("model registry refreshed", "models", len(next), "reachable", reachable)
	return nil
}

// AvailableModels returns a copy of the cached discovered models.
func (r *ModelRegistry) AvailableModels() []litellm.DiscoveredModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]litellm.DiscoveredModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}

// LastRefresh returns when the registry was last refreshed.
func (r *ModelRegistry) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}

// IsHealthy checks if a specific model is currently reachable.
func (r *ModelRegistry) IsHealthy(modelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[modelName]
	return ok && m.Status == litellm.StatusReachable
}

// IsAvailable implements ProviderAvailability. Before the first successful
// refresh every model is assumed available. Models are matched by name or
// by provider-qualified name.
func (r *ModelRegistry) IsAvailable(_ context.Context, provider, model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastRefresh.IsZero() {
		return true
	}
	for _, name := range []string{model, provider + "/" + model} {
		if m, ok := r.models[name]; ok {
			return m.Status == litellm.StatusReachable
		}
	}
	return false
}
