package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultStateRetention is how long a thread's durable state survives
	// without activity before the sweep removes it.
	DefaultStateRetention = 30 * 24 * time.Hour
	// DefaultIdleTimeout is how long a live handle may sit untouched before
	// the sweep releases it.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultCleanupInterval is the interval between sweep runs.
	DefaultCleanupInterval = time.Hour
)

// StateJanitor deletes durable conversation state rows older than a cutoff.
// Satisfied by the store.
type StateJanitor interface {
	DeleteExpiredConversationStates(ctx context.Context, before int64) (int64, error)
}

// CleanupConfig tunes the periodic sweep.
type CleanupConfig struct {
	StateRetention  time.Duration
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// DefaultCleanupConfig returns the default sweep configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		StateRetention:  DefaultStateRetention,
		IdleTimeout:     DefaultIdleTimeout,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// CleanupJob periodically releases idle session handles and prunes expired
// conversation state rows. Live handles hold model memory on a local machine,
// so abandoned threads must not pin them indefinitely.
type CleanupJob struct {
	registry *Registry
	janitor  StateJanitor
	config   CleanupConfig
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewCleanupJob creates a sweep over the registry and, when janitor is
// non-nil, the durable state rows.
func NewCleanupJob(registry *Registry, janitor StateJanitor, config CleanupConfig, logger *slog.Logger) *CleanupJob {
	if config.StateRetention <= 0 {
		config.StateRetention = DefaultStateRetention
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		registry: registry,
		janitor:  janitor,
		config:   config,
		logger:   logger,
	}
}

// Start begins the periodic sweep in a goroutine. Idempotent.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.stopChan = make(chan struct{})

	go j.run(ctx)

	j.logger.Info("cleanup job started",
		slog.Duration("idle_timeout", j.config.IdleTimeout),
		slog.Duration("state_retention", j.config.StateRetention),
		slog.Duration("interval", j.config.CleanupInterval))
}

// Stop halts the sweep. Idempotent.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	close(j.stopChan)
	j.running = false
	j.logger.Info("cleanup job stopped")
}

// IsRunning reports whether the sweep loop is active.
func (j *CleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// RunOnce executes a single sweep immediately and returns the number of
// handles released and state rows deleted.
func (j *CleanupJob) RunOnce(ctx context.Context) (int, int64, error) {
	released := j.registry.DestroyIdle(j.config.IdleTimeout)

	if j.janitor == nil {
		return released, 0, nil
	}
	cutoff := time.Now().Add(-j.config.StateRetention).Unix()
	deleted, err := j.janitor.DeleteExpiredConversationStates(ctx, cutoff)
	if err != nil {
		return released, 0, err
	}
	return released, deleted, nil
}

func (j *CleanupJob) run(ctx context.Context) {
	ticker := time.NewTicker(j.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopChan:
			return
		case <-ticker.C:
			released, deleted, err := j.RunOnce(ctx)
			if err != nil {
				j.logger.Error("cleanup sweep failed", slog.String("error", err.Error()))
				continue
			}
			if released > 0 || deleted > 0 {
				j.logger.Info("cleanup sweep completed",
					slog.Int("sessions_released", released),
					slog.Int64("states_deleted", deleted))
			}
		}
	}
}
