package keysource

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/observability"
)

// Refresher reloads keys on a cron schedule.
type Refresher struct {
	loader   *Loader
	registry *apikey.Registry
	schedule string
	logger   observability.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewRefresher creates a refresher for a standard five-field cron
// expression.
func NewRefresher(
	loader *Loader,
	registry *apikey.Registry,
	schedule string,
	logger observability.Logger,
) (*Refresher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Refresher{
		loader:   loader,
		registry: registry,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}, nil
}

// Start schedules the refresh job. ctx bounds every run.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	if _, err := r.cron.AddFunc(r.schedule, func() { r.Refresh(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule key refresh: %w", err)
	}

	r.cron.Start()
	r.running = true

	r.logger.Info("key refresh scheduled",
		observability.String("schedule", r.schedule),
	)
	return nil
}

// Refresh runs one reload. Failures keep the current keys.
func (r *Refresher) Refresh(ctx context.Context) {
	if err := r.loader.LoadInto(ctx, r.registry); err != nil {
		r.logger.Error("key refresh failed, keeping current keys",
			observability.Error(err),
		)
	}
}

// Stop stops the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.Info("key refresh stopped")
}
