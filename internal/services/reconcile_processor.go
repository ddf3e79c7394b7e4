package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Reconciler fills actuals into stored forecasts.
type Reconciler interface {
	ReconcileActuals(ctx context.Context) (int, error)
}

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// Interval is how often stored forecasts are compared with actuals (default: 1h)
	Interval time.Duration

	// RunOnStart reconciles once before the first tick (default: true)
	RunOnStart bool
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// ReconcileProcessor periodically reconciles forecast actuals.
type ReconcileProcessor struct {
	reconciler Reconciler
	config     ReconcileProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    int
}

// NewReconcileProcessor creates a new reconcile processor
func NewReconcileProcessor(reconciler Reconciler, config ReconcileProcessorConfig) *ReconcileProcessor {
	return &ReconcileProcessor{
		reconciler: reconciler,
		config:     config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	if p.config.Interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("invalid reconcile interval %v", p.config.Interval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Reconcile processor started",
		"interval", p.config.Interval)

	return nil
}

// Stop signals the processor and waits for the loop to finish. If ctx ends
// first, Stop returns ctx.Err(); the processor is still marked stopped and
// the in-progress pass exits on its own.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is currently running
func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Runs returns how many reconcile passes have completed.
func (p *ReconcileProcessor) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func (p *ReconcileProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.RunOnStart {
		p.reconcile(ctx)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reconcile(ctx)
		}
	}
}

func (p *ReconcileProcessor) reconcile(ctx context.Context) {
	n, err := p.reconciler.ReconcileActuals(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to reconcile forecast actuals", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Reconciled forecast actuals", "updated", n)
	}

	p.mu.Lock()
	p.runs++
	p.mu.Unlock()
}
