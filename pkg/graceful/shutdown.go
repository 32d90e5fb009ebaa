// Package graceful drains the service in dependency order. Shutdown here
// is not symmetric teardown: intake must stop before the queue bridge
// (no new pending rows get bridged mid-drain), the bridge before the
// worker pool (the queue stops growing while tasks finish inside their
// grace window), and only then do the schedulers, the realtime fan-out
// and the storage handles go away. What happens to work that cannot finish
// in time is up to each component, not this package; this package only
// guarantees the ordering and the deadline.
package graceful

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/global-credit/credit_core/pkg/logger"
)

// StopFunc drains one component within the given budget
type StopFunc func(timeout time.Duration) error

// stage is one named step of the drain sequence
type stage struct {
	name string
	stop StopFunc
}

// Drainer runs registered stages strictly in registration order when a
// termination signal arrives. The per-stage budget is the remaining share
// of the total grace window, so an overrunning early stage shrinks what
// later stages get instead of blowing the deadline.
type Drainer struct {
	stages []stage
	grace  time.Duration
	logger *logger.Logger
}

// NewDrainer creates a drainer with the total grace window
func NewDrainer(grace time.Duration, logger *logger.Logger) *Drainer {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Drainer{grace: grace, logger: logger}
}

// Add registers the next drain stage. Order of registration is order of
// execution.
func (d *Drainer) Add(name string, stop StopFunc) {
	d.stages = append(d.stages, stage{name: name, stop: stop})
}

// AddCloser registers a stage that has no notion of a budget (close a
// connection, stop a scheduler)
func (d *Drainer) AddCloser(name string, close func() error) {
	d.Add(name, func(time.Duration) error { return close() })
}

// WaitForSignal blocks until SIGINT or SIGTERM, then drains
func (d *Drainer) WaitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	d.logger.Info("Termination signal received, draining pipeline",
		"signal", sig.String(),
		"grace", d.grace,
		"stages", len(d.stages),
	)
	d.Drain()
}

// Drain runs every stage in order and reports per-stage timing. A failed
// stage is logged and the sequence continues: a stuck worker pool must
// not keep the database handle open forever.
func (d *Drainer) Drain() {
	deadline := time.Now().Add(d.grace)

	for _, s := range d.stages {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			d.logger.Warn("Grace window exhausted, forcing remaining stages", "stage", s.name)
			remaining = time.Second
		}

		start := time.Now()
		if err := s.stop(remaining); err != nil {
			d.logger.Warn("Drain stage failed",
				"stage", s.name,
				"error", err,
				"elapsed", time.Since(start),
			)
			continue
		}
		d.logger.Info("Drain stage complete", "stage", s.name, "elapsed", time.Since(start))
	}

	d.logger.Info("Pipeline drained")
}
