package scheduler

import (
	"context"

	"github.com/Gthulhu/scx_netland/engine"
	"github.com/Gthulhu/scx_netland/models"
)

// Channel is the full kernel-side collaborator of a scheduling session.
type Channel interface {
	engine.TaskChannel
	// Exited reports whether the kernel side has unregistered the scheduler.
	Exited() bool
	// ShutdownAndReport detaches from the kernel and returns its exit diagnostics.
	ShutdownAndReport() (*models.ExitReport, error)
	Counters() (models.Counters, error)
}

// Opener loads and attaches a fresh Channel for each session.
type Opener func(ctx context.Context) (Channel, error)
