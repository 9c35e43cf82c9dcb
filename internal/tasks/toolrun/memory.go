package toolrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrLowMemory = errors.New("toolrun: available memory below threshold")

	errMemoryUnsupported = errors.New("toolrun: memory probe unsupported")
)

// MemoryGuard cancels a run when available system memory drops below
// ThresholdMB. A zero threshold disables it.
type MemoryGuard struct {
	ThresholdMB uint64
	Interval    time.Duration
	// Available overrides the platform probe.
	Available func() (uint64, error)
}

// Watch polls until ctx ends or memory runs low, in which case it cancels
// with ErrLowMemory.
func (g MemoryGuard) Watch(ctx context.Context, cancel context.CancelCauseFunc) {
	if g.ThresholdMB == 0 {
		return
	}
	probe := g.Available
	if probe == nil {
		probe = availableMemoryMB
	}
	interval := g.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		avail, err := probe()
		switch {
		case errors.Is(err, errMemoryUnsupported):
			log.Debug().Msg("toolrun.MemoryGuard.Watch disabled: no memory probe on this platform")
			return
		case err != nil:
			log.Warn().Err(err).Msg("toolrun.MemoryGuard.Watch probe failed")
		case avail < g.ThresholdMB:
			log.Error().Uint64("available_mb", avail).Uint64("threshold_mb", g.ThresholdMB).Msg("toolrun.MemoryGuard.Watch low memory")
			cancel(fmt.Errorf("%w: %d MB available, %d MB required", ErrLowMemory, avail, g.ThresholdMB))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
