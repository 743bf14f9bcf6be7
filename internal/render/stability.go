package render

import (
	"context"
	"time"
)

// pollInterval is how often the gate samples the mutation probe.
const pollInterval = 100 * time.Millisecond

// StabilityGate waits for DOM quiescence before capture. It is a
// capture-quality heuristic only: on timeout the page is still captured,
// just counted separately.
type StabilityGate struct {
	Window  time.Duration
	Timeout time.Duration
}

// GateResult reports one wait: how long it took and whether it gave up.
type GateResult struct {
	Waited   time.Duration
	TimedOut bool
}

// Wait blocks until the DOM has been quiet for a continuous Window, or
// Timeout elapses, whichever first. A zero Window skips the wait entirely.
// A zero Timeout defaults to ten windows so a chatty page cannot stall the
// crawl.
func (g StabilityGate) Wait(ctx context.Context, sess Session) (GateResult, error) {
	if g.Window <= 0 {
		return GateResult{}, nil
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 10 * g.Window
	}

	if err := sess.Evaluate(ctx, mutationProbeScript, nil); err != nil {
		return GateResult{}, err
	}

	start := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return GateResult{Waited: time.Since(start)}, ctx.Err()
		case <-ticker.C:
		}

		var quietMs float64
		if err := sess.Evaluate(ctx, quietMillisScript, &quietMs); err != nil {
			return GateResult{Waited: time.Since(start)}, err
		}
		if time.Duration(quietMs)*time.Millisecond >= g.Window {
			return GateResult{Waited: time.Since(start)}, nil
		}
		if time.Since(start) >= timeout {
			return GateResult{Waited: time.Since(start), TimedOut: true}, nil
		}
	}
}
