package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"civreg/pkg/platform/circuit"
	"civreg/pkg/platform/sentinel"
)

// defaultProbeEvery is how often an open circuit lets one lookup through to
// test whether the registry has recovered.
const defaultProbeEvery = 30 * time.Second

// BreakerClient wraps a registry client with a circuit breaker so a dead
// extract fails fast instead of stacking timeouts on every submission.
// ErrNotFound counts as a success: the registry answered.
type BreakerClient struct {
	next    Client
	breaker *circuit.Breaker
	logger  *slog.Logger

	mu         sync.Mutex
	probeEvery time.Duration
	lastProbe  time.Time
}

func NewBreakerClient(next Client, logger *slog.Logger) *BreakerClient {
	return &BreakerClient{
		next: next,
		breaker: circuit.New("identity-registry",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2),
		),
		logger:     logger,
		probeEvery: defaultProbeEvery,
	}
}

func (c *BreakerClient) Lookup(ctx context.Context, nationalID string) (Record, error) {
	if c.breaker.IsOpen() && !c.allowProbe() {
		return Record{}, fmt.Errorf("registry circuit open: %w", sentinel.ErrUnavailable)
	}

	record, err := c.next.Lookup(ctx, nationalID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "registry circuit opened", "breaker", c.breaker.Name())
		}
		return Record{}, err
	}

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "registry circuit closed", "breaker", c.breaker.Name())
	}
	return record, err
}

// allowProbe lets one lookup through per probe window while the circuit is
// open.
func (c *BreakerClient) allowProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastProbe) < c.probeEvery {
		return false
	}
	c.lastProbe = time.Now()
	return true
}
