package health

import (
	"context"
	"net"
	"time"

	"github.com/dd0wney/cluso-failover/pkg/fsm"
	"github.com/dd0wney/cluso-failover/pkg/logging"
	"github.com/dd0wney/cluso-failover/pkg/metrics"
	"github.com/dd0wney/cluso-failover/pkg/store"
)

// Prober periodically dials every registered node and records the verdict on
// its node row. The transition engine reads those verdicts on the next
// heartbeat, the prober itself never takes failover decisions.
type Prober struct {
	store       store.Store
	logger      logging.Logger
	metrics     *metrics.Registry
	interval    time.Duration
	dialTimeout time.Duration
	dial        func(ctx context.Context, addr string) error
}

// NewProber creates a node health prober
func NewProber(st store.Store, logger logging.Logger, interval time.Duration) *Prober {
	p := &Prober{
		store:       st,
		logger:      logger.With(logging.Component("prober")),
		metrics:     metrics.DefaultRegistry(),
		interval:    interval,
		dialTimeout: 5 * time.Second,
	}
	p.dial = p.dialTCP
	return p
}

// Run probes all nodes on the configured interval until the context ends.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

// probeAll runs one probe round
func (p *Prober) probeAll(ctx context.Context) {
	nodes, err := p.store.AllNodes(ctx)
	if err != nil {
		p.logger.Error("Failed to list nodes for probing", logging.Error(err))
		return
	}

	unhealthy := 0
	for _, node := range nodes {
		if !p.probeNode(ctx, node) {
			unhealthy++
		}
	}
	p.metrics.UnhealthyNodes.Set(float64(unhealthy))
}

// probeNode dials one node and records the verdict
func (p *Prober) probeNode(ctx context.Context, node *fsm.Node) bool {
	start := time.Now()
	err := p.dial(ctx, node.Addr())
	duration := time.Since(start)

	health := fsm.HealthGood
	result := "good"
	if err != nil {
		health = fsm.HealthBad
		result = "bad"
		p.logger.Debug("Node health probe failed",
			logging.NodeID(node.NodeID),
			logging.NodeName(node.Name),
			logging.Error(err))
	}
	p.metrics.RecordProbe(result, duration)

	if err := p.store.ReportNodeHealth(ctx, node.NodeID, health, time.Now()); err != nil {
		p.logger.Error("Failed to record node health",
			logging.NodeID(node.NodeID), logging.Error(err))
	}
	return health == fsm.HealthGood
}

// dialTCP is the default probe, a plain TCP connect to the node address
func (p *Prober) dialTCP(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// SetDialFunc replaces the probe implementation, used by tests
func (p *Prober) SetDialFunc(dial func(ctx context.Context, addr string) error) {
	p.dial = dial
}
