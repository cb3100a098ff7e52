package fsm

import (
	"testing"
	"time"
)

func TestIsHealthy(t *testing.T) {
	engine, clock := newTestEngine()

	tests := []struct {
		name        string
		health      NodeHealth
		pgIsRunning bool
		expected    bool
	}{
		{"good and running", HealthGood, true, true},
		{"good but stopped", HealthGood, false, false},
		{"bad and running", HealthBad, true, false},
		{"unknown and running", HealthUnknown, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := converged(1, "a", StateSecondary, clock)
			node.Health = tt.health
			node.PgIsRunning = tt.pgIsRunning

			if got := engine.IsHealthy(node); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
		})
	}

	if engine.IsHealthy(nil) {
		t.Error("IsHealthy(nil) = true, want false")
	}
}

func TestIsUnhealthy(t *testing.T) {
	formation := testFormation()

	t.Run("silent node with failed probe", func(t *testing.T) {
		engine, clock := newTestEngine()
		node := converged(1, "a", StatePrimary, clock)
		node.ReportTime = clock.now.Add(-25 * time.Second)
		node.Health = HealthBad
		node.HealthCheckTime = clock.now

		if !engine.IsUnhealthy(formation, node) {
			t.Error("expected unhealthy")
		}
	})

	t.Run("silent node with passing probe", func(t *testing.T) {
		engine, clock := newTestEngine()
		node := converged(1, "a", StatePrimary, clock)
		node.ReportTime = clock.now.Add(-25 * time.Second)

		if engine.IsUnhealthy(formation, node) {
			t.Error("a passing probe keeps the node healthy")
		}
	})

	t.Run("recent report wins over failed probe", func(t *testing.T) {
		engine, clock := newTestEngine()
		node := converged(1, "a", StatePrimary, clock)
		node.Health = HealthBad
		node.HealthCheckTime = clock.now

		if engine.IsUnhealthy(formation, node) {
			t.Error("a reporting agent keeps the node healthy")
		}
	})

	t.Run("postgres not running is always unhealthy", func(t *testing.T) {
		engine, clock := newTestEngine()
		node := converged(1, "a", StatePrimary, clock)
		node.PgIsRunning = false

		if !engine.IsUnhealthy(formation, node) {
			t.Error("expected unhealthy with postgres down")
		}
	})

	t.Run("startup grace holds verdicts back", func(t *testing.T) {
		clock := newFakeClock()
		engine := NewEngine(clock)
		clock.advance(2 * time.Second) // still within the grace period

		node := converged(1, "a", StatePrimary, clock)
		node.ReportTime = clock.now.Add(-25 * time.Second)
		node.Health = HealthBad
		node.HealthCheckTime = clock.now

		if engine.IsUnhealthy(formation, node) {
			t.Error("grace period must suppress the verdict")
		}
	})

	t.Run("probe before process start is ignored", func(t *testing.T) {
		clock := newFakeClock()
		engine := NewEngine(clock)
		clock.advance(15 * time.Second)

		node := converged(1, "a", StatePrimary, clock)
		node.ReportTime = clock.now.Add(-25 * time.Second)
		node.Health = HealthBad
		node.HealthCheckTime = engine.StartTime().Add(-time.Minute)

		if engine.IsUnhealthy(formation, node) {
			t.Error("a probe from before the restart must not count")
		}
	})

	t.Run("nil node is unhealthy", func(t *testing.T) {
		engine, _ := newTestEngine()
		if !engine.IsUnhealthy(formation, nil) {
			t.Error("IsUnhealthy(nil) = false, want true")
		}
	})
}

func TestDrainTimeExpired(t *testing.T) {
	formation := testFormation()

	t.Run("expired", func(t *testing.T) {
		engine, clock := newTestEngine()
		node := converged(1, "a", StatePrimary, clock)
		node.GoalState = StateDemoteTimeout
		node.StateChangeTime = clock.now.Add(-31 * time.Second)

		if !engine.DrainTimeExpired(formation, node) {
			t.Error("expected expired drain window")
		}
	})

	t.Run("still draining", func(t *testing.T) {
		engine, clock := newTestEngine()
		node := converged(1, "a", StatePrimary, clock)
		node.GoalState = StateDemoteTimeout
		node.StateChangeTime = clock.now.Add(-5 * time.Second)

		if engine.DrainTimeExpired(formation, node) {
			t.Error("window not over yet")
		}
	})

	t.Run("only applies to demote_timeout", func(t *testing.T) {
		engine, clock := newTestEngine()
		node := converged(1, "a", StateDraining, clock)
		node.StateChangeTime = clock.now.Add(-time.Hour)

		if engine.DrainTimeExpired(formation, node) {
			t.Error("expired drain only counts in demote_timeout")
		}
	})

	t.Run("nil node", func(t *testing.T) {
		engine, _ := newTestEngine()
		if engine.DrainTimeExpired(formation, nil) {
			t.Error("DrainTimeExpired(nil) = true, want false")
		}
	})
}

func TestWalDifferenceWithin(t *testing.T) {
	_, clock := newTestEngine()

	node := func(lsn uint64) *Node {
		n := converged(1, "a", StateSecondary, clock)
		n.ReportedLSN = lsn
		return n
	}

	tests := []struct {
		name     string
		a, b     *Node
		delta    int64
		expected bool
	}{
		{"equal positions", node(100), node(100), 16, true},
		{"within threshold", node(100), node(110), 16, true},
		{"at threshold", node(100), node(116), 16, true},
		{"beyond threshold", node(100), node(200), 16, false},
		{"standby ahead within threshold", node(110), node(100), 16, true},
		{"standby missing data", node(0), node(100), 16, false},
		{"primary missing data", node(100), node(0), 16, false},
		{"both nodes absent", nil, nil, 16, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WalDifferenceWithin(tt.a, tt.b, tt.delta); got != tt.expected {
				t.Errorf("WalDifferenceWithin() = %v, want %v", got, tt.expected)
			}
		})
	}
}
