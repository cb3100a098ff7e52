package fsm

// IsHealthy returns whether the node passed its last health check and its
// database instance is reported as running by the agent.
func (e *Engine) IsHealthy(node *Node) bool {
	if node == nil {
		return false
	}
	return node.Health == HealthGood && node.PgIsRunning
}

// IsUnhealthy returns whether the node failed its last health check and has
// not reported for more than the formation's unhealthy timeout, or its
// database instance is reported as not running. A nil node counts as
// unhealthy. The startup
// grace period keeps a freshly restarted monitor from declaring nodes dead
// before the first probe round completes.
func (e *Engine) IsUnhealthy(formation *Formation, node *Node) bool {
	if node == nil {
		return true
	}

	now := e.clock.Now()

	// if the agent isn't reporting, trust the health checks
	if now.Sub(node.ReportTime) > formation.UnhealthyTimeout {
		if node.Health == HealthBad &&
			node.HealthCheckTime.After(e.startTime) &&
			now.Sub(e.startTime) > formation.StartupGracePeriod {
			return true
		}
	}

	if !node.PgIsRunning {
		return true
	}

	return false
}

// DrainTimeExpired returns whether a demoting primary has run out of its
// self-fencing window.
func (e *Engine) DrainTimeExpired(formation *Formation, node *Node) bool {
	if node == nil || node.GoalState != StateDemoteTimeout {
		return false
	}
	return e.clock.Now().Sub(node.StateChangeTime) > formation.DrainTimeout
}

// WalDifferenceWithin returns whether the most recently reported log positions
// of the two nodes are within the given bound. Returns false when either node
// has not reported a position yet, there is not enough data to decide.
func WalDifferenceWithin(standby, other *Node, delta int64) bool {
	if standby == nil || other == nil {
		return true
	}

	standbyLSN := standby.ReportedLSN
	otherLSN := other.ReportedLSN

	if standbyLSN == 0 || otherLSN == 0 {
		return false
	}

	var difference uint64
	if otherLSN > standbyLSN {
		difference = otherLSN - standbyLSN
	} else {
		difference = standbyLSN - otherLSN
	}

	return difference <= uint64(delta)
}
