package health

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dd0wney/cluso-failover/pkg/fsm"
	"github.com/dd0wney/cluso-failover/pkg/logging"
	"github.com/dd0wney/cluso-failover/pkg/store"
)

func TestCheckerAggregatesResults(t *testing.T) {
	checker := NewChecker()
	checker.Register("good", func() Check {
		return RunCheck("good", func() error { return nil })
	})

	response := checker.Run()
	if response.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy", response.Status)
	}

	checker.Register("bad", func() Check {
		return RunCheck("bad", func() error { return errors.New("down") })
	})

	response = checker.Run()
	if response.Status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", response.Status)
	}
	if response.Checks["bad"].Message != "down" {
		t.Errorf("message = %q", response.Checks["bad"].Message)
	}
}

func TestHandlerReturns503WhenUnhealthy(t *testing.T) {
	checker := NewChecker()
	checker.Register("store", func() Check {
		return RunCheck("store", func() error { return errors.New("unreachable") })
	})

	recorder := httptest.NewRecorder()
	checker.Handler()(recorder, httptest.NewRequest("GET", "/health", nil))

	if recorder.Code != 503 {
		t.Errorf("status = %d, want 503", recorder.Code)
	}
}

func newProberHarness(t *testing.T) (*Prober, *store.MemoryStore, *fsm.Node) {
	t.Helper()

	memStore := store.NewMemoryStore()
	ctx := context.Background()
	if err := memStore.CreateFormation(ctx, fsm.DefaultFormation("default")); err != nil {
		t.Fatalf("CreateFormation: %v", err)
	}
	node, err := memStore.AddNode(ctx, &fsm.Node{
		FormationID: "default",
		Name:        "db1",
		Port:        5432,
		GoalState:   fsm.StateSingle,
	})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	logger := logging.NewJSONLogger(io.Discard, logging.ErrorLevel)
	return NewProber(memStore, logger, time.Second), memStore, node
}

func TestProbeRecordsGoodHealth(t *testing.T) {
	prober, memStore, node := newProberHarness(t)
	prober.SetDialFunc(func(ctx context.Context, addr string) error {
		if addr != "db1:5432" {
			t.Errorf("dialed %q", addr)
		}
		return nil
	})

	prober.probeAll(context.Background())

	stored, err := memStore.GetNode(context.Background(), node.NodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if stored.Health != fsm.HealthGood {
		t.Errorf("health = %s, want good", stored.Health)
	}
	if stored.HealthCheckTime.IsZero() {
		t.Error("health check time not recorded")
	}
}

func TestProbeRecordsBadHealth(t *testing.T) {
	prober, memStore, node := newProberHarness(t)
	prober.SetDialFunc(func(ctx context.Context, addr string) error {
		return errors.New("connection refused")
	})

	prober.probeAll(context.Background())

	stored, err := memStore.GetNode(context.Background(), node.NodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if stored.Health != fsm.HealthBad {
		t.Errorf("health = %s, want bad", stored.Health)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	prober, _, _ := newProberHarness(t)
	prober.interval = time.Millisecond
	prober.SetDialFunc(func(ctx context.Context, addr string) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		prober.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
