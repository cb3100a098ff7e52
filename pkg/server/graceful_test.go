package server

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/dd0wney/cluso-failover/pkg/logging"
)

func newTestLogger() logging.Logger {
	return logging.NewJSONLogger(io.Discard, logging.ErrorLevel)
}

func TestShutdownIsIdempotent(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", http.NewServeMux(), newTestLogger())

	if err := gs.Shutdown(time.Second); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := gs.Shutdown(time.Second); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}

	select {
	case <-gs.Done():
	default:
		t.Error("Done channel not closed after shutdown")
	}
}

func TestStartReturnsAfterShutdown(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", http.NewServeMux(), newTestLogger())

	done := make(chan error, 1)
	go func() {
		done <- gs.Start()
	}()

	// give the listener a moment before shutting it down
	time.Sleep(50 * time.Millisecond)
	if err := gs.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}
