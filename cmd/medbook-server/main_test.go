package main

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestAwaitShutdownReturnsListenerError(t *testing.T) {
	serverErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)

	boom := errors.New("listen tcp :8000: bind: address already in use")
	serverErr <- boom

	if err := awaitShutdown(serverErr, quit); !errors.Is(err, boom) {
		t.Errorf("expected listener error to surface, got %v", err)
	}
}

func TestAwaitShutdownReturnsNilOnSignal(t *testing.T) {
	serverErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		quit <- syscall.SIGTERM
	}()

	if err := awaitShutdown(serverErr, quit); err != nil {
		t.Errorf("signal shutdown should not be an error, got %v", err)
	}
}
