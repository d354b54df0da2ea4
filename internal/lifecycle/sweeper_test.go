package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/helpline-dev/helpline/internal/store"
)

func TestSweeperRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, _ := f.manager.Create(ctx, "call-1", "555-123-0001", "q")
	f.clock.Advance(20 * time.Minute)

	sweeper := NewSweeper(f.manager, 0)
	n, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
	if got, _ := f.manager.Get(ctx, req.ID); got.Status != store.StatusUnresolved {
		t.Errorf("status = %q, want unresolved", got.Status)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)

	sweeper := NewSweeper(f.manager, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
