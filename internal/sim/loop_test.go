package sim

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingStepper struct {
	mu      sync.Mutex
	ticks   []uint64
	running int
	overlap bool
	delay   time.Duration
}

func (s *countingStepper) Tick(_ context.Context, tick uint64) TickResult {
	s.mu.Lock()
	s.running++
	if s.running > 1 {
		s.overlap = true
	}
	s.ticks = append(s.ticks, tick)
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.running--
	s.mu.Unlock()
	return TickResult{ActiveBases: 1}
}

func TestAdvanceNumbersTicksAndCallsHook(t *testing.T) {
	stepper := &countingStepper{}
	var seen []TickResult
	loop := NewLoop(stepper, LoopConfig{}, LoopHooks{AfterTick: func(r TickResult) { seen = append(seen, r) }})

	loop.Advance(context.Background())
	loop.Advance(context.Background())

	if len(seen) != 2 || seen[0].Tick != 1 || seen[1].Tick != 2 {
		t.Fatalf("unexpected hook results %+v", seen)
	}
	if seen[1].ActiveBases != 1 {
		t.Fatalf("expected stepper result to be forwarded")
	}
	if loop.Interval() != DefaultInterval {
		t.Fatalf("expected default interval, got %s", loop.Interval())
	}
}

func TestRunStopsOnCancelAndNeverOverlaps(t *testing.T) {
	stepper := &countingStepper{delay: 3 * time.Millisecond}
	loop := NewLoop(stepper, LoopConfig{Interval: time.Millisecond}, LoopHooks{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after cancel")
	}

	stepper.mu.Lock()
	defer stepper.mu.Unlock()
	if len(stepper.ticks) == 0 {
		t.Fatalf("expected at least one tick")
	}
	if stepper.overlap {
		t.Fatalf("ticks overlapped")
	}
	for i, tick := range stepper.ticks {
		if tick != uint64(i+1) {
			t.Fatalf("expected sequential tick numbers, got %v", stepper.ticks)
		}
	}
}

func TestNewLoopNilStepper(t *testing.T) {
	var loop *Loop = NewLoop(nil, LoopConfig{}, LoopHooks{})
	if loop != nil {
		t.Fatalf("expected nil loop")
	}
	loop.Run(context.Background())
	if got := loop.Advance(context.Background()); got.Tick != 0 {
		t.Fatalf("nil loop must be inert")
	}
}

type blockingStepper struct {
	started chan struct{}
	release chan struct{}
	err     chan error
}

func (s *blockingStepper) Tick(ctx context.Context, _ uint64) TickResult {
	close(s.started)
	<-s.release
	s.err <- ctx.Err()
	return TickResult{}
}

func TestRunCancelDoesNotCancelInFlightTick(t *testing.T) {
	stepper := &blockingStepper{
		started: make(chan struct{}),
		release: make(chan struct{}),
		err:     make(chan error, 1),
	}
	loop := NewLoop(stepper, LoopConfig{Interval: time.Millisecond}, LoopHooks{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	select {
	case <-stepper.started:
	case <-time.After(time.Second):
		t.Fatalf("tick never started")
	}
	cancel()
	close(stepper.release)

	if err := <-stepper.err; err != nil {
		t.Fatalf("in-flight tick saw cancelled context: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after cancel")
	}
}
