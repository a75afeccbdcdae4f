package logging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// Counters the router maintains in its Metrics.
const (
	MetricEventsRouted  = "log_events_total"
	MetricEventsDropped = "log_events_dropped_total"
)

const maxSinkBackoff = 30 * time.Second

// Router filters, stamps and decorates events on the publishing goroutine and
// hands a copy to every sink's queue. A full queue drops the event for that
// sink only; publishers never block.
type Router struct {
	minSeverity Severity
	fields      map[string]any
	clock       Clock
	fallback    *log.Logger
	dropWarn    time.Duration
	metrics     *Metrics

	// mu orders Publish against Close so no send happens on a closed queue.
	mu      sync.RWMutex
	closed  bool
	workers []*sinkWorker
	wg      sync.WaitGroup
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
}

func NewRouter(cfg Config, clock Clock, fallback *log.Logger, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = 512
	}
	dropWarn := cfg.DropWarnInterval
	if dropWarn <= 0 {
		dropWarn = 5 * time.Second
	}

	r := &Router{
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
		clock:       clock,
		fallback:    fallback,
		dropWarn:    dropWarn,
		metrics:     &Metrics{},
	}

	seen := make(map[string]bool, len(namedSinks))
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		if seen[named.Name] {
			return nil, fmt.Errorf("duplicate sink %q", named.Name)
		}
		seen[named.Name] = true
		if len(cfg.EnabledSinks) > 0 && !cfg.HasSink(named.Name) {
			continue
		}
		worker := &sinkWorker{
			name:     named.Name,
			sink:     named.Sink,
			queue:    make(chan Event, queueSize),
			fallback: fallback,
		}
		r.workers = append(r.workers, worker)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			worker.run()
		}()
	}
	return r, nil
}

func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || event.Severity < r.minSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.metrics.TelemetryAdd(MetricEventsRouted, 1)
	for _, w := range r.workers {
		select {
		case w.queue <- cloneForFields(event):
		default:
			r.metrics.TelemetryAdd(MetricEventsDropped, 1)
			if w.shouldWarn(time.Now(), r.dropWarn) {
				r.fallback.Printf("sink %s backlog full, dropping %s (tick %d)", w.name, event.Type, event.Tick)
			}
		}
	}
}

// Close stops accepting events, lets every sink drain its queue and then
// closes the sinks. Calling it again is a no-op.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, w := range r.workers {
		close(w.queue)
	}
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("drain sinks: %w", ctx.Err())
	}

	var errs []error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Stats() RouterStats {
	snapshot := r.metrics.Snapshot()
	return RouterStats{
		EventsTotal:  snapshot[MetricEventsRouted],
		DroppedTotal: snapshot[MetricEventsDropped],
	}
}

// Metrics exposes the counter set shared with the rest of the server.
func (r *Router) Metrics() *Metrics {
	return r.metrics
}

// Sink returns the enabled sink registered under name.
func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

type sinkWorker struct {
	name     string
	sink     Sink
	queue    chan Event
	fallback *log.Logger
	lastWarn atomic.Int64
}

// run writes queued events until the queue is closed. After a failed write the
// worker backs off, doubling up to maxSinkBackoff, before the next one.
func (w *sinkWorker) run() {
	failures := 0
	for event := range w.queue {
		err := w.sink.Write(event)
		if err == nil {
			failures = 0
			continue
		}
		failures++
		delay := min(time.Second<<min(failures-1, 5), maxSinkBackoff)
		w.fallback.Printf("sink %s write failed: %v (pausing %s)", w.name, err, delay)
		time.Sleep(delay)
	}
}

func (w *sinkWorker) shouldWarn(now time.Time, every time.Duration) bool {
	last := w.lastWarn.Load()
	if last != 0 && now.UnixNano()-last < every.Nanoseconds() {
		return false
	}
	return w.lastWarn.CompareAndSwap(last, now.UnixNano())
}
