package services

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-memes-bot/internal/observability"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

// ErrDispatcherClosed is returned by AddWork after Shutdown.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Dispatcher runs work on a fixed number of workers. Work items sharing a
// key run one after another in arrival order; different keys run in
// parallel.
type Dispatcher struct {
	workers int

	// base is the context handed to work; it is not cancelled by Shutdown
	// so an item in flight always completes.
	base context.Context

	feeder chan *task
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	lk     sync.Mutex
	active map[string][]*task

	log zerolog.Logger
}

type task struct {
	key string
	fn  func(context.Context)
}

// NewDispatcher starts workers goroutines. queue bounds how many keys may
// wait for a free worker before AddWork blocks.
func NewDispatcher(base context.Context, workers, queue int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	d := &Dispatcher{
		workers: workers,
		base:    base,
		feeder:  make(chan *task, queue),
		done:    make(chan struct{}),
		active:  make(map[string][]*task),
		log:     sysutil.Component("dispatcher"),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// AddWork schedules fn under key. It blocks while all workers are busy and
// the queue is full, until ctx is done or the dispatcher shuts down.
func (d *Dispatcher) AddWork(ctx context.Context, key string, fn func(context.Context)) error {
	select {
	case <-d.done:
		return ErrDispatcherClosed
	default:
	}

	t := &task{key: key, fn: fn}
	observability.DispatchQueueDepth.Inc()

	d.lk.Lock()
	if a, ok := d.active[key]; ok {
		d.active[key] = append(a, t)
		d.lk.Unlock()
		return nil
	}
	d.active[key] = []*task{}
	d.lk.Unlock()

	select {
	case d.feeder <- t:
		return nil
	case <-ctx.Done():
		d.abandon(key)
		return ctx.Err()
	case <-d.done:
		d.abandon(key)
		return ErrDispatcherClosed
	}
}

// abandon drops a key whose head item never reached a worker, together
// with anything queued behind it.
func (d *Dispatcher) abandon(key string) {
	d.lk.Lock()
	rem := d.active[key]
	delete(d.active, key)
	d.lk.Unlock()

	dropped := 1 + len(rem)
	observability.DispatchQueueDepth.Sub(float64(dropped))
	d.log.Warn().Str("key", key).Int("dropped", dropped).Msg("work dropped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		var work *task
		select {
		case work = <-d.feeder:
		case <-d.done:
			return
		}

		for work != nil {
			d.run(work)

			d.lk.Lock()
			rem, ok := d.active[work.key]
			if !ok {
				d.log.Error().Str("key", work.key).Msg("no active entry for a running key")
			}
			if len(rem) == 0 {
				delete(d.active, work.key)
				work = nil
			} else {
				work = rem[0]
				d.active[work.key] = rem[1:]
			}
			d.lk.Unlock()

			if work != nil && d.closed() {
				d.abandon(work.key)
				work = nil
			}
		}
	}
}

func (d *Dispatcher) run(t *task) {
	defer observability.DispatchQueueDepth.Dec()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("key", t.key).Msg("work panicked")
		}
	}()
	t.fn(d.base)
}

func (d *Dispatcher) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting work and waits for in-flight items. Items still
// queued are dropped.
func (d *Dispatcher) Shutdown() {
	d.once.Do(func() {
		d.log.Info().Msg("shutting down dispatcher")
		close(d.done)
	})
	d.wg.Wait()

	// drain feeder items that no worker picked up
	for {
		select {
		case t := <-d.feeder:
			d.abandon(t.key)
		default:
			return
		}
	}
}

// Pending reports how many keys have queued or running work.
func (d *Dispatcher) Pending() int {
	d.lk.Lock()
	defer d.lk.Unlock()
	return len(d.active)
}
