package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
)

var (
	// ErrQueueFull is returned when a room has too many pending actions.
	ErrQueueFull = errors.New("room queue is full")
	// ErrStopped is returned after the executor has been stopped.
	ErrStopped = errors.New("room executor stopped")
)

// roomIdleTimeout is how long a room worker waits for work before exiting.
const roomIdleTimeout = time.Minute

type job struct {
	origin string
	action Action
}

// Handler processes one action for a room.
type Handler func(ctx context.Context, origin string, action Action)

// roomWorker runs the actions of a single room one at a time.
type roomWorker struct {
	room string
	jobs chan job
}

// Executor owns one worker goroutine per active room. Actions for a room run
// in submission order; rooms never wait on each other. A worker that stays
// idle for the idle timeout exits and is recreated on the next submit.
type Executor struct {
	mu        sync.Mutex
	rooms     map[string]*roomWorker
	queueSize int
	idle      time.Duration
	handle    Handler
	stopping  chan struct{}
	stopped   bool
	wg        sync.WaitGroup
	logger    types.Logger
}

// NewExecutor creates an Executor that calls handle for each action.
func NewExecutor(queueSize int, handle Handler, logger types.Logger) *Executor {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Executor{
		rooms:     make(map[string]*roomWorker),
		queueSize: queueSize,
		idle:      roomIdleTimeout,
		handle:    handle,
		stopping:  make(chan struct{}),
		logger:    logger,
	}
}

// Submit queues action on its room's worker.
func (e *Executor) Submit(origin string, action Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}

	room := action.Room()
	w, ok := e.rooms[room]
	if !ok {
		w = &roomWorker{room: room, jobs: make(chan job, e.queueSize)}
		e.rooms[room] = w
		e.wg.Add(1)
		go e.run(w)
		e.logger.Debug("Started room worker", "repoId", room)
	}

	select {
	case w.jobs <- job{origin: origin, action: action}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Executor) run(w *roomWorker) {
	defer e.wg.Done()
	idle := time.NewTimer(e.idle)
	defer idle.Stop()
	for {
		select {
		case j := <-w.jobs:
			e.handle(context.Background(), j.origin, j.action)
			idle.Reset(e.idle)
		case <-idle.C:
			if e.retire(w) {
				e.logger.Debug("Stopped idle room worker", "repoId", w.room)
				return
			}
			idle.Reset(e.idle)
		case <-e.stopping:
			// Drain whatever was accepted before Stop.
			for {
				select {
				case j := <-w.jobs:
					e.handle(context.Background(), j.origin, j.action)
				default:
					return
				}
			}
		}
	}
}

// retire removes w from the room map if its queue is empty. Submit sends
// under e.mu, so no job can land on w once it is unmapped.
func (e *Executor) retire(w *roomWorker) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(w.jobs) > 0 {
		return false
	}
	if e.rooms[w.room] == w {
		delete(e.rooms, w.room)
	}
	return true
}

// Stop refuses new actions and waits for queued ones to finish, up to the
// deadline of ctx.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		close(e.stopping)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RoomCount returns the number of rooms with a live worker.
func (e *Executor) RoomCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms)
}
