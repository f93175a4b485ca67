package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/kubev2v/flowharness/internal/models"
)

// ErrClosed resolves the futures of work added after Close.
var ErrClosed = errors.New("scheduler is closed")

type workRequest[T any] struct {
	fn  models.Work[T]
	c   chan models.Result[T]
	ctx context.Context
}

// Scheduler runs work on a bounded number of workers in submission order.
type Scheduler[T any] struct {
	queue      *models.Queue[workRequest[T]]
	idle       int
	work       chan workRequest[T]
	done       chan struct{}
	close      chan struct{}
	running    sync.WaitGroup
	mainCtx    context.Context
	mainCancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func NewScheduler[T any](nbWorkers int) *Scheduler[T] {
	if nbWorkers < 1 {
		nbWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler[T]{
		queue:      &models.Queue[workRequest[T]]{},
		idle:       nbWorkers,
		work:       make(chan workRequest[T]),
		done:       make(chan struct{}),
		close:      make(chan struct{}),
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	go s.run()
	return s
}

// AddWork queues w. After Close the returned future resolves with ErrClosed.
func (s *Scheduler[T]) AddWork(w models.Work[T]) *models.Future[models.Result[T]] {
	c := make(chan models.Result[T], 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c <- models.Result[T]{Err: ErrClosed}
		return models.NewFuture(c, func() {})
	}

	ctx, cancel := context.WithCancel(s.mainCtx)
	s.running.Add(1)
	s.work <- workRequest[T]{fn: w, c: c, ctx: ctx}
	return models.NewFuture(c, cancel)
}

// Close cancels pending and running work and waits for the workers to
// return. Later calls return once the first one is done.
func (s *Scheduler[T]) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.mainCancel()
		s.close <- struct{}{}
		s.running.Wait()
	})
}

func (s *Scheduler[T]) run() {
	for {
		select {
		case w := <-s.work:
			s.queue.Push(w)
			s.dispatch()
		case <-s.done:
			s.idle++
			s.dispatch()
		case <-s.close:
			for s.queue.Len() > 0 {
				r := s.queue.Pop()
				r.c <- models.Result[T]{Err: r.ctx.Err()}
				s.running.Done()
			}
			return
		}
	}
}

func (s *Scheduler[T]) dispatch() {
	for s.idle > 0 && s.queue.Len() > 0 {
		s.idle--
		r := s.queue.Pop()
		go func() {
			defer s.running.Done()
			v, err := r.fn(r.ctx)
			r.c <- models.Result[T]{Data: v, Err: err}
			select {
			case s.done <- struct{}{}:
			case <-s.mainCtx.Done():
			}
		}()
	}
}
