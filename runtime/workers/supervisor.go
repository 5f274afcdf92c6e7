package workers

import (
	"chat-link/contract"
	"chat-link/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Supervisor runs the long-lived workers of the client (composer, credential
// watcher, heartbeat) each in its own goroutine.
// A panicking or failing worker is restarted after restartDelay,
// a worker returning nil is done for good.
// Run returns once every worker has stopped.
type Supervisor struct {
	mu           sync.Mutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	log          *slog.Logger
	restartDelay time.Duration
	workers      []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartDelay time.Duration) *Supervisor {
	return &Supervisor{log: log, restartDelay: restartDelay}
}

// Run ties the workers to a context derived from ctx, so that
// Stop only cancels this supervisor's children.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	workers := append([]contract.Worker(nil), s.workers...)
	s.mu.Unlock()
	defer cancel()

	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision.
// A failure in one worker never stops the supervisor itself.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := s.runOnce(ctx, worker)
			if err == nil {
				// Terminated properly, never restart !
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartDelay):
			}
		}
	}()
}

func (s *Supervisor) runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels every worker, Run returns once they are all gone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
