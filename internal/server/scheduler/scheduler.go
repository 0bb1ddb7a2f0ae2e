// Package scheduler runs the server's periodic maintenance: flushing dirty
// collaboration sessions and sweeping orphaned chunks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/go-co-op/gocron"
)

// Task is a named job run every Every.
type Task struct {
	Name    string
	Every   time.Duration
	Handler func(ctx context.Context) error
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	log       logging.Logger

	mu    sync.Mutex
	tasks map[string]Task
}

func New(log logging.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		ctx:       ctx,
		cancel:    cancel,
		log:       log.With("module", "scheduler"),
		tasks:     make(map[string]Task),
	}
}

// Register schedules t. The first run happens one interval after Start.
func (s *Scheduler) Register(t Task) error {
	if t.Every <= 0 {
		return fmt.Errorf("task %s: interval must be positive", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.Name]; exists {
		return fmt.Errorf("task %s already registered", t.Name)
	}

	_, err := s.scheduler.Every(t.Every).Tag(t.Name).SingletonMode().WaitForSchedule().Do(func() {
		s.run(t)
	})
	if err != nil {
		return fmt.Errorf("error scheduling task %s: %w", t.Name, err)
	}
	s.tasks[t.Name] = t
	s.log.Info(s.ctx, "registered task", "task", t.Name, "every", t.Every.String())
	return nil
}

func (s *Scheduler) run(t Task) {
	if err := t.Handler(s.ctx); err != nil {
		s.log.Error(s.ctx, "task failed", "task", t.Name, "error", err)
	}
}

// RunNow runs the named task synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s not found", name)
	}
	return t.Handler(s.ctx)
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop halts the schedule and cancels the context of running handlers.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.cancel()
}
