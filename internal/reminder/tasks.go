package reminder

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Task is a named recurring job with an explicit next-fire timestamp. Tasks
// are re-evaluated on every tick instead of owning their own timers, so a
// handler that fires late or into an already-changed state simply no-ops.
type Task struct {
	Name     string
	NextFire time.Time
	Interval time.Duration
	Run      func(ctx context.Context)
}

// TaskScheduler runs due tasks on a fixed tick.
type TaskScheduler struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	logger *slog.Logger
	now    func() time.Time
}

// NewTaskScheduler creates an empty task scheduler
func NewTaskScheduler(logger *slog.Logger) *TaskScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskScheduler{
		tasks:  make(map[string]*Task),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (ts *TaskScheduler) SetClock(now func() time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.now = now
}

// Add registers a task that first fires after delay and then every interval.
// Re-adding a name replaces the existing task.
func (ts *TaskScheduler) Add(name string, delay, interval time.Duration, run func(ctx context.Context)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.tasks[name] = &Task{
		Name:     name,
		NextFire: ts.now().Add(delay),
		Interval: interval,
		Run:      run,
	}
	ts.logger.Debug("scheduled task",
		slog.String("task", name),
		slog.Duration("delay", delay),
		slog.Duration("interval", interval),
	)
}

// Remove cancels a task by name. Unknown names are a no-op.
func (ts *TaskScheduler) Remove(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.tasks, name)
}

// Tick runs every task whose next-fire time has arrived and advances it by
// its interval. Tasks run in name order so behavior is deterministic.
func (ts *TaskScheduler) Tick(ctx context.Context) {
	ts.mu.Lock()
	now := ts.now()
	var due []*Task
	for _, task := range ts.tasks {
		if !task.NextFire.After(now) {
			task.NextFire = now.Add(task.Interval)
			due = append(due, task)
		}
	}
	ts.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	for _, task := range due {
		ts.logger.Debug("running scheduled task",
			slog.String("task", task.Name),
		)
		task.Run(ctx)
	}
}

// Start ticks the scheduler at the given resolution until the context is
// canceled.
func (ts *TaskScheduler) Start(ctx context.Context, resolution time.Duration) {
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.Tick(ctx)
		}
	}
}
