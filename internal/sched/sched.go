// Package sched runs named background tasks on fixed intervals.
package sched

import (
	"log/slog"
	"sync"
	"time"
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func()
}

// Runner drives registered tasks until stopped. Each task runs once at
// start and then on its interval; a panicking run is logged and the
// schedule keeps going.
type Runner struct {
	mu      sync.Mutex
	log     *slog.Logger
	tasks   []Task
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log}
}

// Add registers a task. Call before Start.
func (r *Runner) Add(name string, interval time.Duration, run func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, Task{Name: name, Interval: interval, Run: run})
}

// Start launches one goroutine per task. Safe to call more than once.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	r.mu.Unlock()

	for _, task := range tasks {
		r.log.Info("scheduling task", "task", task.Name, "interval_ms", task.Interval.Milliseconds())
		r.wg.Add(1)
		go r.loop(task, stop)
	}
}

// Stop halts every task and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) loop(task Task, stop chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	r.runTask(task)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.runTask(task)
		}
	}
}

func (r *Runner) runTask(task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("task panicked", "task", task.Name, "panic", rec)
		}
	}()
	task.Run()
}
