package run

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Job is one scheduled invocation of the engine.
type Job func(ctx context.Context) error

// Scheduler repeatedly runs a job at a fixed interval. A config watcher
// can be attached so edits take effect before the next run rather than
// requiring a restart.
type Scheduler struct {
	interval time.Duration
	job      Job

	configPath string
	onChange   func()
}

// NewScheduler creates a scheduler running job every interval.
func NewScheduler(interval time.Duration, job Job) *Scheduler {
	return &Scheduler{
		interval: interval,
		job:      job,
	}
}

// WatchConfig registers a config file to watch; onChange fires on writes
// to it. Must be called before Run.
func (s *Scheduler) WatchConfig(path string, onChange func()) {
	s.configPath = path
	s.onChange = onChange
}

// Run executes the job immediately, then on every interval tick, until
// the context is canceled. Job failures are logged and do not stop the
// schedule; an unreachable source this run may recover by the next.
func (s *Scheduler) Run(ctx context.Context) error {
	var watcher *fsnotify.Watcher
	if s.configPath != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		defer watcher.Close()

		// Watch the directory: editors often replace the file, which
		// would drop a watch on the file itself.
		if err := watcher.Add(filepath.Dir(s.configPath)); err != nil {
			return fmt.Errorf("watch config dir: %w", err)
		}
	}

	runOnce := func() {
		if err := s.job(ctx); err != nil {
			log.Printf("scheduled run failed: %v", err)
		}
	}

	runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			runOnce()

		case event, ok := <-eventChan(watcher):
			if !ok {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.configPath) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				log.Printf("config file changed, reloading")
				if s.onChange != nil {
					s.onChange()
				}
			}

		case err, ok := <-errorChan(watcher):
			if ok && err != nil {
				log.Printf("config watcher error: %v", err)
			}
		}
	}
}

// eventChan returns the watcher's event channel, or nil (blocking
// forever in select) when no watcher is attached.
func eventChan(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func errorChan(w *fsnotify.Watcher) chan error {
	if w == nil {
		return nil
	}
	return w.Errors
}
