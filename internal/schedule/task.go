// Package schedule runs named periodic jobs with explicit cancellation
// handles. The SLA tick and the cutoff sweep are independent tasks; a
// failing cycle is logged and skipped, never fatal.
package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type Task struct {
	name     string
	interval time.Duration
	run      func(context.Context) error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewTask(name string, interval time.Duration, run func(context.Context) error) *Task {
	return &Task{name: name, interval: interval, run: run}
}

// Start launches the task loop. The first run happens after one interval,
// not immediately.
func (t *Task) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		log.Info().Str("task", t.name).Dur("interval", t.interval).Msg("task started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Str("task", t.name).Msg("task stopped")
				return
			case <-ticker.C:
				if err := t.run(ctx); err != nil {
					log.Warn().Err(err).Str("task", t.name).Msg("cycle failed, skipping until next tick")
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the current cycle to finish.
func (t *Task) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}
