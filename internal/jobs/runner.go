// Package jobs — фоновые задачи по интервалу внутри процесса.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/metrics"
	"github.com/Spok95/tutoring-platform/internal/observability"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
	log *zap.Logger
	wg  sync.WaitGroup
}

func New(ctx context.Context, log *zap.Logger) *Runner { return &Runner{ctx: ctx, log: log} }

// Every — запуск fn каждые interval до отмены контекста. Паника в fn считается ошибкой запуска.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				r.run(name, fn)
			}
		}
	}()
}

// Wait — дождаться завершения всех циклов после отмены контекста.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) run(name string, fn Job) {
	start := time.Now()
	outcome := "ok"
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				outcome = "panic"
				err = fmt.Errorf("panic in job %s: %v", name, p)
			}
		}()
		return fn(r.ctx)
	}()
	if err != nil {
		if outcome == "ok" {
			outcome = "failed"
		}
		r.log.Warn("job failed", zap.String("job", name), zap.Error(err))
		observability.CaptureErrWith(err, map[string]string{"job": name})
	}
	metrics.JobRun(name, outcome, time.Since(start), time.Now())
}
