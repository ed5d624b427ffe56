package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// progress logs stage progress at most once per interval, however many
// workers report in.
type progress struct {
	log   logrus.FieldLogger
	stage string
	total int
	done  atomic.Int64
	every rate.Sometimes
}

func newProgress(log logrus.FieldLogger, stage string, total int) *progress {
	return &progress{
		log:   log,
		stage: stage,
		total: total,
		every: rate.Sometimes{Interval: 2 * time.Second},
	}
}

func (p *progress) tick() {
	n := p.done.Add(1)
	p.every.Do(func() {
		p.log.WithFields(logrus.Fields{"stage": p.stage, "done": n, "total": p.total}).Debug("stage progress")
	})
}

// fanOut runs fn over items on at most workers goroutines. Results keep the
// order of items. If any unit fails the whole stage fails and no results are
// returned, so callers never merge a partial stage.
func fanOut[T, R any](ctx context.Context, workers int, items []T, p *progress, fn func(context.Context, T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			out[i] = r
			if p != nil {
				p.tick()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
