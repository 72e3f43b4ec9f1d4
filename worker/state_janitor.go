package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper drops expired entries from an in-process store
type Sweeper interface {
	Sweep() int
}

// StateJanitor periodically evicts expired conversation state from memory stores.
// Redis-backed stores expire keys on their own and are not registered here.
type StateJanitor struct {
	Sweepers []Sweeper
	Interval time.Duration
	Logger   *logrus.Entry
}

func NewStateJanitor(interval time.Duration, logger *logrus.Entry, sweepers ...Sweeper) *StateJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StateJanitor{
		Sweepers: sweepers,
		Interval: interval,
		Logger:   logger,
	}
}

func (sj *StateJanitor) Start(ctx context.Context) {
	if len(sj.Sweepers) == 0 {
		return
	}
	ticker := time.NewTicker(sj.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sj.RunOnce(); n > 0 {
				sj.Logger.WithField("evicted", n).Debug("expired flow state swept")
			}
		}
	}
}

func (sj *StateJanitor) RunOnce() int {
	total := 0
	for _, s := range sj.Sweepers {
		total += s.Sweep()
	}
	return total
}
