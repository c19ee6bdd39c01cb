// Package gate bounds how many generation calls reach the device at once.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when a slot did not free up within the queue timeout.
var ErrBusy = errors.New("generation queue timeout")

const (
	monitorInterval = 500 * time.Millisecond
	logInterval     = time.Second
)

// Stats is a point-in-time view of the gate.
type Stats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
}

// Gate admits at most a fixed number of concurrent holders; others wait up
// to the queue timeout.
type Gate struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	log     logrus.FieldLogger

	mu         sync.Mutex
	stats      Stats
	changed    bool
	lastLogged time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a gate and starts its metrics monitor. Call Close to stop it.
func New(maxConcurrent int, queueTimeout time.Duration, log logrus.FieldLogger) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	g := &Gate{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: queueTimeout,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go g.monitor()
	return g
}

// Acquire waits for a slot. The returned release func must be called
// exactly once. ctx cancellation returns ctx.Err(); the queue timeout
// returns ErrBusy.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.update(func(s *Stats) { s.Queued++ })

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	err := g.sem.Acquire(waitCtx, 1)
	cancel()

	if err != nil {
		g.update(func(s *Stats) { s.Queued-- })
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrBusy
	}

	g.update(func(s *Stats) {
		s.Queued--
		s.Processing++
	})

	var released sync.Once
	return func() {
		released.Do(func() {
			g.update(func(s *Stats) { s.Processing-- })
			g.sem.Release(1)
		})
	}, nil
}

// Stats returns the current queued and processing counts.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Close stops the monitor. It does not wait for holders.
func (g *Gate) Close() {
	g.once.Do(func() { close(g.stop) })
	<-g.done
}

func (g *Gate) update(fn func(*Stats)) {
	g.mu.Lock()
	fn(&g.stats)
	g.changed = true
	g.mu.Unlock()
}

func (g *Gate) monitor() {
	defer close(g.done)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case now := <-ticker.C:
			g.mu.Lock()
			if g.changed && now.Sub(g.lastLogged) >= logInterval {
				g.log.WithFields(logrus.Fields{
					"queued":     g.stats.Queued,
					"processing": g.stats.Processing,
				}).Info("Generation queue")
				g.lastLogged = now
				g.changed = false
			}
			g.mu.Unlock()
		}
	}
}
