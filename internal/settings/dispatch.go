package settings

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// dispatcher serializes change delivery for one module.
//
// The first writer to find the queue idle becomes the drainer and delivers
// every queued change, including those enqueued by listeners while it runs.
// Writes made from inside a callback are therefore delivered after the
// current callback returns, never recursively. The lock is only held to
// touch the queue, never while a listener runs.
type dispatcher struct {
	mu       sync.Mutex
	queue    []Change
	draining bool
	deliver  func(Change)
	logger   *logrus.Logger
}

func newDispatcher(deliver func(Change), logger *logrus.Logger) *dispatcher {
	return &dispatcher{deliver: deliver, logger: logger}
}

func (d *dispatcher) publish(c Change) {
	d.mu.Lock()
	d.queue = append(d.queue, c)
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue[0] = Change{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.safeDeliver(next)

		d.mu.Lock()
	}
	d.queue = nil
	d.draining = false
	d.mu.Unlock()
}

// safeDeliver keeps a panicking listener from wedging the drain loop
func (d *dispatcher) safeDeliver(c Change) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"module": c.Module,
				"key":    c.Key,
				"panic":  r,
			}).Error("Settings listener panicked")
		}
	}()
	d.deliver(c)
}
