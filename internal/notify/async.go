package notify

import (
	"context"
	"sync"
	"time"

	"github.com/tiroq/focusflow/internal/attention"
	"github.com/tiroq/focusflow/internal/log"
)

const notifyTimeout = 5 * time.Second

// Async shows alerts on a background goroutine so a slow notification tool
// never delays a tick. Alerts arriving while the queue is full are dropped.
type Async struct {
	n     Notifier
	queue chan attention.Alert
	done  chan struct{}
	once  sync.Once
}

// NewAsync starts a worker delivering to n with room for size queued alerts.
func NewAsync(n Notifier, size int) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		n:     n,
		queue: make(chan attention.Alert, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Post queues alert. It reports false when the alert was dropped.
func (a *Async) Post(alert attention.Alert) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.queue <- alert:
		return true
	default:
		log.Warn("notification queue full, dropping alert", "alert", alert)
		return false
	}
}

// Close stops the worker after the queued alerts are shown.
func (a *Async) Close() {
	a.once.Do(func() { close(a.done) })
}

func (a *Async) run() {
	for {
		select {
		case alert := <-a.queue:
			a.show(alert)
		case <-a.done:
			for {
				select {
				case alert := <-a.queue:
					a.show(alert)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) show(alert attention.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := Alert(ctx, a.n, alert); err != nil {
		log.Warn("failed to show notification", "alert", alert, "notifier", a.n.Name(), "error", err)
	}
}
