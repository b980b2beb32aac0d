package events

import (
	"context"
	"sync"
	"time"

	"github.com/fotofoto/filmreturn/internal/events/sink"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/rs/zerolog/log"
)

const (
	StartedDeveloping = "Started Developing"
	SelectedFormat    = "Selected Format"
	UploadedLabel     = "Uploaded Label"
	CompletedCheckout = "Completed Checkout"

	DefaultQueueSize   = 256
	DefaultSendTimeout = 5 * time.Second
)

// Notifier emits lifecycle events. Emit never blocks and never fails.
type Notifier interface {
	Emit(name string, email string, properties map[string]interface{})
}

// AsyncNotifier hands events to a single worker goroutine, so events reach the
// sink in emission order. A full queue drops the event.
type AsyncNotifier struct {
	sink        sink.Sink
	sendTimeout time.Duration
	queue       chan sink.Event
	done        chan struct{}

	mutex  sync.RWMutex
	closed bool
}

func MakeAsyncNotifier(s sink.Sink, queueSize int, sendTimeout time.Duration) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	n := &AsyncNotifier{
		sink:        s,
		sendTimeout: sendTimeout,
		queue:       make(chan sink.Event, queueSize),
		done:        make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *AsyncNotifier) Emit(name string, email string, properties map[string]interface{}) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	if n.closed {
		log.Warn().Str("event", name).Msg("notifier closed => dropping event")
		return
	}
	select {
	case n.queue <- sink.Event{Name: name, Email: email, Properties: properties}:
		metrics.Gauge("events.queue_depth", float64(len(n.queue)), nil)
	default:
		log.Warn().Str("event", name).Msg("event queue full => dropping event")
		metrics.Incr("events.dropped", []string{"event:" + name})
	}
}

func (n *AsyncNotifier) run() {
	defer close(n.done)
	for ev := range n.queue {
		n.send(ev)
	}
}

func (n *AsyncNotifier) send(ev sink.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
	defer cancel()
	err := n.sink.Send(ctx, ev)
	if err != nil {
		err = failure.Wrap(err, failure.EventEmitFailed, "event not delivered")
		log.Warn().Err(err).Str("event", ev.Name).Msg("event emit failed")
	}
	metrics.Outcome("events.emit", err)
}

// Close stops accepting events and waits for queued ones to be sent, or for ctx to end.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mutex.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mutex.Unlock()
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
