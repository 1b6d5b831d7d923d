package amqp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"walletflow/internal/log"
	"walletflow/internal/state"
)

const DefaultNotifierBuffer = 64

// Publisher sends state change messages. *Client implements it.
type Publisher interface {
	PublishStateChanged(ctx context.Context, msg *StateChangedMessage) error
}

// Notifier turns store changes into published messages. The store listener
// only enqueues; a single goroutine publishes, so a slow broker never blocks
// dispatch. When the queue is full the message is dropped.
type Notifier struct {
	pub   Publisher
	log   *log.Logger
	now   func() time.Time
	queue chan *StateChangedMessage
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewNotifier(pub Publisher, logger *log.Logger, buffer int) *Notifier {
	if logger == nil {
		logger = log.Discard()
	}
	if buffer <= 0 {
		buffer = DefaultNotifierBuffer
	}
	n := &Notifier{
		pub:   pub,
		log:   logger.WithComponent(log.ComponentAMQP),
		now:   time.Now,
		queue: make(chan *StateChangedMessage, buffer),
		done:  make(chan struct{}),
	}
	go n.run()
	return n
}

// Listener returns the function to register with state.Store.SubscribePersisted,
// so a message goes out only once its snapshot is readable from the backend.
func (n *Notifier) Listener() state.Listener {
	return func(c state.Change) {
		n.enqueue(NewStateChangedMessage(c, n.now()))
	}
}

func (n *Notifier) enqueue(msg *StateChangedMessage) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.dropped.Add(1)
		n.log.Warn("Notification queue full, dropping message",
			log.FieldAction, msg.Action, log.FieldOperation, log.OpPublish)
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		if err := n.pub.PublishStateChanged(context.Background(), msg); err != nil {
			n.log.Error("Failed to publish state change",
				log.NewFields().WithOperation(log.OpPublish).WithAction(msg.Action).WithError(err).ToSlice()...)
		}
	}
}

// Dropped reports how many messages were discarded because the queue was full.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close stops accepting messages and waits for the queued ones to be sent.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
