package transport

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"go-pianola/device"
)

// ErrChannelUnavailable is returned by Send when a message cannot be
// accepted. The message is dropped; nothing is retried.
var ErrChannelUnavailable = errors.New("output channel unavailable")

// Sink accepts device messages without blocking.
type Sink interface {
	Send(m device.Message) error
}

// DefaultQueueSize is the number of encoded messages buffered per link.
const DefaultQueueSize = 256

// queue hands encoded messages to a single writer goroutine. Enqueue never
// blocks: a full queue or a failed link drops the message.
type queue struct {
	items  chan []byte
	done   chan struct{}
	write  func([]byte) error
	logger *log.Logger

	mu   sync.Mutex
	err  error // first write error; the link is dead after it
	once sync.Once
	wg   sync.WaitGroup
}

func newQueue(size int, write func([]byte) error, logger *log.Logger) *queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &queue{
		items:  make(chan []byte, size),
		done:   make(chan struct{}),
		write:  write,
		logger: logger,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *queue) enqueue(b []byte) error {
	if err := q.failed(); err != nil {
		return errors.Wrapf(ErrChannelUnavailable, "link down: %v", err)
	}
	select {
	case <-q.done:
		return errors.Wrap(ErrChannelUnavailable, "closed")
	default:
	}
	select {
	case q.items <- b:
		return nil
	default:
		return errors.Wrapf(ErrChannelUnavailable, "queue full (%d)", cap(q.items))
	}
}

func (q *queue) loop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case b := <-q.items:
			if err := q.write(b); err != nil {
				q.fail(err)
				return
			}
		}
	}
}

func (q *queue) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err == nil {
		q.err = err
		q.logger.Error("link failed", "err", err)
	}
}

func (q *queue) failed() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// drain writes whatever is still queued, then stops the writer.
func (q *queue) close() {
	q.once.Do(func() {
		close(q.done)
		q.wg.Wait()
		for {
			select {
			case b := <-q.items:
				if q.failed() != nil {
					return
				}
				if err := q.write(b); err != nil {
					q.fail(err)
					return
				}
			default:
				return
			}
		}
	})
}

