// Package ingest provides an asynchronous worker pool that moves inbound agent
// messages into the message buffer and drains it.
//
// The pool decouples buffering and extraction from the transport's delivery
// path so that a slow parse or a storage hiccup never blocks the sender.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/echoes/pkg/buffer"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

var (
	defaultNumWorkers    uint = 1
	defaultJobQueueSize  uint = 256
	defaultRetryInterval      = 5 * time.Second
)

// Buffer is the message buffer the pool feeds.
type Buffer interface {
	Enqueue(ctx context.Context, msg triplet.RawMessage) (bool, error)
	Drain(ctx context.Context) (buffer.DrainResult, error)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Buffer receives every inbound message.
	Buffer Buffer

	// NumWorkers is the number of background workers in the pool (defaults to 1).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// RetryInterval is how often a drain skipped because another one was
	// running is retried (defaults to 5s).
	RetryInterval time.Duration

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool buffers and drains inbound messages asynchronously.
type Pool struct {
	config *Config
	queue  chan triplet.RawMessage
	wg     sync.WaitGroup
	logger *slog.Logger

	// retry is set when a drain was skipped and buffered messages wait.
	retry atomic.Bool
	stop  chan struct{}
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Buffer == nil {
		return nil, errors.New("ingest pool requires a buffer")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan triplet.RawMessage, c.QueueSize),
		logger: c.Logger,
		stop:   make(chan struct{}),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	wp.wg.Add(1)
	go wp.retrier()

	return wp, nil
}

// Enqueue submits a message for buffering.
// Returns true if enqueued, false if the queue is full, resulting in the message being dropped
func (p *Pool) Enqueue(msg triplet.RawMessage) bool {
	select {
	case p.queue <- msg:
		p.logger.Debug("message queued", "message_id", msg.ID)
		return true
	default:
		p.logger.Error("message not queued, queue full, message dropped", "message_id", msg.ID)
		return false
	}
}

// Close signals workers to stop and waits for in-flight messages to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	close(p.stop)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls messages off the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for msg := range p.queue {
		p.process(msg)
	}

	p.logger.Debug("ingest worker stopped", "worker_id", id)
}

// process buffers msg and runs a drain. The message is durable once buffered;
// a failed or skipped drain leaves it for the next one.
func (p *Pool) process(msg triplet.RawMessage) {
	ctx := context.Background()

	added, err := p.config.Buffer.Enqueue(ctx, msg)
	if err != nil {
		p.logger.Error("buffering message failed", "message_id", msg.ID, "error", err)
		return
	}
	if !added {
		return
	}

	p.drain(ctx, msg.ID)
}

// drain runs one drain. A drain skipped because another one is running is
// flagged for the retrier, since the running one may have loaded the buffer
// before the message arrived.
func (p *Pool) drain(ctx context.Context, messageID string) {
	p.retry.Store(false)

	result, err := p.config.Buffer.Drain(ctx)
	switch {
	case errors.Is(err, buffer.ErrDrainInProgress):
		p.retry.Store(true)
		p.logger.Debug("drain already running, retry scheduled", "message_id", messageID)
	case err != nil:
		p.logger.Error("drain failed", "message_id", messageID, "error", err)
	default:
		p.logger.Debug("drain finished",
			"processed", len(result.Processed),
			"pending", len(result.Pending),
			"added", len(result.Added),
		)
	}
}

// retrier re-runs skipped drains until the pool is closed.
func (p *Pool) retrier() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if p.retry.Load() {
				p.drain(context.Background(), "")
			}
		}
	}
}
