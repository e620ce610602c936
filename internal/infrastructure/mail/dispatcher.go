package mail

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	sendTimeout    = 30 * time.Second
)

// Dispatcher delivers notification emails in the background. Messages are
// routed to a fixed set of workers by recipient, so one user's notifications
// go out in the order they were queued.
type Dispatcher struct {
	workers []chan ports.EmailMessage
	mailer  ports.Mailer
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, mailer ports.Mailer, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.EmailMessage, numWorkers),
		mailer:  mailer,
		log:     log.With().Str("component", "mail_dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.EmailMessage, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers exit once Close has been
// called and their channel is drained; ctx only bounds each send.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands msg to the worker responsible for its recipient. It never
// blocks: when the worker's buffer is full the message is dropped and counted
// as failed.
func (d *Dispatcher) Enqueue(msg ports.EmailMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(msg, "dispatcher closed")
		return
	}

	idx := d.shardIndex(msg.Recipient)
	select {
	case d.workers[idx] <- msg:
		metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		d.drop(msg, "mail queue full")
	}
}

// Close stops accepting messages and waits for the queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.EmailMessage) {
	defer d.wg.Done()
	label := strconv.Itoa(id)

	// Queued mail is still delivered during shutdown.
	base := context.WithoutCancel(ctx)
	for msg := range ch {
		metrics.MailQueueDepth.WithLabelValues(label).Set(float64(len(ch)))

		sendCtx, cancel := context.WithTimeout(base, sendTimeout)
		err := d.mailer.Send(sendCtx, msg)
		cancel()

		if err != nil {
			metrics.EmailsTotal.WithLabelValues(string(msg.Template), "failed").Inc()
			d.log.Error().Err(err).
				Str("template", string(msg.Template)).
				Str("recipient", msg.Recipient).
				Int("worker_id", id).
				Msg("email delivery failed")
			continue
		}
		metrics.EmailsTotal.WithLabelValues(string(msg.Template), "sent").Inc()
	}
}

func (d *Dispatcher) drop(msg ports.EmailMessage, reason string) {
	metrics.EmailsTotal.WithLabelValues(string(msg.Template), "failed").Inc()
	d.log.Error().
		Str("template", string(msg.Template)).
		Str("recipient", msg.Recipient).
		Msg(reason)
}
