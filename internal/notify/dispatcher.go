package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

const deliveryTimeout = 30 * time.Second

type channelKind int

const (
	channelSMS channelKind = iota + 1
	channelEmail
)

type job struct {
	kind    channelKind
	contact string
	code    string
}

// Dispatcher decorates a Notifier with an asynchronous work queue. Enqueuing
// never blocks: when the queue is full the job is dropped and logged, so a
// slow or failing delivery channel cannot stall the issuance path.
type Dispatcher struct {
	inner Notifier
	jobs  chan job
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewDispatcher starts the given number of delivery workers over a buffered
// queue.
func NewDispatcher(inner Notifier, workers, buffer int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		inner: inner,
		jobs:  make(chan job, buffer),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		var err error
		switch j.kind {
		case channelSMS:
			err = d.inner.SendSMSCode(ctx, j.contact, j.code)
		case channelEmail:
			err = d.inner.SendEmailCode(ctx, j.contact, j.code)
		}
		cancel()
		if err != nil {
			log.Printf("notify: delivery to %s failed: %v", MaskContact(j.contact), err)
		}
	}
}

func (d *Dispatcher) enqueue(j job) {
	select {
	case d.jobs <- j:
	default:
		log.Printf("notify: queue full, dropping code for %s", MaskContact(j.contact))
	}
}

// SendSMSCode queues an SMS delivery and returns immediately.
func (d *Dispatcher) SendSMSCode(ctx context.Context, phoneNumber, code string) error {
	d.enqueue(job{kind: channelSMS, contact: phoneNumber, code: code})
	return nil
}

// SendEmailCode queues an email delivery and returns immediately.
func (d *Dispatcher) SendEmailCode(ctx context.Context, email, code string) error {
	d.enqueue(job{kind: channelEmail, contact: email, code: code})
	return nil
}

// Close drains the queue and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

var _ Notifier = (*Dispatcher)(nil)
