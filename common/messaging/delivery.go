package messaging

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Acker is the settlement side of a broker message. jetstream.Msg satisfies it.
type Acker interface {
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
	InProgress() error
}

// Delivery is one message handed to the dispatcher. It must be settled with
// exactly one call to Ack or Nack; a second settle call panics.
type Delivery struct {
	data         []byte
	priority     int
	numDelivered uint64
	requeueDelay time.Duration
	acker        Acker
	settled      atomic.Bool
}

// NewDelivery wraps a message body and its acker
func NewDelivery(data []byte, priority int, numDelivered uint64, acker Acker) *Delivery {
	return &Delivery{
		data:         data,
		priority:     priority,
		numDelivered: numDelivered,
		acker:        acker,
	}
}

// FromJetStream wraps a JetStream message. Requeued messages are offered
// again after requeueDelay (zero means immediately).
func FromJetStream(msg jetstream.Msg, requeueDelay time.Duration) *Delivery {
	priority := 0
	if v := msg.Headers().Get(common.PriorityHeader); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			priority = p
		}
	}

	var numDelivered uint64 = 1
	if meta, err := msg.Metadata(); err == nil {
		numDelivered = meta.NumDelivered
	}

	d := NewDelivery(msg.Data(), priority, numDelivered, msg)
	d.requeueDelay = requeueDelay
	return d
}

func (d *Delivery) Data() []byte {
	return d.data
}

func (d *Delivery) Priority() int {
	return d.priority
}

// NumDelivered is 1 on first delivery and grows with every redelivery
func (d *Delivery) NumDelivered() uint64 {
	return d.numDelivered
}

// Settled reports whether Ack or Nack has been called
func (d *Delivery) Settled() bool {
	return d.settled.Load()
}

func (d *Delivery) settle(op string) {
	if !d.settled.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("messaging: delivery settled twice (%s)", op))
	}
}

// Ack confirms the message; the broker removes it from the queue
func (d *Delivery) Ack() error {
	d.settle("ack")
	return d.acker.Ack()
}

// Nack rejects the message. With requeue the broker offers it again,
// possibly to another consumer; without it the message is discarded.
func (d *Delivery) Nack(requeue bool) error {
	d.settle("nack")
	if !requeue {
		return d.acker.Term()
	}
	if d.requeueDelay > 0 {
		return d.acker.NakWithDelay(d.requeueDelay)
	}
	return d.acker.Nak()
}

// InProgress resets the broker's redelivery timer for this message
func (d *Delivery) InProgress() error {
	if d.settled.Load() {
		return nil
	}
	if err := d.acker.InProgress(); err != nil {
		log.Debug().Err(err).Msg("Failed to extend delivery ack deadline")
		return err
	}
	return nil
}
