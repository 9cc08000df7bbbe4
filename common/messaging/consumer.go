package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Handler receives each delivery. It is called from the broker's dispatch
// goroutine and must not block for the duration of the job.
type Handler func(d *Delivery)

// Source feeds deliveries to a handler until ctx is done
type Source interface {
	Consume(ctx context.Context, handle Handler) error
}

// JetStreamSource pulls from a durable JetStream consumer
type JetStreamSource struct {
	consumer     jetstream.Consumer
	prefetch     int
	requeueDelay time.Duration
}

// NewJetStreamSource creates a source that keeps at most prefetch messages
// buffered client side
func NewJetStreamSource(consumer jetstream.Consumer, prefetch int, requeueDelay time.Duration) *JetStreamSource {
	if prefetch < 1 {
		prefetch = 1
	}
	return &JetStreamSource{
		consumer:     consumer,
		prefetch:     prefetch,
		requeueDelay: requeueDelay,
	}
}

// Consume blocks until ctx is done, then stops pulling. Messages buffered
// but not yet handled are redelivered by the server after AckWait.
func (s *JetStreamSource) Consume(ctx context.Context, handle Handler) error {
	cc, err := s.consumer.Consume(
		func(msg jetstream.Msg) {
			handle(FromJetStream(msg, s.requeueDelay))
		},
		jetstream.PullMaxMessages(s.prefetch),
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			log.Warn().Err(err).Msg("JetStream consume error")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to consume from consumer: %w", err)
	}

	log.Info().Int("prefetch", s.prefetch).Msg("Consuming render jobs")

	<-ctx.Done()
	cc.Stop()

	log.Info().Msg("Stopped consuming render jobs")
	return nil
}
