package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/LexiconIndonesia/media-render-service/common/backoff"
	"github.com/LexiconIndonesia/media-render-service/common/config"
	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

var errJetStreamNotInitialized = errors.New("JetStream not initialized")

// NatsBroker is the client side of the render work queue
type NatsBroker struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	config config.Config
}

// NewNatsBroker connects to NATS, retrying with exponential backoff.
// When every attempt fails the returned error wraps common.ErrConnection.
func NewNatsBroker(ctx context.Context, cfg config.Config) (*NatsBroker, error) {
	client := &NatsBroker{
		config: cfg,
	}

	strategy := backoff.NewExponential(cfg.Nats.ConnectBackoff, 0)
	err := backoff.Retry(ctx, cfg.Nats.ConnectAttempts, strategy, func(ctx context.Context, attempt int) error {
		err := client.connect()
		if err != nil {
			log.Warn().Err(err).
				Int("attempt", attempt).
				Int("maxAttempts", cfg.Nats.ConnectAttempts).
				Str("url", cfg.Nats.URL()).
				Msg("NATS connection attempt failed")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConnection, err)
	}

	return client, nil
}

// connect connects to the NATS server
func (c *NatsBroker) connect() error {
	var err error

	opts := []nats.Option{
		nats.Name(common.AppName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("server", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("Error handling NATS message")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}

	if c.config.Nats.Username != "" && c.config.Nats.Password != "" {
		opts = append(opts, nats.UserInfo(c.config.Nats.Username, c.config.Nats.Password))
	}

	c.conn, err = nats.Connect(c.config.Nats.URL(), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(c.conn)
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	c.js = js

	log.Info().Str("server", c.conn.ConnectedUrl()).Msg("Connected to NATS")
	return nil
}

// Close drains the connection so pending acks reach the server
func (c *NatsBroker) Close() error {
	if c.conn != nil && c.conn.IsConnected() {
		return c.conn.Drain()
	}
	return nil
}

// IsConnected reports whether the underlying connection is up
func (c *NatsBroker) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// PublishJob persists a job on the render subject and waits for the stream
// to acknowledge it. The job id doubles as the JetStream message id, so a
// retried publish of the same job inside the duplicate window is dropped by
// the server.
func (c *NatsBroker) PublishJob(ctx context.Context, job models.Job) error {
	if c.js == nil {
		return errJetStreamNotInitialized
	}

	data, err := job.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	msg := nats.NewMsg(common.RenderSubject)
	msg.Data = data
	msg.Header.Set(common.PriorityHeader, strconv.Itoa(int(job.Priority)))

	ack, err := c.js.PublishMsg(ctx, msg, jetstream.WithMsgID(job.ID))
	if err != nil {
		return fmt.Errorf("failed to publish job %s to %s: %w", job.ID, common.RenderSubject, err)
	}

	log.Info().
		Str("jobID", job.ID).
		Str("kind", string(job.Kind())).
		Uint8("priority", job.Priority).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("Published job")

	return nil
}

// CreateStream creates or updates a JetStream stream
func (c *NatsBroker) CreateStream(ctx context.Context, config jetstream.StreamConfig) (jetstream.Stream, error) {
	if c.js == nil {
		return nil, errJetStreamNotInitialized
	}

	log.Info().
		Str("name", config.Name).
		Strs("subjects", config.Subjects).
		Msg("Attempting to create or update JetStream stream")

	stream, err := c.js.CreateOrUpdateStream(ctx, config)
	if err != nil {
		log.Error().Err(err).Str("stream", config.Name).Msg("Failed to create or update stream")
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return stream, nil
}

// GetStream gets a JetStream stream
func (c *NatsBroker) GetStream(ctx context.Context, streamName string) (jetstream.Stream, error) {
	if c.js == nil {
		return nil, errJetStreamNotInitialized
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	return stream, nil
}

// CreateConsumer creates or updates a durable JetStream consumer
func (c *NatsBroker) CreateConsumer(ctx context.Context, streamName string, config jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.GetStream(ctx, streamName)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	log.Info().
		Str("name", config.Durable).
		Str("stream", streamName).
		Int("maxAckPending", config.MaxAckPending).
		Dur("ackWait", config.AckWait).
		Msg("Created JetStream consumer")

	return consumer, nil
}

// SetupNatsBroker connects and asserts the render stream
func SetupNatsBroker(ctx context.Context, cfg config.Config) (*NatsBroker, error) {
	client, err := NewNatsBroker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := EnsureRenderStream(setupCtx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("asserting render stream: %w", err)
	}

	return client, nil
}
