package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// duplicateWindow is how long the server remembers published job ids
const duplicateWindow = 10 * time.Minute

// renderStreamConfig is the durable work queue for render jobs: file backed,
// each message removed once acknowledged or terminated.
func renderStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        common.RenderStreamName,
		Description: "Media render jobs",
		Subjects:    []string{common.RenderSubject},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  duplicateWindow,
	}
}

// renderConsumerConfig caps in-flight deliveries at prefetch. Messages that
// are neither acked nor marked in progress within ackWait are redelivered.
func renderConsumerConfig(prefetch int, ackWait time.Duration) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          common.RenderConsumerName,
		Durable:       common.RenderConsumerName,
		Description:   "Media render workers",
		FilterSubject: common.RenderSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       ackWait,
		MaxAckPending: prefetch,
		MaxDeliver:    -1,
	}
}

// EnsureRenderStream asserts the render work queue
func EnsureRenderStream(ctx context.Context, client *NatsBroker) (jetstream.Stream, error) {
	return EnsureStream(ctx, client, renderStreamConfig())
}

// GetRenderConsumer asserts the durable render consumer with the given prefetch
func GetRenderConsumer(ctx context.Context, client *NatsBroker, prefetch int, ackWait time.Duration) (jetstream.Consumer, error) {
	if client == nil || client.js == nil {
		return nil, errJetStreamNotInitialized
	}
	if prefetch < 1 {
		return nil, fmt.Errorf("%w: prefetch must be at least 1", common.ErrInvalidConfig)
	}

	consumer, err := client.CreateConsumer(ctx, common.RenderStreamName, renderConsumerConfig(prefetch, ackWait))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("stream", common.RenderStreamName).
		Str("subject", common.RenderSubject).
		Str("consumer", common.RenderConsumerName).
		Int("prefetch", prefetch).
		Msg("Got JetStream pull consumer")

	return consumer, nil
}

// EnsureStream creates the stream when missing, otherwise adds any subjects
// from want that the existing stream does not carry yet.
func EnsureStream(ctx context.Context, client *NatsBroker, want jetstream.StreamConfig) (jetstream.Stream, error) {
	stream, err := client.GetStream(ctx, want.Name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
			log.Error().Err(err).Str("stream_name", want.Name).Msg("Failed to get stream for unknown reasons")
			return nil, err
		}
		return client.CreateStream(ctx, want)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	config := info.Config
	subjectSet := make(map[string]struct{}, len(config.Subjects))
	for _, s := range config.Subjects {
		subjectSet[s] = struct{}{}
	}

	hasNewSubjects := false
	for _, s := range want.Subjects {
		if _, ok := subjectSet[s]; !ok {
			hasNewSubjects = true
			config.Subjects = append(config.Subjects, s)
		}
	}

	if !hasNewSubjects {
		log.Debug().Str("stream_name", want.Name).Msg("No new subjects to add to stream")
		return stream, nil
	}

	log.Info().Strs("subjects", config.Subjects).Str("stream_name", want.Name).Msg("Updating stream with new subjects")
	return client.CreateStream(ctx, config)
}
