package ingest

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"nester/validation"
)

const defaultProcessingTimeout = 10 * time.Second

type Ingester interface {
	IngestJSON(ctx context.Context, body []byte) (uint, error)
}

// Subscriber feeds scan results published on a Pub/Sub subscription into
// the same ingestion path as the HTTP endpoint.
type Subscriber struct {
	sub      *pubsub.Subscription
	ingester Ingester
	log      zerolog.Logger
	timeout  time.Duration
}

func NewSubscriber(client *pubsub.Client, subscription string, ingester Ingester, log zerolog.Logger) (*Subscriber, error) {
	if client == nil {
		return nil, errors.New("no pubsub client provided")
	}
	if ingester == nil {
		return nil, errors.New("no ingester provided")
	}
	if subscription == "" {
		return nil, errors.New("no subscription name provided")
	}
	return &Subscriber{
		sub:      client.Subscription(subscription),
		ingester: ingester,
		log:      log.With().Str("component", "pubsub").Str("subscription", subscription).Logger(),
		timeout:  defaultProcessingTimeout,
	}, nil
}

// Run receives until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	s.log.Info().Msg("receiving scan results")
	if err := s.sub.Receive(ctx, s.handle); err != nil {
		return errors.Wrap(err, "pubsub receive failed")
	}
	return nil
}

// Bad payloads are acked and dropped since redelivery cannot fix them;
// storage failures are nacked so the message comes back.
func (s *Subscriber) handle(ctx context.Context, m *pubsub.Message) {
	processingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	id, err := s.ingester.IngestJSON(processingCtx, m.Data)
	switch {
	case err == nil:
		s.log.Info().Str("message_id", m.ID).Uint("id", id).Msg("scan result accepted")
		m.Ack()
	case validation.IsValidation(err):
		s.log.Error().Err(err).Str("message_id", m.ID).Bytes("data", m.Data).Msg("dropping invalid scan result")
		m.Ack()
	default:
		s.log.Error().Err(err).Str("message_id", m.ID).Msg("cannot store scan result, will retry")
		m.Nack()
	}
}
