package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"nester/store"
	"nester/validation"
)

type ingesterMock struct {
	mtx      sync.Mutex
	failures int
	received [][]byte
}

func (im *ingesterMock) IngestJSON(_ context.Context, body []byte) (uint, error) {
	im.mtx.Lock()
	defer im.mtx.Unlock()
	if im.failures > 0 {
		im.failures--
		return 0, &store.StorageError{Op: "insert", Err: errors.New("database is locked")}
	}
	payload, err := validation.Decode(body)
	if err != nil {
		return 0, err
	}
	if _, err := validation.Validate(payload); err != nil {
		return 0, err
	}
	im.received = append(im.received, body)
	return uint(len(im.received)), nil
}

func (im *ingesterMock) count() int {
	im.mtx.Lock()
	defer im.mtx.Unlock()
	return len(im.received)
}

type SubscriberSuite struct {
	suite.Suite
	srv    *pstest.Server
	conn   *grpc.ClientConn
	client *pubsub.Client
	topic  *pubsub.Topic
}

func TestSubscriberSuite(t *testing.T) {
	suite.Run(t, &SubscriberSuite{})
}

func (s *SubscriberSuite) SetupTest() {
	s.srv = pstest.NewServer()

	conn, err := grpc.Dial(s.srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err)
	s.conn = conn

	s.client, err = pubsub.NewClient(context.TODO(), "nester-test", option.WithGRPCConn(conn))
	s.Require().NoError(err)

	s.topic, err = s.client.CreateTopic(context.TODO(), "scans")
	s.Require().NoError(err)
	_, err = s.client.CreateSubscription(context.TODO(), "scans-sub", pubsub.SubscriptionConfig{Topic: s.topic})
	s.Require().NoError(err)
}

func (s *SubscriberSuite) TearDownTest() {
	s.topic.Stop()
	s.NoError(s.client.Close())
	s.NoError(s.conn.Close())
	s.NoError(s.srv.Close())
}

func (s *SubscriberSuite) publish(data string) string {
	id, err := s.topic.Publish(context.TODO(), &pubsub.Message{Data: []byte(data)}).Get(context.TODO())
	s.Require().NoError(err)
	return id
}

func (s *SubscriberSuite) run(ingester Ingester) (stop func()) {
	sub, err := NewSubscriber(s.client, "scans-sub", ingester, zerolog.Nop())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.TODO())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	return func() {
		cancel()
		s.NoError(<-done)
	}
}

func (s *SubscriberSuite) acked(id string) func() bool {
	return func() bool {
		m := s.srv.Message(id)
		return m != nil && m.Acks > 0
	}
}

func (s *SubscriberSuite) TestNewSubscriber() {
	ingester := &ingesterMock{}

	sub, err := NewSubscriber(nil, "scans-sub", ingester, zerolog.Nop())
	s.Nil(sub)
	s.Error(err)

	sub, err = NewSubscriber(s.client, "scans-sub", nil, zerolog.Nop())
	s.Nil(sub)
	s.Error(err)

	sub, err = NewSubscriber(s.client, "", ingester, zerolog.Nop())
	s.Nil(sub)
	s.Error(err)
}

func (s *SubscriberSuite) TestValidAndInvalidMessagesAreAcked() {
	ingester := &ingesterMock{}
	stop := s.run(ingester)
	defer stop()

	valid := s.publish(`{"franchise_id": "fr1", "ip_address": "10.0.0.5", "scan_data": {}}`)
	invalid := s.publish(`{"franchise_id": 123}`)
	garbage := s.publish(`not json`)

	for _, id := range []string{valid, invalid, garbage} {
		s.Eventually(s.acked(id), 5*time.Second, 10*time.Millisecond, "message %s not acked", id)
	}
	s.Equal(1, ingester.count())
}

func (s *SubscriberSuite) TestStorageFailureIsRedelivered() {
	ingester := &ingesterMock{failures: 1}
	stop := s.run(ingester)
	defer stop()

	id := s.publish(`{"franchise_id": "fr1", "ip_address": "10.0.0.5", "scan_data": {}}`)

	s.Eventually(s.acked(id), 10*time.Second, 10*time.Millisecond)
	s.GreaterOrEqual(s.srv.Message(id).Deliveries, 2)
	s.Equal(1, ingester.count())
}
