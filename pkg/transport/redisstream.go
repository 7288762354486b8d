package transport

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisSettings configures the Redis Streams backend.
type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

// RedisBroker carries the route over Redis Streams. Requests are consumed
// from the recv topic through a consumer group; responses are appended to
// the send topic.
type RedisBroker struct {
	pubsubTransport
	client *redis.Client
	rpub   *rstream.Publisher
	rsub   *rstream.Subscriber
}

// NewRedisBroker connects to Redis and builds the stream publisher and
// subscriber for route.
func NewRedisBroker(route Route, settings RedisSettings, logger watermill.LoggerAdapter) (*RedisBroker, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	client := redis.NewClient(&redis.Options{Addr: settings.Addr})
	marshaller := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaller,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "redis stream publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaller,
		ConsumerGroup: settings.Group,
		Consumer:      settings.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "redis stream subscriber")
	}
	return &RedisBroker{
		pubsubTransport: pubsubTransport{route: route, pub: pub, sub: sub},
		client:          client,
		rpub:            pub,
		rsub:            sub,
	}, nil
}

// EnsureGroupAtTail creates the consumer group for the recv topic at the
// stream tail if it does not exist yet, preventing a full historical replay
// on first subscribe. BUSYGROUP errors are ignored.
func (b *RedisBroker) EnsureGroupAtTail(ctx context.Context, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, b.route.RecvTopic, group, "$").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return errors.Wrapf(err, "create group %q", group)
}

// Shutdown closes the subscriber, publisher and the client connection.
func (b *RedisBroker) Shutdown() error {
	subErr := b.rsub.Close()
	pubErr := b.rpub.Close()
	clientErr := b.client.Close()
	if subErr != nil {
		return subErr
	}
	if pubErr != nil {
		return pubErr
	}
	return clientErr
}

var _ Transport = (*RedisBroker)(nil)
