package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"

	"github.com/peak-dev/Tir/pkg/web"
)

// Broker is an in-memory transport over watermill's gochannel pub/sub. It is
// the development and test backend; both sides of the route live in one
// process, so it also exposes the client half (PublishRequest, Responses).
type Broker struct {
	pubsubTransport
	pubsub *gochannel.GoChannel
}

// NewBroker builds an in-memory broker for route.
func NewBroker(route Route, logger watermill.LoggerAdapter) *Broker {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return &Broker{
		pubsubTransport: pubsubTransport{route: route, pub: pubsub, sub: pubsub},
		pubsub:          pubsub,
	}
}

// PublishRequest injects a request on the route's recv topic, as a client
// would.
func (b *Broker) PublishRequest(req *web.Request) error {
	msg, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return errors.Wrapf(b.pubsub.Publish(b.route.RecvTopic, msg), "publish %q", b.route.RecvTopic)
}

// Responses subscribes to the route's send topic and decodes outbound
// envelopes; the channel closes with ctx.
func (b *Broker) Responses(ctx context.Context) (<-chan Response, error) {
	msgs, err := b.pubsub.Subscribe(ctx, b.route.SendTopic)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %q", b.route.SendTopic)
	}
	out := make(chan Response)
	go func() {
		defer close(out)
		for msg := range msgs {
			resp, err := DecodeResponse(msg)
			msg.Ack()
			if err != nil {
				continue
			}
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Shutdown closes the pub/sub and ends all subscriptions.
func (b *Broker) Shutdown() error {
	return b.pubsub.Close()
}

var _ Transport = (*Broker)(nil)
