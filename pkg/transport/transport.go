// Package transport is the pub/sub boundary between the conversation engine
// and whatever broker carries requests and responses. Inbound messages
// arrive on a route's recv topic, outbound responses are published on its
// send topic; the wire format is JSON envelopes.
package transport

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"

	"github.com/peak-dev/Tir/pkg/web"
)

// Transport is what the dispatch loop consumes. Receive blocks until the
// next inbound request; Send and Close are the outbound half and satisfy
// web.Sender.
type Transport interface {
	Receive(ctx context.Context) (*web.Request, error)
	Send(connID string, status int, statusText string, headers map[string]string, body []byte) error
	Close(connID string) error
	Shutdown() error
}

// ErrShutdown reports a Receive on a transport whose inbound stream ended.
var ErrShutdown = errors.New("transport shut down")

// Response is the outbound wire envelope.
type Response struct {
	ConnID     string            `json:"conn_id"`
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`
	// Kind is "reply" for a normal response and "close" for a connection
	// termination order.
	Kind string `json:"kind"`
}

const (
	responseReply = "reply"
	responseClose = "close"
)

// EncodeRequest marshals a request into a broker message.
func EncodeRequest(req *web.Request) (*message.Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	return message.NewMessage(watermill.NewUUID(), payload), nil
}

// DecodeRequest unmarshals a broker message into a request, lower-casing
// header keys and defaulting the message kind to data.
func DecodeRequest(msg *message.Message) (*web.Request, error) {
	var req web.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, errors.Wrap(err, "decode request")
	}
	if req.Kind == "" {
		req.Kind = web.KindData
	}
	if len(req.Headers) > 0 {
		headers := make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			headers[strings.ToLower(k)] = v
		}
		req.Headers = headers
	}
	return &req, nil
}

func encodeResponse(resp Response) (*message.Message, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "encode response")
	}
	return message.NewMessage(watermill.NewUUID(), payload), nil
}

// DecodeResponse unmarshals an outbound envelope; used by clients and tests.
func DecodeResponse(msg *message.Message) (Response, error) {
	var resp Response
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return Response{}, errors.Wrap(err, "decode response")
	}
	return resp, nil
}

// pubsubTransport implements Transport over any watermill publisher and
// subscriber pair; the concrete brokers only differ in construction.
type pubsubTransport struct {
	route    Route
	pub      message.Publisher
	sub      message.Subscriber
	requests <-chan *message.Message
}

func (t *pubsubTransport) Receive(ctx context.Context) (*web.Request, error) {
	if t.requests == nil {
		ch, err := t.sub.Subscribe(ctx, t.route.RecvTopic)
		if err != nil {
			return nil, errors.Wrapf(err, "subscribe %q", t.route.RecvTopic)
		}
		t.requests = ch
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-t.requests:
		if !ok {
			return nil, ErrShutdown
		}
		req, err := DecodeRequest(msg)
		msg.Ack()
		if err != nil {
			return nil, err
		}
		return req, nil
	}
}

func (t *pubsubTransport) Send(connID string, status int, statusText string, headers map[string]string, body []byte) error {
	return t.publish(Response{
		ConnID:     connID,
		Status:     status,
		StatusText: statusText,
		Headers:    headers,
		Body:       body,
		Kind:       responseReply,
	})
}

func (t *pubsubTransport) Close(connID string) error {
	return t.publish(Response{ConnID: connID, Kind: responseClose})
}

func (t *pubsubTransport) publish(resp Response) error {
	msg, err := encodeResponse(resp)
	if err != nil {
		return err
	}
	return errors.Wrapf(t.pub.Publish(t.route.SendTopic, msg), "publish %q", t.route.SendTopic)
}
