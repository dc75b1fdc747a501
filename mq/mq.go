// Package mq moves kernel CI reports through Google Pub/Sub message
// queues. A Publisher submits interchange data to a topic, one report
// per message; a Subscriber receives reports from a subscription,
// validated and upgraded to the latest interchange schema, dropping
// messages that do not decode.
package mq

import (
	"context"
	"encoding/json"
	"os"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/go/kclog"
	"go.kernelci.org/kcidb/ioschema"
)

// heavyAsserts enables validation of outgoing reports, for debugging.
var heavyAsserts = os.Getenv("KCIDB_HEAVY_ASSERTS") != ""

// Publisher publishes interchange reports to a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPublisher creates a publisher for the named topic in the given
// Google Cloud project. The topic is not required to exist yet; Init
// creates it.
func NewPublisher(ctx context.Context, project, topic string, opts ...option.ClientOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, kcerr.Wrapf(err, "creating Pub/Sub client for project %q", project)
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(topic),
	}, nil
}

// Init creates the publishing topic. The topic must not exist yet.
func (p *Publisher) Init(ctx context.Context) error {
	topic, err := p.client.CreateTopic(ctx, p.topic.ID())
	if err != nil {
		return kcerr.Wrapf(err, "creating topic %q", p.topic.ID())
	}
	p.topic = topic
	return nil
}

// Cleanup removes the publishing topic.
func (p *Publisher) Cleanup(ctx context.Context) error {
	if err := p.topic.Delete(ctx); err != nil {
		return kcerr.Wrapf(err, "deleting topic %q", p.topic.ID())
	}
	return nil
}

// Publish submits one interchange report to the topic and returns its
// server-assigned publishing ID. The data must adhere to the latest
// interchange schema.
func (p *Publisher) Publish(ctx context.Context, data map[string]any) (string, error) {
	result, err := p.submit(ctx, data)
	if err != nil {
		return "", err
	}
	id, err := result.Get(ctx)
	if err != nil {
		return "", kcerr.Wrapf(err, "publishing to topic %q", p.topic.ID())
	}
	return id, nil
}

// PublishIter submits every report produced by next, which returns nil
// at the end of the sequence. The client batches submissions; done, if
// not nil, is called with each report's publishing ID, in submission
// order, as results come back.
func (p *Publisher) PublishIter(ctx context.Context, next func() (map[string]any, error), done func(id string)) error {
	var results []*pubsub.PublishResult
	submitErr := func() error {
		for {
			data, err := next()
			if err != nil {
				return err
			}
			if data == nil {
				return nil
			}
			result, err := p.submit(ctx, data)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
	}()
	// Collect results even when submission stopped early, so IDs of
	// reports already in flight still reach the caller.
	for _, result := range results {
		id, err := result.Get(ctx)
		if err != nil {
			return kcerr.Wrapf(err, "publishing to topic %q", p.topic.ID())
		}
		if done != nil {
			done(id)
		}
	}
	return submitErr
}

// submit queues one report for publishing.
func (p *Publisher) submit(ctx context.Context, data map[string]any) (*pubsub.PublishResult, error) {
	if heavyAsserts {
		if err := ioschema.Latest.ValidateExactly(data); err != nil {
			return nil, err
		}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, kcerr.Wrapf(err, "encoding report for publishing")
	}
	return p.topic.Publish(ctx, &pubsub.Message{Data: encoded}), nil
}

// Close releases the resources of the publisher, waiting for queued
// messages to go out.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Subscriber receives interchange reports from a Pub/Sub subscription.
type Subscriber struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
}

// NewSubscriber creates a subscriber for the named subscription to the
// given topic. The subscription is not required to exist yet; Init
// creates it.
func NewSubscriber(ctx context.Context, project, topic, subscription string, opts ...option.ClientOption) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, kcerr.Wrapf(err, "creating Pub/Sub client for project %q", project)
	}
	return &Subscriber{
		client: client,
		topic:  client.Topic(topic),
		sub:    client.Subscription(subscription),
	}, nil
}

// Init creates the subscription on the topic. The topic must exist
// already and the subscription must not.
func (s *Subscriber) Init(ctx context.Context) error {
	sub, err := s.client.CreateSubscription(ctx, s.sub.ID(), pubsub.SubscriptionConfig{
		Topic: s.topic,
	})
	if err != nil {
		return kcerr.Wrapf(err, "creating subscription %q to topic %q",
			s.sub.ID(), s.topic.ID())
	}
	s.sub = sub
	return nil
}

// Cleanup removes the subscription.
func (s *Subscriber) Cleanup(ctx context.Context) error {
	if err := s.sub.Delete(ctx); err != nil {
		return kcerr.Wrapf(err, "deleting subscription %q", s.sub.ID())
	}
	return nil
}

// Receive pulls messages from the subscription until ctx is cancelled,
// decoding each into a report adhering to the latest interchange
// schema and handing it to handler, one at a time. Reports the handler
// accepts are acknowledged; reports it fails on are returned to the
// queue for redelivery. Messages that do not decode or validate are
// logged, acknowledged and dropped, so one bad submission cannot wedge
// the queue.
func (s *Subscriber) Receive(ctx context.Context, handler func(ctx context.Context, data map[string]any) error) error {
	// Reports are handled strictly one at a time: the usual consumer
	// loads them into a database client, which callers must not hit
	// concurrently.
	s.sub.ReceiveSettings.NumGoroutines = 1
	s.sub.ReceiveSettings.MaxOutstandingMessages = 1
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		data, err := decode(msg.Data)
		if err != nil {
			kclog.Errorf("Failed decoding, dropping message %q: %s", msg.ID, err)
			msg.Ack()
			return
		}
		if err := handler(ctx, data); err != nil {
			kclog.Errorf("Failed handling message %q, returning it to the queue: %s",
				msg.ID, err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return kcerr.Wrapf(err, "receiving from subscription %q", s.sub.ID())
	}
	return nil
}

// PullOne receives a single report from the subscription, blocking
// until one arrives that decodes or ctx is cancelled. The report is
// acknowledged before being returned.
func (s *Subscriber) PullOne(ctx context.Context) (map[string]any, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var data map[string]any
	err := s.Receive(cctx, func(_ context.Context, report map[string]any) error {
		data = report
		cancel()
		return nil
	})
	if data != nil {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ctx.Err()
}

// Close releases the resources of the subscriber.
func (s *Subscriber) Close() error {
	return s.client.Close()
}

// decode turns message data into a report adhering to the latest
// interchange schema, upgrading older-schema submissions.
func decode(messageData []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(messageData, &data); err != nil {
		return nil, kcerr.Wrapf(err, "decoding message data")
	}
	if err := ioschema.Latest.Validate(data); err != nil {
		return nil, err
	}
	return ioschema.Latest.Upgrade(data)
}
