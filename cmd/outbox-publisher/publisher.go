package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

type topicPublisher struct {
	p *gcppubsub.Publisher
}

func newTopicPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &topicPublisher{p: p}
}

func (t *topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if t == nil || t.p == nil {
		return nil
	}
	return &topicResult{r: t.p.Publish(ctx, msg)}
}

type topicResult struct {
	r *gcppubsub.PublishResult
}

func (t *topicResult) Get(ctx context.Context) (string, error) {
	if t == nil || t.r == nil {
		return "", errors.New("publish result is nil")
	}
	return t.r.Get(ctx)
}

// cachedFactory keeps one publisher handle per topic so batching settings
// survive across poll cycles.
func cachedFactory(open func(topic string) *gcppubsub.Publisher) publisherFactory {
	handles := map[string]publisher{}
	return func(topic string) publisher {
		if p, ok := handles[topic]; ok {
			return p
		}
		p := newTopicPublisher(open(topic))
		if p != nil {
			handles[topic] = p
		}
		return p
	}
}
