package sink

import (
	"context"
	"strings"

	_ "github.com/pitabwire/natspubsub" // registers the nats:// topic driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub" // registers the mem:// topic driver
)

const metadataKey = "key"

// TopicWriter publishes each record as a pubsub message.
type TopicWriter struct {
	url   string
	topic *pubsub.Topic
}

// OpenTopicWriter opens the topic at url, for example mem://results or
// nats://localhost:4222?subject=results.
func OpenTopicWriter(ctx context.Context, url string) (*TopicWriter, error) {
	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, err
	}
	return &TopicWriter{url: url, topic: topic}, nil
}

func (w *TopicWriter) Write(ctx context.Context, key string, payload []byte) error {
	metadata := propagation.MapCarrier{metadataKey: key}
	otel.GetTextMapPropagator().Inject(ctx, metadata)

	return w.topic.Send(ctx, &pubsub.Message{
		Body:     payload,
		Metadata: metadata,
	})
}

func (w *TopicWriter) Close(ctx context.Context) error {
	// mem:// topics are process wide and shared by url; shutting one down
	// breaks later users of the same url.
	if strings.HasPrefix(strings.ToLower(w.url), "mem://") {
		return nil
	}
	return w.topic.Shutdown(ctx)
}
