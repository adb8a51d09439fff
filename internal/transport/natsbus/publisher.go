package natsbus

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/xenking/catalog-service/internal/domain/product"
)

// Outbound subjects.
const (
	SubjectProductCreated  = "product.created"
	SubjectProductsCreated = "products.created"
)

var _ product.Publisher = (*Publisher)(nil)

// Publisher announces product lifecycle events on JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// ProductCreated publishes a single created product.
func (p *Publisher) ProductCreated(ctx context.Context, ev product.CreatedEvent) error {
	return p.publish(ctx, SubjectProductCreated, ev)
}

// ProductsCreated publishes a batch of created products as one message.
func (p *Publisher) ProductsCreated(ctx context.Context, evs []product.CreatedEvent) error {
	if len(evs) == 0 {
		return nil
	}
	return p.publish(ctx, SubjectProductsCreated, evs)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", subject)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}
