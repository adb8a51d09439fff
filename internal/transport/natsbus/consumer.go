package natsbus

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalog-service/internal/ingest"
)

// Dispatcher decides the fate of one delivered message.
type Dispatcher interface {
	Dispatch(ctx context.Context, r ingest.Route, data []byte) ingest.Decision
}

// Consumer feeds JetStream messages to ingest routes, one durable consumer
// per route.
type Consumer struct {
	js         jetstream.JetStream
	cfg        Config
	dispatcher Dispatcher
	lg         *zap.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(js jetstream.JetStream, cfg Config, dispatcher Dispatcher, lg *zap.Logger) *Consumer {
	return &Consumer{js: js, cfg: cfg, dispatcher: dispatcher, lg: lg}
}

// Run consumes every route until ctx is done. Routes are processed
// concurrently; messages of one route are applied in delivery order.
func (c *Consumer) Run(ctx context.Context, routes []ingest.Route) error {
	if len(routes) == 0 {
		return nil
	}
	if c.cfg.ManageStreams {
		subjects := make([]string, 0, len(routes))
		for _, r := range routes {
			subjects = append(subjects, r.Subject)
		}
		if err := EnsureStream(ctx, c.js, c.cfg.Stream, subjects); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range routes {
		g.Go(func() error {
			return c.consume(gctx, r)
		})
	}
	return g.Wait()
}

func (c *Consumer) consume(ctx context.Context, r ingest.Route) error {
	lg := c.lg.With(zap.String("subject", r.Subject))

	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       durableName(c.cfg.Durable, r.Subject),
		FilterSubject: r.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return errors.Wrapf(err, "create consumer for %s", r.Subject)
	}

	it, err := cons.Messages()
	if err != nil {
		return errors.Wrapf(err, "messages of %s", r.Subject)
	}
	go func() {
		<-ctx.Done()
		it.Stop()
	}()

	lg.Info("Consuming")
	for {
		msg, err := it.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return nil
			}
			lg.Warn("Next message", zap.Error(err))
			continue
		}

		// In-flight events finish even after shutdown starts.
		if err := c.handle(context.WithoutCancel(ctx), r, msg); err != nil {
			lg.Warn("Acknowledge message", zap.Error(err))
		}
	}
}

// handle dispatches msg and settles it. A nak asks for redelivery after
// retryDelay so an outage does not burn through redeliveries.
func (c *Consumer) handle(ctx context.Context, r ingest.Route, msg jetstream.Msg) error {
	if c.dispatcher.Dispatch(ctx, r, msg.Data()) != ingest.Nak {
		return msg.Ack()
	}
	var delivered uint64 = 1
	if md, err := msg.Metadata(); err == nil {
		delivered = md.NumDelivered
	}
	return msg.NakWithDelay(c.retryDelay(delivered))
}

// retryDelay is RetryBase doubled per previous delivery, capped at RetryMax.
func (c *Consumer) retryDelay(delivered uint64) time.Duration {
	base, limit := c.cfg.RetryBase, c.cfg.RetryMax
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = 5 * time.Minute
	}
	d := base
	for i := uint64(1); i < delivered && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}
