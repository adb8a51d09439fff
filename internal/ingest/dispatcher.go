package ingest

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Decision tells the transport what to do with a delivered message.
type Decision int

const (
	// Ack removes the message from the stream.
	Ack Decision = iota
	// Nak requests redelivery.
	Nak
)

func (d Decision) String() string {
	if d == Nak {
		return "nak"
	}
	return "ack"
}

const (
	outcomeRejected = "rejected"
	outcomeRetry    = "retry"
)

// Dispatcher runs routes and applies the delivery policy: transient
// failures are redelivered, everything else is acknowledged.
type Dispatcher struct {
	isTransient func(error) bool
	events      metric.Int64Counter
}

// NewDispatcher creates a Dispatcher. isTransient classifies infrastructure
// errors worth a redelivery.
func NewDispatcher(meter metric.Meter, isTransient func(error) bool) (*Dispatcher, error) {
	events, err := meter.Int64Counter("catalog.ingest.events",
		metric.WithDescription("Ingested catalog events by kind and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create events counter")
	}
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	return &Dispatcher{isTransient: isTransient, events: events}, nil
}

// Dispatch applies data through r and returns the delivery decision.
func (d *Dispatcher) Dispatch(ctx context.Context, r Route, data []byte) Decision {
	lg := zctx.From(ctx).With(
		zap.String("integration", r.Integration),
		zap.String("kind", string(r.Kind)),
		zap.String("subject", r.Subject),
	)

	outcome, err := r.Handle(zctx.Base(ctx, lg), data)
	if err != nil {
		if d.isTransient(err) {
			lg.Warn("Event failed, requesting redelivery", zap.Error(err))
			d.count(ctx, r.Kind, outcomeRetry)
			return Nak
		}
		lg.Error("Event rejected", zap.Error(err))
		d.count(ctx, r.Kind, outcomeRejected)
		return Ack
	}

	if outcome == Applied {
		lg.Debug("Event applied")
	} else {
		lg.Info("Event skipped", zap.String("outcome", string(outcome)))
	}
	d.count(ctx, r.Kind, string(outcome))
	return Ack
}

func (d *Dispatcher) count(ctx context.Context, kind Kind, outcome string) {
	d.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	))
}
