// Package natsbus moves catalog events over NATS JetStream.
package natsbus

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Config configures the JetStream connection.
type Config struct {
	URL     string `default:"nats://localhost:4222" usage:"NATS server URL"`
	Stream  string `default:"CATALOG_INGEST" usage:"JetStream stream holding upstream events"`
	Durable string `default:"catalog-service" usage:"Durable consumer name prefix"`
	Enabled bool   `default:"true" usage:"Consume upstream events"`
	// EventsStream holds the product events the service publishes.
	EventsStream string `default:"CATALOG_EVENTS"`
	// ManageStreams creates or updates streams on start.
	ManageStreams bool          `default:"true"`
	AckWait       time.Duration `default:"30s"`
	// MaxDeliver bounds redeliveries; -1 retries until the event applies.
	// Only transient failures are redelivered.
	MaxDeliver int `default:"-1"`
	// RetryBase is the delay before the first redelivery. It doubles on
	// every attempt up to RetryMax.
	RetryBase time.Duration `default:"1s"`
	RetryMax  time.Duration `default:"5m"`
}

// Connect dials NATS with unlimited reconnects and opens a JetStream
// context.
func Connect(cfg Config, name string, lg *zap.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			lg.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			lg.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			lg.Error("NATS async error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect nats")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, errors.Wrap(err, "jetstream")
	}
	return nc, js, nil
}

// EnsureStream creates or updates stream to capture subjects.
func EnsureStream(ctx context.Context, js jetstream.JetStream, stream string, subjects []string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return errors.Wrapf(err, "ensure stream %s", stream)
	}
	return nil
}

// durableName derives a consumer name from a subject. Consumer names may
// not contain dots or wildcards.
func durableName(prefix, subject string) string {
	r := strings.NewReplacer(".", "_", "*", "any", ">", "all")
	return prefix + "-" + r.Replace(subject)
}
