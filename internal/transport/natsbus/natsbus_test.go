package natsbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/ingest"
)

type fakeJS struct {
	jetstream.JetStream
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeJS) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return &jetstream.PubAck{Stream: "CATALOG_EVENTS"}, nil
}

func TestDurableName(t *testing.T) {
	assert.Equal(t, "catalog-cola_product_new", durableName("catalog", "cola.product.new"))
	assert.Equal(t, "catalog-inventory_all", durableName("catalog", "inventory.>"))
}

func TestPublisher(t *testing.T) {
	js := &fakeJS{}
	pub := NewPublisher(js)
	ctx := context.Background()

	ev := product.NewCreatedEvent(&product.Product{ID: "p1", TenantID: "t1", Name: "Fanta"})
	require.NoError(t, pub.ProductCreated(ctx, ev))
	require.NoError(t, pub.ProductsCreated(ctx, []product.CreatedEvent{ev, ev}))
	require.NoError(t, pub.ProductsCreated(ctx, nil))

	assert.Equal(t, []string{SubjectProductCreated, SubjectProductsCreated}, js.subjects)

	var single map[string]any
	require.NoError(t, json.Unmarshal(js.payloads[0], &single))
	assert.Equal(t, "p1", single["id"])
	assert.Equal(t, "t1", single["customerId"])
	assert.Equal(t, []any{}, single["prices"])

	var batch []map[string]any
	require.NoError(t, json.Unmarshal(js.payloads[1], &batch))
	assert.Len(t, batch, 2)

	js.err = errors.New("no responders")
	assert.Error(t, pub.ProductCreated(ctx, ev))
}

type fakeMsg struct {
	jetstream.Msg
	delivered uint64
	mdErr     error

	acked bool
	naked bool
	delay time.Duration
}

func (m *fakeMsg) Data() []byte { return []byte(`{}`) }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	if m.mdErr != nil {
		return nil, m.mdErr
	}
	return &jetstream.MsgMetadata{NumDelivered: m.delivered}, nil
}

func (m *fakeMsg) Ack() error {
	m.acked = true
	return nil
}

func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.naked = true
	m.delay = d
	return nil
}

type fixedDecision ingest.Decision

func (d fixedDecision) Dispatch(context.Context, ingest.Route, []byte) ingest.Decision {
	return ingest.Decision(d)
}

func TestConsumer_Handle(t *testing.T) {
	cfg := Config{RetryBase: time.Second, RetryMax: 10 * time.Second}

	tests := []struct {
		name     string
		decision ingest.Decision
		msg      *fakeMsg
		acked    bool
		delay    time.Duration
	}{
		{"Ack", ingest.Ack, &fakeMsg{delivered: 1}, true, 0},
		{"FirstRetry", ingest.Nak, &fakeMsg{delivered: 1}, false, time.Second},
		{"ThirdRetry", ingest.Nak, &fakeMsg{delivered: 3}, false, 4 * time.Second},
		{"Capped", ingest.Nak, &fakeMsg{delivered: 40}, false, 10 * time.Second},
		{"NoMetadata", ingest.Nak, &fakeMsg{mdErr: errors.New("not a jetstream message")}, false, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(nil, cfg, fixedDecision(tt.decision), nil)
			require.NoError(t, c.handle(context.Background(), ingest.Route{Subject: "cola.product.new"}, tt.msg))

			assert.Equal(t, tt.acked, tt.msg.acked)
			assert.Equal(t, !tt.acked, tt.msg.naked)
			assert.Equal(t, tt.delay, tt.msg.delay)
		})
	}
}

func TestConsumer_RetryDelayDefaults(t *testing.T) {
	c := NewConsumer(nil, Config{}, nil, nil)
	assert.Equal(t, time.Second, c.retryDelay(1))
	assert.Equal(t, 2*time.Second, c.retryDelay(2))
	assert.Equal(t, 5*time.Minute, c.retryDelay(1000))
}
