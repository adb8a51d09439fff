package ingest

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

var errTransient = errors.New("connection reset")

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(noop.NewMeterProvider().Meter("test"), func(err error) bool {
		return errors.Is(err, errTransient)
	})
	require.NoError(t, err)
	return d
}

func TestDispatcher_Policy(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		outcome Outcome
		err     error
		want    Decision
	}{
		{name: "applied", outcome: Applied, want: Ack},
		{name: "duplicate", outcome: SkippedDuplicate, want: Ack},
		{name: "missing", outcome: SkippedMissing, want: Ack},
		{name: "permanent error", err: ErrInvalidEvent, want: Ack},
		{name: "transient error", err: errors.Wrap(errTransient, "insert"), want: Nak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Route{
				Kind:    KindNewProduct,
				Subject: "cola.product.new",
				Handle: func(context.Context, []byte) (Outcome, error) {
					return tt.outcome, tt.err
				},
			}
			assert.Equal(t, tt.want, d.Dispatch(ctx, r, nil))
		})
	}
}

func TestRoutes(t *testing.T) {
	h, store, _ := newHandlers(t)
	d := newDispatcher(t)
	ctx := context.Background()

	routes := h.Routes(cola)
	bySubject := make(map[string]Route, len(routes))
	for _, r := range routes {
		bySubject[r.Subject] = r
	}
	for _, kind := range []Kind{
		KindNewProduct, KindProductUpdated, KindProductDeactivated,
		KindMerchantProductsUpdated, KindPromoReceived, KindPromoUpdated,
	} {
		assert.Contains(t, bySubject, "cola."+string(kind))
	}

	newProduct := bySubject["cola.product.new"]
	assert.Equal(t, Ack, d.Dispatch(ctx, newProduct, []byte(`{"productId":"4402","productName":"Fanta","incase":12}`)))
	assert.Equal(t, Ack, d.Dispatch(ctx, newProduct, []byte(`{not json`)), "malformed payloads are dropped")
	findProduct(t, store, "4402")

	promoRoute := bySubject["cola.promo.new"]
	assert.Equal(t, Ack, d.Dispatch(ctx, promoRoute, []byte(`{
		"name":"Gift","startDate":"2025-01-01T00:00:00Z","endDate":"2025-02-01T00:00:00Z",
		"thresholdQuantity":"3","promoPercent":0,"giftQuantity":1,"isActive":true,
		"tradeshops":[1],"products":["p1"],"thirdPartyPromoId":991,"thirdPartyPromoTypeCode":"x+y"
	}`)))
	list, err := store.Repositories().Promos.ListByProduct(ctx, tenantCola, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "991", list[0].External.ExternalPromoID)

	inv := h.InventoryRoute("inventory.created")
	assert.Equal(t, KindInventoryCreated, inv.Kind)
	assert.Equal(t, Ack, d.Dispatch(ctx, inv, []byte(`{"id":"i1","productId":"ghost"}`)))
}

func TestFlexString(t *testing.T) {
	for in, want := range map[string]string{`"abc"`: "abc", `123`: "123", `null`: ""} {
		var s FlexString
		require.NoError(t, s.UnmarshalJSON([]byte(in)))
		assert.Equal(t, want, string(s))
	}
	var s FlexString
	assert.Error(t, s.UnmarshalJSON([]byte(`{}`)))
}
