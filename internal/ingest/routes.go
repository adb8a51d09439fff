package ingest

import (
	"context"
	"encoding/json"

	"github.com/xenking/catalog-service/internal/integration"
)

// Kind names an event kind. Subjects are built as "<prefix>.<kind>".
type Kind string

const (
	KindNewProduct              Kind = "product.new"
	KindProductUpdated          Kind = "product.updated"
	KindProductDeactivated      Kind = "product.deactivated"
	KindMerchantProductsUpdated Kind = "merchant.products.updated"
	KindPromoReceived           Kind = "promo.new"
	KindPromoUpdated            Kind = "promo.updated"
	KindInventoryCreated        Kind = "inventory.created"
)

// HandleFunc decodes and applies one message body.
type HandleFunc func(ctx context.Context, data []byte) (Outcome, error)

// Route binds a subject to its handler.
type Route struct {
	Integration string
	Kind        Kind
	Subject     string
	Handle      HandleFunc
}

// Routes returns the routes of one integration.
func (h *Handlers) Routes(src integration.Integration) []Route {
	route := func(kind Kind, fn HandleFunc) Route {
		return Route{
			Integration: src.Name,
			Kind:        kind,
			Subject:     src.SubjectPrefix + "." + string(kind),
			Handle:      fn,
		}
	}
	return []Route{
		route(KindNewProduct, bind(src, h.NewProduct)),
		route(KindProductUpdated, bind(src, h.ProductUpdated)),
		route(KindProductDeactivated, bind(src, h.ProductDeactivated)),
		route(KindMerchantProductsUpdated, bind(src, h.MerchantProductsUpdated)),
		route(KindPromoReceived, func(ctx context.Context, data []byte) (Outcome, error) {
			ev, err := decode[PromoReceivedEvent](data)
			if err != nil {
				return "", err
			}
			return h.PromoReceived(ctx, src, ev, json.RawMessage(data))
		}),
		route(KindPromoUpdated, bind(src, h.PromoUpdated)),
	}
}

// InventoryRoute returns the route for inventory events, which are not
// scoped to an integration.
func (h *Handlers) InventoryRoute(subject string) Route {
	return Route{
		Kind:    KindInventoryCreated,
		Subject: subject,
		Handle: func(ctx context.Context, data []byte) (Outcome, error) {
			ev, err := decode[InventoryCreatedEvent](data)
			if err != nil {
				return "", err
			}
			return h.InventoryCreated(ctx, ev)
		},
	}
}

func bind[T any](src integration.Integration, fn func(context.Context, integration.Integration, T) (Outcome, error)) HandleFunc {
	return func(ctx context.Context, data []byte) (Outcome, error) {
		ev, err := decode[T](data)
		if err != nil {
			return "", err
		}
		return fn(ctx, src, ev)
	}
}
