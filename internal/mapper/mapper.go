// Package mapper expands an event into the wire requests the collector
// expects. It does no I/O.
//
// Fan-out rules:
//   - Purchase with k items: k "p" requests then one "oc" request.
//   - AddToCart / ProductView with k items: k "c" / "d" requests.
//   - CustomEvent and Info: exactly one request.
//   - Any items-bearing event with no items: no requests.
package mapper

import (
	"fmt"
	"strconv"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/wire"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/events"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// Extra query parameters attached to product requests.
const (
	ParamDeeplink   = "pd"
	ParamCreativeID = "attn_creative_id"
)

// Map returns the requests for ev, with every payload's phone and email
// filled from ids where unset.
func Map(ev events.Event, ids identity.UserIdentifiers) ([]wire.EventRequest, error) {
	var reqs []wire.EventRequest
	switch e := ev.(type) {
	case events.Purchase:
		reqs = mapPurchase(e)
	case *events.Purchase:
		reqs = mapPurchase(*e)
	case events.AddToCart:
		reqs = mapProducts(e.Items(), productExtras(e.Deeplink(), e.CreativeID()), newAddToCart)
	case *events.AddToCart:
		reqs = mapProducts(e.Items(), productExtras(e.Deeplink(), e.CreativeID()), newAddToCart)
	case events.ProductView:
		reqs = mapProducts(e.Items(), productExtras(e.Deeplink(), e.CreativeID()), newProductView)
	case *events.ProductView:
		reqs = mapProducts(e.Items(), productExtras(e.Deeplink(), e.CreativeID()), newProductView)
	case events.CustomEvent:
		reqs = []wire.EventRequest{mapCustom(e)}
	case *events.CustomEvent:
		reqs = []wire.EventRequest{mapCustom(*e)}
	case events.Info, *events.Info:
		reqs = []wire.EventRequest{wire.NewEventRequest(&wire.InfoMetadata{BaseMetadata: wire.NewBase()}, nil)}
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}

	for _, r := range reqs {
		r.Metadata.Base().Enrich(ids)
	}
	return reqs, nil
}

// MapIdentifiersCollected returns the single "idn" request announcing ids.
// The identifiers themselves travel in the request's "evs" parameter.
func MapIdentifiersCollected(ids identity.UserIdentifiers) wire.EventRequest {
	m := &wire.IdentifiersMetadata{BaseMetadata: wire.NewBase()}
	m.Enrich(ids)
	return wire.NewEventRequest(m, nil)
}

func mapPurchase(p events.Purchase) []wire.EventRequest {
	items := p.Items()
	if len(items) == 0 {
		return nil
	}

	prices := make([]events.Price, len(items))
	for i, it := range items {
		prices[i] = it.Price()
	}
	cartTotal := events.FormatAmount(events.SumAmounts(prices...))
	orderID := p.Order().OrderID()
	cart, hasCart := p.Cart()

	reqs := make([]wire.EventRequest, 0, len(items)+1)
	products := make(wire.Products, 0, len(items))
	for _, it := range items {
		m := &wire.PurchaseMetadata{
			ProductMetadata: productMetadata(it),
			OrderID:         orderID,
			CartTotal:       cartTotal,
		}
		if hasCart {
			m.CartID = cart.CartID
			m.CartCoupon = cart.CartCoupon
		}
		reqs = append(reqs, wire.NewEventRequest(m, nil))
		products = append(products, product(it))
	}

	oc := &wire.OrderConfirmedMetadata{
		BaseMetadata: wire.NewBase(),
		OrderID:      orderID,
		CartTotal:    cartTotal,
		Products:     products,
	}
	oc.Currency = items[0].Price().Currency()
	return append(reqs, wire.NewEventRequest(oc, nil))
}

func newAddToCart(pm wire.ProductMetadata) wire.Metadata {
	return &wire.AddToCartMetadata{ProductMetadata: pm}
}

func newProductView(pm wire.ProductMetadata) wire.Metadata {
	return &wire.ProductViewMetadata{ProductMetadata: pm}
}

func mapProducts(items []events.Item, extra map[string]string, build func(wire.ProductMetadata) wire.Metadata) []wire.EventRequest {
	if len(items) == 0 {
		return nil
	}
	reqs := make([]wire.EventRequest, 0, len(items))
	for _, it := range items {
		reqs = append(reqs, wire.NewEventRequest(build(productMetadata(it)), copyParams(extra)))
	}
	return reqs
}

func mapCustom(c events.CustomEvent) wire.EventRequest {
	return wire.NewEventRequest(&wire.CustomEventMetadata{
		BaseMetadata: wire.NewBase(),
		Type:         c.Type(),
		Properties:   wire.Properties(c.Properties()),
	}, nil)
}

func productMetadata(it events.Item) wire.ProductMetadata {
	base := wire.NewBase()
	base.Currency = it.Price().Currency()
	return wire.ProductMetadata{
		BaseMetadata: base,
		ProductID:    it.ProductID(),
		SubProductID: it.ProductVariantID(),
		Price:        events.FormatAmount(it.Price().Amount()),
		Name:         it.Name(),
		Image:        it.ProductImage(),
		Category:     it.Category(),
		Quantity:     strconv.Itoa(it.Quantity()),
	}
}

func product(it events.Item) wire.Product {
	return wire.Product{
		ProductID:    it.ProductID(),
		SubProductID: it.ProductVariantID(),
		Price:        events.FormatAmount(it.Price().Amount()),
		Currency:     it.Price().Currency(),
		Name:         it.Name(),
		Image:        it.ProductImage(),
		Category:     it.Category(),
		Quantity:     strconv.Itoa(it.Quantity()),
	}
}

func productExtras(deeplink, creativeID string) map[string]string {
	if deeplink == "" && creativeID == "" {
		return nil
	}
	extra := make(map[string]string, 2)
	if deeplink != "" {
		extra[ParamDeeplink] = deeplink
	}
	if creativeID != "" {
		extra[ParamCreativeID] = creativeID
	}
	return extra
}

func copyParams(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
