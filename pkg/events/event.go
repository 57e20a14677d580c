package events

import (
	"fmt"
	"sort"
	"strings"
)

// Event is the closed set of events the SDK can record: Purchase, AddToCart,
// ProductView, CustomEvent and Info.
type Event interface {
	// Name is a short label used in logs.
	Name() string
	isEvent()
}

// Purchase records a completed order.
type Purchase struct {
	items []Item
	order Order
	cart  *Cart
}

// NewPurchase builds a Purchase. order must come from NewOrder; cart may be nil.
// An empty item list is accepted and results in nothing being sent.
func NewPurchase(items []Item, order Order, cart *Cart) (Purchase, error) {
	if order.orderID == "" {
		return Purchase{}, &ValidationError{Field: "order", Message: "required"}
	}
	if err := checkItems(items); err != nil {
		return Purchase{}, err
	}
	p := Purchase{items: copyItems(items), order: order}
	if cart != nil {
		c := *cart
		p.cart = &c
	}
	return p, nil
}

func (Purchase) Name() string { return "purchase" }
func (Purchase) isEvent()     {}

// Items returns a copy of the purchased items.
func (p Purchase) Items() []Item { return copyItems(p.items) }

// Order returns the order.
func (p Purchase) Order() Order { return p.order }

// Cart returns the cart details, if any were supplied.
func (p Purchase) Cart() (Cart, bool) {
	if p.cart == nil {
		return Cart{}, false
	}
	return *p.cart, true
}

// ProductEventOption sets an optional field on AddToCart or ProductView.
type ProductEventOption func(*productEvent)

// WithDeeplink records the deeplink the product was reached through.
func WithDeeplink(url string) ProductEventOption {
	return func(e *productEvent) { e.deeplink = url }
}

// WithCreativeID records the creative that led to the event.
func WithCreativeID(id string) ProductEventOption {
	return func(e *productEvent) { e.creativeID = id }
}

type productEvent struct {
	items      []Item
	deeplink   string
	creativeID string
}

func newProductEvent(items []Item, opts []ProductEventOption) (productEvent, error) {
	if err := checkItems(items); err != nil {
		return productEvent{}, err
	}
	e := productEvent{items: copyItems(items)}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// Items returns a copy of the event's items.
func (e productEvent) Items() []Item { return copyItems(e.items) }

// Deeplink returns the deeplink, or "".
func (e productEvent) Deeplink() string { return e.deeplink }

// CreativeID returns the creative id, or "".
func (e productEvent) CreativeID() string { return e.creativeID }

// AddToCart records items added to the cart.
type AddToCart struct{ productEvent }

// NewAddToCart builds an AddToCart event.
func NewAddToCart(items []Item, opts ...ProductEventOption) (AddToCart, error) {
	pe, err := newProductEvent(items, opts)
	if err != nil {
		return AddToCart{}, err
	}
	return AddToCart{pe}, nil
}

func (AddToCart) Name() string { return "add_to_cart" }
func (AddToCart) isEvent()     {}

// ProductView records items being viewed.
type ProductView struct{ productEvent }

// NewProductView builds a ProductView event.
func NewProductView(items []Item, opts ...ProductEventOption) (ProductView, error) {
	pe, err := newProductEvent(items, opts)
	if err != nil {
		return ProductView{}, err
	}
	return ProductView{pe}, nil
}

func (ProductView) Name() string { return "product_view" }
func (ProductView) isEvent()     {}

// invalidCustomChars may not appear in a custom event type or property key.
const invalidCustomChars = `"'(){}[]\|`

// CustomEvent is an app-defined event with free-form string properties.
type CustomEvent struct {
	eventType  string
	properties map[string]string
}

// NewCustomEvent builds a CustomEvent. The type must be non-blank and neither
// the type nor any property key may contain any of "'(){}[]\|.
func NewCustomEvent(eventType string, properties map[string]string) (CustomEvent, error) {
	if err := requireNonEmpty("type", eventType); err != nil {
		return CustomEvent{}, err
	}
	if bad := invalidChars(eventType); bad != "" {
		return CustomEvent{}, &ValidationError{Field: "type", Message: fmt.Sprintf("contains invalid characters %q", bad)}
	}

	props := make(map[string]string, len(properties))
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if bad := invalidChars(k); bad != "" {
			return CustomEvent{}, &ValidationError{Field: "properties", Message: fmt.Sprintf("key %q contains invalid characters %q", k, bad)}
		}
		props[k] = properties[k]
	}
	return CustomEvent{eventType: eventType, properties: props}, nil
}

func (CustomEvent) Name() string { return "custom" }
func (CustomEvent) isEvent()     {}

// Type returns the custom event type.
func (c CustomEvent) Type() string { return c.eventType }

// Properties returns a copy of the properties.
func (c CustomEvent) Properties() map[string]string {
	out := make(map[string]string, len(c.properties))
	for k, v := range c.properties {
		out[k] = v
	}
	return out
}

// Info is the SDK's own ping, sent on initialization and on domain change.
type Info struct{}

func (Info) Name() string { return "info" }
func (Info) isEvent()     {}

func invalidChars(s string) string {
	var found []rune
	for _, r := range invalidCustomChars {
		if strings.ContainsRune(s, r) {
			found = append(found, r)
		}
	}
	return string(found)
}

func checkItems(items []Item) error {
	for i, it := range items {
		if it.productID == "" || it.productVariantID == "" || it.price.IsZero() {
			return &ValidationError{Field: fmt.Sprintf("items[%d]", i), Message: "must be built with NewItem"}
		}
	}
	return nil
}

func copyItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
