// Package wire defines the collector's request shapes: the event type
// abbreviations, the per-type metadata payloads carried in the "m" query
// parameter, and the JSON codec for them.
package wire

import (
	"fmt"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// EventType is the collector's abbreviation for an event, sent as "t".
type EventType string

const (
	TypePurchase             EventType = "p"
	TypeOrderConfirmed       EventType = "oc"
	TypeAddToCart            EventType = "c"
	TypeProductView          EventType = "d"
	TypeIdentifiersCollected EventType = "idn"
	TypeCustomEvent          EventType = "ce"
	TypeInfo                 EventType = "i"
)

// Valid reports whether t is a known abbreviation.
func (t EventType) Valid() bool {
	switch t {
	case TypePurchase, TypeOrderConfirmed, TypeAddToCart, TypeProductView,
		TypeIdentifiersCollected, TypeCustomEvent, TypeInfo:
		return true
	}
	return false
}

// Source identifies the mobile SDK as the origin of a request.
const Source = "msdk"

// Metadata is the payload of one request. Each event type has its own shape;
// all of them embed BaseMetadata.
type Metadata interface {
	EventType() EventType
	Base() *BaseMetadata
}

// BaseMetadata holds the fields common to every payload.
type BaseMetadata struct {
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Source   string `json:"source"`
	Currency string `json:"currency,omitempty"`
}

// NewBase returns a BaseMetadata with the SDK source set.
func NewBase() BaseMetadata { return BaseMetadata{Source: Source} }

// Base returns b itself so embedding types satisfy Metadata.
func (b *BaseMetadata) Base() *BaseMetadata { return b }

// Enrich fills phone and email from ids where they are not already set.
func (b *BaseMetadata) Enrich(ids identity.UserIdentifiers) {
	if b.Phone == "" {
		b.Phone = ids.Phone()
	}
	if b.Email == "" {
		b.Email = ids.Email()
	}
}

// ProductMetadata is the per-item payload shared by purchase, add-to-cart
// and product-view requests.
type ProductMetadata struct {
	BaseMetadata
	ProductID    string `json:"productId,omitempty"`
	SubProductID string `json:"subProductId,omitempty"`
	Price        string `json:"price,omitempty"`
	Name         string `json:"name,omitempty"`
	Image        string `json:"image,omitempty"`
	Category     string `json:"category,omitempty"`
	Quantity     string `json:"quantity,omitempty"`
}

// PurchaseMetadata is the payload of a "p" request: one purchased item plus
// the order-wide fields.
type PurchaseMetadata struct {
	ProductMetadata
	OrderID    string `json:"orderId"`
	CartTotal  string `json:"cartTotal"`
	CartID     string `json:"cartId,omitempty"`
	CartCoupon string `json:"cartCoupon,omitempty"`
}

func (*PurchaseMetadata) EventType() EventType { return TypePurchase }

// AddToCartMetadata is the payload of a "c" request.
type AddToCartMetadata struct {
	ProductMetadata
}

func (*AddToCartMetadata) EventType() EventType { return TypeAddToCart }

// ProductViewMetadata is the payload of a "d" request.
type ProductViewMetadata struct {
	ProductMetadata
}

func (*ProductViewMetadata) EventType() EventType { return TypeProductView }

// Product is one entry of an order-confirmed products list.
type Product struct {
	ProductID    string `json:"productId"`
	SubProductID string `json:"subProductId"`
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	Name         string `json:"name,omitempty"`
	Image        string `json:"image,omitempty"`
	Category     string `json:"category,omitempty"`
	Quantity     string `json:"quantity"`
}

// OrderConfirmedMetadata is the payload of the single "oc" request that
// closes a purchase.
type OrderConfirmedMetadata struct {
	BaseMetadata
	OrderID   string   `json:"orderId"`
	CartTotal string   `json:"cartTotal"`
	Products  Products `json:"products"`
}

func (*OrderConfirmedMetadata) EventType() EventType { return TypeOrderConfirmed }

// CustomEventMetadata is the payload of a "ce" request.
type CustomEventMetadata struct {
	BaseMetadata
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
}

func (*CustomEventMetadata) EventType() EventType { return TypeCustomEvent }

// IdentifiersMetadata is the payload of an "idn" request. The identifiers
// themselves travel in "evs".
type IdentifiersMetadata struct {
	BaseMetadata
}

func (*IdentifiersMetadata) EventType() EventType { return TypeIdentifiersCollected }

// InfoMetadata is the payload of an "i" ping.
type InfoMetadata struct {
	BaseMetadata
}

func (*InfoMetadata) EventType() EventType { return TypeInfo }

// NewMetadata returns an empty payload of the shape used by t.
func NewMetadata(t EventType) (Metadata, error) {
	base := NewBase()
	switch t {
	case TypePurchase:
		return &PurchaseMetadata{ProductMetadata: ProductMetadata{BaseMetadata: base}}, nil
	case TypeOrderConfirmed:
		return &OrderConfirmedMetadata{BaseMetadata: base}, nil
	case TypeAddToCart:
		return &AddToCartMetadata{ProductMetadata{BaseMetadata: base}}, nil
	case TypeProductView:
		return &ProductViewMetadata{ProductMetadata{BaseMetadata: base}}, nil
	case TypeIdentifiersCollected:
		return &IdentifiersMetadata{BaseMetadata: base}, nil
	case TypeCustomEvent:
		return &CustomEventMetadata{BaseMetadata: base}, nil
	case TypeInfo:
		return &InfoMetadata{BaseMetadata: base}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", string(t))
}

// EventRequest is one outbound call: a type, its payload, and any extra query
// parameters beyond the fixed set.
type EventRequest struct {
	Type        EventType
	Metadata    Metadata
	ExtraParams map[string]string
}

// NewEventRequest wraps m, taking the type from the payload.
func NewEventRequest(m Metadata, extra map[string]string) EventRequest {
	return EventRequest{Type: m.EventType(), Metadata: m, ExtraParams: extra}
}
