package wire

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

func TestEventTypeValid(t *testing.T) {
	for _, typ := range []EventType{"p", "oc", "c", "d", "idn", "ce", "i"} {
		if !typ.Valid() {
			t.Errorf("expected %q to be valid", typ)
		}
	}
	if EventType("x").Valid() {
		t.Error("expected x to be invalid")
	}
}

func TestNewMetadataShapes(t *testing.T) {
	for _, typ := range []EventType{TypePurchase, TypeOrderConfirmed, TypeAddToCart, TypeProductView, TypeIdentifiersCollected, TypeCustomEvent, TypeInfo} {
		m, err := NewMetadata(typ)
		if err != nil {
			t.Fatalf("NewMetadata(%s): %v", typ, err)
		}
		if m.EventType() != typ {
			t.Errorf("NewMetadata(%s) produced %s", typ, m.EventType())
		}
		if m.Base().Source != Source {
			t.Errorf("NewMetadata(%s): expected source %s, got %q", typ, Source, m.Base().Source)
		}
	}
	if _, err := NewMetadata("zz"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestEnrichKeepsExistingValues(t *testing.T) {
	ids := identity.New(identity.WithPhone("+1555"), identity.WithEmail("id@example.com"))

	b := NewBase()
	b.Email = "set@example.com"
	b.Enrich(ids)

	if b.Email != "set@example.com" {
		t.Errorf("expected existing email kept, got %s", b.Email)
	}
	if b.Phone != "+1555" {
		t.Errorf("expected phone filled, got %s", b.Phone)
	}
}

// ---------------------------------------------------------------------------
// Double-encoded fields
// ---------------------------------------------------------------------------

func TestOrderConfirmedProductsIsStringEncoded(t *testing.T) {
	m := &OrderConfirmedMetadata{
		BaseMetadata: BaseMetadata{Source: Source, Currency: "USD"},
		OrderID:      "5555",
		CartTotal:    "15.99",
		Products: Products{{
			ProductID: "p1", SubProductID: "v1", Price: "15.99", Currency: "USD", Quantity: "1",
		}},
	}

	got, err := EncodeMetadata(m)
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}
	want := `{"source":"msdk","currency":"USD","orderId":"5555","cartTotal":"15.99",` +
		`"products":"[{\"productId\":\"p1\",\"subProductId\":\"v1\",\"price\":\"15.99\",\"currency\":\"USD\",\"quantity\":\"1\"}]"}`
	if got != want {
		t.Errorf("unexpected encoding\nwant: %s\ngot:  %s", want, got)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(got), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["products"].(string); !ok {
		t.Errorf("expected products to be a JSON string, got %T", raw["products"])
	}
}

func TestEmptyProductsEncodesEmptyArrayString(t *testing.T) {
	got, err := EncodeMetadata(&OrderConfirmedMetadata{BaseMetadata: NewBase(), OrderID: "1", CartTotal: "0.00"})
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}
	if !strings.Contains(got, `"products":"[]"`) {
		t.Errorf("expected products \"[]\", got %s", got)
	}
}

func TestCustomEventPropertiesIsStringEncoded(t *testing.T) {
	m := &CustomEventMetadata{
		BaseMetadata: NewBase(),
		Type:         "Wishlist",
		Properties:   Properties{"url": "https://shop/a?b=c&d=<e>"},
	}
	got, err := EncodeMetadata(m)
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}
	want := `{"source":"msdk","type":"Wishlist","properties":"{\"url\":\"https://shop/a?b=c&d=<e>\"}"}`
	if got != want {
		t.Errorf("unexpected encoding\nwant: %s\ngot:  %s", want, got)
	}
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestMetadataRoundTrip(t *testing.T) {
	tests := []Metadata{
		&PurchaseMetadata{
			ProductMetadata: ProductMetadata{
				BaseMetadata: BaseMetadata{Phone: "+1", Email: "e@x.com", Source: Source, Currency: "USD"},
				ProductID:    "p", SubProductID: "v", Price: "9.99", Name: "Hat", Image: "https://i", Category: "c", Quantity: "2",
			},
			OrderID: "o1", CartTotal: "19.98", CartID: "cart", CartCoupon: "SAVE",
		},
		&OrderConfirmedMetadata{
			BaseMetadata: BaseMetadata{Source: Source, Currency: "EUR"},
			OrderID:      "o2",
			CartTotal:    "3.00",
			Products: Products{
				{ProductID: "a", SubProductID: "a1", Price: "1.00", Currency: "EUR", Name: `say "hi"`, Quantity: "1"},
				{ProductID: "b", SubProductID: "b1", Price: "2.00", Currency: "EUR", Quantity: "3"},
			},
		},
		&AddToCartMetadata{ProductMetadata{BaseMetadata: NewBase(), ProductID: "p", SubProductID: "v", Price: "1.00", Quantity: "1"}},
		&ProductViewMetadata{ProductMetadata{BaseMetadata: NewBase(), ProductID: "p", SubProductID: "v", Price: "1.00", Quantity: "1"}},
		&CustomEventMetadata{BaseMetadata: NewBase(), Type: "t", Properties: Properties{"k": `{"nested":[1,2]}`, "x": "y"}},
		&IdentifiersMetadata{BaseMetadata: BaseMetadata{Source: Source, Email: "e@x.com"}},
		&InfoMetadata{BaseMetadata: NewBase()},
	}

	for _, orig := range tests {
		t.Run(string(orig.EventType()), func(t *testing.T) {
			encoded, err := EncodeMetadata(orig)
			if err != nil {
				t.Fatalf("EncodeMetadata: %v", err)
			}
			decoded, err := DecodeMetadata(orig.EventType(), []byte(encoded))
			if err != nil {
				t.Fatalf("DecodeMetadata: %v", err)
			}
			if !reflect.DeepEqual(orig, decoded) {
				t.Errorf("round trip mismatch\norig:    %+v\ndecoded: %+v", orig, decoded)
			}
		})
	}
}

func TestDecodeMetadataRejectsNativeArray(t *testing.T) {
	_, err := DecodeMetadata(TypeOrderConfirmed, []byte(`{"orderId":"1","products":[{"productId":"p"}]}`))
	if err == nil {
		t.Error("expected error decoding a non-string products field")
	}
}

func TestEncodeMetadataNil(t *testing.T) {
	if _, err := EncodeMetadata(nil); err == nil {
		t.Error("expected error for nil metadata")
	}
}

func TestNewEventRequestTakesTypeFromMetadata(t *testing.T) {
	req := NewEventRequest(&InfoMetadata{BaseMetadata: NewBase()}, nil)
	if req.Type != TypeInfo {
		t.Errorf("expected type i, got %s", req.Type)
	}
}
