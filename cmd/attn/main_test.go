package main

import (
	"testing"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/events"
)

func TestParseArgs(t *testing.T) {
	cmd, args, path := parseArgs([]string{"--config", "x.yaml", "purchase", "--order", "1"})
	if cmd != "purchase" || path != "x.yaml" || len(args) != 2 {
		t.Errorf("unexpected parse: cmd=%q path=%q args=%v", cmd, path, args)
	}
	if cmd, _, _ := parseArgs(nil); cmd != "" {
		t.Errorf("expected empty command, got %q", cmd)
	}
}

func TestBuildPurchase(t *testing.T) {
	ev, err := buildEvent("purchase", []string{
		"--order", "5555",
		"--item", "p1:v1:10.999",
		"--item", "p2:v2:5.999:2",
		"--cart-id", "cart-1",
	})
	if err != nil {
		t.Fatalf("buildEvent: %v", err)
	}
	p, ok := ev.(events.Purchase)
	if !ok {
		t.Fatalf("expected Purchase, got %T", ev)
	}
	if p.Order().OrderID() != "5555" || len(p.Items()) != 2 {
		t.Errorf("unexpected purchase: order=%s items=%d", p.Order().OrderID(), len(p.Items()))
	}
	if p.Items()[1].Quantity() != 2 {
		t.Errorf("expected quantity 2, got %d", p.Items()[1].Quantity())
	}
	if cart, ok := p.Cart(); !ok || cart.CartID != "cart-1" {
		t.Errorf("expected cart-1, got %+v", cart)
	}
}

func TestBuildProductEvents(t *testing.T) {
	ev, err := buildEvent("add-to-cart", []string{"--item", "p1:v1:1.00", "--deeplink", "https://shop/p1"})
	if err != nil {
		t.Fatalf("buildEvent: %v", err)
	}
	if atc, ok := ev.(events.AddToCart); !ok || atc.Deeplink() != "https://shop/p1" {
		t.Errorf("unexpected add-to-cart: %#v", ev)
	}

	ev, err = buildEvent("product-view", []string{"--item", "p1:v1:1.00", "--creative-id", "cr"})
	if err != nil {
		t.Fatalf("buildEvent: %v", err)
	}
	if pv, ok := ev.(events.ProductView); !ok || pv.CreativeID() != "cr" {
		t.Errorf("unexpected product-view: %#v", ev)
	}
}

func TestBuildCustom(t *testing.T) {
	ev, err := buildEvent("custom", []string{"--type", "signup", "--prop", "plan=pro", "--prop", "seats=3"})
	if err != nil {
		t.Fatalf("buildEvent: %v", err)
	}
	ce := ev.(events.CustomEvent)
	if ce.Type() != "signup" || ce.Properties()["seats"] != "3" {
		t.Errorf("unexpected custom event: %s %v", ce.Type(), ce.Properties())
	}
}

func TestBuildEventErrors(t *testing.T) {
	tests := []struct {
		cmd  string
		args []string
	}{
		{"purchase", []string{"--item", "p1:v1:1.00"}},
		{"purchase", []string{"--order", "1", "--item", "p1:v1"}},
		{"purchase", []string{"--order", "1", "--item", "p1:v1:abc"}},
		{"add-to-cart", []string{"--item", "p1:v1:1.00:x"}},
		{"add-to-cart", []string{"--item", "p1:v1:1.00", "--currency", "dollars"}},
		{"custom", []string{"--type", ""}},
		{"custom", []string{"--type", "ok", "--prop", "novalue"}},
		{"custom", []string{"--bogus"}},
	}
	for _, tt := range tests {
		if _, err := buildEvent(tt.cmd, tt.args); err == nil {
			t.Errorf("%s %v: expected error", tt.cmd, tt.args)
		}
	}
}

func TestParseIdentify(t *testing.T) {
	ids, err := parseIdentify([]string{"--client-user-id", "c1", "--email", "a@example.com", "--custom", "loyalty=gold"})
	if err != nil {
		t.Fatalf("parseIdentify: %v", err)
	}
	if ids.ClientUserID() != "c1" || ids.Email() != "a@example.com" || ids.CustomIdentifiers()["loyalty"] != "gold" {
		t.Errorf("unexpected identifiers: %+v", ids)
	}

	if _, err := parseIdentify(nil); err == nil {
		t.Error("expected error when no identifiers are given")
	}
}
