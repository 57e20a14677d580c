package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/events"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/pkg/identity"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// parsePairs turns k=v strings into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

// parseItem parses product:variant:price[:quantity].
func parseItem(raw, currency string) (events.Item, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return events.Item{}, fmt.Errorf("item %q: expected product:variant:price[:quantity]", raw)
	}
	price, err := events.ParsePrice(parts[2], currency)
	if err != nil {
		return events.Item{}, fmt.Errorf("item %q: %w", raw, err)
	}
	var opts []events.ItemOption
	if len(parts) == 4 {
		var qty int
		if _, err := fmt.Sscanf(parts[3], "%d", &qty); err != nil {
			return events.Item{}, fmt.Errorf("item %q: invalid quantity: %w", raw, err)
		}
		opts = append(opts, events.WithQuantity(qty))
	}
	return events.NewItem(parts[0], parts[1], price, opts...)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// buildEvent parses the flags of an event command into an Event.
func buildEvent(cmd string, args []string) (events.Event, error) {
	fs := newFlagSet(cmd)
	var (
		rawItems   listFlag
		props      listFlag
		currency   = fs.String("currency", "USD", "ISO currency code for item prices")
		orderID    = fs.String("order", "", "order id (purchase)")
		cartID     = fs.String("cart-id", "", "cart id (purchase)")
		coupon     = fs.String("coupon", "", "cart coupon (purchase)")
		deeplink   = fs.String("deeplink", "", "product deeplink")
		creativeID = fs.String("creative-id", "", "creative id")
		eventType  = fs.String("type", "", "custom event type")
	)
	fs.Var(&rawItems, "item", "product:variant:price[:quantity], repeatable")
	fs.Var(&props, "prop", "custom property key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	items := make([]events.Item, 0, len(rawItems))
	for _, raw := range rawItems {
		it, err := parseItem(raw, *currency)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	switch cmd {
	case "purchase":
		order, err := events.NewOrder(*orderID)
		if err != nil {
			return nil, err
		}
		var cart *events.Cart
		if *cartID != "" || *coupon != "" {
			cart = &events.Cart{CartID: *cartID, CartCoupon: *coupon}
		}
		return events.NewPurchase(items, order, cart)
	case "add-to-cart", "product-view":
		var opts []events.ProductEventOption
		if *deeplink != "" {
			opts = append(opts, events.WithDeeplink(*deeplink))
		}
		if *creativeID != "" {
			opts = append(opts, events.WithCreativeID(*creativeID))
		}
		if cmd == "add-to-cart" {
			return events.NewAddToCart(items, opts...)
		}
		return events.NewProductView(items, opts...)
	case "custom":
		properties, err := parsePairs(props)
		if err != nil {
			return nil, err
		}
		return events.NewCustomEvent(*eventType, properties)
	default:
		return nil, fmt.Errorf("unknown event command %q", cmd)
	}
}

// parseIdentify parses the identify command's flags.
func parseIdentify(args []string) (identity.UserIdentifiers, error) {
	fs := newFlagSet("identify")
	var (
		custom       listFlag
		clientUserID = fs.String("client-user-id", "", "client user id")
		email        = fs.String("email", "", "email address")
		phone        = fs.String("phone", "", "phone number")
		shopifyID    = fs.String("shopify-id", "", "Shopify id")
		klaviyoID    = fs.String("klaviyo-id", "", "Klaviyo id")
	)
	fs.Var(&custom, "custom", "custom identifier key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return identity.UserIdentifiers{}, fmt.Errorf("identify: %w", err)
	}
	customIDs, err := parsePairs(custom)
	if err != nil {
		return identity.UserIdentifiers{}, err
	}

	ids := identity.New(
		identity.WithClientUserID(*clientUserID),
		identity.WithEmail(*email),
		identity.WithPhone(*phone),
		identity.WithShopifyID(*shopifyID),
		identity.WithKlaviyoID(*klaviyoID),
		identity.WithCustomIdentifiers(customIDs),
	)
	if ids.IsEmpty() {
		return identity.UserIdentifiers{}, fmt.Errorf("identify: at least one identifier is required")
	}
	return ids, nil
}
