package events

import "fmt"

// Item is one product line of a commerce event.
type Item struct {
	productID        string
	productVariantID string
	price            Price
	name             string
	productImage     string
	category         string
	quantity         int
}

// ItemOption sets an optional Item field.
type ItemOption func(*Item)

// WithName sets the product name.
func WithName(name string) ItemOption { return func(i *Item) { i.name = name } }

// WithImage sets the product image URL.
func WithImage(url string) ItemOption { return func(i *Item) { i.productImage = url } }

// WithCategory sets the product category.
func WithCategory(category string) ItemOption { return func(i *Item) { i.category = category } }

// WithQuantity sets the quantity. Values below 1 fail NewItem.
func WithQuantity(n int) ItemOption { return func(i *Item) { i.quantity = n } }

// NewItem builds an Item. productID and productVariantID must be non-empty and
// price must come from NewPrice or ParsePrice. Quantity defaults to 1.
func NewItem(productID, productVariantID string, price Price, opts ...ItemOption) (Item, error) {
	if err := requireNonEmpty("productId", productID); err != nil {
		return Item{}, err
	}
	if err := requireNonEmpty("productVariantId", productVariantID); err != nil {
		return Item{}, err
	}
	if price.IsZero() {
		return Item{}, &ValidationError{Field: "price", Message: "required"}
	}

	it := Item{
		productID:        productID,
		productVariantID: productVariantID,
		price:            price,
		quantity:         1,
	}
	for _, opt := range opts {
		opt(&it)
	}
	if it.quantity < 1 {
		return Item{}, &ValidationError{Field: "quantity", Message: fmt.Sprintf("must be at least 1, got %d", it.quantity)}
	}
	return it, nil
}

func (i Item) ProductID() string        { return i.productID }
func (i Item) ProductVariantID() string { return i.productVariantID }
func (i Item) Price() Price             { return i.price }
func (i Item) Name() string             { return i.name }
func (i Item) ProductImage() string     { return i.productImage }
func (i Item) Category() string         { return i.category }
func (i Item) Quantity() int            { return i.quantity }

// Order identifies a completed checkout.
type Order struct {
	orderID string
}

// NewOrder builds an Order; orderID must be non-empty.
func NewOrder(orderID string) (Order, error) {
	if err := requireNonEmpty("orderId", orderID); err != nil {
		return Order{}, err
	}
	return Order{orderID: orderID}, nil
}

// OrderID returns the order identifier.
func (o Order) OrderID() string { return o.orderID }

// Cart carries optional cart details attached to a purchase.
type Cart struct {
	CartID     string
	CartCoupon string
}
