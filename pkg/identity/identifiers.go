// Package identity holds the user identifiers attached to every outbound
// event and the codec that turns them into the external-vendor id list
// ("evs") the collector expects.
package identity

import "strings"

// UserIdentifiers is an immutable set of user identity fields. Build it with
// New; the zero value is a valid, empty set.
type UserIdentifiers struct {
	visitorID    string
	clientUserID string
	phone        string
	email        string
	shopifyID    string
	klaviyoID    string
	custom       map[string]string
}

// Option sets one identifier. Empty values are ignored.
type Option func(*UserIdentifiers)

func WithVisitorID(id string) Option    { return func(u *UserIdentifiers) { u.visitorID = clean(id) } }
func WithClientUserID(id string) Option { return func(u *UserIdentifiers) { u.clientUserID = clean(id) } }
func WithPhone(phone string) Option     { return func(u *UserIdentifiers) { u.phone = clean(phone) } }
func WithEmail(email string) Option     { return func(u *UserIdentifiers) { u.email = clean(email) } }
func WithShopifyID(id string) Option    { return func(u *UserIdentifiers) { u.shopifyID = clean(id) } }
func WithKlaviyoID(id string) Option    { return func(u *UserIdentifiers) { u.klaviyoID = clean(id) } }

// WithCustomIdentifiers adds custom key/value identifiers. Entries with an
// empty key or value are dropped.
func WithCustomIdentifiers(custom map[string]string) Option {
	return func(u *UserIdentifiers) {
		for k, v := range custom {
			k, v = clean(k), clean(v)
			if k == "" || v == "" {
				continue
			}
			if u.custom == nil {
				u.custom = make(map[string]string, len(custom))
			}
			u.custom[k] = v
		}
	}
}

// New builds a UserIdentifiers from options.
func New(opts ...Option) UserIdentifiers {
	var u UserIdentifiers
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func (u UserIdentifiers) VisitorID() string    { return u.visitorID }
func (u UserIdentifiers) ClientUserID() string { return u.clientUserID }
func (u UserIdentifiers) Phone() string        { return u.phone }
func (u UserIdentifiers) Email() string        { return u.email }
func (u UserIdentifiers) ShopifyID() string    { return u.shopifyID }
func (u UserIdentifiers) KlaviyoID() string    { return u.klaviyoID }

// CustomIdentifiers returns a copy of the custom identifiers.
func (u UserIdentifiers) CustomIdentifiers() map[string]string {
	out := make(map[string]string, len(u.custom))
	for k, v := range u.custom {
		out[k] = v
	}
	return out
}

// IsEmpty reports whether no identifier is set.
func (u UserIdentifiers) IsEmpty() bool {
	return u.visitorID == "" && u.clientUserID == "" && u.phone == "" && u.email == "" &&
		u.shopifyID == "" && u.klaviyoID == "" && len(u.custom) == 0
}

// Equal reports whether u and o hold the same identifiers.
func (u UserIdentifiers) Equal(o UserIdentifiers) bool {
	if u.visitorID != o.visitorID || u.clientUserID != o.clientUserID || u.phone != o.phone ||
		u.email != o.email || u.shopifyID != o.shopifyID || u.klaviyoID != o.klaviyoID {
		return false
	}
	if len(u.custom) != len(o.custom) {
		return false
	}
	for k, v := range u.custom {
		if ov, ok := o.custom[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Merge returns base overlaid with overlay: every field set on overlay wins,
// unset fields fall back to base, and custom identifiers are the union of
// both with overlay winning on key collision. Neither input is modified.
func Merge(base, overlay UserIdentifiers) UserIdentifiers {
	out := UserIdentifiers{
		visitorID:    pick(overlay.visitorID, base.visitorID),
		clientUserID: pick(overlay.clientUserID, base.clientUserID),
		phone:        pick(overlay.phone, base.phone),
		email:        pick(overlay.email, base.email),
		shopifyID:    pick(overlay.shopifyID, base.shopifyID),
		klaviyoID:    pick(overlay.klaviyoID, base.klaviyoID),
	}
	if n := len(base.custom) + len(overlay.custom); n > 0 {
		out.custom = make(map[string]string, n)
		for k, v := range base.custom {
			out.custom[k] = v
		}
		for k, v := range overlay.custom {
			out.custom[k] = v
		}
	}
	return out
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

func clean(s string) string { return strings.TrimSpace(s) }
