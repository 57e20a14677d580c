package identity

import (
	"encoding/json"
	"sort"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/jsonenc"
)

// Vendor is the collector's code for the system an external id belongs to.
type Vendor string

const (
	VendorShopify    Vendor = "0"
	VendorKlaviyo    Vendor = "1"
	VendorClientUser Vendor = "2"
	VendorCustomUser Vendor = "6"
)

// ExternalVendorID is one entry of the "evs" list.
type ExternalVendorID struct {
	Vendor Vendor `json:"vendor"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
}

// ExternalVendorIDs lists u's external ids in wire order: client user id,
// shopify, klaviyo, then custom identifiers sorted by key.
func ExternalVendorIDs(u UserIdentifiers) []ExternalVendorID {
	ids := make([]ExternalVendorID, 0, 3+len(u.custom))
	if u.clientUserID != "" {
		ids = append(ids, ExternalVendorID{Vendor: VendorClientUser, ID: u.clientUserID})
	}
	if u.shopifyID != "" {
		ids = append(ids, ExternalVendorID{Vendor: VendorShopify, ID: u.shopifyID})
	}
	if u.klaviyoID != "" {
		ids = append(ids, ExternalVendorID{Vendor: VendorKlaviyo, ID: u.klaviyoID})
	}

	keys := make([]string, 0, len(u.custom))
	for k := range u.custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ids = append(ids, ExternalVendorID{Vendor: VendorCustomUser, ID: u.custom[k], Name: k})
	}
	return ids
}

// EncodeVendorIDs renders the "evs" query value: a JSON array, "[]" when u
// carries no external ids. Like the metadata, it is not HTML-escaped.
func EncodeVendorIDs(u UserIdentifiers) (string, error) {
	data, err := jsonenc.Marshal(ExternalVendorIDs(u))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeVendorIDs parses an "evs" value.
func DecodeVendorIDs(s string) ([]ExternalVendorID, error) {
	var ids []ExternalVendorID
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
