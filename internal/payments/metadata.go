package payments

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/wantinglittle/patches/internal/platform/textutil"
	"github.com/wantinglittle/patches/internal/pricing"
)

// Processor limits on metadata.
var metadataLimits = textutil.Limits{KeyRunes: 40, ValueRunes: 500, Entries: 50}

var notesPolicy = bluemonday.StrictPolicy()

// Customer is the optional buyer record. It enriches metadata and never affects the price.
type Customer struct {
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	Address       *Address `json:"address,omitempty"`
	DeliveryNotes string   `json:"deliveryNotes"`
}

// Address is the delivery address.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Line renders "street, city, state zip".
func (a Address) Line() string {
	return strings.TrimSpace(a.Street) + ", " + strings.TrimSpace(a.City) + ", " +
		strings.TrimSpace(a.State) + " " + strings.TrimSpace(a.Zip)
}

// BuildMetadata renders the order record attached to the payment intent. The amount shown is
// derived from the quote; nothing here is re-priced.
func BuildMetadata(quote pricing.Quote, customer *Customer, orderRef string) map[string]string {
	selections := quote.Selections()
	encoded, err := json.Marshal(selections)
	if err != nil {
		encoded = []byte("{}")
	}

	meta := map[string]string{
		"packageId":      quote.PackageID(),
		"packageName":    quote.PackageName(),
		"customizations": string(encoded),
		"totalPrice":     pricing.FormatDollars(quote.Amount()),
		"catalogVersion": quote.CatalogVersion(),
		"orderRef":       orderRef,
	}

	if customer != nil {
		meta["customerName"] = customer.Name
		meta["customerEmail"] = customer.Email
		meta["customerPhone"] = customer.Phone
		if customer.Address != nil {
			meta["deliveryAddress"] = customer.Address.Line()
		}
		meta["deliveryNotes"] = sanitizeNotes(customer.DeliveryNotes)
		for key, label := range quote.Package().DisplayFields(selections) {
			if _, reserved := meta[key]; reserved {
				continue
			}
			meta[key] = label
		}
	}

	return textutil.ClipMap(meta, metadataLimits)
}

func sanitizeNotes(notes string) string {
	cleaned := html.UnescapeString(notesPolicy.Sanitize(notes))
	return textutil.Clip(strings.TrimSpace(cleaned), metadataLimits.ValueRunes)
}
