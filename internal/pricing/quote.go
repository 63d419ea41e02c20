package pricing

import (
	"strconv"

	"github.com/wantinglittle/patches/internal/catalog"
)

// Currency is the only currency the storefront charges in.
const Currency = "usd"

// Quote is a validated order: the package, the selections that were priced and the
// resulting amount. The zero value is not a usable quote; obtain one from Result.Quote.
type Quote struct {
	pkg            catalog.PackageDefinition
	catalogVersion string
	amount         int64
	selections     map[string]string
}

// IsZero reports whether q was not produced by a valid Result.
func (q Quote) IsZero() bool {
	return q.pkg.ID == ""
}

// PackageID returns the priced package id.
func (q Quote) PackageID() string { return q.pkg.ID }

// PackageName returns the package display name.
func (q Quote) PackageName() string { return q.pkg.DisplayName }

// Package returns the definition the quote was priced against.
func (q Quote) Package() catalog.PackageDefinition { return q.pkg }

// CatalogVersion returns the revision of the catalog that priced the quote.
func (q Quote) CatalogVersion() string { return q.catalogVersion }

// Amount returns the total in cents.
func (q Quote) Amount() int64 { return q.amount }

// Selections returns a copy of the priced group → option selections.
func (q Quote) Selections() map[string]string {
	out := make(map[string]string, len(q.selections))
	for group, key := range q.selections {
		out[group] = key
	}
	return out
}

// FormatDollars renders cents as a plain dollar amount without trailing zeros,
// e.g. 34000 → "340", 250 → "2.5", 1999 → "19.99".
func FormatDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	dollars := strconv.FormatInt(cents/100, 10)
	rem := cents % 100
	switch {
	case rem == 0:
		return sign + dollars
	case rem%10 == 0:
		return sign + dollars + "." + strconv.FormatInt(rem/10, 10)
	case rem < 10:
		return sign + dollars + ".0" + strconv.FormatInt(rem, 10)
	default:
		return sign + dollars + "." + strconv.FormatInt(rem, 10)
	}
}
