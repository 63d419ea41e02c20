package pricing

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/wantinglittle/patches/internal/catalog"
)

// Result is the outcome of pricing one customization request. A valid result carries the
// authoritative total in cents; an invalid one carries the first problem found.
type Result struct {
	Valid      bool
	TotalPrice int64
	Reason     ErrorKind
	PackageID  string
	Group      string
	Option     string

	quote Quote
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Kind: r.Reason, PackageID: r.PackageID, Group: r.Group, Option: r.Option}
}

// Quote returns the priced order behind a valid result.
func (r Result) Quote() (Quote, error) {
	if !r.Valid {
		return Quote{}, r.Err()
	}
	return r.quote, nil
}

func invalid(kind ErrorKind, packageID, group, option string) Result {
	return Result{Reason: kind, PackageID: packageID, Group: group, Option: option}
}

// Validator prices customization requests against an immutable catalog. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	catalog *catalog.Catalog
}

// NewValidator constructs a Validator for c.
func NewValidator(c *catalog.Catalog) *Validator {
	return &Validator{catalog: c}
}

// Catalog returns the catalog the validator prices against.
func (v *Validator) Catalog() *catalog.Catalog {
	return v.catalog
}

// Validate recomputes the price of packageID with the selected options. Every entry of
// customizations is checked; groups are visited in lexical order so the reported error is
// stable. A nil or empty map selects nothing and prices at the base price.
func (v *Validator) Validate(packageID string, customizations map[string]string) Result {
	def, ok := v.catalog.Lookup(packageID)
	if !ok {
		return invalid(UnknownPackage, packageID, "", "")
	}

	groups := make([]string, 0, len(customizations))
	for group := range customizations {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	total := def.BasePrice
	selections := make(map[string]string, len(customizations))
	for _, group := range groups {
		key := customizations[group]
		if !def.HasGroup(group) {
			return invalid(UnknownOptionGroup, packageID, group, "")
		}
		delta, ok := def.Delta(group, key)
		if !ok {
			return invalid(UnknownOptionValue, packageID, group, key)
		}
		total += delta
		selections[group] = key
	}

	return Result{
		Valid:      true,
		TotalPrice: total,
		PackageID:  packageID,
		quote: Quote{
			pkg:            def,
			catalogVersion: v.catalog.Version(),
			amount:         total,
			selections:     selections,
		},
	}
}

// ValidateJSON decodes untrusted customizations and validates them. Anything other than a
// JSON object whose values are all strings is MalformedInput. The package is checked first,
// so an unknown package is reported as such even when the customizations are malformed.
func (v *Validator) ValidateJSON(packageID string, raw json.RawMessage) Result {
	if !v.catalog.Contains(packageID) {
		return invalid(UnknownPackage, packageID, "", "")
	}
	customizations, ok := decodeSelections(raw)
	if !ok {
		return invalid(MalformedInput, packageID, "", "")
	}
	return v.Validate(packageID, customizations)
}

// CheckRequired enforces the package's RequiredGroups policy. It reports the first missing
// group in declaration order and does not price anything.
func (v *Validator) CheckRequired(packageID string, customizations map[string]string) error {
	def, ok := v.catalog.Lookup(packageID)
	if !ok {
		return &ValidationError{Kind: UnknownPackage, PackageID: packageID}
	}
	if group, missing := firstMissing(def, customizations); missing {
		return &ValidationError{Kind: MissingRequiredOption, PackageID: packageID, Group: group}
	}
	return nil
}

func firstMissing(def catalog.PackageDefinition, customizations map[string]string) (string, bool) {
	for _, group := range def.RequiredGroups {
		if _, ok := customizations[group]; !ok {
			return group, true
		}
	}
	return "", false
}

// ValidateOrder prices the request and then applies the required-group policy.
func (v *Validator) ValidateOrder(packageID string, customizations map[string]string) Result {
	result := v.Validate(packageID, customizations)
	if !result.Valid {
		return result
	}
	if group, missing := firstMissing(result.quote.pkg, customizations); missing {
		return invalid(MissingRequiredOption, packageID, group, "")
	}
	return result
}

func decodeSelections(raw json.RawMessage) (map[string]string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var out map[string]string
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, false
	}
	return out, true
}
