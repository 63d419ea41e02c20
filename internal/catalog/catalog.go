package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxAmount is the largest charge, in cents, the payment processor accepts for USD.
const MaxAmount int64 = 99_999_999

// ErrInvalidCatalog wraps every problem reported while building a Catalog.
var ErrInvalidCatalog = errors.New("catalog: invalid definition")

// PackageDefinition is one purchasable product tier. Prices are in cents.
type PackageDefinition struct {
	ID             string                      `yaml:"id" toml:"id" json:"id"`
	DisplayName    string                      `yaml:"name" toml:"name" json:"name"`
	BasePrice      int64                       `yaml:"basePrice" toml:"basePrice" json:"basePrice"`
	OptionGroups   map[string]map[string]int64 `yaml:"options" toml:"options" json:"options"`
	RequiredGroups []string                    `yaml:"required,omitempty" toml:"required,omitempty" json:"required,omitempty"`
	Display        map[string]DisplayGroup     `yaml:"display,omitempty" toml:"display,omitempty" json:"display,omitempty"`
}

// DisplayGroup renders the selected option of one group for payment metadata.
// MetadataKey defaults to the group name; Fallback is used for keys without a label,
// including when the customer did not select the group at all.
type DisplayGroup struct {
	MetadataKey string            `yaml:"metadataKey,omitempty" toml:"metadataKey,omitempty" json:"metadataKey,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" toml:"labels,omitempty" json:"labels,omitempty"`
	Fallback    string            `yaml:"fallback,omitempty" toml:"fallback,omitempty" json:"fallback,omitempty"`
}

// HasGroup reports whether group is a selectable option group of the package.
func (p PackageDefinition) HasGroup(group string) bool {
	_, ok := p.OptionGroups[group]
	return ok
}

// Delta returns the price delta of key within group.
func (p PackageDefinition) Delta(group, key string) (int64, bool) {
	options, ok := p.OptionGroups[group]
	if !ok {
		return 0, false
	}
	delta, ok := options[key]
	return delta, ok
}

// GroupNames returns the option group names in lexical order.
func (p PackageDefinition) GroupNames() []string {
	return sortedKeys(p.OptionGroups)
}

// OptionKeys returns the option keys of group in lexical order.
func (p PackageDefinition) OptionKeys(group string) []string {
	return sortedKeys(p.OptionGroups[group])
}

// PriceRange returns the cheapest and the most expensive reachable totals, honouring
// RequiredGroups: an optional group may be left out, a required one may not.
func (p PackageDefinition) PriceRange() (low, high int64) {
	required := make(map[string]struct{}, len(p.RequiredGroups))
	for _, g := range p.RequiredGroups {
		required[g] = struct{}{}
	}
	low, high = p.BasePrice, p.BasePrice
	for group, options := range p.OptionGroups {
		minDelta, maxDelta := deltaBounds(options)
		if _, ok := required[group]; !ok {
			minDelta = min(minDelta, 0)
			maxDelta = max(maxDelta, 0)
		}
		low += minDelta
		high += maxDelta
	}
	return low, high
}

func (p PackageDefinition) clone() PackageDefinition {
	out := p
	out.OptionGroups = make(map[string]map[string]int64, len(p.OptionGroups))
	for group, options := range p.OptionGroups {
		copied := make(map[string]int64, len(options))
		for key, delta := range options {
			copied[key] = delta
		}
		out.OptionGroups[group] = copied
	}
	out.RequiredGroups = append([]string(nil), p.RequiredGroups...)
	if p.Display != nil {
		out.Display = make(map[string]DisplayGroup, len(p.Display))
		for group, display := range p.Display {
			labels := make(map[string]string, len(display.Labels))
			for key, label := range display.Labels {
				labels[key] = label
			}
			display.Labels = labels
			out.Display[group] = display
		}
	}
	return out
}

// Catalog is the immutable, validated set of package definitions.
type Catalog struct {
	version  string
	packages map[string]PackageDefinition
	ids      []string
}

// New validates defs and freezes them into a Catalog. Every problem is reported, not just
// the first, and each one wraps ErrInvalidCatalog.
func New(version string, defs ...PackageDefinition) (*Catalog, error) {
	c := &Catalog{
		version:  strings.TrimSpace(version),
		packages: make(map[string]PackageDefinition, len(defs)),
	}

	var problems []error
	if len(defs) == 0 {
		problems = append(problems, fmt.Errorf("%w: no packages defined", ErrInvalidCatalog))
	}
	for _, def := range defs {
		def.ID = strings.TrimSpace(def.ID)
		if _, dup := c.packages[def.ID]; dup && def.ID != "" {
			problems = append(problems, fmt.Errorf("%w: duplicate package id %q", ErrInvalidCatalog, def.ID))
			continue
		}
		problems = append(problems, validatePackage(def)...)
		c.packages[def.ID] = def.clone()
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	c.ids = sortedKeys(c.packages)
	return c, nil
}

func validatePackage(def PackageDefinition) []error {
	var problems []error
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf("%w: package %q: %s", ErrInvalidCatalog, def.ID, fmt.Sprintf(format, args...)))
	}

	if def.ID == "" {
		report("id is required")
	}
	if def.BasePrice < 0 {
		report("base price %d is negative", def.BasePrice)
	}
	if def.BasePrice > MaxAmount {
		report("base price %d exceeds %d", def.BasePrice, MaxAmount)
	}
	for _, group := range def.GroupNames() {
		if strings.TrimSpace(group) == "" {
			report("option group name is empty")
			continue
		}
		options := def.OptionGroups[group]
		if len(options) == 0 {
			report("option group %q has no options", group)
		}
		for key, delta := range options {
			if strings.TrimSpace(key) == "" {
				report("option group %q has an empty option key", group)
			}
			if delta > MaxAmount || delta < -MaxAmount {
				report("option %q in group %q has out of range delta %d", key, group, delta)
			}
		}
	}
	seen := make(map[string]struct{}, len(def.RequiredGroups))
	for _, group := range def.RequiredGroups {
		if !def.HasGroup(group) {
			report("required group %q is not an option group", group)
		}
		if _, dup := seen[group]; dup {
			report("required group %q listed twice", group)
		}
		seen[group] = struct{}{}
	}
	metadataKeys := make(map[string]string, len(def.Display))
	for _, group := range sortedKeys(def.Display) {
		display := def.Display[group]
		if !def.HasGroup(group) {
			report("display table references unknown group %q", group)
			continue
		}
		for key := range display.Labels {
			if _, ok := def.Delta(group, key); !ok {
				report("display label for unknown option %q in group %q", key, group)
			}
		}
		metaKey := display.metadataKey(group)
		if other, dup := metadataKeys[metaKey]; dup {
			report("groups %q and %q share metadata key %q", other, group, metaKey)
		}
		metadataKeys[metaKey] = group
	}
	if len(problems) > 0 {
		return problems
	}

	low, high := def.PriceRange()
	if low < 0 {
		report("cheapest reachable total %d is negative", low)
	}
	if high > MaxAmount {
		report("most expensive reachable total %d exceeds %d", high, MaxAmount)
	}
	return problems
}

// Lookup returns a copy of the package with the given id.
func (c *Catalog) Lookup(id string) (PackageDefinition, bool) {
	if c == nil {
		return PackageDefinition{}, false
	}
	def, ok := c.packages[id]
	if !ok {
		return PackageDefinition{}, false
	}
	return def.clone(), true
}

// Contains reports whether id names a package, without copying it.
func (c *Catalog) Contains(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.packages[id]
	return ok
}

// IDs returns the package ids in lexical order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.ids...)
}

// Version returns the catalog revision label.
func (c *Catalog) Version() string {
	if c == nil {
		return ""
	}
	return c.version
}

// Len returns the number of packages.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.packages)
}

func deltaBounds(options map[string]int64) (low, high int64) {
	first := true
	for _, delta := range options {
		if first {
			low, high = delta, delta
			first = false
			continue
		}
		low = min(low, delta)
		high = max(high, delta)
	}
	return low, high
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
