package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogMatchesPublishedPrices(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"classic", "grand", "premium"}, c.IDs())
	assert.NotEmpty(t, c.Version())

	cases := map[string]struct {
		name  string
		base  int64
		setup map[string]int64
	}{
		"classic": {"Classic Autumn Package", 25000, map[string]int64{"none": 0, "setup-service": 9000}},
		"premium": {"Premium Harvest Package", 62500, map[string]int64{"delivery-only": 0, "full-setup": 9000}},
		"grand":   {"Grand Patch Package", 89500, map[string]int64{"delivery-only": 0, "full-setup": 9000}},
	}
	for id, want := range cases {
		t.Run(id, func(t *testing.T) {
			def, ok := c.Lookup(id)
			require.True(t, ok)
			assert.Equal(t, want.name, def.DisplayName)
			assert.Equal(t, want.base, def.BasePrice)
			assert.Equal(t, want.setup, def.OptionGroups["setup"])
			assert.Equal(t, map[string]int64{"zone1": 0, "zone2": 3500, "zone3": 8500}, def.OptionGroups["zone"])
			assert.Equal(t, map[string]int64{"week1": 0, "week2": 0, "week3": 0, "week4": 0}, def.OptionGroups["delivery"])
			assert.Empty(t, def.RequiredGroups)
		})
	}

	premium, _ := c.Lookup("premium")
	assert.True(t, premium.HasGroup("addons"))
}

func TestLookupReturnsIndependentCopy(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	def, ok := c.Lookup("classic")
	require.True(t, ok)
	def.OptionGroups["zone"]["zone1"] = -25000
	def.Display["zone"].Labels["zone1"] = "tampered"

	again, _ := c.Lookup("classic")
	assert.Equal(t, int64(0), again.OptionGroups["zone"]["zone1"])
	assert.Equal(t, "Zone 1 (Free Delivery)", again.Label("zone", "zone1"))

	_, ok = c.Lookup("mystery")
	assert.False(t, ok)
	assert.False(t, c.Contains("mystery"))
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	valid := PackageDefinition{
		ID:           "basic",
		BasePrice:    1000,
		OptionGroups: map[string]map[string]int64{"zone": {"near": 0, "far": 500}},
	}

	cases := map[string][]PackageDefinition{
		"empty catalog":   nil,
		"missing id":      {{BasePrice: 1}},
		"negative base":   {{ID: "x", BasePrice: -1}},
		"duplicate id":    {valid, valid},
		"empty group":     {{ID: "x", OptionGroups: map[string]map[string]int64{"zone": {}}}},
		"empty key":       {{ID: "x", OptionGroups: map[string]map[string]int64{"zone": {"": 0}}}},
		"base over limit": {{ID: "x", BasePrice: MaxAmount + 1}},
		"negative reachable total": {{
			ID:           "x",
			BasePrice:    1000,
			OptionGroups: map[string]map[string]int64{"promo": {"a": -600}, "coupon": {"b": -600}},
		}},
		"unknown required group": {{
			ID:             "x",
			OptionGroups:   map[string]map[string]int64{"zone": {"near": 0}},
			RequiredGroups: []string{"delivery"},
		}},
		"display for unknown group": {{
			ID:           "x",
			OptionGroups: map[string]map[string]int64{"zone": {"near": 0}},
			Display:      map[string]DisplayGroup{"delivery": {Fallback: "TBD"}},
		}},
		"display for unknown option": {{
			ID:           "x",
			OptionGroups: map[string]map[string]int64{"zone": {"near": 0}},
			Display:      map[string]DisplayGroup{"zone": {Labels: map[string]string{"far": "Far"}}},
		}},
		"shared metadata key": {{
			ID:           "x",
			OptionGroups: map[string]map[string]int64{"zone": {"near": 0}, "area": {"in": 0}},
			Display: map[string]DisplayGroup{
				"zone": {MetadataKey: "where"},
				"area": {MetadataKey: "where"},
			},
		}},
	}
	for name, defs := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := New("test", defs...)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, errors.Is(err, ErrInvalidCatalog), "expected ErrInvalidCatalog, got %v", err)
		})
	}
}

func TestNewAllowsNegativeDeltasThatStayNonNegative(t *testing.T) {
	c, err := New("test", PackageDefinition{
		ID:           "discounted",
		BasePrice:    1000,
		OptionGroups: map[string]map[string]int64{"promo": {"none": 0, "early-bird": -1000}},
	})
	require.NoError(t, err)

	def, _ := c.Lookup("discounted")
	low, high := def.PriceRange()
	assert.Equal(t, int64(0), low)
	assert.Equal(t, int64(1000), high)
}

func TestPriceRangeCountsRequiredGroups(t *testing.T) {
	def := PackageDefinition{
		ID:             "x",
		BasePrice:      1000,
		OptionGroups:   map[string]map[string]int64{"zone": {"near": 200, "far": 500}, "extras": {"a": 100}},
		RequiredGroups: []string{"zone"},
	}
	low, high := def.PriceRange()
	assert.Equal(t, int64(1200), low)
	assert.Equal(t, int64(1600), high)
}

func TestLabelsAndDisplayFields(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	classic, _ := c.Lookup("classic")

	fields := classic.DisplayFields(map[string]string{"delivery": "week2", "setup": "setup-service"})
	assert.Equal(t, map[string]string{
		"deliveryDate": "Week of October 13th, 2025",
		"setupOption":  "Professional Setup (+$90)",
		"deliveryZone": "Zone not specified",
	}, fields)

	assert.Equal(t, "Week of October 27th, 2025", classic.Label("delivery", "week9"))
	assert.Equal(t, "DIY Delivery Only", classic.Label("setup", "none"))

	bare := PackageDefinition{ID: "bare", OptionGroups: map[string]map[string]int64{"setup": {"full-setup": 0}}}
	assert.Equal(t, "Full Setup", bare.Label("setup", "full-setup"))
	assert.Nil(t, bare.DisplayFields(map[string]string{"setup": "full-setup"}))
}

func TestHumanizeKey(t *testing.T) {
	assert.Equal(t, "Hay Bales", HumanizeKey("hay-bales"))
	assert.Equal(t, "Zone 3", HumanizeKey("zone_3"))
	assert.Equal(t, "", HumanizeKey("  "))
}
