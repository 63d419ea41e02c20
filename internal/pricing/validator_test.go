package pricing

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wantinglittle/patches/internal/catalog"
)

func newDefaultValidator(t *testing.T) *Validator {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return NewValidator(c)
}

func TestValidateScenarios(t *testing.T) {
	v := newDefaultValidator(t)

	cases := []struct {
		name           string
		packageID      string
		customizations map[string]string
		valid          bool
		total          int64
		reason         ErrorKind
		message        string
	}{
		{"classic with setup service", "classic", map[string]string{"setup": "setup-service"}, true, 34000, "", ""},
		{"grand far zone", "grand", map[string]string{"zone": "zone3"}, true, 98000, "", ""},
		{"premium unknown addon", "premium", map[string]string{"addons": "bogus"}, false, 0, UnknownOptionValue, "Invalid option value: bogus for addons"},
		{"unknown package", "mystery", map[string]string{"setup": "none"}, false, 0, UnknownPackage, "Invalid package ID"},
		{"unknown group", "classic", map[string]string{"addons": "hay-bales"}, false, 0, UnknownOptionGroup, "Invalid option type: addons"},
		{"setup key from other tier", "classic", map[string]string{"setup": "full-setup"}, false, 0, UnknownOptionValue, "Invalid option value: full-setup for setup"},
		{"no selections", "premium", nil, true, 62500, "", ""},
		{"full premium", "premium", map[string]string{"delivery": "week2", "setup": "full-setup", "zone": "zone2", "addons": "mum-planters"}, true, 62500 + 9000 + 3500 + 6000, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.packageID, tc.customizations)
			assert.Equal(t, tc.valid, result.Valid)
			assert.Equal(t, tc.total, result.TotalPrice)
			assert.Equal(t, tc.reason, result.Reason)
			if tc.valid {
				assert.NoError(t, result.Err())
				return
			}
			require.Error(t, result.Err())
			assert.Equal(t, tc.message, result.Err().Error())
			assert.Equal(t, tc.reason, KindOf(result.Err()))
		})
	}
}

func TestValidateReportsOffendingNames(t *testing.T) {
	v := newDefaultValidator(t)

	result := v.Validate("premium", map[string]string{"addons": "bogus"})
	assert.Equal(t, "addons", result.Group)
	assert.Equal(t, "bogus", result.Option)
	assert.True(t, errors.Is(result.Err(), ErrUnknownOptionValue))

	result = v.Validate("grand", map[string]string{"gift-wrap": "yes"})
	assert.Equal(t, "gift-wrap", result.Group)
	assert.Empty(t, result.Option)
	assert.True(t, errors.Is(result.Err(), ErrUnknownOptionGroup))
}

func TestValidateUnknownPackageIgnoresCustomizations(t *testing.T) {
	v := newDefaultValidator(t)
	for _, customizations := range []map[string]string{nil, {}, {"zone": "zone1"}, {"bogus": "bogus"}} {
		result := v.Validate("mystery", customizations)
		assert.Equal(t, UnknownPackage, result.Reason)
		assert.Zero(t, result.TotalPrice)
	}
}

func TestValidateFirstErrorIsDeterministic(t *testing.T) {
	v := newDefaultValidator(t)
	customizations := map[string]string{"zone": "zone9", "delivery": "week9", "setup": "none"}
	for i := 0; i < 50; i++ {
		result := v.Validate("classic", customizations)
		require.Equal(t, UnknownOptionValue, result.Reason)
		require.Equal(t, "delivery", result.Group)
	}
}

func TestValidateSumsEveryValidCombination(t *testing.T) {
	v := newDefaultValidator(t)
	c := v.Catalog()
	rng := rand.New(rand.NewSource(42))

	for _, id := range c.IDs() {
		def, _ := c.Lookup(id)
		for i := 0; i < 200; i++ {
			selections := map[string]string{}
			want := def.BasePrice
			for _, group := range def.GroupNames() {
				if rng.Intn(3) == 0 {
					continue
				}
				keys := def.OptionKeys(group)
				key := keys[rng.Intn(len(keys))]
				selections[group] = key
				want += def.OptionGroups[group][key]
			}

			first := v.Validate(id, selections)
			require.True(t, first.Valid, "%s %v", id, selections)
			assert.Equal(t, want, first.TotalPrice)

			second := v.Validate(id, selections)
			assert.Equal(t, first.TotalPrice, second.TotalPrice)
			assert.Equal(t, first.Valid, second.Valid)
		}
	}
}

func TestValidateJSON(t *testing.T) {
	v := newDefaultValidator(t)

	result := v.ValidateJSON("classic", json.RawMessage(`{"setup":"setup-service","zone":"zone2"}`))
	require.True(t, result.Valid)
	assert.Equal(t, int64(37500), result.TotalPrice)

	for _, raw := range []string{``, `null`, `"setup"`, `["setup"]`, `{"setup": 5}`, `{"setup": {"a": "b"}}`, `{broken`} {
		result := v.ValidateJSON("classic", json.RawMessage(raw))
		assert.Equal(t, MalformedInput, result.Reason, "input %q", raw)
		assert.Equal(t, "Invalid customization format", result.Err().Error())
	}

	result = v.ValidateJSON("mystery", json.RawMessage(`"oops"`))
	assert.Equal(t, UnknownPackage, result.Reason)
}

func TestRequiredGroupsPolicy(t *testing.T) {
	c, err := catalog.New("test", catalog.PackageDefinition{
		ID:             "strict",
		DisplayName:    "Strict",
		BasePrice:      1000,
		OptionGroups:   map[string]map[string]int64{"delivery": {"week1": 0}, "zone": {"zone1": 0, "zone2": 300}},
		RequiredGroups: []string{"zone", "delivery"},
	})
	require.NoError(t, err)
	v := NewValidator(c)

	partial := map[string]string{"delivery": "week1"}
	assert.True(t, v.Validate("strict", partial).Valid, "Validate accepts partial selection")

	err = v.CheckRequired("strict", partial)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRequiredOption))
	assert.Equal(t, "Missing required option: zone", err.Error())

	result := v.ValidateOrder("strict", partial)
	assert.False(t, result.Valid)
	assert.Equal(t, MissingRequiredOption, result.Reason)
	assert.Equal(t, "zone", result.Group)

	result = v.ValidateOrder("strict", map[string]string{"delivery": "week1", "zone": "zone2"})
	require.True(t, result.Valid)
	assert.Equal(t, int64(1300), result.TotalPrice)

	assert.True(t, errors.Is(v.CheckRequired("nope", nil), ErrUnknownPackage))
}

func TestQuoteOnlyFromValidResult(t *testing.T) {
	v := newDefaultValidator(t)

	_, err := v.Validate("mystery", nil).Quote()
	assert.True(t, errors.Is(err, ErrUnknownPackage))

	selections := map[string]string{"zone": "zone3"}
	quote, err := v.Validate("grand", selections).Quote()
	require.NoError(t, err)
	assert.False(t, quote.IsZero())
	assert.Equal(t, "grand", quote.PackageID())
	assert.Equal(t, "Grand Patch Package", quote.PackageName())
	assert.Equal(t, int64(98000), quote.Amount())
	assert.Equal(t, v.Catalog().Version(), quote.CatalogVersion())

	selections["zone"] = "zone1"
	assert.Equal(t, map[string]string{"zone": "zone3"}, quote.Selections())
	assert.True(t, Quote{}.IsZero())
}

func TestValidatorWithoutCatalogNeverPanics(t *testing.T) {
	v := NewValidator(nil)
	assert.Equal(t, UnknownPackage, v.Validate("classic", map[string]string{"a": "b"}).Reason)
	assert.Equal(t, UnknownPackage, v.ValidateJSON("classic", nil).Reason)
}

func TestFormatDollars(t *testing.T) {
	cases := map[int64]string{34000: "340", 98000: "980", 250: "2.5", 1999: "19.99", 1905: "19.05", 0: "0", 7: "0.07"}
	for cents, want := range cases {
		assert.Equal(t, want, FormatDollars(cents), "cents %d", cents)
	}
}
