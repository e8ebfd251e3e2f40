package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLookup(values map[string]string) Lookup {
	return func(name string) string { return values[name] }
}

func TestDefaultCatalogResolvesEveryOffering(t *testing.T) {
	c, err := Default(testLookup(map[string]string{
		"LEMONSQUEEZY_STORE_ID":              "1234",
		"LEMONSQUEEZY_VARIANT_WEBSITE_BASIC": "111",
	}))
	require.NoError(t, err)

	for _, p := range c.Products() {
		for _, o := range p.Offerings {
			r, ok := c.GetOfferingByKey(o.Key)
			require.True(t, ok, o.Key)
			assert.Equal(t, p.Key, r.Product.Key)
			assert.Equal(t, o.Key, r.Offering.Key)
			assert.NotEmpty(t, c.GetEntitlementsForOffering(o.Key))
		}
	}

	r, ok := c.GetOfferingByKey("website_basic")
	require.True(t, ok)
	m, ok := r.Offering.MappingFor("lemonsqueezy")
	require.True(t, ok)
	assert.Equal(t, "1234", m.StoreID)
	assert.Equal(t, "111", m.Ref())

	// Unset placeholders leave the mapping unusable.
	_, ok = r.Offering.MappingFor("stripe")
	assert.False(t, ok)
}

func TestGetOfferingByKeyUnknown(t *testing.T) {
	c, err := Default(nil)
	require.NoError(t, err)

	for _, key := range []string{"", "nope", "website_basic ", "WEBSITE_BASIC", strings.Repeat("a", 300), "../etc"} {
		_, ok := c.GetOfferingByKey(key)
		assert.False(t, ok, key)
		assert.Equal(t, []string{}, c.GetEntitlementsForOffering(key))
	}

	var nilCatalog *Catalog
	_, ok := nilCatalog.GetOfferingByKey("website_basic")
	assert.False(t, ok)
}

func TestGetEntitlementsForOfferingReturnsCopy(t *testing.T) {
	c, err := Default(nil)
	require.NoError(t, err)

	grants := c.GetEntitlementsForOffering("website_pro")
	require.Equal(t, []string{"website_basic_access", "website_pro_access"}, grants)
	grants[0] = "mutated"
	assert.Equal(t, "website_basic_access", c.GetEntitlementsForOffering("website_pro")[0])
}

func TestValidateOfferingKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"website_basic", true},
		{"Care-Monthly_2", true},
		{strings.Repeat("a", 100), true},
		{strings.Repeat("a", 101), false},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
		{"dot.key", false},
		{"ünicode", false},
	}

	for _, tt := range tests {
		err := ValidateOfferingKey(tt.key)
		if tt.valid {
			assert.NoError(t, err, tt.key)
		} else {
			assert.ErrorIs(t, err, ErrInvalidOfferingKey, tt.key)
		}
	}
}

func TestOfferingDuration(t *testing.T) {
	c, err := Default(nil)
	require.NoError(t, err)

	r, ok := c.GetOfferingByKey("audit_pass")
	require.True(t, ok)
	require.NotNil(t, r.Offering.Duration())
	assert.Equal(t, 30*24*time.Hour, *r.Offering.Duration())

	r, ok = c.GetOfferingByKey("website_basic")
	require.True(t, ok)
	assert.Nil(t, r.Offering.Duration())
}

func TestFindByProviderRef(t *testing.T) {
	c, err := Default(testLookup(map[string]string{
		"LEMONSQUEEZY_VARIANT_CARE_MONTHLY": "555",
		"STRIPE_PRICE_CARE_YEARLY":          "price_yearly",
	}))
	require.NoError(t, err)

	r, ok := c.FindByProviderRef("lemonsqueezy", "555")
	require.True(t, ok)
	assert.Equal(t, "care_monthly", r.Offering.Key)

	r, ok = c.FindByProviderRef("stripe", "price_yearly")
	require.True(t, ok)
	assert.Equal(t, "care_yearly", r.Offering.Key)

	_, ok = c.FindByProviderRef("lemonsqueezy", "price_yearly")
	assert.False(t, ok)
	_, ok = c.FindByProviderRef("lemonsqueezy", "")
	assert.False(t, ok)
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "duplicate offering across products",
			src: `
products:
  - key: a
    offerings: [{key: x, kind: one_time}]
  - key: b
    offerings: [{key: x, kind: one_time}]
`,
			want: "duplicate offering key",
		},
		{
			name: "unknown kind",
			src: `
products:
  - key: a
    offerings: [{key: x, kind: lease}]
`,
			want: "unknown kind",
		},
		{
			name: "bad key",
			src: `
products:
  - key: a
    offerings: [{key: "x y", kind: one_time}]
`,
			want: "invalid offering key",
		},
		{
			name: "inverted custom bounds",
			src: `
products:
  - key: a
    offerings:
      - key: x
        kind: one_time
        metadata: {allow_custom_amount: true, min_amount: 500, max_amount: 100}
`,
			want: "invalid custom amount bounds",
		},
		{
			name: "bad duration",
			src: `
products:
  - key: a
    offerings: [{key: x, kind: one_time, entitlement_duration: "0d"}]
`,
			want: "invalid entitlement duration",
		},
		{
			name: "shared variant id",
			src: `
products:
  - key: a
    offerings:
      - {key: x, kind: one_time, providers: {lemonsqueezy: {variant_id: "${V}"}}}
      - {key: y, kind: one_time, providers: {lemonsqueezy: {variant_id: "${V}"}}}
`,
			want: "share lemonsqueezy id",
		},
	}

	lookup := testLookup(map[string]string{"V": "42"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), lookup)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLeavesDollarAmountsAlone(t *testing.T) {
	c, err := Parse([]byte(`
products:
  - key: a
    offerings: [{key: x, kind: one_time, price_display: "$49 / month"}]
`), testLookup(map[string]string{"4": "boom"}))
	require.NoError(t, err)

	r, ok := c.GetOfferingByKey("x")
	require.True(t, ok)
	assert.Equal(t, "$49 / month", r.Offering.PriceDisplay)
}

func TestLoad(t *testing.T) {
	c, err := Load("", nil)
	require.NoError(t, err)
	_, ok := c.GetOfferingByKey("website_basic")
	assert.True(t, ok)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
products:
  - key: a
    offerings: [{key: only_one, kind: one_time, entitlement_grants: [a_access]}]
`), 0o600))
	c, err = Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_access"}, c.GetEntitlementsForOffering("only_one"))
	_, ok = c.GetOfferingByKey("website_basic")
	assert.False(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read catalog")
}
