// Package catalog describes the purchasable products, their offerings and the
// entitlement keys each offering grants. A Catalog is built once at startup and
// never mutated afterwards.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

const maxOfferingKeyLength = 100

var (
	ErrInvalidOfferingKey = errors.New("invalid offering key")

	offeringKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)
)

type OfferingKind string

const (
	KindOneTime      OfferingKind = "one_time"
	KindSubscription OfferingKind = "subscription"
)

// ProviderMapping holds the provider-side identifiers for one offering.
// LemonSqueezy uses StoreID+VariantID, Stripe uses PriceID.
type ProviderMapping struct {
	StoreID   string `yaml:"store_id" json:"-"`
	VariantID string `yaml:"variant_id" json:"-"`
	PriceID   string `yaml:"price_id" json:"-"`
}

// Ref returns the identifier the provider sells this offering under.
func (m ProviderMapping) Ref() string {
	if v := strings.TrimSpace(m.VariantID); v != "" {
		return v
	}
	return strings.TrimSpace(m.PriceID)
}

type OfferingMetadata struct {
	AllowCustomAmount bool   `yaml:"allow_custom_amount" json:"allow_custom_amount"`
	MinAmount         int64  `yaml:"min_amount" json:"min_amount,omitempty"`
	MaxAmount         int64  `yaml:"max_amount" json:"max_amount,omitempty"`
	Currency          string `yaml:"currency" json:"currency,omitempty"`
}

type Offering struct {
	Key                 string                     `yaml:"key" json:"offering_key"`
	Kind                OfferingKind               `yaml:"kind" json:"kind"`
	PriceDisplay        string                     `yaml:"price_display" json:"price_display"`
	EntitlementGrants   []string                   `yaml:"entitlement_grants" json:"entitlement_grants"`
	EntitlementDuration string                     `yaml:"entitlement_duration" json:"-"`
	Providers           map[string]ProviderMapping `yaml:"providers" json:"-"`
	Metadata            OfferingMetadata           `yaml:"metadata" json:"metadata"`
	Featured            bool                       `yaml:"featured" json:"featured,omitempty"`
	Popular             bool                       `yaml:"popular" json:"popular,omitempty"`

	duration *time.Duration
}

// Duration returns how long a grant lasts, or nil for lifetime grants and
// grants whose end is driven by the provider (subscriptions).
func (o *Offering) Duration() *time.Duration {
	if o.duration == nil {
		return nil
	}
	d := *o.duration
	return &d
}

// MappingFor returns the mapping for provider when it carries a usable
// identifier.
func (o *Offering) MappingFor(provider string) (ProviderMapping, bool) {
	m, ok := o.Providers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok || m.Ref() == "" {
		return ProviderMapping{}, false
	}
	return m, true
}

type Product struct {
	Key         string            `yaml:"key" json:"product_key"`
	DisplayName string            `yaml:"display_name" json:"display_name"`
	Description string            `yaml:"description" json:"description"`
	Offerings   []Offering        `yaml:"offerings" json:"offerings"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata,omitempty"`
}

// Resolved is a product/offering pair returned by lookups. Both point into
// the catalog and must be treated as read-only.
type Resolved struct {
	Product  *Product
	Offering *Offering
}

type Catalog struct {
	products []Product
	byKey    map[string]Resolved
}

type file struct {
	Products []Product `yaml:"products"`
}

// Lookup resolves ${NAME} placeholders in the catalog source.
type Lookup func(name string) string

// Default parses the embedded catalog.
func Default(lookup Lookup) (*Catalog, error) {
	return Parse(defaultCatalog, lookup)
}

// Load parses the catalog file at path, or the embedded catalog when path is
// empty.
func Load(path string, lookup Lookup) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(lookup)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, lookup)
}

// Parse builds a catalog from YAML, substituting ${NAME} placeholders through
// lookup. Unset placeholders become empty strings.
func Parse(data []byte, lookup Lookup) (*Catalog, error) {
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	expanded := placeholderPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := placeholderPattern.FindSubmatch(m)[1]
		return []byte(lookup(string(name)))
	})

	var f file
	if err := yaml.Unmarshal(expanded, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		products: f.Products,
		byKey:    make(map[string]Resolved),
	}
	productKeys := make(map[string]struct{}, len(c.products))
	providerRefs := make(map[string]string)
	for i := range c.products {
		p := &c.products[i]
		if strings.TrimSpace(p.Key) == "" {
			return nil, fmt.Errorf("catalog product #%d has no key", i)
		}
		if _, dup := productKeys[p.Key]; dup {
			return nil, fmt.Errorf("duplicate product key %q", p.Key)
		}
		productKeys[p.Key] = struct{}{}

		for j := range p.Offerings {
			o := &p.Offerings[j]
			if err := prepareOffering(o); err != nil {
				return nil, fmt.Errorf("product %q: %w", p.Key, err)
			}
			if _, dup := c.byKey[o.Key]; dup {
				return nil, fmt.Errorf("duplicate offering key %q", o.Key)
			}
			for name, m := range o.Providers {
				if m.Ref() == "" {
					continue
				}
				ref := name + "/" + m.Ref()
				if other, dup := providerRefs[ref]; dup {
					return nil, fmt.Errorf("offerings %q and %q share %s id %q", other, o.Key, name, m.Ref())
				}
				providerRefs[ref] = o.Key
			}
			c.byKey[o.Key] = Resolved{Product: p, Offering: o}
		}
	}
	return c, nil
}

func prepareOffering(o *Offering) error {
	if err := ValidateOfferingKey(o.Key); err != nil {
		return fmt.Errorf("offering %q: %w", o.Key, err)
	}
	switch o.Kind {
	case KindOneTime, KindSubscription:
	default:
		return fmt.Errorf("offering %q: unknown kind %q", o.Key, o.Kind)
	}
	if d := strings.TrimSpace(o.EntitlementDuration); d != "" {
		parsed, err := parseDuration(d)
		if err != nil {
			return fmt.Errorf("offering %q: %w", o.Key, err)
		}
		o.duration = &parsed
	}
	if o.Metadata.AllowCustomAmount {
		if o.Metadata.MinAmount < 0 || o.Metadata.MaxAmount <= 0 || o.Metadata.MinAmount > o.Metadata.MaxAmount {
			return fmt.Errorf("offering %q: invalid custom amount bounds %d..%d", o.Key, o.Metadata.MinAmount, o.Metadata.MaxAmount)
		}
	}
	normalized := make(map[string]ProviderMapping, len(o.Providers))
	for name, m := range o.Providers {
		normalized[strings.ToLower(strings.TrimSpace(name))] = m
	}
	o.Providers = normalized
	return nil
}

// parseDuration accepts Go durations plus a whole-day suffix ("30d").
func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid entitlement duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid entitlement duration %q", s)
	}
	return d, nil
}

// ValidateOfferingKey checks the client-supplied key format. A malformed key
// is a client error, distinct from an unknown key.
func ValidateOfferingKey(key string) error {
	if key == "" || len(key) > maxOfferingKeyLength || !offeringKeyPattern.MatchString(key) {
		return ErrInvalidOfferingKey
	}
	return nil
}

// GetOfferingByKey resolves an offering key to its product and offering.
func (c *Catalog) GetOfferingByKey(key string) (Resolved, bool) {
	if c == nil {
		return Resolved{}, false
	}
	r, ok := c.byKey[key]
	return r, ok
}

// GetEntitlementsForOffering lists the entitlement keys granted by key. Unknown
// keys yield an empty list.
func (c *Catalog) GetEntitlementsForOffering(key string) []string {
	r, ok := c.GetOfferingByKey(key)
	if !ok {
		return []string{}
	}
	return append([]string{}, r.Offering.EntitlementGrants...)
}

// FindByProviderRef finds the offering a provider sells under ref (variant or
// price id).
func (c *Catalog) FindByProviderRef(provider, ref string) (Resolved, bool) {
	ref = strings.TrimSpace(ref)
	if c == nil || ref == "" {
		return Resolved{}, false
	}
	for _, r := range c.byKey {
		if m, ok := r.Offering.MappingFor(provider); ok && m.Ref() == ref {
			return r, true
		}
	}
	return Resolved{}, false
}

// Products returns the products in configuration order.
func (c *Catalog) Products() []Product {
	if c == nil {
		return nil
	}
	return append([]Product(nil), c.products...)
}
