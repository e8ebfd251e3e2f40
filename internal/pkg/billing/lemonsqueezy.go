package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/config"
)

const (
	defaultLemonSqueezyAPIBaseURL = "https://api.lemonsqueezy.com/v1"
	jsonAPIContentType            = "application/vnd.api+json"
)

// LemonSqueezyClient talks to the LemonSqueezy JSON:API. Every call is a
// single attempt bounded by the HTTP client timeout.
type LemonSqueezyClient struct {
	APIKey     string
	StoreID    string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewLemonSqueezyClient(cfg config.Billing) *LemonSqueezyClient {
	base := strings.TrimSpace(cfg.LemonSqueezyBaseURL)
	if base == "" {
		base = defaultLemonSqueezyAPIBaseURL
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LemonSqueezyClient{
		APIKey:     strings.TrimSpace(cfg.LemonSqueezyAPIKey),
		StoreID:    strings.TrimSpace(cfg.LemonSqueezyStoreID),
		APIBaseURL: strings.TrimRight(base, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *LemonSqueezyClient) Name() string {
	return models.BillingProviderLemonSqueezy
}

type jsonAPIRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type lsCheckoutData struct {
	Email  string            `json:"email,omitempty"`
	Name   string            `json:"name,omitempty"`
	Custom map[string]string `json:"custom,omitempty"`
}

type lsProductOptions struct {
	Name        string `json:"name,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type lsCheckoutAttributes struct {
	CustomPrice    *int64           `json:"custom_price,omitempty"`
	ProductOptions lsProductOptions `json:"product_options"`
	CheckoutData   lsCheckoutData   `json:"checkout_data"`
}

type lsCheckoutRequest struct {
	Data struct {
		Type          string               `json:"type"`
		Attributes    lsCheckoutAttributes `json:"attributes"`
		Relationships struct {
			Store struct {
				Data jsonAPIRef `json:"data"`
			} `json:"store"`
			Variant struct {
				Data jsonAPIRef `json:"data"`
			} `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

// CreateCheckout creates a hosted checkout for the mapped store/variant.
func (c *LemonSqueezyClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, configurationError("LEMONSQUEEZY_API_KEY is not configured")
	}
	storeID := strings.TrimSpace(req.Mapping.StoreID)
	if storeID == "" {
		storeID = c.StoreID
	}
	variantID := strings.TrimSpace(req.Mapping.VariantID)
	if storeID == "" || variantID == "" {
		return nil, configurationError("offering %q has no lemonsqueezy store/variant id", req.OfferingKey)
	}

	var body lsCheckoutRequest
	body.Data.Type = "checkouts"
	body.Data.Attributes = lsCheckoutAttributes{
		CustomPrice: req.CustomAmount,
		ProductOptions: lsProductOptions{
			RedirectURL: req.RedirectURL,
		},
		CheckoutData: lsCheckoutData{
			Email:  req.Email,
			Name:   req.Name,
			Custom: req.CustomData.Strings(),
		},
	}
	body.Data.Relationships.Store.Data = jsonAPIRef{Type: "stores", ID: storeID}
	body.Data.Relationships.Variant.Data = jsonAPIRef{Type: "variants", ID: variantID}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, http.MethodPost, "/checkouts", payload)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				URL string `json:"url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: lemonsqueezy checkout response: %v", ErrUpstream, err)
	}
	if strings.TrimSpace(out.Data.Attributes.URL) == "" {
		return nil, fmt.Errorf("%w: lemonsqueezy checkout response missing url", ErrUpstream)
	}
	return &CheckoutSession{
		ID:  strings.TrimSpace(out.Data.ID),
		URL: strings.TrimSpace(out.Data.Attributes.URL),
	}, nil
}

// GetSubscription reads a subscription by id.
func (c *LemonSqueezyClient) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationError("subscription id is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, configurationError("LEMONSQUEEZY_API_KEY is not configured")
	}

	respBody, err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound {
			return nil, notFoundError("lemonsqueezy subscription %s", id)
		}
		return nil, err
	}

	var out struct {
		Data struct {
			ID         string                 `json:"id"`
			Attributes lsSubscriptionSnapshot `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: lemonsqueezy subscription response: %v", ErrUpstream, err)
	}

	a := out.Data.Attributes
	return &ProviderSubscription{
		ID:        strings.TrimSpace(out.Data.ID),
		Status:    strings.TrimSpace(a.Status),
		UserEmail: strings.TrimSpace(a.UserEmail),
		VariantID: a.VariantID.String(),
		CreatedAt: a.CreatedAt,
		RenewsAt:  a.RenewsAt,
		EndsAt:    a.EndsAt,
	}, nil
}

type lsSubscriptionSnapshot struct {
	Status    string     `json:"status"`
	UserEmail string     `json:"user_email"`
	VariantID flexibleID `json:"variant_id"`
	CreatedAt *time.Time `json:"created_at"`
	RenewsAt  *time.Time `json:"renews_at"`
	EndsAt    *time.Time `json:"ends_at"`
}

// flexibleID accepts ids sent as JSON numbers or strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		*f = flexibleID(strings.TrimSpace(unq))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

func (f flexibleID) String() string { return string(f) }

func (c *LemonSqueezyClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", jsonAPIContentType)
	if payload != nil {
		req.Header.Set("Content-Type", jsonAPIContentType)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: lemonsqueezy %s %s: %v", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Provider:   models.BillingProviderLemonSqueezy,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}
