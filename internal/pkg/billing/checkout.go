package billing

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/catalog"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/metrics"
)

// CheckoutInput is the caller's checkout request.
type CheckoutInput struct {
	OfferingKey string         `json:"offeringKey" validate:"offering_key"`
	CustomData  map[string]any `json:"customData"`
}

// CheckoutResult is where the payer should be redirected.
type CheckoutResult struct {
	URL        string `json:"url"`
	CheckoutID string `json:"checkoutId"`
}

type payerDetails struct {
	Email string `validate:"omitempty,email,max=254"`
	Name  string `validate:"max=200"`
}

// CheckoutService turns a catalog offering into a hosted provider checkout.
// It writes no local state: entitlements only appear once the provider
// confirms payment through a webhook.
type CheckoutService struct {
	catalog     *catalog.Catalog
	provider    Provider
	validate    *validator.Validate
	redirectURL string
	now         func() time.Time
}

func NewCheckoutService(cat *catalog.Catalog, provider Provider, redirectURL string) *CheckoutService {
	return &CheckoutService{
		catalog:     cat,
		provider:    provider,
		validate:    newValidator(),
		redirectURL: redirectURL,
		now:         time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("offering_key", func(fl validator.FieldLevel) bool {
		return catalog.ValidateOfferingKey(fl.Field().String()) == nil
	})
	return v
}

// CreateCheckout validates the request against the catalog and asks the
// active provider for a hosted checkout URL.
func (s *CheckoutService) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("invalid offering key")
	}

	resolved, ok := s.catalog.GetOfferingByKey(in.OfferingKey)
	if !ok {
		return nil, notFoundError("offering %q", in.OfferingKey)
	}
	offering := resolved.Offering

	providerName := s.provider.Name()
	mapping, ok := offering.MappingFor(providerName)
	if !ok {
		log.WithFields(log.Fields{
			"offering_key": offering.Key,
			"provider":     providerName,
		}).Error("Offering has no mapping for the active payment provider")
		metrics.CheckoutAttempt(providerName, "misconfigured")
		return nil, configurationError("offering %q is not mapped for provider %s", offering.Key, providerName)
	}

	customData, err := sanitizeCallerCustomData(in.CustomData)
	if err != nil {
		return nil, err
	}

	payer := payerDetails{
		Email: customData.String(CustomDataEmail),
		Name:  customData.String(CustomDataName),
	}
	if err := s.validate.Struct(payer); err != nil {
		return nil, validationError("invalid payer email or name")
	}

	var customAmount *int64
	if offering.Metadata.AllowCustomAmount {
		raw, supplied := customData["amount"]
		if !supplied {
			raw, supplied = customData[CustomDataCustomAmount]
		}
		if supplied {
			amount, err := ParseAmount(raw)
			if err != nil {
				return nil, err
			}
			if amount < offering.Metadata.MinAmount || amount > offering.Metadata.MaxAmount {
				return nil, validationError("amount must be between %d and %d", offering.Metadata.MinAmount, offering.Metadata.MaxAmount)
			}
			customAmount = &amount
		}
	}
	delete(customData, "amount")
	delete(customData, CustomDataCustomAmount)

	customData[CustomDataOfferingKey] = offering.Key
	customData[CustomDataProductKey] = resolved.Product.Key
	customData[CustomDataRequestedAt] = s.now().UTC().Format(time.RFC3339)
	if customAmount != nil {
		customData[CustomDataCustomAmount] = *customAmount
	}

	req := CheckoutRequest{
		OfferingKey:  offering.Key,
		ProductKey:   resolved.Product.Key,
		ProductName:  resolved.Product.DisplayName,
		Kind:         offering.Kind,
		Mapping:      mapping,
		Email:        payer.Email,
		Name:         payer.Name,
		CustomAmount: customAmount,
		Currency:     offering.Metadata.Currency,
		CustomData:   customData,
		RedirectURL:  s.redirectURL,
	}

	session, err := s.provider.CreateCheckout(ctx, req)
	if err != nil {
		fields := log.Fields{"offering_key": offering.Key, "provider": providerName}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			fields["status"] = upstream.StatusCode
			fields["body"] = upstream.Body
		}
		log.WithFields(fields).WithError(err).Error("Checkout creation failed")
		metrics.CheckoutAttempt(providerName, "failed")
		if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrUpstream) {
			return nil, err
		}
		return nil, errors.Join(ErrUpstream, err)
	}

	metrics.CheckoutAttempt(providerName, "created")
	return &CheckoutResult{URL: session.URL, CheckoutID: session.ID}, nil
}
