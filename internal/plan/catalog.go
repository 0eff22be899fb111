// Package plan holds the subscription tier and credit package catalog: which
// provider price maps to which tier, and how many credits each tier grants
// per billing period.
package plan

import "strings"

// Tier identifies a subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Plan maps a tier to its monthly credit allowance and the provider price
// selling it.
type Plan struct {
	Tier            Tier   `mapstructure:"tier"`
	MonthlyCredits  int64  `mapstructure:"monthly_credits"`
	ProviderPriceID string `mapstructure:"provider_price_id"`
}

// CreditPackage is a one-off purchasable credit bundle.
type CreditPackage struct {
	Code            string `mapstructure:"code"`
	Credits         int64  `mapstructure:"credits"`
	AmountCents     int64  `mapstructure:"amount_cents"`
	Currency        string `mapstructure:"currency"`
	ProviderPriceID string `mapstructure:"provider_price_id"`
}

type Catalog struct {
	Plans    []Plan          `mapstructure:"plans"`
	Packages []CreditPackage `mapstructure:"packages"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		Plans: []Plan{
			{Tier: TierFree, MonthlyCredits: 25},
			{Tier: TierStarter, MonthlyCredits: 50},
			{Tier: TierPro, MonthlyCredits: 150},
			{Tier: TierEnterprise, MonthlyCredits: 600},
		},
		Packages: []CreditPackage{
			{Code: "credits_50", Credits: 50, AmountCents: 1299, Currency: "USD"},
			{Code: "credits_120", Credits: 120, AmountCents: 2499, Currency: "USD"},
		},
	}
}

// TierForPriceID resolves a provider price identifier to an internal tier.
// Unmapped prices resolve to the free tier so an unrecognized price never
// fails webhook processing.
func (c Catalog) TierForPriceID(priceID string) Tier {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return TierFree
	}
	for _, p := range c.Plans {
		if p.ProviderPriceID != "" && p.ProviderPriceID == priceID {
			return p.Tier
		}
	}
	return TierFree
}

// Allowance returns the monthly credit grant for a tier, zero if unknown.
func (c Catalog) Allowance(tier Tier) int64 {
	for _, p := range c.Plans {
		if p.Tier == tier {
			return p.MonthlyCredits
		}
	}
	return 0
}

func (c Catalog) PackageByCode(code string) *CreditPackage {
	code = strings.TrimSpace(code)
	for i := range c.Packages {
		if c.Packages[i].Code == code {
			return &c.Packages[i]
		}
	}
	return nil
}

func (c Catalog) PackageForPriceID(priceID string) *CreditPackage {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil
	}
	for i := range c.Packages {
		if c.Packages[i].ProviderPriceID == priceID {
			return &c.Packages[i]
		}
	}
	return nil
}

// ValidTier reports whether the catalog knows the tier.
func (c Catalog) ValidTier(tier Tier) bool {
	for _, p := range c.Plans {
		if p.Tier == tier {
			return true
		}
	}
	return false
}
