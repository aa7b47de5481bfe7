package billing

import (
	"strings"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/entitlements"
)

// Catalog maps processor price ids to internal plans. It is built once from
// configuration and never mutated.
type Catalog struct {
	ProPriceID     string
	PremiumPriceID string
}

// NewCatalog creates a catalog from the configured price ids.
func NewCatalog(proPriceID, premiumPriceID string) Catalog {
	return Catalog{
		ProPriceID:     strings.TrimSpace(proPriceID),
		PremiumPriceID: strings.TrimSpace(premiumPriceID),
	}
}

// ResolvePlan returns the plan backed by priceID. Unknown and empty price ids
// resolve to the basic plan.
func (c Catalog) ResolvePlan(priceID string) entitlements.Plan {
	plan, _ := c.lookup(priceID)
	return plan
}

// IsKnownPrice reports whether priceID belongs to a paid plan of the catalog.
func (c Catalog) IsKnownPrice(priceID string) bool {
	_, ok := c.lookup(priceID)
	return ok
}

// PriceFor returns the price id configured for a paid plan.
func (c Catalog) PriceFor(plan entitlements.Plan) (string, bool) {
	switch plan {
	case entitlements.PlanPro:
		return c.ProPriceID, c.ProPriceID != ""
	case entitlements.PlanPremium:
		return c.PremiumPriceID, c.PremiumPriceID != ""
	default:
		return "", false
	}
}

func (c Catalog) lookup(priceID string) (entitlements.Plan, bool) {
	id := strings.TrimSpace(priceID)
	switch {
	case id == "":
		return entitlements.PlanBasic, false
	case id == c.ProPriceID:
		return entitlements.PlanPro, true
	case id == c.PremiumPriceID:
		return entitlements.PlanPremium, true
	default:
		return entitlements.PlanBasic, false
	}
}

// normalizeStatus maps a raw processor status onto the stored status enum.
// Anything outside the allow-list is stored as none.
func normalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case models.BillingStatusActive:
		return models.BillingStatusActive
	case models.BillingStatusTrialing:
		return models.BillingStatusTrialing
	case models.BillingStatusPastDue:
		return models.BillingStatusPastDue
	case models.BillingStatusCanceled, "cancelled":
		return models.BillingStatusCanceled
	default:
		return models.BillingStatusNone
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue:
		return true
	default:
		return false
	}
}

// HasActiveSubscription is the entitlement predicate the rest of the
// application must use instead of comparing raw statuses.
func HasActiveSubscription(status string) bool {
	return isEntitlingStatus(status)
}
