package pricing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"sokoni/internal/models"
)

// CatalogStore is the read side of the catalog the resolver prices from.
type CatalogStore interface {
	ListPriceTiers(ctx context.Context, variantID int64) ([]models.PriceTier, error)
	GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, *models.ApplicationMethod, error)
	CountPromotionUsageByCustomer(ctx context.Context, promotionID, customerID int64) (int, error)
}

// DiscountResult is the outcome of resolving a promotion code. A non-empty
// Warning means no discount applied; promotion problems are advisory, never
// fatal.
type DiscountResult struct {
	Amount    int64
	Promotion *models.Promotion
	Warning   string
}

// Resolver resolves unit prices from tiered price lists and promotion
// discounts against a subtotal.
type Resolver struct {
	catalog CatalogStore
}

// NewResolver creates a pricing resolver
func NewResolver(catalog CatalogStore) *Resolver {
	return &Resolver{catalog: catalog}
}

// ResolveUnitPrice returns the unit price for a variant at the requested
// quantity. Tiers are evaluated by ascending min quantity, ties by the
// cheaper amount; the first tier whose range contains the quantity wins.
// A quantity outside every tier falls back to the lowest-min-quantity tier
// rather than failing.
func (r *Resolver) ResolveUnitPrice(ctx context.Context, variantID int64, quantity int) (int64, error) {
	tiers, err := r.catalog.ListPriceTiers(ctx, variantID)
	if err != nil {
		return 0, fmt.Errorf("list price tiers for variant %d: %w", variantID, err)
	}
	if len(tiers) == 0 {
		return 0, fmt.Errorf("variant %d: %w", variantID, models.ErrPriceNotFound)
	}

	sorted := make([]models.PriceTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if tierMin(sorted[i]) != tierMin(sorted[j]) {
			return tierMin(sorted[i]) < tierMin(sorted[j])
		}
		if sorted[i].Amount != sorted[j].Amount {
			return sorted[i].Amount < sorted[j].Amount
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, tier := range sorted {
		if quantity >= tierMin(tier) && quantity <= tierMax(tier) {
			return tierPrice(tier), nil
		}
	}

	return tierPrice(sorted[0]), nil
}

// ResolveDiscount computes the discount a promotion code yields against a
// subtotal. Invalid codes fail softly: zero discount plus a warning.
func (r *Resolver) ResolveDiscount(ctx context.Context, code string, subtotal, customerID int64) DiscountResult {
	if code == "" {
		return DiscountResult{}
	}

	promo, method, err := r.catalog.GetPromotionByCode(ctx, code)
	if err != nil || promo == nil {
		return DiscountResult{Warning: fmt.Sprintf("promotion code '%s' not found", code)}
	}

	now := time.Now().UTC()
	switch {
	case promo.Status != models.PromotionActive:
		return DiscountResult{Warning: fmt.Sprintf("promotion '%s' is not active", code)}
	case promo.StartsAt != nil && now.Before(*promo.StartsAt):
		return DiscountResult{Warning: fmt.Sprintf("promotion '%s' has not started yet", code)}
	case promo.EndsAt != nil && now.After(*promo.EndsAt):
		return DiscountResult{Warning: fmt.Sprintf("promotion '%s' has expired", code)}
	case promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit:
		return DiscountResult{Warning: fmt.Sprintf("promotion '%s' usage limit reached", code)}
	case method == nil:
		return DiscountResult{Warning: fmt.Sprintf("promotion '%s' has no application method", code)}
	}

	if promo.PerCustomerLimit != nil {
		used, err := r.catalog.CountPromotionUsageByCustomer(ctx, promo.ID, customerID)
		if err != nil {
			return DiscountResult{Warning: fmt.Sprintf("promotion '%s' could not be verified", code)}
		}
		if used >= *promo.PerCustomerLimit {
			return DiscountResult{Warning: fmt.Sprintf("promotion '%s' already used", code)}
		}
	}

	var amount int64
	switch method.Type {
	case models.MethodPercentage:
		amount = int64(math.Round(float64(subtotal) * float64(method.Value) / 100))
	case models.MethodFixed:
		amount = method.Value
	default:
		return DiscountResult{Warning: fmt.Sprintf("promotion '%s' has an unknown application method", code)}
	}

	// Clamp to [0, subtotal]
	if amount < 0 {
		amount = 0
	}
	if amount > subtotal {
		amount = subtotal
	}

	return DiscountResult{Amount: amount, Promotion: promo}
}

func tierMin(t models.PriceTier) int {
	if t.MinQuantity == nil {
		return 0
	}
	return *t.MinQuantity
}

func tierMax(t models.PriceTier) int {
	if t.MaxQuantity == nil {
		return math.MaxInt
	}
	return *t.MaxQuantity
}

func tierPrice(t models.PriceTier) int64 {
	if t.SaleAmount != nil && *t.SaleAmount < t.Amount {
		return *t.SaleAmount
	}
	return t.Amount
}
