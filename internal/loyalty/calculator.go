package loyalty

import (
	"log"

	"github.com/shopspring/decimal"
)

// Calculator computes earned points and free-quantity entitlements.
// All methods are pure over the order and cache: recomputing an unchanged
// order yields identical results.
type Calculator struct {
	cache   *Cache
	matcher *Matcher
}

func NewCalculator(cache *Cache, matcher *Matcher) *Calculator {
	return &Calculator{cache: cache, matcher: matcher}
}

type PointsEntry struct {
	Points decimal.Decimal
}

// PointsForPrograms computes, per accrual program, the points the order
// earns. Programs earning nothing map to an empty slice.
func (c *Calculator) PointsForPrograms(o *Order) map[int64][]PointsEntry {
	result := make(map[int64][]PointsEntry)
	for _, program := range c.cache.programs {
		if program.Type != ProgramLoyalty {
			continue
		}
		points := c.LoyaltyPoints(o, program)
		if points.IsPositive() {
			result[program.ID] = []PointsEntry{{Points: points}}
		} else {
			result[program.ID] = []PointsEntry{}
		}
	}
	return result
}

// LoyaltyPoints accumulates tax-inclusive line totals into per-product
// buckets and converts each bucket through its family threshold:
// floor(bucket / threshold) * pointsEarned. Intermediate computations use
// floor; only the final total is rounded to two decimals.
func (c *Calculator) LoyaltyPoints(o *Order, program *Program) decimal.Decimal {
	buckets := make(map[int64]decimal.Decimal)

	for _, line := range o.Lines() {
		if line.IsRewardLine || line.Qty <= 0 {
			continue
		}
		product := c.cache.Product(line.ProductID)
		if product == nil || !product.Eligible {
			continue
		}
		family := c.cache.Family(product.FamilyID)
		if family == nil || !family.Active {
			continue
		}
		if !c.matcher.ProgramMatchesProduct(program, product.ID) {
			continue
		}
		buckets[product.ID] = buckets[product.ID].Add(line.Total())
	}

	total := decimal.Zero
	for productID, amount := range buckets {
		product := c.cache.Product(productID)
		family := c.cache.Family(product.FamilyID)
		if !family.PriceThreshold.IsPositive() {
			log.Printf("loyalty: family %d has invalid threshold %s, skipping", family.ID, family.PriceThreshold)
			continue
		}
		points := amount.Div(family.PriceThreshold).Floor().Mul(decimal.NewFromInt(family.PointsEarned))
		total = total.Add(points)
	}

	return total.Round(2)
}

// FreeQtyEntitlement computes the free quantity owed under a buy-X-get-Y
// rule in per-line mode: each line earns floor(qty / buyQty) * freeQty on
// its own, so removing one line never affects another line's entitlement.
func (c *Calculator) FreeQtyEntitlement(o *Order, rule *Rule, reward *Reward) int {
	if rule == nil || rule.MinQuantity <= 0 || reward.ProductQty <= 0 {
		return 0
	}
	entitlement := 0
	for _, line := range o.Lines() {
		if line.IsRewardLine || line.Qty <= 0 {
			continue
		}
		if !rule.MatchesProduct(line.ProductID) {
			continue
		}
		entitlement += line.Qty / rule.MinQuantity * reward.ProductQty
	}
	return entitlement
}

// GrantedFreeQty counts the free quantity already present on the order
// for (reward, card), so entitlement is only topped up or trimmed.
func (c *Calculator) GrantedFreeQty(o *Order, reward *Reward, cardID int64) int {
	granted := 0
	for _, line := range o.rewardLines(reward.ID, cardID) {
		granted += line.Qty
	}
	return granted
}

type ClaimableReward struct {
	Reward *Reward
	CardID int64
}

// ClaimableRewards lists the rewards of the card's program whose point
// cost the card can still cover, pending order spend included.
func (c *Calculator) ClaimableRewards(o *Order, card *Card) []ClaimableReward {
	program := c.cache.Program(card.ProgramID)
	if program == nil {
		return nil
	}
	available := card.Points.Sub(o.pendingSpendForCard(card.ID))
	var out []ClaimableReward
	for _, reward := range program.Rewards {
		if reward.PointCost.GreaterThan(available) {
			continue
		}
		out = append(out, ClaimableReward{Reward: reward, CardID: card.ID})
	}
	return out
}

// ClaimableRewardsForProgram lists rewards unlocked by a code-activated
// rule; no card balance is involved.
func (c *Calculator) ClaimableRewardsForProgram(program *Program) []ClaimableReward {
	var out []ClaimableReward
	for _, reward := range program.Rewards {
		out = append(out, ClaimableReward{Reward: reward})
	}
	return out
}
