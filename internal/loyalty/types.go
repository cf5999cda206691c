// Package loyalty implements the POS loyalty, coupon and gift-voucher
// redemption engine: rule/program matching, point calculation, reward
// application and offline validation against the session cache.
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProgramType string

const (
	ProgramLoyalty   ProgramType = "loyalty"
	ProgramPromoCode ProgramType = "promo_code"
	ProgramGiftCard  ProgramType = "gift_card"
	ProgramBonAchat  ProgramType = "bon_achat"
	ProgramBuyXGetY  ProgramType = "buy_x_get_y"
)

type RuleMode string

const (
	RuleAuto     RuleMode = "auto"
	RuleWithCode RuleMode = "with_code"
)

type RewardType string

const (
	RewardDiscount RewardType = "discount"
	RewardProduct  RewardType = "product"
	RewardCredit   RewardType = "credit"
)

// Product is the normalized product shape produced at the ingestion
// boundary. Price is tax inclusive.
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Eligible bool
	FamilyID int64
}

// Family buckets spending for tiered point accrual: every full
// PriceThreshold spent on products of the family earns PointsEarned.
type Family struct {
	ID             int64
	Name           string
	PriceThreshold decimal.Decimal
	PointsEarned   int64
	Active         bool
}

type Rule struct {
	ID           int64
	ProgramID    int64
	Mode         RuleMode
	Code         string
	PromoBarcode string
	AnyProduct   bool
	ProductIDs   map[int64]struct{}
	MinQuantity  int
	MinAmount    decimal.Decimal
}

// MatchesProduct reports whether the rule's product scope covers p.
// Product-set membership is skipped entirely when AnyProduct is set.
func (r *Rule) MatchesProduct(productID int64) bool {
	if r.AnyProduct {
		return true
	}
	_, ok := r.ProductIDs[productID]
	return ok
}

type Reward struct {
	ID                    int64
	ProgramID             int64
	Type                  RewardType
	DiscountPercent       decimal.Decimal
	ProductID             int64
	ProductQty            int
	PointCost             decimal.Decimal
	MultiProduct          bool
	DiscountLineProductID int64
}

type Program struct {
	ID           int64
	Name         string
	Type         ProgramType
	DateFrom     *time.Time
	DateTo       *time.Time
	PricelistIDs []int64
	Nominative   bool
	Rules        []*Rule
	Rewards      []*Reward
}

// Card is a customer's (or anonymous) point or monetary balance under a
// program. Negative identifiers mark provisional records created offline;
// they never collide with server-issued identifiers.
type Card struct {
	ID             int64
	Code           string
	ProgramID      int64
	PartnerID      int64
	Points         decimal.Decimal
	ExpirationDate *time.Time
}

func (c *Card) Provisional() bool {
	return c.ID < 0
}

type Partner struct {
	ID   int64
	Name string
}
