package remote

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"fidelio-pos/internal/database/models"
	"fidelio-pos/internal/loyalty"
)

// SessionData is the preload payload a terminal downloads at session
// start, shaped exactly as the server serializes it.
type SessionData struct {
	Programs []models.LoyaltyProgram `json:"programs"`
	Products []models.Product        `json:"products"`
	Families []models.LoyaltyFamily  `json:"families"`
	Cards    []models.LoyaltyCard    `json:"cards"`
}

func (c *Client) FetchSessionData(ctx context.Context) (*SessionData, error) {
	var data SessionData
	if err := c.get(ctx, "/api/v1/loyalty/session-data", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// BuildCache normalizes the raw preload payload into the engine cache.
// Records with unparseable decimal columns are skipped with a log line
// rather than poisoning the session.
func BuildCache(data *SessionData) *loyalty.Cache {
	cache := loyalty.NewCache()

	for i := range data.Families {
		f := &data.Families[i]
		threshold, err := decimal.NewFromString(f.PriceThreshold)
		if err != nil {
			log.Printf("session: family %d has invalid threshold %q, skipping", f.ID, f.PriceThreshold)
			continue
		}
		cache.AddFamily(&loyalty.Family{
			ID:             f.ID,
			Name:           f.FamilyName,
			PriceThreshold: threshold,
			PointsEarned:   int64(f.PointsEarned),
			Active:         f.IsActive,
		})
	}

	for i := range data.Products {
		p := &data.Products[i]
		price, err := decimal.NewFromString(p.ProductPrice)
		if err != nil {
			log.Printf("session: product %d has invalid price %q, skipping", p.ID, p.ProductPrice)
			continue
		}
		cache.AddProduct(&loyalty.Product{
			ID:       p.ID,
			Name:     p.ProductName,
			Price:    price,
			Eligible: p.IsEligible,
			FamilyID: derefInt64(p.FamilyId),
		})
	}

	for i := range data.Programs {
		cache.AddProgram(toEngineProgram(&data.Programs[i]))
	}

	for i := range data.Cards {
		card := &data.Cards[i]
		points, err := decimal.NewFromString(card.Points)
		if err != nil {
			log.Printf("session: card %d has invalid balance %q, skipping", card.ID, card.Points)
			continue
		}
		cache.PutCard(&loyalty.Card{
			ID:             card.ID,
			Code:           card.Code,
			ProgramID:      card.ProgramId,
			PartnerID:      derefInt64(card.PartnerId),
			Points:         points,
			ExpirationDate: card.ExpirationDate,
		})
	}

	return cache
}

func toEngineProgram(p *models.LoyaltyProgram) *loyalty.Program {
	program := &loyalty.Program{
		ID:           p.ID,
		Name:         p.ProgramName,
		Type:         loyalty.ProgramType(p.ProgramType),
		DateFrom:     p.DateFrom,
		DateTo:       p.DateTo,
		PricelistIDs: p.PricelistIds,
		Nominative:   p.IsNominative,
	}

	for i := range p.Rules {
		r := &p.Rules[i]
		minAmount, _ := decimal.NewFromString(r.MinAmount)
		rule := &loyalty.Rule{
			ID:           r.ID,
			ProgramID:    r.ProgramId,
			Mode:         loyalty.RuleMode(r.Mode),
			Code:         r.Code,
			PromoBarcode: r.PromoBarcode,
			AnyProduct:   r.AnyProduct,
			MinQuantity:  int(r.MinQuantity),
			MinAmount:    minAmount,
		}
		if len(r.ProductIds) > 0 {
			rule.ProductIDs = make(map[int64]struct{}, len(r.ProductIds))
			for _, id := range r.ProductIds {
				rule.ProductIDs[id] = struct{}{}
			}
		}
		program.Rules = append(program.Rules, rule)
	}

	for i := range p.Rewards {
		r := &p.Rewards[i]
		discountPercent, _ := decimal.NewFromString(r.DiscountPercent)
		pointCost, _ := decimal.NewFromString(r.PointCost)
		program.Rewards = append(program.Rewards, &loyalty.Reward{
			ID:                    r.ID,
			ProgramID:             r.ProgramId,
			Type:                  loyalty.RewardType(r.RewardType),
			DiscountPercent:       discountPercent,
			ProductID:             derefInt64(r.RewardProductId),
			ProductQty:            int(r.RewardProductQty),
			PointCost:             pointCost,
			MultiProduct:          r.MultiProduct,
			DiscountLineProductID: derefInt64(r.DiscountLineProductId),
		})
	}

	return program
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
