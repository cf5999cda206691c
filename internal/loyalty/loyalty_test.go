package loyalty

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var testOrderDate = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func daysFrom(t time.Time, days int) *time.Time {
	d := t.AddDate(0, 0, days)
	return &d
}

// testCache builds the baseline catalog: two point families, a few
// products and a dedicated zero-priced discount product.
func testCache() *Cache {
	cache := NewCache()
	cache.AddFamily(&Family{ID: 1, Name: "Grocery", PriceThreshold: dec("200"), PointsEarned: 1, Active: true})
	cache.AddFamily(&Family{ID: 2, Name: "Premium", PriceThreshold: dec("1000"), PointsEarned: 10, Active: true})
	cache.AddProduct(&Product{ID: 101, Name: "Espresso Beans", Price: dec("150.00"), Eligible: true, FamilyID: 1})
	cache.AddProduct(&Product{ID: 102, Name: "Grinder", Price: dec("500.00"), Eligible: true, FamilyID: 2})
	cache.AddProduct(&Product{ID: 103, Name: "Sticker", Price: dec("5.00"), Eligible: false, FamilyID: 1})
	cache.AddProduct(&Product{ID: 900, Name: "Discount", Price: dec("0.00")})
	return cache
}

func loyaltyProgram() *Program {
	p := &Program{ID: 10, Name: "Points", Type: ProgramLoyalty}
	p.Rules = []*Rule{{ID: 11, ProgramID: 10, Mode: RuleAuto, AnyProduct: true}}
	return p
}

func buyXGetYProgram() *Program {
	p := &Program{ID: 20, Name: "3x4 Beans", Type: ProgramBuyXGetY}
	p.Rules = []*Rule{{
		ID: 21, ProgramID: 20, Mode: RuleAuto,
		ProductIDs: map[int64]struct{}{101: {}}, MinQuantity: 3,
	}}
	p.Rewards = []*Reward{{ID: 22, ProgramID: 20, Type: RewardProduct, ProductID: 101, ProductQty: 1}}
	return p
}

func giftCardProgram() *Program {
	p := &Program{ID: 30, Name: "Gift Cards", Type: ProgramGiftCard}
	p.Rewards = []*Reward{{ID: 31, ProgramID: 30, Type: RewardCredit, DiscountLineProductID: 900}}
	return p
}

func bonAchatProgram() *Program {
	p := &Program{ID: 40, Name: "Purchase Vouchers", Type: ProgramBonAchat}
	p.Rewards = []*Reward{{ID: 41, ProgramID: 40, Type: RewardCredit, DiscountLineProductID: 900}}
	return p
}

func promoCodeProgram() *Program {
	p := &Program{ID: 50, Name: "Spring Promo", Type: ProgramPromoCode}
	p.Rules = []*Rule{{ID: 51, ProgramID: 50, Mode: RuleWithCode, Code: "PROMO10", AnyProduct: true}}
	p.Rewards = []*Reward{{
		ID: 52, ProgramID: 50, Type: RewardDiscount,
		DiscountPercent: dec("10"), DiscountLineProductID: 900,
	}}
	return p
}

// fakeRemote is a scriptable RemoteValidator. With unreachable set every
// call fails transiently, which drives the offline fallback.
type fakeRemote struct {
	unreachable bool
	partners    map[string]int64
	validation  *CodeValidation
	card        *Card

	validateCalls int
}

func (f *fakeRemote) ValidateCode(_ context.Context, req CodeRequest) (*CodeValidation, error) {
	f.validateCalls++
	if f.unreachable {
		return nil, transientErr(errors.New("connection refused"), "loyalty service unreachable")
	}
	if f.validation != nil {
		return f.validation, nil
	}
	return &CodeValidation{Successful: false, Reason: ReasonNotFound, ErrorMessage: "This coupon is invalid"}, nil
}

func (f *fakeRemote) CardPartnerByCode(_ context.Context, code string) (int64, error) {
	if f.unreachable {
		return 0, transientErr(errors.New("connection refused"), "loyalty service unreachable")
	}
	return f.partners[code], nil
}

func (f *fakeRemote) FetchCard(_ context.Context, _, _ int64) (*Card, error) {
	if f.unreachable {
		return nil, transientErr(errors.New("connection refused"), "loyalty service unreachable")
	}
	return f.card, nil
}

func (f *fakeRemote) Status(_ context.Context, _ string) (*StatusResult, error) {
	if f.unreachable {
		return nil, transientErr(errors.New("connection refused"), "loyalty service unreachable")
	}
	return &StatusResult{Success: true, Status: StatusDone}, nil
}

func newTestSession(cache *Cache, remote RemoteValidator) *Session {
	if remote == nil {
		remote = &fakeRemote{}
	}
	return NewSession(cache, remote)
}

func mustAddLine(o *Order, productID int64, qty int, unitPrice decimal.Decimal) *Line {
	line, err := o.AddLine(productID, qty, unitPrice)
	if err != nil {
		panic(err)
	}
	return line
}
