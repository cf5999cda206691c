package loyalty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoyaltyPointsPerFamilyBuckets(t *testing.T) {
	cache := testCache()
	program := loyaltyProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	mustAddLine(order, 101, 3, dec("150.00")) // 450 in the 200-threshold family
	mustAddLine(order, 102, 2, dec("500.00")) // 1000 in the 1000-threshold family

	points := session.Calculator().LoyaltyPoints(order, program)
	// floor(450/200)*1 + floor(1000/1000)*10
	assert.True(t, dec("12").Equal(points), "got %s", points)
}

func TestLoyaltyPointsBelowThresholdEarnsNothing(t *testing.T) {
	cache := testCache()
	program := loyaltyProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	mustAddLine(order, 101, 1, dec("199.00"))

	points := session.Calculator().LoyaltyPoints(order, program)
	assert.True(t, points.IsZero(), "got %s", points)
}

func TestLoyaltyPointsIdempotent(t *testing.T) {
	cache := testCache()
	program := loyaltyProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	mustAddLine(order, 101, 3, dec("150.00"))
	mustAddLine(order, 102, 1, dec("500.00"))

	first := session.Calculator().LoyaltyPoints(order, program)
	second := session.Calculator().LoyaltyPoints(order, program)
	assert.True(t, first.Equal(second))
}

func TestLoyaltyPointsSkipsIneligibleAndRewardLines(t *testing.T) {
	cache := testCache()
	program := loyaltyProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	mustAddLine(order, 103, 100, dec("5.00")) // not eligible
	order.addRewardLine(&Line{ProductID: 101, Qty: 10, UnitPrice: dec("-150.00"), RewardID: 22})

	points := session.Calculator().LoyaltyPoints(order, program)
	assert.True(t, points.IsZero(), "got %s", points)
}

func TestLoyaltyPointsManualDiscountReducesBucket(t *testing.T) {
	cache := testCache()
	program := loyaltyProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	line := mustAddLine(order, 101, 3, dec("150.00"))
	require.NoError(t, order.SetManualDiscount(line.ID, dec("50")))

	// 450 * 0.5 = 225 -> one full 200 step
	points := session.Calculator().LoyaltyPoints(order, program)
	assert.True(t, dec("1").Equal(points), "got %s", points)
}

func TestLoyaltyPointsInvalidThresholdSkipped(t *testing.T) {
	cache := testCache()
	cache.AddFamily(&Family{ID: 3, Name: "Broken", PriceThreshold: dec("0"), PointsEarned: 5, Active: true})
	cache.AddProduct(&Product{ID: 104, Name: "Mug", Price: dec("80.00"), Eligible: true, FamilyID: 3})
	program := loyaltyProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	mustAddLine(order, 104, 10, dec("80.00"))

	points := session.Calculator().LoyaltyPoints(order, program)
	assert.True(t, points.IsZero(), "got %s", points)
}

func TestPointsForProgramsAlwaysHasEntry(t *testing.T) {
	cache := testCache()
	program := loyaltyProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	result := session.Calculator().PointsForPrograms(order)

	entries, ok := result[program.ID]
	require.True(t, ok, "program must map to a slice even when nothing is earned")
	assert.Empty(t, entries)
}

func TestFreeQtyEntitlementPerLine(t *testing.T) {
	cache := testCache()
	program := buyXGetYProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)
	rule := program.Rules[0]
	reward := program.Rewards[0]

	tests := []struct {
		name string
		qtys []int
		want int
	}{
		{"exactly one batch", []int{3}, 1},
		{"remainder ignored", []int{4}, 1},
		{"two batches one line", []int{6}, 2},
		{"two lines earn separately", []int{3, 3}, 2},
		{"below threshold", []int{2}, 0},
		{"no pooling across lines", []int{2, 2}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := NewOrder(testOrderDate, 0)
			for _, qty := range tc.qtys {
				mustAddLine(order, 101, qty, dec("150.00"))
			}
			got := session.Calculator().FreeQtyEntitlement(order, rule, reward)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFreeQtyEntitlementIgnoresOtherProducts(t *testing.T) {
	cache := testCache()
	program := buyXGetYProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	order := NewOrder(testOrderDate, 0)
	mustAddLine(order, 102, 9, dec("500.00"))

	got := session.Calculator().FreeQtyEntitlement(order, program.Rules[0], program.Rewards[0])
	assert.Equal(t, 0, got)
}

func TestGrantedFreeQtyCountsOnlyMatchingLines(t *testing.T) {
	cache := testCache()
	program := buyXGetYProgram()
	cache.AddProgram(program)
	session := newTestSession(cache, nil)
	reward := program.Rewards[0]

	order := NewOrder(testOrderDate, 0)
	mustAddLine(order, 101, 6, dec("150.00"))
	order.addRewardLine(&Line{ProductID: 101, Qty: 2, UnitPrice: dec("-150.00"), RewardID: reward.ID})
	order.addRewardLine(&Line{ProductID: 101, Qty: 1, UnitPrice: dec("-150.00"), RewardID: reward.ID, CardID: 601})

	assert.Equal(t, 2, session.Calculator().GrantedFreeQty(order, reward, 0))
	assert.Equal(t, 1, session.Calculator().GrantedFreeQty(order, reward, 601))
	assert.Equal(t, 0, session.Calculator().GrantedFreeQty(order, reward, 999))
}

func TestClaimableRewardsRespectsPendingSpend(t *testing.T) {
	cache := testCache()
	program := &Program{ID: 60, Name: "Redeem", Type: ProgramLoyalty}
	program.Rewards = []*Reward{
		{ID: 61, ProgramID: 60, Type: RewardDiscount, DiscountPercent: dec("5"), PointCost: dec("50"), DiscountLineProductID: 900},
		{ID: 62, ProgramID: 60, Type: RewardDiscount, DiscountPercent: dec("20"), PointCost: dec("200"), DiscountLineProductID: 900},
	}
	cache.AddProgram(program)
	session := newTestSession(cache, nil)

	card := &Card{ID: 601, Code: "CARD601", ProgramID: 60, Points: dec("100")}
	cache.PutCard(card)

	order := NewOrder(testOrderDate, 0)
	claimable := session.Calculator().ClaimableRewards(order, card)
	require.Len(t, claimable, 1)
	assert.Equal(t, int64(61), claimable[0].Reward.ID)

	// Pending spend on the order reduces what is claimable.
	order.addRewardLine(&Line{ProductID: 900, Qty: 1, RewardID: 61, CardID: 601, PointsCost: dec("60")})
	assert.Empty(t, session.Calculator().ClaimableRewards(order, card))
}
