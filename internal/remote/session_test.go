package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidelio-pos/internal/database/models"
	"fidelio-pos/internal/loyalty"
)

func sessionPayload() *SessionData {
	partner := int64(42)
	familyID := int64(1)
	productID := int64(101)
	expiry := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	return &SessionData{
		Programs: []models.LoyaltyProgram{{
			ID:           20,
			ProgramName:  "3x4 Beans",
			ProgramType:  "buy_x_get_y",
			PricelistIds: models.Int64Array{1, 2},
			Rules: []models.LoyaltyRule{{
				ID: 21, ProgramId: 20, Mode: "auto",
				ProductIds: models.Int64Array{101}, MinQuantity: 3,
				MinAmount: "0.00",
			}},
			Rewards: []models.LoyaltyReward{{
				ID: 22, ProgramId: 20, RewardType: "product",
				RewardProductId: &productID, RewardProductQty: 1,
				DiscountPercent: "0.00", PointCost: "0.00",
			}},
		}},
		Products: []models.Product{{
			ID: 101, ProductCode: "BEANS", ProductName: "Espresso Beans",
			ProductPrice: "150.00", IsEligible: true, FamilyId: &familyID,
		}},
		Families: []models.LoyaltyFamily{{
			ID: 1, FamilyName: "Grocery", PriceThreshold: "200.00",
			PointsEarned: 1, IsActive: true,
		}},
		Cards: []models.LoyaltyCard{{
			ID: 501, Code: "GIFT5000", ProgramId: 20, PartnerId: &partner,
			Points: "5000.00", ExpirationDate: &expiry, State: "active",
		}},
	}
}

func TestBuildCacheNormalizesPayload(t *testing.T) {
	cache := BuildCache(sessionPayload())

	program := cache.Program(20)
	require.NotNil(t, program)
	assert.Equal(t, loyalty.ProgramBuyXGetY, program.Type)
	assert.Equal(t, []int64{1, 2}, program.PricelistIDs)

	require.Len(t, program.Rules, 1)
	rule := program.Rules[0]
	assert.Equal(t, loyalty.RuleAuto, rule.Mode)
	assert.Equal(t, 3, rule.MinQuantity)
	assert.True(t, rule.MatchesProduct(101))
	assert.False(t, rule.MatchesProduct(102))

	require.Len(t, program.Rewards, 1)
	reward := program.Rewards[0]
	assert.Equal(t, loyalty.RewardProduct, reward.Type)
	assert.Equal(t, int64(101), reward.ProductID)
	assert.Equal(t, 1, reward.ProductQty)

	product := cache.Product(101)
	require.NotNil(t, product)
	assert.Equal(t, "150", product.Price.String())
	assert.Equal(t, int64(1), product.FamilyID)

	family := cache.Family(1)
	require.NotNil(t, family)
	assert.Equal(t, "200", family.PriceThreshold.String())
	assert.Equal(t, int64(1), family.PointsEarned)

	card := cache.CardByCode("GIFT5000")
	require.NotNil(t, card)
	assert.Equal(t, int64(501), card.ID)
	assert.Equal(t, int64(42), card.PartnerID)
	assert.Equal(t, "5000", card.Points.String())
	require.NotNil(t, card.ExpirationDate)
}

func TestBuildCacheSkipsInvalidDecimals(t *testing.T) {
	data := sessionPayload()
	data.Families = append(data.Families, models.LoyaltyFamily{
		ID: 2, FamilyName: "Broken", PriceThreshold: "not-a-number", PointsEarned: 1, IsActive: true,
	})
	data.Products = append(data.Products, models.Product{
		ID: 102, ProductName: "Broken", ProductPrice: "oops", IsEligible: true,
	})
	data.Cards = append(data.Cards, models.LoyaltyCard{
		ID: 502, Code: "BROKEN", ProgramId: 20, Points: "??", State: "active",
	})

	cache := BuildCache(data)

	// Bad records are dropped, good ones survive.
	assert.Nil(t, cache.Family(2))
	assert.Nil(t, cache.Product(102))
	assert.Nil(t, cache.CardByCode("BROKEN"))
	assert.NotNil(t, cache.Family(1))
	assert.NotNil(t, cache.Product(101))
	assert.NotNil(t, cache.CardByCode("GIFT5000"))
}

func TestFetchSessionDataRoundTrip(t *testing.T) {
	payload := sessionPayload()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/loyalty/session-data", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).FetchSessionData(context.Background())
	require.NoError(t, err)

	cache := BuildCache(data)
	require.NotNil(t, cache.Program(20))
	card := cache.CardByCode("GIFT5000")
	require.NotNil(t, card)
	assert.Equal(t, "5000", card.Points.String())
}

func TestFetchSessionDataUnreachable(t *testing.T) {
	_, err := testClient("http://127.0.0.1:1").FetchSessionData(context.Background())
	require.Error(t, err)
	assert.True(t, loyalty.IsTransient(err))
}
