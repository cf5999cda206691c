package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidelio-pos/internal/database/models"
	"fidelio-pos/internal/loyalty"
)

var orderDate = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func activeCard() *models.LoyaltyCard {
	return &models.LoyaltyCard{
		ID:        501,
		Code:      "GIFT5000",
		ProgramId: 30,
		Points:    "5000.00",
		State:     CARD_STATE_ACTIVE,
		Program: &models.LoyaltyProgram{
			ID:          30,
			ProgramName: "Gift Cards",
			ProgramType: "gift_card",
			IsActive:    true,
		},
	}
}

func TestValidateCardAccepts(t *testing.T) {
	card := activeCard()
	assert.Nil(t, validateCard(card, UseCodeRequest{Code: card.Code}, orderDate))
}

func TestValidateCardUsed(t *testing.T) {
	card := activeCard()
	card.State = CARD_STATE_USED

	payload := validateCard(card, UseCodeRequest{}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonExhausted, payload.Reason)
}

func TestValidateCardZeroBalance(t *testing.T) {
	card := activeCard()
	card.Points = "0.00"

	payload := validateCard(card, UseCodeRequest{}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonExhausted, payload.Reason)
}

func TestValidateCardExpired(t *testing.T) {
	card := activeCard()
	yesterday := orderDate.AddDate(0, 0, -1)
	card.ExpirationDate = &yesterday

	payload := validateCard(card, UseCodeRequest{}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonExpired, payload.Reason)

	// Expiring today is still valid.
	today := startOfDay(orderDate)
	card.ExpirationDate = &today
	assert.Nil(t, validateCard(card, UseCodeRequest{}, orderDate))
}

func TestValidateCardProgramWindow(t *testing.T) {
	card := activeCard()
	past := orderDate.AddDate(0, 0, -5)
	card.Program.DateTo = &past

	payload := validateCard(card, UseCodeRequest{}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonProgramExpired, payload.Reason)

	future := orderDate.AddDate(0, 0, 5)
	card.Program.DateTo = nil
	card.Program.DateFrom = &future
	payload = validateCard(card, UseCodeRequest{}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonNotStarted, payload.Reason)
}

func TestValidateCardInactiveProgram(t *testing.T) {
	card := activeCard()
	card.Program.IsActive = false

	payload := validateCard(card, UseCodeRequest{}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonNotFound, payload.Reason)
}

func TestValidateCardPricelist(t *testing.T) {
	card := activeCard()
	card.Program.PricelistIds = models.Int64Array{1, 2}

	payload := validateCard(card, UseCodeRequest{PricelistID: 7}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonWrongPricelist, payload.Reason)

	assert.Nil(t, validateCard(card, UseCodeRequest{PricelistID: 2}, orderDate))
}

func TestValidateCardNominative(t *testing.T) {
	card := activeCard()
	card.Program.IsNominative = true
	owner := int64(42)
	card.PartnerId = &owner

	payload := validateCard(card, UseCodeRequest{PartnerID: 43}, orderDate)
	require.NotNil(t, payload)
	assert.Equal(t, loyalty.ReasonWrongCustomer, payload.Reason)

	assert.Nil(t, validateCard(card, UseCodeRequest{PartnerID: 42}, orderDate))
	// Anonymous order cannot prove a mismatch.
	assert.Nil(t, validateCard(card, UseCodeRequest{}, orderDate))
}
