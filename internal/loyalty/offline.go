package loyalty

// OfflineValidator substitutes local-cache validation when the remote
// call fails. It runs the same rule set as the online path, entirely
// against the session cache, and returns a result shaped identically to
// the remote success payload.
type OfflineValidator struct {
	cache   *Cache
	matcher *Matcher
}

func NewOfflineValidator(cache *Cache, matcher *Matcher) *OfflineValidator {
	return &OfflineValidator{cache: cache, matcher: matcher}
}

// ValidateCode validates a coupon or voucher code against cached cards.
// Never touches the network; an invalid code never passes silently.
func (v *OfflineValidator) ValidateCode(req CodeRequest) *CodeValidation {
	card := v.cache.CardByCode(req.Code)
	if card == nil {
		return failure(ReasonNotFound, "this code is not valid or was not preloaded for offline mode")
	}

	program := v.cache.Program(card.ProgramID)
	if program == nil {
		return failure(ReasonNotFound, "no program found for this coupon")
	}

	if !card.Points.IsPositive() {
		return failure(ReasonExhausted, "this coupon has no remaining balance")
	}

	if card.ExpirationDate != nil && startOfDay(*card.ExpirationDate).Before(startOfDay(req.OrderDate)) {
		return failure(ReasonExpired, "this coupon is expired")
	}

	if err := v.matcher.CheckWindow(program, req.OrderDate); err != nil {
		return failure(ReasonOf(err), err.Error())
	}

	if err := v.matcher.CheckPricelist(program, req.PricelistID); err != nil {
		return failure(ReasonWrongPricelist, "this coupon requires a specific pricelist")
	}

	if program.Nominative && card.PartnerID != 0 && req.PartnerID != 0 && card.PartnerID != req.PartnerID {
		return failure(ReasonWrongCustomer, "this coupon is reserved for another customer")
	}

	return &CodeValidation{
		Successful: true,
		CouponID:   card.ID,
		ProgramID:  program.ID,
		PartnerID:  card.PartnerID,
		Points:     card.Points,
		// Assume the voucher was paid for; offline cannot check the
		// source order.
		HasSourceOrder: true,
	}
}

// CardPartnerByCode resolves a loyalty-card code against the cache.
func (v *OfflineValidator) CardPartnerByCode(code string) int64 {
	for _, card := range v.cache.FilterCards(func(card *Card) bool { return card.Code == code }) {
		program := v.cache.Program(card.ProgramID)
		if program != nil && program.Type == ProgramLoyalty {
			return card.PartnerID
		}
	}
	return 0
}

func failure(reason Reason, message string) *CodeValidation {
	return &CodeValidation{
		Successful:   false,
		Reason:       reason,
		ErrorMessage: message,
	}
}
