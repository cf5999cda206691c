package loyalty

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// Controller drives code activation and reward application for a single
// order. At most one activation is in flight at a time; the engine runs
// on a single event loop so a plain busy flag is enough.
type Controller struct {
	session *Session
	order   *Order
	busy    bool
}

type ActivateOptions struct {
	// AcceptUnpaidGiftCard confirms applying a gift card that is not
	// linked to any source order. Without it the controller returns a
	// NeedsGiftCardConfirmation outcome and touches no state, so an
	// abandoned confirmation dialog needs no rollback.
	AcceptUnpaidGiftCard bool
}

type ActivationOutcome struct {
	PartnerAssigned           bool
	PartnerID                 int64
	Partner                   *Partner
	NeedsGiftCardConfirmation bool
	Card                      *Card
	Claimable                 []ClaimableReward
	AppliedReward             *ClaimableReward
	GiftCardBalance           decimal.Decimal
	Offline                   bool
}

func (c *Controller) Order() *Order {
	return c.order
}

// ActivateCode runs the full activation flow for an entered code:
// rule match first (local, synchronous), then remote validation as a
// card/voucher with offline fallback on transient failure.
func (c *Controller) ActivateCode(ctx context.Context, code string, opts ActivateOptions) (*ActivationOutcome, error) {
	if c.busy {
		return nil, validationErr(ReasonBusy, "another code activation is in progress")
	}
	c.busy = true
	defer func() { c.busy = false }()

	if c.order.Finalized() {
		return nil, validationErr(ReasonOrderFinalized, "order is finalized and can no longer be modified")
	}

	rule := c.session.matcher.RuleByCode(code)

	// A code may belong to a loyalty card, in which case activating it
	// only assigns the owning customer to the order.
	partnerID, err := c.session.remote.CardPartnerByCode(ctx, code)
	if err != nil {
		if !IsTransient(err) {
			return nil, err
		}
		partnerID = c.session.offline.CardPartnerByCode(code)
	}
	if partnerID != 0 {
		c.order.SetPartner(partnerID)
		return &ActivationOutcome{
			PartnerAssigned: true,
			PartnerID:       partnerID,
			Partner:         c.session.cache.Partner(partnerID),
		}, nil
	}

	if rule != nil {
		return c.activateRule(code, rule)
	}
	return c.activateCoupon(ctx, code, opts)
}

func (c *Controller) activateRule(code string, rule *Rule) (*ActivationOutcome, error) {
	program := c.session.cache.Program(rule.ProgramID)
	if program == nil {
		return nil, configErr("rule %d references unknown program %d", rule.ID, rule.ProgramID)
	}
	if err := c.session.matcher.CheckWindow(program, c.order.Date); err != nil {
		return nil, err
	}
	if err := c.session.matcher.CheckPricelist(program, c.order.PricelistID); err != nil {
		return nil, err
	}
	if rule.MinAmount.IsPositive() && c.order.RegularTotal().LessThan(rule.MinAmount) {
		return nil, validationErr(ReasonMinAmount, "spend at least %s to use this code", rule.MinAmount.StringFixed(2))
	}
	if c.order.RuleActivated(rule.ID) || c.order.Activation(code) != nil {
		return nil, validationErr(ReasonAlreadyActivated, "that promo code program has already been activated")
	}

	act := c.order.recordRuleActivation(code, rule)
	act.State = StateApplied

	claimable := c.session.calc.ClaimableRewardsForProgram(program)
	outcome := &ActivationOutcome{Claimable: claimable}
	c.autoApply(outcome)
	return outcome, nil
}

func (c *Controller) activateCoupon(ctx context.Context, code string, opts ActivateOptions) (*ActivationOutcome, error) {
	if c.order.Activation(code) != nil {
		return nil, validationErr(ReasonAlreadyActivated, "that coupon code has already been scanned and activated")
	}

	req := CodeRequest{
		Code:        code,
		OrderDate:   c.order.Date,
		PartnerID:   c.order.PartnerID(),
		PricelistID: c.order.PricelistID,
	}

	offline := false
	result, err := c.session.remote.ValidateCode(ctx, req)
	if err != nil {
		if !IsTransient(err) {
			return nil, err
		}
		result = c.session.offline.ValidateCode(req)
		offline = true
	}

	if !result.Successful {
		return nil, validationErr(result.Reason, "%s", result.ErrorMessage)
	}

	program := c.session.cache.Program(result.ProgramID)
	if program != nil && program.Type == ProgramGiftCard && !result.HasSourceOrder && !opts.AcceptUnpaidGiftCard {
		// Nothing recorded yet: rejecting the confirmation leaves the
		// order untouched.
		return &ActivationOutcome{NeedsGiftCardConfirmation: true, Offline: offline}, nil
	}

	card := &Card{
		ID:        result.CouponID,
		Code:      code,
		ProgramID: result.ProgramID,
		PartnerID: result.PartnerID,
		Points:    result.Points,
	}
	// The validation payload carries no expiry; keep the cached one so a
	// later offline check in the same session still sees it.
	if existing := c.session.cache.Card(result.CouponID); existing != nil {
		card.ExpirationDate = existing.ExpirationDate
	}
	c.session.cache.PutCard(card)
	card = c.session.cache.Card(card.ID)

	act := c.order.recordCardActivation(code, card, offline || card.Provisional())
	act.State = StateApplied

	claimable := c.session.calc.ClaimableRewards(c.order, card)
	outcome := &ActivationOutcome{
		Card:      card,
		Claimable: claimable,
		Offline:   offline,
	}
	c.autoApply(outcome)

	if !c.order.HasRegularLines() {
		outcome.GiftCardBalance = card.Points
	}
	return outcome, nil
}

// autoApply applies the sole claimable reward, unless it is a
// multi-select product reward that needs a user choice.
func (c *Controller) autoApply(outcome *ActivationOutcome) {
	if len(outcome.Claimable) != 1 {
		return
	}
	claim := outcome.Claimable[0]
	if claim.Reward.Type == RewardProduct && claim.Reward.MultiProduct {
		return
	}
	if err := c.ApplyReward(claim.Reward, claim.CardID); err != nil {
		log.Printf("loyalty: auto-apply reward %d failed: %v", claim.Reward.ID, err)
		return
	}
	outcome.AppliedReward = &claim
}

// ApplyReward applies a reward to the order. Idempotent: prior reward
// lines for the same (reward, card) pair are regenerated, so repeated
// calls converge instead of accumulating duplicates.
func (c *Controller) ApplyReward(reward *Reward, cardID int64) error {
	if c.order.Finalized() {
		return validationErr(ReasonOrderFinalized, "order is finalized and can no longer be modified")
	}

	var card *Card
	if cardID != 0 {
		card = c.session.cache.Card(cardID)
		if card == nil {
			return validationErr(ReasonNotFound, "card %d not found", cardID)
		}
	}

	program := c.session.cache.Program(reward.ProgramID)
	if program == nil {
		return configErr("reward %d references unknown program %d", reward.ID, reward.ProgramID)
	}

	var err error
	switch reward.Type {
	case RewardProduct:
		err = c.applyProductReward(program, reward, cardID)
	case RewardDiscount:
		err = c.applyDiscountReward(program, reward, card, cardID)
	case RewardCredit:
		err = c.applyCreditReward(program, reward, card, cardID)
	default:
		err = configErr("reward %d has unknown type %q", reward.ID, reward.Type)
	}
	if err != nil {
		return err
	}

	if act := c.order.activationForCard(cardID); act != nil {
		act.PointsDelta = c.order.pendingSpendForCard(cardID).Neg()
	}
	return nil
}

func (c *Controller) applyProductReward(program *Program, reward *Reward, cardID int64) error {
	rule := firstRule(program)
	entitlement := c.session.calc.FreeQtyEntitlement(c.order, rule, reward)

	lines := c.order.rewardLines(reward.ID, cardID)
	if entitlement <= 0 {
		c.order.deleteRewardLines(reward.ID, cardID)
		return nil
	}

	product := c.session.cache.Product(reward.ProductID)
	if product == nil {
		return configErr("reward %d grants unknown product %d", reward.ID, reward.ProductID)
	}

	// Top up or trim the existing line instead of reissuing it, so
	// entitlement never exceeds floor(qty/buyQty)*freeQty however many
	// times the order is recomputed.
	if len(lines) > 0 {
		if granted := c.session.calc.GrantedFreeQty(c.order, reward, cardID); granted != entitlement {
			lines[0].Qty = entitlement
		}
		return nil
	}

	buyQty := 0
	if rule != nil {
		buyQty = rule.MinQuantity
	}
	c.order.addRewardLine(&Line{
		ProductID:  reward.ProductID,
		Qty:        entitlement,
		UnitPrice:  product.Price.Neg(),
		RewardID:   reward.ID,
		CardID:     cardID,
		PointsCost: reward.PointCost,
		Note:       fmt.Sprintf("Buy %d get %d (%d free)", buyQty, reward.ProductQty, entitlement),
	})
	return nil
}

func (c *Controller) applyDiscountReward(program *Program, reward *Reward, card *Card, cardID int64) error {
	if reward.DiscountLineProductID == 0 {
		return configErr("no discount product is configured on program %q", program.Name)
	}

	if card != nil {
		pendingOther := c.order.pendingSpendForCard(cardID).Sub(sumPointsCost(c.order.rewardLines(reward.ID, cardID)))
		if card.Points.Sub(pendingOther).LessThan(reward.PointCost) {
			return validationErr(ReasonInsufficientBalance, "card %s does not have enough points for this reward", card.Code)
		}
	}

	c.order.deleteRewardLines(reward.ID, cardID)

	base := c.order.RegularTotal()
	if !base.IsPositive() {
		return validationErr(ReasonEmptyOrder, "add items before applying this reward")
	}

	amount := base.Mul(reward.DiscountPercent).Div(decimal.NewFromInt(100)).Round(2)
	c.order.addRewardLine(&Line{
		ProductID:  reward.DiscountLineProductID,
		Qty:        1,
		UnitPrice:  amount.Neg(),
		RewardID:   reward.ID,
		CardID:     cardID,
		PointsCost: reward.PointCost,
		Note:       fmt.Sprintf("%s%% discount", reward.DiscountPercent),
	})
	return nil
}

func (c *Controller) applyCreditReward(program *Program, reward *Reward, card *Card, cardID int64) error {
	if card == nil {
		return validationErr(ReasonNotFound, "a card is required to apply this reward")
	}
	if reward.DiscountLineProductID == 0 {
		return configErr("no discount product is configured on program %q", program.Name)
	}

	c.order.deleteRewardLines(reward.ID, cardID)

	balance := card.Points
	if !balance.IsPositive() {
		return validationErr(ReasonExhausted, "this voucher has no remaining credit")
	}

	base := c.order.RegularTotal()
	if !base.IsPositive() {
		return validationErr(ReasonEmptyOrder, "add items before applying a voucher")
	}

	applied := decimal.Min(balance, base)

	if program.Type == ProgramBonAchat {
		// Informational zero-priced line: payment goes through the
		// voucher payment method, and the voucher is consumed in full
		// even when only part of its credit is applied.
		c.order.addRewardLine(&Line{
			ProductID:      reward.DiscountLineProductID,
			Qty:            1,
			UnitPrice:      decimal.Zero,
			RewardID:       reward.ID,
			CardID:         cardID,
			PointsCost:     balance,
			AppliedAmount:  applied,
			OriginalAmount: balance,
			Note:           fmt.Sprintf("Gift voucher %s - %s", card.Code, applied.StringFixed(2)),
		})
		return nil
	}

	c.order.addRewardLine(&Line{
		ProductID:  reward.DiscountLineProductID,
		Qty:        1,
		UnitPrice:  applied.Neg(),
		RewardID:   reward.ID,
		CardID:     cardID,
		PointsCost: applied,
		Note:       fmt.Sprintf("Gift card %s", card.Code),
	})
	return nil
}

// RefreshAutomaticRewards recomputes buy-X-get-Y entitlements for
// programs with automatic rules. Called after every order mutation.
func (c *Controller) RefreshAutomaticRewards() {
	if c.order.Finalized() {
		return
	}
	for _, program := range c.session.cache.Programs() {
		if program.Type != ProgramBuyXGetY {
			continue
		}
		rule := firstRule(program)
		if rule == nil || rule.Mode != RuleAuto {
			continue
		}
		if c.session.matcher.CheckWindow(program, c.order.Date) != nil {
			continue
		}
		if c.session.matcher.CheckPricelist(program, c.order.PricelistID) != nil {
			continue
		}
		for _, reward := range program.Rewards {
			if reward.Type != RewardProduct {
				continue
			}
			if err := c.ApplyReward(reward, 0); err != nil {
				if IsConfiguration(err) {
					log.Printf("loyalty: skipping reward %d: %v", reward.ID, err)
					continue
				}
				log.Printf("loyalty: refresh reward %d failed: %v", reward.ID, err)
			}
		}
	}
}

// RemoveActivation reverts an activated code: its reward lines are
// deleted along with the ledger entry.
func (c *Controller) RemoveActivation(code string) error {
	act := c.order.Activation(code)
	if act == nil {
		return validationErr(ReasonNotFound, "code %q is not activated on this order", code)
	}
	c.revert(act)
	c.order.removeActivation(act)
	return nil
}

// RemovePartner clears the order customer and reverts rewards that
// depended on customer-specific eligibility (nominative vouchers).
func (c *Controller) RemovePartner() {
	c.order.SetPartner(0)
	for _, act := range c.order.Activations() {
		if act.State != StateApplied || act.CardID == 0 {
			continue
		}
		program := c.session.cache.Program(act.ProgramID)
		card := c.session.cache.Card(act.CardID)
		if program != nil && program.Nominative && card != nil && card.PartnerID != 0 {
			c.revert(act)
		}
	}
}

func (c *Controller) revert(act *Activation) {
	if act.CardID != 0 {
		c.order.deleteRewardLinesForCard(act.CardID)
	} else if program := c.session.cache.Program(act.ProgramID); program != nil {
		for _, reward := range program.Rewards {
			c.order.deleteRewardLines(reward.ID, 0)
		}
	}
	act.PointsDelta = decimal.Zero
	act.State = StateReverted
}

// DoubleDiscountConflicts lists the products carrying both a manual line
// discount and an applied promotional reward. Exactly one discount source
// may apply per line.
func (c *Controller) DoubleDiscountConflicts() []string {
	active := c.activeDiscountPrograms()
	if len(active) == 0 {
		return nil
	}

	var products []string
	seen := make(map[int64]bool)
	for _, line := range c.order.Lines() {
		if line.IsRewardLine || !line.ManualDiscount.IsPositive() || seen[line.ProductID] {
			continue
		}
		for _, rule := range c.session.matcher.RulesForProduct(line.ProductID) {
			if _, ok := active[rule.ProgramID]; ok {
				seen[line.ProductID] = true
				products = append(products, c.productName(line.ProductID))
				break
			}
		}
	}
	return products
}

func (c *Controller) activeDiscountPrograms() map[int64]*Program {
	byID := make(map[int64]*Program)
	for _, act := range c.order.Activations() {
		if act.State != StateApplied {
			continue
		}
		if program := c.session.cache.Program(act.ProgramID); program != nil {
			byID[program.ID] = program
		}
	}
	for _, line := range c.order.Lines() {
		if !line.IsRewardLine {
			continue
		}
		if program := c.rewardProgram(line.RewardID); program != nil {
			byID[program.ID] = program
		}
	}
	return byID
}

func (c *Controller) rewardProgram(rewardID int64) *Program {
	for _, program := range c.session.cache.Programs() {
		for _, reward := range program.Rewards {
			if reward.ID == rewardID {
				return program
			}
		}
	}
	return nil
}

func (c *Controller) productName(productID int64) string {
	if product := c.session.cache.Product(productID); product != nil {
		return product.Name
	}
	return fmt.Sprintf("product %d", productID)
}

type FinalizeSummary struct {
	CardDeltas map[int64]decimal.Decimal
	Consumed   []string
}

// Finalize closes the order: invariants are checked, card balances are
// decremented (only now, so a cancelled sale never spends a balance) and
// activations transition to Consumed.
func (c *Controller) Finalize() (*FinalizeSummary, error) {
	if c.order.Finalized() {
		return nil, validationErr(ReasonOrderFinalized, "order is already finalized")
	}

	if conflicts := c.DoubleDiscountConflicts(); len(conflicts) > 0 {
		return nil, invariantErr(ReasonDoubleDiscount, conflicts,
			"manual discount and promotional reward both apply to")
	}

	// Validate every balance before mutating any of them.
	for _, act := range c.order.Activations() {
		if act.State != StateApplied || act.CardID == 0 {
			continue
		}
		card := c.session.cache.Card(act.CardID)
		if card == nil {
			return nil, configErr("activation %q references unknown card %d", act.Code, act.CardID)
		}
		if card.Points.Add(act.PointsDelta).IsNegative() {
			return nil, invariantErr(ReasonInsufficientBalance, nil,
				"card %s balance would go negative", card.Code)
		}
	}

	summary := &FinalizeSummary{CardDeltas: make(map[int64]decimal.Decimal)}
	for _, act := range c.order.Activations() {
		if act.State != StateApplied {
			continue
		}
		if act.CardID != 0 {
			card := c.session.cache.Card(act.CardID)
			card.Points = card.Points.Add(act.PointsDelta)
			c.session.cache.PutCard(card)
			summary.CardDeltas[act.CardID] = act.PointsDelta
		}
		act.State = StateConsumed
		summary.Consumed = append(summary.Consumed, act.Code)
	}

	c.order.finalized = true
	return summary, nil
}

func firstRule(program *Program) *Rule {
	if len(program.Rules) == 0 {
		return nil
	}
	return program.Rules[0]
}

func sumPointsCost(lines []*Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.PointsCost)
	}
	return total
}
