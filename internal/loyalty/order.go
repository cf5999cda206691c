package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivationState tracks the lifecycle of a code on an order:
// Unredeemed -> PendingValidation -> Applied -> (Reverted | Consumed).
type ActivationState int

const (
	StateUnredeemed ActivationState = iota
	StatePendingValidation
	StateApplied
	StateReverted
	StateConsumed
)

// Activation is the per-order ledger entry for an activated code. Exactly
// one entry exists per distinct code; PointsDelta is the pending balance
// change confirmed only at finalization.
type Activation struct {
	Code        string
	RuleID      int64
	ProgramID   int64
	CardID      int64
	PointsDelta decimal.Decimal
	State       ActivationState
	Provisional bool
}

type Line struct {
	ID             int64
	ProductID      int64
	Qty            int
	UnitPrice      decimal.Decimal // tax inclusive
	ManualDiscount decimal.Decimal // percent, manual cashier discount
	IsRewardLine   bool
	RewardID       int64
	CardID         int64
	PointsCost     decimal.Decimal
	AppliedAmount  decimal.Decimal // informational voucher lines only
	OriginalAmount decimal.Decimal
	Note           string
}

// Total returns the tax-inclusive line total after the manual discount.
func (l *Line) Total() decimal.Decimal {
	total := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
	if l.ManualDiscount.IsPositive() {
		factor := decimal.NewFromInt(100).Sub(l.ManualDiscount).Div(decimal.NewFromInt(100))
		total = total.Mul(factor)
	}
	return total
}

type Order struct {
	Date        time.Time
	PricelistID int64

	partnerID      int64
	lines          []*Line
	activations    []*Activation
	activatedRules map[int64]bool
	nextLineID     int64
	finalized      bool
}

func NewOrder(date time.Time, pricelistID int64) *Order {
	return &Order{
		Date:           date,
		PricelistID:    pricelistID,
		activatedRules: make(map[int64]bool),
	}
}

func (o *Order) Finalized() bool {
	return o.finalized
}

func (o *Order) PartnerID() int64 {
	return o.partnerID
}

func (o *Order) SetPartner(partnerID int64) {
	o.partnerID = partnerID
}

func (o *Order) AddLine(productID int64, qty int, unitPrice decimal.Decimal) (*Line, error) {
	if o.finalized {
		return nil, validationErr(ReasonOrderFinalized, "order is finalized and can no longer be modified")
	}
	o.nextLineID++
	line := &Line{
		ID:        o.nextLineID,
		ProductID: productID,
		Qty:       qty,
		UnitPrice: unitPrice,
	}
	o.lines = append(o.lines, line)
	return line, nil
}

func (o *Order) RemoveLine(lineID int64) error {
	if o.finalized {
		return validationErr(ReasonOrderFinalized, "order is finalized and can no longer be modified")
	}
	for i, line := range o.lines {
		if line.ID == lineID {
			o.lines = append(o.lines[:i], o.lines[i+1:]...)
			return nil
		}
	}
	return validationErr(ReasonNotFound, "line %d not found on order", lineID)
}

func (o *Order) SetManualDiscount(lineID int64, percent decimal.Decimal) error {
	if o.finalized {
		return validationErr(ReasonOrderFinalized, "order is finalized and can no longer be modified")
	}
	for _, line := range o.lines {
		if line.ID != lineID {
			continue
		}
		if line.IsRewardLine {
			return validationErr(ReasonNone, "reward lines cannot be edited manually")
		}
		line.ManualDiscount = percent
		return nil
	}
	return validationErr(ReasonNotFound, "line %d not found on order", lineID)
}

// Lines returns a snapshot of the order lines.
func (o *Order) Lines() []*Line {
	out := make([]*Line, len(o.lines))
	copy(out, o.lines)
	return out
}

// Total is the tax-inclusive order total, reward lines included.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.lines {
		total = total.Add(line.Total())
	}
	return total
}

// RegularTotal sums non-reward, positive-quantity lines only.
func (o *Order) RegularTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.lines {
		if line.IsRewardLine || line.Qty <= 0 {
			continue
		}
		total = total.Add(line.Total())
	}
	return total
}

func (o *Order) HasRegularLines() bool {
	for _, line := range o.lines {
		if !line.IsRewardLine {
			return true
		}
	}
	return false
}

func (o *Order) Activation(code string) *Activation {
	for _, act := range o.activations {
		if act.Code == code {
			return act
		}
	}
	return nil
}

func (o *Order) Activations() []*Activation {
	out := make([]*Activation, len(o.activations))
	copy(out, o.activations)
	return out
}

func (o *Order) RuleActivated(ruleID int64) bool {
	return o.activatedRules[ruleID]
}

func (o *Order) activationForCard(cardID int64) *Activation {
	if cardID == 0 {
		return nil
	}
	for _, act := range o.activations {
		if act.CardID == cardID {
			return act
		}
	}
	return nil
}

func (o *Order) recordRuleActivation(code string, rule *Rule) *Activation {
	act := &Activation{
		Code:      code,
		RuleID:    rule.ID,
		ProgramID: rule.ProgramID,
		State:     StatePendingValidation,
	}
	o.activations = append(o.activations, act)
	o.activatedRules[rule.ID] = true
	return act
}

func (o *Order) recordCardActivation(code string, card *Card, provisional bool) *Activation {
	act := &Activation{
		Code:        code,
		ProgramID:   card.ProgramID,
		CardID:      card.ID,
		State:       StatePendingValidation,
		Provisional: provisional,
	}
	o.activations = append(o.activations, act)
	return act
}

func (o *Order) removeActivation(act *Activation) {
	for i, a := range o.activations {
		if a == act {
			o.activations = append(o.activations[:i], o.activations[i+1:]...)
			break
		}
	}
	if act.RuleID != 0 {
		delete(o.activatedRules, act.RuleID)
	}
}

func (o *Order) rewardLines(rewardID, cardID int64) []*Line {
	var out []*Line
	for _, line := range o.lines {
		if line.IsRewardLine && line.RewardID == rewardID && line.CardID == cardID {
			out = append(out, line)
		}
	}
	return out
}

func (o *Order) deleteRewardLines(rewardID, cardID int64) {
	kept := o.lines[:0]
	for _, line := range o.lines {
		if line.IsRewardLine && line.RewardID == rewardID && line.CardID == cardID {
			continue
		}
		kept = append(kept, line)
	}
	o.lines = kept
}

func (o *Order) deleteRewardLinesForCard(cardID int64) {
	kept := o.lines[:0]
	for _, line := range o.lines {
		if line.IsRewardLine && line.CardID == cardID {
			continue
		}
		kept = append(kept, line)
	}
	o.lines = kept
}

func (o *Order) addRewardLine(line *Line) *Line {
	o.nextLineID++
	line.ID = o.nextLineID
	line.IsRewardLine = true
	o.lines = append(o.lines, line)
	return line
}

// pendingSpendForCard sums the point costs of the card's reward lines.
func (o *Order) pendingSpendForCard(cardID int64) decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.lines {
		if line.IsRewardLine && line.CardID == cardID {
			total = total.Add(line.PointsCost)
		}
	}
	return total
}
