package loyalty

import "time"

// Matcher resolves entered codes and products to rules and programs.
// Pure lookups over the session cache, no side effects.
type Matcher struct {
	cache *Cache
}

func NewMatcher(cache *Cache) *Matcher {
	return &Matcher{cache: cache}
}

// RuleByCode finds the with-code rule whose promotional code or barcode
// equals code, case sensitive. When several rules carry the same code the
// first one in program-load order wins.
func (m *Matcher) RuleByCode(code string) *Rule {
	if code == "" {
		return nil
	}
	for _, program := range m.cache.programs {
		for _, rule := range program.Rules {
			if rule.Mode != RuleWithCode {
				continue
			}
			if rule.Code == code || rule.PromoBarcode == code {
				return rule
			}
		}
	}
	return nil
}

// RulesForProduct returns every rule whose product scope covers productID,
// in program-load order.
func (m *Matcher) RulesForProduct(productID int64) []*Rule {
	var out []*Rule
	for _, program := range m.cache.programs {
		for _, rule := range program.Rules {
			if rule.MatchesProduct(productID) {
				out = append(out, rule)
			}
		}
	}
	return out
}

func (m *Matcher) ProgramMatchesProduct(program *Program, productID int64) bool {
	for _, rule := range program.Rules {
		if rule.MatchesProduct(productID) {
			return true
		}
	}
	return false
}

// CheckWindow validates the program validity window at day granularity,
// boundaries inclusive.
func (m *Matcher) CheckWindow(program *Program, orderDate time.Time) error {
	if program.DateFrom != nil && orderDate.Before(startOfDay(*program.DateFrom)) {
		return validationErr(ReasonNotStarted, "program %q is not yet valid", program.Name)
	}
	if program.DateTo != nil && orderDate.After(endOfDay(*program.DateTo)) {
		return validationErr(ReasonProgramExpired, "program %q is expired", program.Name)
	}
	return nil
}

func (m *Matcher) CheckPricelist(program *Program, pricelistID int64) error {
	if len(program.PricelistIDs) == 0 {
		return nil
	}
	for _, id := range program.PricelistIDs {
		if id == pricelistID {
			return nil
		}
	}
	return validationErr(ReasonWrongPricelist, "program %q requires a specific pricelist", program.Name)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}
