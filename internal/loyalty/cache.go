package loyalty

// Cache is the session-local snapshot of programs, rules, rewards, cards,
// products and families loaded at session start. It is read-heavy; the
// only writers are the redemption controller and the offline validator,
// which add cards one fully-constructed record at a time.
type Cache struct {
	programs    []*Program
	programByID map[int64]*Program
	products    map[int64]*Product
	families    map[int64]*Family
	partners    map[int64]*Partner
	cards       []*Card
	cardByID    map[int64]*Card

	nextProvisionalID int64
}

func NewCache() *Cache {
	return &Cache{
		programByID: make(map[int64]*Program),
		products:    make(map[int64]*Product),
		families:    make(map[int64]*Family),
		partners:    make(map[int64]*Partner),
		cardByID:    make(map[int64]*Card),
	}
}

// AddProgram registers a program. Load order is preserved: when several
// rules match the same code, the first loaded program wins.
func (c *Cache) AddProgram(p *Program) {
	c.programs = append(c.programs, p)
	c.programByID[p.ID] = p
}

func (c *Cache) AddProduct(p *Product) {
	c.products[p.ID] = p
}

func (c *Cache) AddFamily(f *Family) {
	c.families[f.ID] = f
}

func (c *Cache) AddPartner(p *Partner) {
	c.partners[p.ID] = p
}

func (c *Cache) Program(id int64) *Program {
	return c.programByID[id]
}

func (c *Cache) Programs() []*Program {
	out := make([]*Program, len(c.programs))
	copy(out, c.programs)
	return out
}

func (c *Cache) Product(id int64) *Product {
	return c.products[id]
}

func (c *Cache) Family(id int64) *Family {
	return c.families[id]
}

func (c *Cache) Partner(id int64) *Partner {
	return c.partners[id]
}

func (c *Cache) Card(id int64) *Card {
	return c.cardByID[id]
}

func (c *Cache) CardByCode(code string) *Card {
	if code == "" {
		return nil
	}
	for _, card := range c.cards {
		if card.Code == code {
			return card
		}
	}
	return nil
}

// FilterCards returns a snapshot of cards matching pred.
func (c *Cache) FilterCards(pred func(*Card) bool) []*Card {
	var out []*Card
	for _, card := range c.cards {
		if pred(card) {
			out = append(out, card)
		}
	}
	return out
}

func (c *Cache) FindCard(programID, partnerID int64) *Card {
	for _, card := range c.cards {
		if card.ProgramID == programID && card.PartnerID == partnerID {
			return card
		}
	}
	return nil
}

// PutCard inserts or replaces a card. The record must be fully
// constructed before the call; the cache never holds partial cards.
func (c *Cache) PutCard(card *Card) {
	if existing, ok := c.cardByID[card.ID]; ok {
		*existing = *card
		c.cardByID[card.ID] = existing
		return
	}
	c.cards = append(c.cards, card)
	c.cardByID[card.ID] = card
}

// NewProvisionalCard creates a zero-balance card with a synthetic
// negative identifier, to be reconciled with the server on reconnect.
func (c *Cache) NewProvisionalCard(programID, partnerID int64) *Card {
	c.nextProvisionalID--
	card := &Card{
		ID:        c.nextProvisionalID,
		ProgramID: programID,
		PartnerID: partnerID,
	}
	c.cards = append(c.cards, card)
	c.cardByID[card.ID] = card
	return card
}

// ProvisionalCards lists offline-created cards pending server upload.
func (c *Cache) ProvisionalCards() []*Card {
	return c.FilterCards(func(card *Card) bool { return card.Provisional() })
}
