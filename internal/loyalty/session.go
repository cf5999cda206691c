package loyalty

import "context"

// Session owns the engine state for one POS session: the local cache, the
// remote boundary and the stateless computation helpers. Created at
// session start, discarded at session end.
type Session struct {
	cache   *Cache
	remote  RemoteValidator
	matcher *Matcher
	calc    *Calculator
	offline *OfflineValidator
}

func NewSession(cache *Cache, remote RemoteValidator) *Session {
	matcher := NewMatcher(cache)
	return &Session{
		cache:   cache,
		remote:  remote,
		matcher: matcher,
		calc:    NewCalculator(cache, matcher),
		offline: NewOfflineValidator(cache, matcher),
	}
}

func (s *Session) Cache() *Cache {
	return s.cache
}

func (s *Session) Matcher() *Matcher {
	return s.matcher
}

func (s *Session) Calculator() *Calculator {
	return s.calc
}

func (s *Session) Controller(order *Order) *Controller {
	return &Controller{session: s, order: order}
}

// FetchCard returns the partner's card under a program, looking at the
// cache first, then the server. When the server is unreachable a
// provisional zero-balance card is created for later reconciliation.
func (s *Session) FetchCard(ctx context.Context, programID, partnerID int64) (*Card, error) {
	if card := s.cache.FindCard(programID, partnerID); card != nil {
		return card, nil
	}

	card, err := s.remote.FetchCard(ctx, programID, partnerID)
	if err == nil && card != nil {
		s.cache.PutCard(card)
		return card, nil
	}
	if err != nil && !IsTransient(err) {
		return nil, err
	}

	return s.cache.NewProvisionalCard(programID, partnerID), nil
}
