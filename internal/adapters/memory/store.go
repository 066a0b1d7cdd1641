package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"freightbid/internal/domain"
)

// Store keeps bids and offers in process memory. Used for local runs and tests.
type Store struct {
	mu     sync.RWMutex
	bids   map[string]domain.Bid
	offers map[string][]domain.Offer
	seq    int
}

func New() *Store {
	return &Store{
		bids:   make(map[string]domain.Bid),
		offers: make(map[string][]domain.Offer),
	}
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Create(ctx context.Context, bid domain.Bid) (domain.Bid, error) {
	bid.Status = domain.StatusOpen
	if err := bid.Validate(); err != nil {
		return domain.Bid{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[bid.ID]; ok {
		return domain.Bid{}, domain.NewValidationError("id", "already exists")
	}
	s.bids[bid.ID] = bid
	return bid, nil
}

func (s *Store) Get(ctx context.Context, bidID string) (domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bid, ok := s.bids[bidID]
	if !ok {
		return domain.Bid{}, domain.ErrNotFound
	}
	return bid, nil
}

func (s *Store) List(ctx context.Context, filter domain.BidFilter) ([]domain.Bid, error) {
	s.mu.RLock()
	out := make([]domain.Bid, 0, len(s.bids))
	for _, b := range s.bids {
		if filter.Status == "" || b.Status == filter.Status {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Bid) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Bid{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// FindOverdueOpen snapshots candidate ids when iteration starts and re-reads each
// bid before yielding, so bids closed mid-iteration are skipped.
func (s *Store) FindOverdueOpen(ctx context.Context, asOf time.Time) iter.Seq2[domain.Bid, error] {
	return func(yield func(domain.Bid, error) bool) {
		s.mu.RLock()
		candidates := make([]domain.Bid, 0)
		for _, b := range s.bids {
			if b.Status == domain.StatusOpen && b.ExpiresAt.Before(asOf) {
				candidates = append(candidates, b)
			}
		}
		s.mu.RUnlock()
		slices.SortFunc(candidates, func(a, b domain.Bid) int { return a.ExpiresAt.Compare(b.ExpiresAt) })

		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				yield(domain.Bid{}, err)
				return
			}
			s.mu.RLock()
			cur, ok := s.bids[c.ID]
			s.mu.RUnlock()
			if !ok || cur.Status != domain.StatusOpen {
				continue
			}
			if !yield(cur, nil) {
				return
			}
		}
	}
}

func (s *Store) TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, domain.NewValidationError("status", fmt.Sprintf("cannot move from %s to %s", from, to))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bid, ok := s.bids[bidID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if bid.Status != from {
		return false, nil
	}
	bid.Status = to
	s.bids[bidID] = bid
	return true, nil
}

func (s *Store) NextBidNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("BID-%06d", s.seq), nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st domain.Stats
	for _, b := range s.bids {
		switch b.Status {
		case domain.StatusOpen:
			st.Open++
		case domain.StatusClosed:
			st.Closed++
		case domain.StatusAwarded:
			st.Awarded++
		}
	}
	for _, os := range s.offers {
		st.Offers += len(os)
	}
	return st, nil
}

func (s *Store) Append(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if err := offer.Validate(); err != nil {
		return domain.Offer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[offer.BidID]; !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	s.offers[offer.BidID] = append(s.offers[offer.BidID], offer)
	return offer, nil
}

func (s *Store) RankedFor(ctx context.Context, bidID string) ([]domain.Offer, error) {
	s.mu.RLock()
	offers := slices.Clone(s.offers[bidID])
	s.mu.RUnlock()
	return domain.SortOffers(offers), nil
}
