package reports

import (
	"time"

	"freightbid/internal/domain"
)

// Assembler turns a bid and its ranked offers into a Summary. It has no state
// beyond the reporting timezone and performs no I/O.
type Assembler struct {
	Location *time.Location
}

func NewAssembler(loc *time.Location) Assembler {
	if loc == nil {
		loc = time.UTC
	}
	return Assembler{Location: loc}
}

// Assemble expects ranked to already be in rank order, as returned by OfferStore.RankedFor.
func (a Assembler) Assemble(bid domain.Bid, ranked []domain.Offer, generatedAt time.Time) domain.Summary {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	s := domain.Summary{
		BidID:       bid.ID,
		BidNumber:   bid.BidNumber,
		Bid:         bid,
		GeneratedAt: generatedAt.In(loc),
		OfferCount:  len(ranked),
		Ranked:      make([]domain.RankedOffer, len(ranked)),
	}
	for i, o := range ranked {
		s.Ranked[i] = domain.RankedOffer{Rank: i + 1, Offer: o}
	}
	if len(s.Ranked) == 0 {
		s.NoOffers = true
		s.LowestLabel = domain.NoOffersLabel
		return s
	}
	lowest := s.Ranked[0]
	s.Lowest = &lowest
	s.LowestLabel = LowestLabel(lowest.Offer)
	return s
}

func LowestLabel(o domain.Offer) string {
	return "₹" + o.QuotedPrice.StringFixed(2) + " by " + o.CompanyName
}
