package ports

import (
	"context"
	"iter"
	"time"

	"freightbid/internal/domain"
)

// BidRepository persists bids and owns their status transitions.
type BidRepository interface {
	Create(ctx context.Context, bid domain.Bid) (domain.Bid, error)
	Get(ctx context.Context, bidID string) (domain.Bid, error)
	List(ctx context.Context, filter domain.BidFilter) ([]domain.Bid, error)
	// FindOverdueOpen yields open bids with expires_at strictly before asOf.
	// Each call runs a fresh query; the sequence is single-use.
	FindOverdueOpen(ctx context.Context, asOf time.Time) iter.Seq2[domain.Bid, error]
	// TransitionStatus moves a bid from one status to another in a single atomic write.
	// applied is false when the bid was no longer in status from.
	TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (applied bool, err error)
	NextBidNumber(ctx context.Context) (string, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// OfferStore is append-only.
type OfferStore interface {
	Append(ctx context.Context, offer domain.Offer) (domain.Offer, error)
	// RankedFor returns offers by quoted price, then created_at, then id.
	RankedFor(ctx context.Context, bidID string) ([]domain.Offer, error)
}

// Store bundles both record sets; every adapter implements it.
type Store interface {
	BidRepository
	OfferStore
	Close(ctx context.Context) error
}

// TransitionToClosed is the conditional open -> closed update used by the sweep.
func TransitionToClosed(ctx context.Context, repo BidRepository, bidID string) (bool, error) {
	return repo.TransitionStatus(ctx, bidID, domain.StatusOpen, domain.StatusClosed)
}
