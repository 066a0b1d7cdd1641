package bids

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"freightbid/internal/domain"
	"freightbid/internal/ports"
	"freightbid/internal/services/reports"
)

type CreateInput struct {
	BidNumber            string
	Origin               string
	Destination          string
	MaterialType         string
	WeightTons           decimal.Decimal
	PickupDate           string
	RequiredDeliveryDate string
	Notes                string
}

type OfferInput struct {
	CompanyName           string
	PersonName            string
	MobileNumber          string
	AlternateNumber       string
	QuotedPrice           decimal.Decimal
	EstimatedDeliveryDate string
	VehicleType           string
	AdditionalComments    string
}

// OpenedEvent is the payload carriers' notification flow receives for a new bid.
type OpenedEvent struct {
	BidID        string    `json:"bid_id"`
	BidNumber    string    `json:"bid_number"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	Material     string    `json:"material"`
	Weight       string    `json:"weight"`
	PickupDate   string    `json:"pickup_date"`
	DeliveryDate string    `json:"delivery_date"`
	BidLink      string    `json:"bid_link"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (e OpenedEvent) Key() string { return e.BidID }

type Options struct {
	CutoffHour    int
	Location      *time.Location
	PublicBaseURL string
	Clock         ports.Clock
	Events        ports.EventPublisher
	Logger        *slog.Logger
}

type Service struct {
	bids      ports.BidRepository
	offers    ports.OfferStore
	assembler reports.Assembler
	opts      Options
	log       *slog.Logger
}

func New(bids ports.BidRepository, offers ports.OfferStore, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		bids:      bids,
		offers:    offers,
		assembler: reports.NewAssembler(opts.Location),
		opts:      opts,
		log:       log.With(slog.String("component", "bids")),
	}
}

// Create opens a bid that expires at the next daily cutoff. Notifying carriers is
// best-effort and never undoes the bid.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Bid, error) {
	const op = "bids.Create"
	now := s.now()
	expiresAt, err := domain.ComputeExpiry(now, s.opts.CutoffHour, s.opts.Location)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("%s: %w", op, err)
	}
	number := strings.TrimSpace(in.BidNumber)
	if number == "" {
		if number, err = s.bids.NextBidNumber(ctx); err != nil {
			return domain.Bid{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	bid, err := s.bids.Create(ctx, domain.Bid{
		ID:                   uuid.NewString(),
		BidNumber:            number,
		Origin:               in.Origin,
		Destination:          in.Destination,
		MaterialType:         in.MaterialType,
		WeightTons:           in.WeightTons,
		PickupDate:           in.PickupDate,
		RequiredDeliveryDate: in.RequiredDeliveryDate,
		Notes:                in.Notes,
		Status:               domain.StatusOpen,
		ExpiresAt:            expiresAt,
		CreatedAt:            now,
	})
	if err != nil {
		return domain.Bid{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.InfoContext(ctx, "bid opened",
		slog.String("bid_id", bid.ID),
		slog.String("bid_number", bid.BidNumber),
		slog.Time("expires_at", bid.ExpiresAt),
	)
	s.notifyOpened(ctx, bid)
	return bid, nil
}

func (s *Service) notifyOpened(ctx context.Context, bid domain.Bid) {
	if s.opts.Events == nil {
		return
	}
	ev := OpenedEvent{
		BidID:        bid.ID,
		BidNumber:    bid.BidNumber,
		Origin:       bid.Origin,
		Destination:  bid.Destination,
		Material:     bid.MaterialType,
		Weight:       bid.WeightTons.String(),
		PickupDate:   bid.PickupDate,
		DeliveryDate: bid.RequiredDeliveryDate,
		BidLink:      s.BidLink(bid.ID),
		ExpiresAt:    bid.ExpiresAt,
	}
	if err := s.opts.Events.Publish(ctx, ports.EventBidOpened, ev); err != nil {
		s.log.WarnContext(ctx, "bid opened notification failed",
			slog.String("bid_id", bid.ID),
			slog.String("error", err.Error()),
		)
	}
}

// now is truncated to the millisecond so every store, including Mongo's BSON dates,
// ranks equal prices by the same submission instant.
func (s *Service) now() time.Time {
	return s.opts.Clock.Now().UTC().Truncate(time.Millisecond)
}

// BidLink is the carrier-facing submission page for a bid.
func (s *Service) BidLink(bidID string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/bid/" + bidID
}

// SubmitOffer records an offer against an existing bid. Offers arriving after
// expiry are kept; the closing sweep ranks whatever is stored when it runs.
func (s *Service) SubmitOffer(ctx context.Context, bidID string, in OfferInput) (domain.Offer, error) {
	const op = "bids.SubmitOffer"
	bid, err := s.bids.Get(ctx, bidID)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	offer, err := s.offers.Append(ctx, domain.Offer{
		ID:                    uuid.NewString(),
		BidID:                 bid.ID,
		CompanyName:           strings.TrimSpace(in.CompanyName),
		PersonName:            strings.TrimSpace(in.PersonName),
		MobileNumber:          strings.TrimSpace(in.MobileNumber),
		AlternateNumber:       strings.TrimSpace(in.AlternateNumber),
		QuotedPrice:           in.QuotedPrice,
		EstimatedDeliveryDate: in.EstimatedDeliveryDate,
		VehicleType:           in.VehicleType,
		AdditionalComments:    in.AdditionalComments,
		CreatedAt:             now,
	})
	if err != nil {
		return domain.Offer{}, fmt.Errorf("%s: %w", op, err)
	}
	if IsLate(bid, now) || bid.Status != domain.StatusOpen {
		s.log.InfoContext(ctx, "late offer accepted",
			slog.String("bid_id", bid.ID),
			slog.String("offer_id", offer.ID),
			slog.String("bid_status", string(bid.Status)),
		)
	}
	return offer, nil
}

func (s *Service) Get(ctx context.Context, bidID string) (domain.Bid, error) {
	return s.bids.Get(ctx, bidID)
}

func (s *Service) List(ctx context.Context, filter domain.BidFilter) ([]domain.Bid, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	return s.bids.List(ctx, filter)
}

// Ranked returns the current ranking for a bid regardless of its status.
func (s *Service) Ranked(ctx context.Context, bidID string) ([]domain.RankedOffer, error) {
	if _, err := s.bids.Get(ctx, bidID); err != nil {
		return nil, err
	}
	offers, err := s.offers.RankedFor(ctx, bidID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RankedOffer, len(offers))
	for i, o := range offers {
		out[i] = domain.RankedOffer{Rank: i + 1, Offer: o}
	}
	return out, nil
}

// Award marks a closed bid as awarded. Choosing the carrier happens outside this service.
func (s *Service) Award(ctx context.Context, bidID string) (domain.Bid, error) {
	const op = "bids.Award"
	applied, err := s.bids.TransitionStatus(ctx, bidID, domain.StatusClosed, domain.StatusAwarded)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		return domain.Bid{}, fmt.Errorf("%s: bid %s is not closed: %w", op, bidID, domain.ErrConflict)
	}
	return s.bids.Get(ctx, bidID)
}

// Export builds the summary for a bid in any status.
func (s *Service) Export(ctx context.Context, bidID string) (domain.Summary, error) {
	bid, err := s.bids.Get(ctx, bidID)
	if err != nil {
		return domain.Summary{}, err
	}
	offers, err := s.offers.RankedFor(ctx, bidID)
	if err != nil {
		return domain.Summary{}, err
	}
	return s.assembler.Assemble(bid, offers, s.opts.Clock.Now()), nil
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	return s.bids.Stats(ctx)
}

// IsLate reports whether an offer submitted at t missed the bid's window.
func IsLate(bid domain.Bid, t time.Time) bool {
	return !t.Before(bid.ExpiresAt)
}
