package domain

import "time"

// NoOffersLabel stands in for the lowest offer when a bid closed without any.
const NoOffersLabel = "No offers received"

type RankedOffer struct {
	Rank int `json:"rank"`
	Offer
}

// Summary is the structured report for one bid. Renderers and notifiers consume it;
// nothing downstream of it reads the stores again.
type Summary struct {
	BidID       string        `json:"bid_id"`
	BidNumber   string        `json:"bid_number"`
	Bid         Bid           `json:"bid"`
	GeneratedAt time.Time     `json:"generated_at"`
	OfferCount  int           `json:"offer_count"`
	Ranked      []RankedOffer `json:"ranked"`
	Lowest      *RankedOffer  `json:"lowest,omitempty"`
	NoOffers    bool          `json:"no_offers"`
	LowestLabel string        `json:"lowest_label"`
}
