package domain

import (
	"slices"
	"strings"
)

// CompareOffers orders by quoted price, then submission time, then id so that
// equal price and timestamp still rank the same way on every read.
func CompareOffers(a, b Offer) int {
	if c := a.QuotedPrice.Cmp(b.QuotedPrice); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortOffers returns a ranked copy; the input is left untouched.
func SortOffers(offers []Offer) []Offer {
	out := slices.Clone(offers)
	slices.SortStableFunc(out, CompareOffers)
	return out
}
