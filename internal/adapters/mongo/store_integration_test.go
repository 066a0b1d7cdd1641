package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"freightbid/internal/domain"
	"freightbid/internal/ports"
)

// openTestStore connects to FREIGHTBID_TEST_MONGO_URI using a throwaway database
// that is dropped when the test ends.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("FREIGHTBID_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FREIGHTBID_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	name := fmt.Sprintf("freightbid_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, name)
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Database(name).Drop(ctx)
		_ = s.Close(ctx)
	})
	assert.NoError(t, s.EnsureIndexes(ctx))
	return s
}

var base = time.Date(2026, 3, 10, 4, 30, 0, 0, time.UTC)

func testBid(number string, expires time.Time) domain.Bid {
	return domain.Bid{
		ID:         uuid.NewString(),
		BidNumber:  number,
		Origin:     "Nagpur",
		WeightTons: decimal.RequireFromString("24.5"),
		Status:     domain.StatusOpen,
		CreatedAt:  base,
		ExpiresAt:  expires,
	}
}

func TestIntegration_FindOverdueOpenIsStrictAndOpenOnly(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	asOf := base.Add(10 * time.Hour)

	overdue, err := s.Create(ctx, testBid("T-overdue", asOf.Add(-time.Minute)))
	assert.NoError(t, err)
	_, err = s.Create(ctx, testBid("T-boundary", asOf))
	assert.NoError(t, err)
	_, err = s.Create(ctx, testBid("T-future", asOf.Add(time.Minute)))
	assert.NoError(t, err)
	closed, err := s.Create(ctx, testBid("T-closed", asOf.Add(-time.Hour)))
	assert.NoError(t, err)
	_, err = ports.TransitionToClosed(ctx, s, closed.ID)
	assert.NoError(t, err)

	var ids []string
	for bid, err := range s.FindOverdueOpen(ctx, asOf) {
		assert.NoError(t, err)
		ids = append(ids, bid.ID)
	}
	check.Equal(t, []string{overdue.ID}, ids)
}

func TestIntegration_TransitionStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	bid, err := s.Create(ctx, testBid("T-1", base.Add(time.Hour)))
	assert.NoError(t, err)

	first, err := ports.TransitionToClosed(ctx, s, bid.ID)
	assert.NoError(t, err)
	check.True(t, first)
	second, err := ports.TransitionToClosed(ctx, s, bid.ID)
	assert.NoError(t, err)
	check.False(t, second)

	got, err := s.Get(ctx, bid.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.StatusClosed, got.Status)
}

func TestIntegration_RankedForOrdersByPriceTimeID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	bid, err := s.Create(ctx, testBid("T-rank", base.Add(time.Hour)))
	assert.NoError(t, err)

	mk := func(id, price string, at time.Time) domain.Offer {
		return domain.Offer{
			ID: id, BidID: bid.ID, CompanyName: "Co", PersonName: "P", MobileNumber: "1",
			QuotedPrice: decimal.RequireFromString(price), CreatedAt: at,
		}
	}
	for _, o := range []domain.Offer{
		mk("d", "50000", base.Add(time.Minute)),
		mk("b", "45000.50", base.Add(2*time.Minute)),
		mk("c", "45000.50", base.Add(3*time.Minute)),
		mk("a", "45000.50", base.Add(2*time.Minute)),
	} {
		_, err := s.Append(ctx, o)
		assert.NoError(t, err)
	}

	ranked, err := s.RankedFor(ctx, bid.ID)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(ranked))
	check.Equal(t, "a", ranked[0].ID)
	check.Equal(t, "b", ranked[1].ID)
	check.Equal(t, "c", ranked[2].ID)
	check.Equal(t, "d", ranked[3].ID)
}
