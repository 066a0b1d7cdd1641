package xlsx

import (
	"bytes"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"freightbid/internal/domain"
	"freightbid/internal/services/reports"
)

func sampleSummary(t *testing.T, loc *time.Location) domain.Summary {
	t.Helper()
	bid := domain.Bid{
		ID: "b1", BidNumber: "BID-000042", Origin: "Nagpur", Destination: "Pune",
		MaterialType: "Steel coils", WeightTons: decimal.RequireFromString("21.5"),
		Status: domain.StatusClosed,
	}
	at := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	ranked := []domain.Offer{
		{ID: "o1", CompanyName: "Blue Dart", PersonName: "Asha", MobileNumber: "98", QuotedPrice: decimal.NewFromInt(45000), CreatedAt: at},
		{ID: "o2", CompanyName: "Gati", PersonName: "Ravi", MobileNumber: "97", AlternateNumber: "96", VehicleType: "32ft MXL", QuotedPrice: decimal.NewFromInt(50000), CreatedAt: at.Add(time.Hour)},
	}
	return reports.NewAssembler(loc).Assemble(bid, ranked, at.Add(12*time.Hour))
}

func TestRender_TwoSheetsWithRankedOffers(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	assert.NoError(t, err)
	s := sampleSummary(t, ist)

	var buf bytes.Buffer
	assert.NoError(t, Renderer{Location: ist}.Render(&buf, s))

	f, err := excelize.OpenReader(&buf)
	assert.NoError(t, err)
	defer f.Close()

	check.Equal(t, []string{SummarySheet, OffersSheet}, f.GetSheetList())

	v, err := f.GetCellValue(SummarySheet, "B1")
	assert.NoError(t, err)
	check.Equal(t, "BID-000042", v)

	rows, err := f.GetRows(OffersSheet)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(rows))
	check.Equal(t, "Rank", rows[0][0])
	check.Equal(t, "1", rows[1][0])
	check.Equal(t, "Blue Dart", rows[1][1])
	check.Equal(t, "10 Mar 2026 12:00", rows[1][9])
	check.Equal(t, "Gati", rows[2][1])
	check.Equal(t, "32ft MXL", rows[2][7])
}

func TestSummaryRows_NoOffers(t *testing.T) {
	s := reports.NewAssembler(time.UTC).Assemble(domain.Bid{BidNumber: "BID-1"}, nil, time.Now())
	rows := Renderer{}.SummaryRows(s)

	var lowest any
	for _, r := range rows {
		if len(r) == 2 && r[0] == "Lowest Bid" {
			lowest = r[1]
		}
	}
	check.Equal(t, any(domain.NoOffersLabel), lowest)
	check.Equal(t, 0, len(Renderer{}.OfferRows(s)))
}

func TestFilename(t *testing.T) {
	check.Equal(t, "BID-000042-offers.xlsx", Filename(domain.Summary{BidNumber: "BID-000042"}))
}
