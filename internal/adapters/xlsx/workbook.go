package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"freightbid/internal/domain"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	SummarySheet = "Bid Summary"
	OffersSheet  = "All Offers"
)

var offerHeader = []any{
	"Rank", "Company Name", "Contact Person", "Mobile Number", "Alternate Number",
	"Quoted Price (₹)", "Estimated Delivery Date", "Vehicle Type", "Additional Comments", "Submitted At",
}

var offerWidths = []float64{8, 25, 20, 15, 15, 15, 18, 20, 30, 20}

// Renderer writes a Summary as a two-sheet workbook. Times are shown in Location.
type Renderer struct {
	Location *time.Location
}

func Filename(s domain.Summary) string {
	return s.BidNumber + "-offers.xlsx"
}

func (r Renderer) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r Renderer) Render(w io.Writer, s domain.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if err := r.writeSummary(f, s); err != nil {
		return err
	}
	if _, err := f.NewSheet(OffersSheet); err != nil {
		return fmt.Errorf("xlsx: add sheet: %w", err)
	}
	if err := r.writeOffers(f, s); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}

func (r Renderer) SummaryRows(s domain.Summary) [][]any {
	b := s.Bid
	return [][]any{
		{"Bid Number", b.BidNumber},
		{"Origin", b.Origin},
		{"Destination", b.Destination},
		{"Material Type", b.MaterialType},
		{"Weight (Tons)", b.WeightTons.String()},
		{"Pickup Date", b.PickupDate},
		{"Required Delivery Date", b.RequiredDeliveryDate},
		{"Status", string(b.Status)},
		{"Expires At", b.ExpiresAt.In(r.loc()).Format("02 Jan 2006 15:04")},
		{"Total Offers", s.OfferCount},
		{"Lowest Bid", s.LowestLabel},
		{},
		{"Generated At", s.GeneratedAt.In(r.loc()).Format("02 Jan 2006 15:04:05 MST")},
	}
}

func (r Renderer) OfferRows(s domain.Summary) [][]any {
	rows := make([][]any, 0, len(s.Ranked))
	for _, o := range s.Ranked {
		price, _ := o.QuotedPrice.Float64()
		rows = append(rows, []any{
			o.Rank,
			o.CompanyName,
			o.PersonName,
			o.MobileNumber,
			o.AlternateNumber,
			price,
			o.EstimatedDeliveryDate,
			o.VehicleType,
			o.AdditionalComments,
			o.CreatedAt.In(r.loc()).Format("02 Jan 2006 15:04"),
		})
	}
	return rows
}

func (r Renderer) writeSummary(f *excelize.File, s domain.Summary) error {
	for i, row := range r.SummaryRows(s) {
		if len(row) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx: summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 24); err != nil {
		return fmt.Errorf("xlsx: summary width: %w", err)
	}
	return f.SetColWidth(SummarySheet, "B", "B", 40)
}

func (r Renderer) writeOffers(f *excelize.File, s domain.Summary) error {
	header := offerHeader
	if err := f.SetSheetRow(OffersSheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx: offers header: %w", err)
	}
	for i, row := range r.OfferRows(s) {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(OffersSheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx: offers row %d: %w", i+2, err)
		}
	}
	for i, width := range offerWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(OffersSheet, col, col, width); err != nil {
			return fmt.Errorf("xlsx: offers width: %w", err)
		}
	}
	return nil
}
