package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"freightbid/internal/domain"
)

const offerColumns = `id::text, bid_id::text, company_name, person_name, mobile_number, alternate_number,
	quoted_price::text, estimated_delivery_date, vehicle_type, additional_comments, created_at`

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	var price string
	err := row.Scan(&o.ID, &o.BidID, &o.CompanyName, &o.PersonName, &o.MobileNumber, &o.AlternateNumber,
		&price, &o.EstimatedDeliveryDate, &o.VehicleType, &o.AdditionalComments, &o.CreatedAt)
	if err != nil {
		return domain.Offer{}, err
	}
	if o.QuotedPrice, err = decimal.NewFromString(price); err != nil {
		return domain.Offer{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

// Append inserts without checking bid status; late offers are ranked like any other.
func (db *DB) Append(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	const op = "postgres.Append"
	if err := offer.Validate(); err != nil {
		return domain.Offer{}, err
	}
	out, err := scanOffer(db.Pool.QueryRow(ctx, `
		INSERT INTO offers (id, bid_id, company_name, person_name, mobile_number, alternate_number,
			quoted_price, estimated_delivery_date, vehicle_type, additional_comments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)
		RETURNING `+offerColumns,
		offer.ID, offer.BidID, offer.CompanyName, offer.PersonName, offer.MobileNumber, offer.AlternateNumber,
		offer.QuotedPrice.String(), offer.EstimatedDeliveryDate, offer.VehicleType, offer.AdditionalComments,
		offer.CreatedAt))
	if err != nil {
		return domain.Offer{}, classify(op, err)
	}
	return out, nil
}

func (db *DB) RankedFor(ctx context.Context, bidID string) ([]domain.Offer, error) {
	const op = "postgres.RankedFor"
	rows, err := db.Pool.Query(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE bid_id = $1
		ORDER BY quoted_price ASC, created_at ASC, id ASC
	`, bidID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := make([]domain.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}
