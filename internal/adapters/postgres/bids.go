package postgres

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"freightbid/internal/domain"
)

const bidColumns = `id::text, bid_number, origin, destination, material_type, weight_tons::text,
	pickup_date, required_delivery_date, additional_notes, status, expires_at, created_at`

func scanBid(row pgx.Row) (domain.Bid, error) {
	var b domain.Bid
	var weight, status string
	err := row.Scan(&b.ID, &b.BidNumber, &b.Origin, &b.Destination, &b.MaterialType, &weight,
		&b.PickupDate, &b.RequiredDeliveryDate, &b.Notes, &status, &b.ExpiresAt, &b.CreatedAt)
	if err != nil {
		return domain.Bid{}, err
	}
	if b.WeightTons, err = decimal.NewFromString(weight); err != nil {
		return domain.Bid{}, err
	}
	b.Status = domain.Status(status)
	b.ExpiresAt = b.ExpiresAt.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (db *DB) Create(ctx context.Context, bid domain.Bid) (domain.Bid, error) {
	const op = "postgres.Create"
	bid.Status = domain.StatusOpen
	if err := bid.Validate(); err != nil {
		return domain.Bid{}, err
	}
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO bids (id, bid_number, origin, destination, material_type, weight_tons,
			pickup_date, required_delivery_date, additional_notes, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12)
		RETURNING `+bidColumns,
		bid.ID, bid.BidNumber, bid.Origin, bid.Destination, bid.MaterialType, bid.WeightTons.String(),
		bid.PickupDate, bid.RequiredDeliveryDate, bid.Notes, string(bid.Status), bid.ExpiresAt, bid.CreatedAt)
	out, err := scanBid(row)
	if err != nil {
		return domain.Bid{}, classify(op, err)
	}
	return out, nil
}

func (db *DB) Get(ctx context.Context, bidID string) (domain.Bid, error) {
	const op = "postgres.Get"
	b, err := scanBid(db.Pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, bidID))
	if err != nil {
		return domain.Bid{}, classify(op, err)
	}
	return b, nil
}

func (db *DB) List(ctx context.Context, filter domain.BidFilter) ([]domain.Bid, error) {
	const op = "postgres.List"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := make([]domain.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// FindOverdueOpen streams candidates from a single query. The status re-check happens
// in TransitionStatus, so a row closed by another sweeper after it was read only costs
// a conflict.
func (db *DB) FindOverdueOpen(ctx context.Context, asOf time.Time) iter.Seq2[domain.Bid, error] {
	const op = "postgres.FindOverdueOpen"
	return func(yield func(domain.Bid, error) bool) {
		rows, err := db.Pool.Query(ctx, `
			SELECT `+bidColumns+` FROM bids
			WHERE status = 'open' AND expires_at < $1
			ORDER BY expires_at
		`, asOf)
		if err != nil {
			yield(domain.Bid{}, classify(op, err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			b, err := scanBid(rows)
			if err != nil {
				yield(domain.Bid{}, classify(op, err))
				return
			}
			if !yield(b, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Bid{}, classify(op, err))
		}
	}
}

// TransitionStatus is a single conditional UPDATE; the status predicate is the
// concurrency guard. The follow-up SELECT only distinguishes a lost race from a
// missing row and never writes.
func (db *DB) TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (bool, error) {
	const op = "postgres.TransitionStatus"
	if !domain.CanTransition(from, to) {
		return false, domain.NewValidationError("status", fmt.Sprintf("cannot move from %s to %s", from, to))
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE bids SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, bidID, string(from), string(to))
	if err != nil {
		return false, classify(op, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bids WHERE id = $1)`, bidID).Scan(&exists); err != nil {
		return false, classify(op, err)
	}
	if !exists {
		return false, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return false, nil
}

func (db *DB) NextBidNumber(ctx context.Context) (string, error) {
	const op = "postgres.NextBidNumber"
	var n int64
	if err := db.Pool.QueryRow(ctx, `SELECT nextval('bid_number_seq')`).Scan(&n); err != nil {
		return "", classify(op, err)
	}
	return fmt.Sprintf("BID-%06d", n), nil
}

func (db *DB) Stats(ctx context.Context) (domain.Stats, error) {
	const op = "postgres.Stats"
	var st domain.Stats
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'open'),
			COUNT(*) FILTER (WHERE status = 'closed'),
			COUNT(*) FILTER (WHERE status = 'awarded'),
			(SELECT COUNT(*) FROM offers)
		FROM bids
	`).Scan(&st.Open, &st.Closed, &st.Awarded, &st.Offers)
	if err != nil {
		return domain.Stats{}, classify(op, err)
	}
	return st, nil
}
