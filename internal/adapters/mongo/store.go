package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"freightbid/internal/domain"
)

const opTimeout = 5 * time.Second

// Store keeps bids, offers and the bid-number counter in three collections.
type Store struct {
	client   *mongo.Client
	bids     *mongo.Collection
	offers   *mongo.Collection
	counters *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return NewStore(client, dbName), nil
}

func NewStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:   client,
		bids:     db.Collection("bids"),
		offers:   db.Collection("offers"),
		counters: db.Collection("counters"),
	}
}

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.bids.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "bid_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.offers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "bid_id", Value: 1}, {Key: "quoted_price", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	})
	return err
}

type bidDoc struct {
	ID                   string               `bson:"_id"`
	BidNumber            string               `bson:"bid_number"`
	Origin               string               `bson:"origin"`
	Destination          string               `bson:"destination"`
	MaterialType         string               `bson:"material_type"`
	WeightTons           primitive.Decimal128 `bson:"weight_tons"`
	PickupDate           string               `bson:"pickup_date"`
	RequiredDeliveryDate string               `bson:"required_delivery_date"`
	Notes                string               `bson:"additional_notes"`
	Status               string               `bson:"status"`
	ExpiresAt            time.Time            `bson:"expires_at"`
	CreatedAt            time.Time            `bson:"created_at"`
	UpdatedAt            time.Time            `bson:"updated_at"`
}

type offerDoc struct {
	ID                    string               `bson:"_id"`
	BidID                 string               `bson:"bid_id"`
	CompanyName           string               `bson:"company_name"`
	PersonName            string               `bson:"person_name"`
	MobileNumber          string               `bson:"mobile_number"`
	AlternateNumber       string               `bson:"alternate_number"`
	QuotedPrice           primitive.Decimal128 `bson:"quoted_price"`
	EstimatedDeliveryDate string               `bson:"estimated_delivery_date"`
	VehicleType           string               `bson:"vehicle_type"`
	AdditionalComments    string               `bson:"additional_comments"`
	CreatedAt             time.Time            `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func (d bidDoc) toDomain() (domain.Bid, error) {
	w, err := fromDecimal128(d.WeightTons)
	if err != nil {
		return domain.Bid{}, err
	}
	return domain.Bid{
		ID: d.ID, BidNumber: d.BidNumber, Origin: d.Origin, Destination: d.Destination,
		MaterialType: d.MaterialType, WeightTons: w, PickupDate: d.PickupDate,
		RequiredDeliveryDate: d.RequiredDeliveryDate, Notes: d.Notes, Status: domain.Status(d.Status),
		ExpiresAt: d.ExpiresAt.UTC(), CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

func (d offerDoc) toDomain() (domain.Offer, error) {
	p, err := fromDecimal128(d.QuotedPrice)
	if err != nil {
		return domain.Offer{}, err
	}
	return domain.Offer{
		ID: d.ID, BidID: d.BidID, CompanyName: d.CompanyName, PersonName: d.PersonName,
		MobileNumber: d.MobileNumber, AlternateNumber: d.AlternateNumber, QuotedPrice: p,
		EstimatedDeliveryDate: d.EstimatedDeliveryDate, VehicleType: d.VehicleType,
		AdditionalComments: d.AdditionalComments, CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, domain.NewValidationError("id", "already exists"))
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.Transient(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) Create(ctx context.Context, bid domain.Bid) (domain.Bid, error) {
	const op = "mongo.Create"
	bid.Status = domain.StatusOpen
	if err := bid.Validate(); err != nil {
		return domain.Bid{}, err
	}
	w, err := toDecimal128(bid.WeightTons)
	if err != nil {
		return domain.Bid{}, domain.NewValidationError("weight_tons", err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	doc := bidDoc{
		ID: bid.ID, BidNumber: bid.BidNumber, Origin: bid.Origin, Destination: bid.Destination,
		MaterialType: bid.MaterialType, WeightTons: w, PickupDate: bid.PickupDate,
		RequiredDeliveryDate: bid.RequiredDeliveryDate, Notes: bid.Notes, Status: string(bid.Status),
		ExpiresAt: bid.ExpiresAt.UTC(), CreatedAt: bid.CreatedAt.UTC(), UpdatedAt: bid.CreatedAt.UTC(),
	}
	if _, err := s.bids.InsertOne(ctx, doc); err != nil {
		return domain.Bid{}, classify(op, err)
	}
	return doc.toDomain()
}

func (s *Store) Get(ctx context.Context, bidID string) (domain.Bid, error) {
	const op = "mongo.Get"
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var doc bidDoc
	if err := s.bids.FindOne(ctx, bson.M{"_id": bidID}).Decode(&doc); err != nil {
		return domain.Bid{}, classify(op, err)
	}
	return doc.toDomain()
}

func (s *Store) List(ctx context.Context, filter domain.BidFilter) ([]domain.Bid, error) {
	const op = "mongo.List"
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = string(filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(filter.Offset))
	cur, err := s.bids.Find(ctx, q, opts)
	if err != nil {
		return nil, classify(op, err)
	}
	defer cur.Close(ctx)

	out := make([]domain.Bid, 0)
	for cur.Next(ctx) {
		var doc bidDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, classify(op, err)
		}
		b, err := doc.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, b)
	}
	if err := cur.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (s *Store) FindOverdueOpen(ctx context.Context, asOf time.Time) iter.Seq2[domain.Bid, error] {
	const op = "mongo.FindOverdueOpen"
	return func(yield func(domain.Bid, error) bool) {
		q := bson.M{"status": string(domain.StatusOpen), "expires_at": bson.M{"$lt": asOf.UTC()}}
		cur, err := s.bids.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}))
		if err != nil {
			yield(domain.Bid{}, classify(op, err))
			return
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var doc bidDoc
			if err := cur.Decode(&doc); err != nil {
				yield(domain.Bid{}, classify(op, err))
				return
			}
			b, err := doc.toDomain()
			if err != nil {
				yield(domain.Bid{}, fmt.Errorf("%s: %w", op, err))
				return
			}
			if !yield(b, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(domain.Bid{}, classify(op, err))
		}
	}
}

// TransitionStatus relies on UpdateOne matching both _id and the expected status;
// MongoDB applies single-document updates atomically.
func (s *Store) TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (bool, error) {
	const op = "mongo.TransitionStatus"
	if !domain.CanTransition(from, to) {
		return false, domain.NewValidationError("status", fmt.Sprintf("cannot move from %s to %s", from, to))
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.bids.UpdateOne(ctx,
		bson.M{"_id": bidID, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, classify(op, err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	n, err := s.bids.CountDocuments(ctx, bson.M{"_id": bidID})
	if err != nil {
		return false, classify(op, err)
	}
	if n == 0 {
		return false, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return false, nil
}

func (s *Store) NextBidNumber(ctx context.Context) (string, error) {
	const op = "mongo.NextBidNumber"
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "bid_number"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return "", classify(op, err)
	}
	return fmt.Sprintf("BID-%06d", doc.Seq), nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	const op = "mongo.Stats"
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	cur, err := s.bids.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return domain.Stats{}, classify(op, err)
	}
	defer cur.Close(ctx)

	var st domain.Stats
	for cur.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			N      int    `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return domain.Stats{}, classify(op, err)
		}
		switch domain.Status(row.Status) {
		case domain.StatusOpen:
			st.Open = row.N
		case domain.StatusClosed:
			st.Closed = row.N
		case domain.StatusAwarded:
			st.Awarded = row.N
		}
	}
	if err := cur.Err(); err != nil {
		return domain.Stats{}, classify(op, err)
	}
	n, err := s.offers.CountDocuments(ctx, bson.M{})
	if err != nil {
		return domain.Stats{}, classify(op, err)
	}
	st.Offers = int(n)
	return st, nil
}

func (s *Store) Append(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	const op = "mongo.Append"
	if err := offer.Validate(); err != nil {
		return domain.Offer{}, err
	}
	price, err := toDecimal128(offer.QuotedPrice)
	if err != nil {
		return domain.Offer{}, domain.NewValidationError("quoted_price", err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := s.bids.CountDocuments(ctx, bson.M{"_id": offer.BidID})
	if err != nil {
		return domain.Offer{}, classify(op, err)
	}
	if n == 0 {
		return domain.Offer{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	doc := offerDoc{
		ID: offer.ID, BidID: offer.BidID, CompanyName: offer.CompanyName, PersonName: offer.PersonName,
		MobileNumber: offer.MobileNumber, AlternateNumber: offer.AlternateNumber, QuotedPrice: price,
		EstimatedDeliveryDate: offer.EstimatedDeliveryDate, VehicleType: offer.VehicleType,
		AdditionalComments: offer.AdditionalComments, CreatedAt: offer.CreatedAt.UTC(),
	}
	if _, err := s.offers.InsertOne(ctx, doc); err != nil {
		return domain.Offer{}, classify(op, err)
	}
	return doc.toDomain()
}

func (s *Store) RankedFor(ctx context.Context, bidID string) ([]domain.Offer, error) {
	const op = "mongo.RankedFor"
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{
		{Key: "quoted_price", Value: 1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.offers.Find(ctx, bson.M{"bid_id": bidID}, opts)
	if err != nil {
		return nil, classify(op, err)
	}
	defer cur.Close(ctx)

	out := make([]domain.Offer, 0)
	for cur.Next(ctx) {
		var doc offerDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, classify(op, err)
		}
		o, err := doc.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, o)
	}
	if err := cur.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}
