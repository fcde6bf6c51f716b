package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/geocoder89/tourhub/internal/domain/tour"
	"github.com/geocoder89/tourhub/internal/observability"
)

// Secret tours never leave the store.
var visibleTours = bson.D{{Key: "secretTour", Value: bson.D{{Key: "$ne", Value: true}}}}

// ToursRepo embeds a Collection so it satisfies query.Queryable[tour.Tour].
type ToursRepo struct {
	*Collection[tour.Tour]
	coll *mongo.Collection
	prom *observability.Prom
}

func NewToursRepo(db *mongo.Database, prom *observability.Prom) *ToursRepo {
	coll := db.Collection(ToursCollection)
	return &ToursRepo{
		Collection: NewCollection[tour.Tour](coll, CollectionOptions{Base: visibleTours, Prom: prom}),
		coll:       coll,
		prom:       prom,
	}
}

func (r *ToursRepo) Create(ctx context.Context, t tour.Tour) (tour.Tour, error) {
	if t.ID == "" {
		t.ID = bson.NewObjectID().Hex()
	}

	err := r.prom.ObserveDB("tours.create", func() error {
		_, err := r.coll.InsertOne(ctx, t)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tour.Tour{}, tour.ErrNameTaken
		}
		return tour.Tour{}, storeErr("tours.create", err)
	}

	return t, nil
}

// InsertMany loads tours in bulk, keeping IDs already present.
func (r *ToursRepo) InsertMany(ctx context.Context, tours []tour.Tour) (int, error) {
	if len(tours) == 0 {
		return 0, nil
	}

	docs := make([]any, len(tours))
	for i, t := range tours {
		if t.ID == "" {
			t.ID = bson.NewObjectID().Hex()
		}
		docs[i] = t
	}

	var res *mongo.InsertManyResult
	err := r.prom.ObserveDB("tours.insert_many", func() error {
		var err error
		res, err = r.coll.InsertMany(ctx, docs)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, tour.ErrNameTaken
		}
		return 0, storeErr("tours.insert_many", err, "count", len(docs))
	}

	return len(res.InsertedIDs), nil
}

func (r *ToursRepo) GetByID(ctx context.Context, id string) (tour.Tour, error) {
	var t tour.Tour

	err := r.prom.ObserveDB("tours.get_by_id", func() error {
		return r.coll.FindOne(ctx, byVisibleID(id)).Decode(&t)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return tour.Tour{}, tour.ErrNotFound
		}
		return tour.Tour{}, storeErr("tours.get_by_id", err, "tour_id", id)
	}

	return t, nil
}

// Update applies changes and returns the updated tour. The discount rule is
// enforced against the stored price when only one side changes.
func (r *ToursRepo) Update(ctx context.Context, id string, changes map[string]any) (tour.Tour, error) {
	filter := byVisibleID(id)
	if guard := discountGuard(changes); guard != nil {
		filter = append(filter, guard...)
	}

	set := bson.D{}
	for k, v := range changes {
		set = append(set, bson.E{Key: k, Value: v})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var t tour.Tour
	err := r.prom.ObserveDB("tours.update", func() error {
		return r.coll.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, opts).Decode(&t)
	})
	if err == nil {
		return t, nil
	}

	switch {
	case mongo.IsDuplicateKeyError(err):
		return tour.Tour{}, tour.ErrNameTaken
	case errors.Is(err, mongo.ErrNoDocuments):
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return tour.Tour{}, getErr
		}
		return tour.Tour{}, tour.ErrDiscountTooHigh
	default:
		return tour.Tour{}, storeErr("tours.update", err, "tour_id", id)
	}
}

func (r *ToursRepo) Delete(ctx context.Context, id string) error {
	var res *mongo.DeleteResult

	err := r.prom.ObserveDB("tours.delete", func() error {
		var err error
		res, err = r.coll.DeleteOne(ctx, byVisibleID(id))
		return err
	})
	if err != nil {
		return storeErr("tours.delete", err, "tour_id", id)
	}
	if res.DeletedCount == 0 {
		return tour.ErrNotFound
	}
	return nil
}

// DeleteAll removes every tour, secret ones included.
func (r *ToursRepo) DeleteAll(ctx context.Context) (int64, error) {
	var res *mongo.DeleteResult

	err := r.prom.ObserveDB("tours.delete_all", func() error {
		var err error
		res, err = r.coll.DeleteMany(ctx, bson.D{})
		return err
	})
	if err != nil {
		return 0, storeErr("tours.delete_all", err)
	}
	return res.DeletedCount, nil
}

// Stats groups well-rated tours by difficulty, cheapest average first.
func (r *ToursRepo) Stats(ctx context.Context) ([]tour.DifficultyStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: visibleTours}},
		{{Key: "$match", Value: bson.D{{Key: "ratingsAverage", Value: bson.D{{Key: "$gte", Value: 4.5}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$toUpper", Value: "$difficulty"}}},
			{Key: "numTours", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "numRatings", Value: bson.D{{Key: "$sum", Value: "$ratingsQuantity"}}},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$ratingsAverage"}}},
			{Key: "avgPrice", Value: bson.D{{Key: "$avg", Value: "$price"}}},
			{Key: "minPrice", Value: bson.D{{Key: "$min", Value: "$price"}}},
			{Key: "maxPrice", Value: bson.D{{Key: "$max", Value: "$price"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "avgPrice", Value: 1}}}},
	}

	out := make([]tour.DifficultyStats, 0)
	if err := r.aggregate(ctx, "tours.stats", pipeline, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MonthlyPlan counts tour starts per month of year, busiest month first.
func (r *ToursRepo) MonthlyPlan(ctx context.Context, year int) ([]tour.MonthlyPlan, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: visibleTours}},
		{{Key: "$unwind", Value: "$startDates"}},
		{{Key: "$match", Value: bson.D{{Key: "startDates", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lt", Value: to},
		}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$month", Value: "$startDates"}}},
			{Key: "numTourStarts", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "tours", Value: bson.D{{Key: "$push", Value: "$name"}}},
		}}},
		{{Key: "$addFields", Value: bson.D{{Key: "month", Value: "$_id"}}}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}}}},
		{{Key: "$sort", Value: bson.D{{Key: "numTourStarts", Value: -1}, {Key: "month", Value: 1}}}},
		{{Key: "$limit", Value: 12}},
	}

	out := make([]tour.MonthlyPlan, 0)
	if err := r.aggregate(ctx, "tours.monthly_plan", pipeline, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ToursRepo) aggregate(ctx context.Context, op string, pipeline mongo.Pipeline, out any) error {
	err := r.prom.ObserveDB(op, func() error {
		cur, err := r.coll.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		return cur.All(ctx, out)
	})
	if err != nil {
		return storeErr(op, err)
	}
	return nil
}

func byVisibleID(id string) bson.D {
	return append(bson.D{{Key: "_id", Value: id}}, visibleTours...)
}

// discountGuard keeps priceDiscount < price when an update touches only one of them.
func discountGuard(changes map[string]any) bson.D {
	price, hasPrice := changes["price"]
	discount, hasDiscount := changes["priceDiscount"]

	switch {
	case hasDiscount && !hasPrice:
		return bson.D{{Key: "price", Value: bson.D{{Key: "$gt", Value: discount}}}}
	case hasPrice && !hasDiscount:
		return bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "priceDiscount", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "priceDiscount", Value: bson.D{{Key: "$lt", Value: price}}}},
		}}}
	default:
		return nil
	}
}
