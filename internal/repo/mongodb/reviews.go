package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/geocoder89/tourhub/internal/domain/review"
	"github.com/geocoder89/tourhub/internal/observability"
)

type ReviewsRepo struct {
	*Collection[review.Review]
	coll  *mongo.Collection
	tours *mongo.Collection
	prom  *observability.Prom
}

func NewReviewsRepo(db *mongo.Database, prom *observability.Prom) *ReviewsRepo {
	coll := db.Collection(ReviewsCollection)
	return &ReviewsRepo{
		Collection: NewCollection[review.Review](coll, CollectionOptions{Prom: prom}),
		coll:       coll,
		tours:      db.Collection(ToursCollection),
		prom:       prom,
	}
}

// Create stores rv after checking that its tour exists and is visible.
func (r *ReviewsRepo) Create(ctx context.Context, rv review.Review) (review.Review, error) {
	var n int64
	err := r.prom.ObserveDB("reviews.tour_exists", func() error {
		var err error
		n, err = r.tours.CountDocuments(ctx, byVisibleID(rv.TourID))
		return err
	})
	if err != nil {
		return review.Review{}, storeErr("reviews.tour_exists", err, "tour_id", rv.TourID)
	}
	if n == 0 {
		return review.Review{}, review.ErrTourNotFound
	}

	if rv.ID == "" {
		rv.ID = bson.NewObjectID().Hex()
	}

	err = r.prom.ObserveDB("reviews.create", func() error {
		_, err := r.coll.InsertOne(ctx, rv)
		return err
	})
	if err != nil {
		return review.Review{}, storeErr("reviews.create", err)
	}

	return rv, nil
}
