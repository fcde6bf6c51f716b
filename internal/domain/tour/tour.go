package tour

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/tourhub/internal/query"
)

var (
	ErrNotFound  = errors.New("tour not found")
	ErrNameTaken = errors.New("tour name already in use")

	ErrDiscountTooHigh = errors.New("priceDiscount must be less than price")
)

type Difficulty string

const (
	Easy      Difficulty = "easy"
	Medium    Difficulty = "medium"
	Difficult Difficulty = "difficult"
)

func (d Difficulty) Valid() bool {
	switch d {
	case Easy, Medium, Difficult:
		return true
	default:
		return false
	}
}

const (
	DefaultRatingsAverage = 4.5
)

type Tour struct {
	ID              string      `json:"id" bson:"_id"`
	Name            string      `json:"name" bson:"name"`
	Slug            string      `json:"slug" bson:"slug"`
	Duration        int         `json:"duration" bson:"duration"`
	MaxGroupSize    int         `json:"maxGroupSize" bson:"maxGroupSize"`
	Difficulty      Difficulty  `json:"difficulty" bson:"difficulty"`
	RatingsAverage  float64     `json:"ratingsAverage" bson:"ratingsAverage"`
	RatingsQuantity int         `json:"ratingsQuantity" bson:"ratingsQuantity"`
	Price           float64     `json:"price" bson:"price"`
	PriceDiscount   *float64    `json:"priceDiscount,omitempty" bson:"priceDiscount,omitempty"`
	Summary         string      `json:"summary" bson:"summary"`
	Description     string      `json:"description,omitempty" bson:"description,omitempty"`
	ImageCover      string      `json:"imageCover" bson:"imageCover"`
	Images          []string    `json:"images" bson:"images"`
	StartDates      []time.Time `json:"startDates" bson:"startDates"`
	SecretTour      bool        `json:"secretTour" bson:"secretTour"`
	CreatedAt       time.Time   `json:"createdAt" bson:"createdAt"`
}

// DurationWeeks is derived, never stored.
func (t Tour) DurationWeeks() float64 {
	return float64(t.Duration) / 7
}

func (t Tour) MarshalJSON() ([]byte, error) {
	type plain Tour
	return json.Marshal(struct {
		plain
		DurationWeeks float64 `json:"durationWeeks"`
	}{plain(t), t.DurationWeeks()})
}

// QuerySchema types the filterable tour fields for query.Builder.
var QuerySchema = query.Schema{
	"duration":        query.Number,
	"maxGroupSize":    query.Number,
	"ratingsAverage":  query.Number,
	"ratingsQuantity": query.Number,
	"price":           query.Number,
	"priceDiscount":   query.Number,
	"secretTour":      query.Bool,
	"createdAt":       query.Date,
	"startDates":      query.Date,
}

// TopCheapParams is the preset behind /tours/top-5-cheap.
func TopCheapParams() query.Params {
	return query.Params{
		query.ParamLimit:  "5",
		query.ParamSort:   "-ratingsAverage,price",
		query.ParamFields: "name,price,ratingsAverage,summary,difficulty",
	}
}

type CreateTourRequest struct {
	Name            string      `json:"name" binding:"required,min=5,max=255"`
	Duration        int         `json:"duration" binding:"required,min=1"`
	MaxGroupSize    int         `json:"maxGroupSize" binding:"required,min=1"`
	Difficulty      string      `json:"difficulty" binding:"required,oneof=easy medium difficult"`
	RatingsAverage  *float64    `json:"ratingsAverage" binding:"omitempty,min=1,max=5"`
	RatingsQuantity *int        `json:"ratingsQuantity" binding:"omitempty,min=0"`
	Price           float64     `json:"price" binding:"required,gt=0"`
	PriceDiscount   *float64    `json:"priceDiscount" binding:"omitempty,gte=0,ltfield=Price"`
	Summary         string      `json:"summary" binding:"required,max=500"`
	Description     string      `json:"description" binding:"omitempty,max=5000"`
	ImageCover      string      `json:"imageCover" binding:"required"`
	Images          []string    `json:"images" binding:"omitempty,dive,required"`
	StartDates      []time.Time `json:"startDates"`
	SecretTour      bool        `json:"secretTour"`
}

func (r CreateTourRequest) Validate() error {
	if r.PriceDiscount != nil && *r.PriceDiscount >= r.Price {
		return ErrDiscountTooHigh
	}
	return nil
}

// partial update; nil means unchanged
type UpdateTourRequest struct {
	Name            *string      `json:"name" binding:"omitempty,min=5,max=255"`
	Duration        *int         `json:"duration" binding:"omitempty,min=1"`
	MaxGroupSize    *int         `json:"maxGroupSize" binding:"omitempty,min=1"`
	Difficulty      *string      `json:"difficulty" binding:"omitempty,oneof=easy medium difficult"`
	RatingsAverage  *float64     `json:"ratingsAverage" binding:"omitempty,min=1,max=5"`
	RatingsQuantity *int         `json:"ratingsQuantity" binding:"omitempty,min=0"`
	Price           *float64     `json:"price" binding:"omitempty,gt=0"`
	PriceDiscount   *float64     `json:"priceDiscount" binding:"omitempty,gte=0"`
	Summary         *string      `json:"summary" binding:"omitempty,min=1,max=500"`
	Description     *string      `json:"description" binding:"omitempty,max=5000"`
	ImageCover      *string      `json:"imageCover" binding:"omitempty,min=1"`
	Images          []string     `json:"images" binding:"omitempty,dive,required"`
	StartDates      *[]time.Time `json:"startDates"`
	SecretTour      *bool        `json:"secretTour"`
}

// Validate checks the discount against the price when both are supplied;
// the store checks it against the stored price otherwise.
func (r UpdateTourRequest) Validate() error {
	if r.Price != nil && r.PriceDiscount != nil && *r.PriceDiscount >= *r.Price {
		return ErrDiscountTooHigh
	}
	return nil
}

func (r UpdateTourRequest) Empty() bool {
	return len(r.Changes()) == 0
}

// Changes returns the stored field names and values to set.
// A new name also sets a new slug.
func (r UpdateTourRequest) Changes() map[string]any {
	set := map[string]any{}

	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		set["name"] = name
		set["slug"] = Slugify(name)
	}
	if r.Duration != nil {
		set["duration"] = *r.Duration
	}
	if r.MaxGroupSize != nil {
		set["maxGroupSize"] = *r.MaxGroupSize
	}
	if r.Difficulty != nil {
		set["difficulty"] = Difficulty(*r.Difficulty)
	}
	if r.RatingsAverage != nil {
		set["ratingsAverage"] = *r.RatingsAverage
	}
	if r.RatingsQuantity != nil {
		set["ratingsQuantity"] = *r.RatingsQuantity
	}
	if r.Price != nil {
		set["price"] = *r.Price
	}
	if r.PriceDiscount != nil {
		set["priceDiscount"] = *r.PriceDiscount
	}
	if r.Summary != nil {
		set["summary"] = strings.TrimSpace(*r.Summary)
	}
	if r.Description != nil {
		set["description"] = strings.TrimSpace(*r.Description)
	}
	if r.ImageCover != nil {
		set["imageCover"] = *r.ImageCover
	}
	if r.Images != nil {
		set["images"] = r.Images
	}
	if r.StartDates != nil {
		set["startDates"] = *r.StartDates
	}
	if r.SecretTour != nil {
		set["secretTour"] = *r.SecretTour
	}

	return set
}

// DifficultyStats is one row of the tour-stats aggregation.
type DifficultyStats struct {
	Difficulty string  `json:"difficulty" bson:"_id"`
	NumTours   int     `json:"numTours" bson:"numTours"`
	NumRatings int     `json:"numRatings" bson:"numRatings"`
	AvgRating  float64 `json:"avgRating" bson:"avgRating"`
	AvgPrice   float64 `json:"avgPrice" bson:"avgPrice"`
	MinPrice   float64 `json:"minPrice" bson:"minPrice"`
	MaxPrice   float64 `json:"maxPrice" bson:"maxPrice"`
}

// MonthlyPlan is one row of the monthly-plan aggregation.
type MonthlyPlan struct {
	Month         int      `json:"month" bson:"month"`
	NumTourStarts int      `json:"numTourStarts" bson:"numTourStarts"`
	Tours         []string `json:"tours" bson:"tours"`
}
