package tour

import (
	"strings"
	"time"
)

// NewFromCreateRequest applies defaults; the store assigns the ID.
func NewFromCreateRequest(req CreateTourRequest, now time.Time) Tour {
	name := strings.TrimSpace(req.Name)

	t := Tour{
		Name:           name,
		Slug:           Slugify(name),
		Duration:       req.Duration,
		MaxGroupSize:   req.MaxGroupSize,
		Difficulty:     Difficulty(req.Difficulty),
		RatingsAverage: DefaultRatingsAverage,
		Price:          req.Price,
		PriceDiscount:  req.PriceDiscount,
		Summary:        strings.TrimSpace(req.Summary),
		Description:    strings.TrimSpace(req.Description),
		ImageCover:     req.ImageCover,
		Images:         req.Images,
		StartDates:     req.StartDates,
		SecretTour:     req.SecretTour,
		CreatedAt:      now,
	}
	if req.RatingsAverage != nil {
		t.RatingsAverage = *req.RatingsAverage
	}
	if req.RatingsQuantity != nil {
		t.RatingsQuantity = *req.RatingsQuantity
	}
	if t.Images == nil {
		t.Images = []string{}
	}
	if t.StartDates == nil {
		t.StartDates = []time.Time{}
	}

	return t
}
