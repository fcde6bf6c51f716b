package review

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/tourhub/internal/query"
)

var ErrTourNotFound = errors.New("review tour not found")

type Review struct {
	ID        string    `json:"id" bson:"_id"`
	Review    string    `json:"review" bson:"review"`
	Rating    int       `json:"rating" bson:"rating"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	TourID    string    `json:"tour" bson:"tour"`
	UserID    string    `json:"user" bson:"user"`
}

type CreateReviewRequest struct {
	Review string `json:"review" binding:"required,max=2000"`
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
	Tour   string `json:"tour" binding:"required"`
}

func NewFromCreateRequest(req CreateReviewRequest, userID string, now time.Time) Review {
	return Review{
		Review:    strings.TrimSpace(req.Review),
		Rating:    req.Rating,
		CreatedAt: now,
		TourID:    req.Tour,
		UserID:    userID,
	}
}

var QuerySchema = query.Schema{
	"rating":    query.Number,
	"createdAt": query.Date,
}
