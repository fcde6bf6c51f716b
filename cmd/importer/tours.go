package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/geocoder89/tourhub/internal/domain/tour"
)

// record mirrors tour.CreateTourRequest, except start dates arrive as the
// strings found in the dev data ("2021-04-25,10:00").
type record struct {
	ID              string   `json:"_id"`
	Name            string   `json:"name"`
	Duration        int      `json:"duration"`
	MaxGroupSize    int      `json:"maxGroupSize"`
	Difficulty      string   `json:"difficulty"`
	RatingsAverage  *float64 `json:"ratingsAverage"`
	RatingsQuantity *int     `json:"ratingsQuantity"`
	Price           float64  `json:"price"`
	PriceDiscount   *float64 `json:"priceDiscount"`
	Summary         string   `json:"summary"`
	Description     string   `json:"description"`
	ImageCover      string   `json:"imageCover"`
	Images          []string `json:"images"`
	StartDates      []string `json:"startDates"`
	SecretTour      bool     `json:"secretTour"`
}

var startDateLayouts = []string{time.RFC3339, "2006-01-02,15:04", "2006-01-02"}

func readTours(path string, now time.Time) ([]tour.Tour, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, oops.In("importer").Code("FILE_UNREADABLE").With("file", path).Wrap(err)
	}
	defer f.Close()

	return parseTours(f, now)
}

// parseTours validates every record with the same rules as the create endpoint.
func parseTours(r io.Reader, now time.Time) ([]tour.Tour, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, oops.In("importer").Code("PARSE_FAILED").Wrap(err)
	}

	validate := validator.New()
	validate.SetTagName("binding")

	tours := make([]tour.Tour, 0, len(records))
	for i, rec := range records {
		req, err := rec.toRequest()
		if err != nil {
			return nil, oops.In("importer").Code("PARSE_FAILED").With("index", i, "name", rec.Name).Wrap(err)
		}

		if err := validate.Struct(req); err != nil {
			return nil, oops.In("importer").Code("INVALID_TOUR").With("index", i, "name", rec.Name).Wrap(err)
		}
		if err := req.Validate(); err != nil {
			return nil, oops.In("importer").Code("INVALID_TOUR").With("index", i, "name", rec.Name).Wrap(err)
		}

		t := tour.NewFromCreateRequest(req, now)
		t.ID = rec.ID
		tours = append(tours, t)
	}

	return tours, nil
}

func (rec record) toRequest() (tour.CreateTourRequest, error) {
	dates := make([]time.Time, 0, len(rec.StartDates))
	for _, raw := range rec.StartDates {
		d, err := parseStartDate(raw)
		if err != nil {
			return tour.CreateTourRequest{}, err
		}
		dates = append(dates, d)
	}

	return tour.CreateTourRequest{
		Name:            rec.Name,
		Duration:        rec.Duration,
		MaxGroupSize:    rec.MaxGroupSize,
		Difficulty:      rec.Difficulty,
		RatingsAverage:  rec.RatingsAverage,
		RatingsQuantity: rec.RatingsQuantity,
		Price:           rec.Price,
		PriceDiscount:   rec.PriceDiscount,
		Summary:         rec.Summary,
		Description:     rec.Description,
		ImageCover:      rec.ImageCover,
		Images:          rec.Images,
		StartDates:      dates,
		SecretTour:      rec.SecretTour,
	}, nil
}

func parseStartDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	var lastErr error
	for _, layout := range startDateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
