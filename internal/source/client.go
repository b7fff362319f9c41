package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"hut-availability-backend/config"
	"hut-availability-backend/internal/model"
)

// ErrUnavailable marks failures that indicate the whole source is
// unreachable (connection errors, upstream 5xx), as opposed to a
// problem with one hut. The fetch batcher retries the batch on it.
var ErrUnavailable = errors.New("booking source unavailable")

// Day is one external observation of free/total capacity for a hut on
// a specific date.
type Day struct {
	Date              time.Time
	Free              int
	Total             int
	ReservationStatus model.ReservationStatus
	HutType           string
	Link              string
}

// Client is the capability the tracking engine consumes: fetch
// availability snapshots for one hut over a date range. Transport is
// an implementation detail behind it.
type Client interface {
	FetchAvailability(ctx context.Context, hut model.Hut, start time.Time, days int) ([]Day, error)
}

type restyClient struct {
	http *resty.Client
}

// NewClient builds a source client over the configured booking API.
func NewClient(cfg *config.SourceConfig) Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeaders(cfg.Headers)
	return &restyClient{http: c}
}

// bookingResponse mirrors the booking API's availability payload.
type bookingResponse struct {
	HutID  string       `json:"hutId"`
	Source string       `json:"source"`
	Days   []bookingDay `json:"days"`
}

type bookingDay struct {
	Date              string `json:"date"`
	Free              int    `json:"free"`
	Total             int    `json:"total"`
	ReservationStatus string `json:"reservationStatus"`
	HutType           string `json:"hutType"`
	Link              string `json:"link"`
}

func (c *restyClient) FetchAvailability(ctx context.Context, hut model.Hut, start time.Time, days int) ([]Day, error) {
	if hut.BookingRef == nil || *hut.BookingRef == "" {
		return nil, fmt.Errorf("hut %q has no booking reference", hut.Slug)
	}

	var out bookingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ref", *hut.BookingRef).
		SetQueryParams(map[string]string{
			"start": start.UTC().Format("2006-01-02"),
			"days":  fmt.Sprintf("%d", days),
		}).
		SetResult(&out).
		Get("/api/v1/huts/{ref}/availability")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	if resp.IsError() {
		return nil, fmt.Errorf("booking source returned status %d for hut %q", resp.StatusCode(), hut.Slug)
	}

	result := make([]Day, 0, len(out.Days))
	for _, d := range out.Days {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return nil, fmt.Errorf("malformed date %q for hut %q: %w", d.Date, hut.Slug, err)
		}
		result = append(result, Day{
			Date:              model.Midnight(date),
			Free:              d.Free,
			Total:             d.Total,
			ReservationStatus: parseReservationStatus(d.ReservationStatus),
			HutType:           d.HutType,
			Link:              d.Link,
		})
	}
	return result, nil
}

func parseReservationStatus(s string) model.ReservationStatus {
	switch model.ReservationStatus(s) {
	case model.ReservationPossible, model.ReservationNotPossible, model.ReservationNotOnline:
		return model.ReservationStatus(s)
	default:
		return model.ReservationUnknown
	}
}
