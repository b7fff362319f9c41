package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hut-availability-backend/internal/dateparse"
	"hut-availability-backend/internal/model"
)

// availabilityDayResponse is one date's current state for a hut.
type availabilityDayResponse struct {
	Date              string                  `json:"date"`
	Free              int                     `json:"free"`
	Total             int                     `json:"total"`
	OccupancyPercent  float64                 `json:"occupancyPercent"`
	OccupancySteps    int                     `json:"occupancySteps"`
	OccupancyStatus   model.OccupancyStatus   `json:"occupancyStatus"`
	ReservationStatus model.ReservationStatus `json:"reservationStatus"`
	HutType           string                  `json:"hutType,omitempty"`
	Link              string                  `json:"link,omitempty"`
	FirstChecked      time.Time               `json:"firstChecked"`
	LastChecked       time.Time               `json:"lastChecked"`
}

type currentAvailabilityResponse struct {
	Slug      string                    `json:"slug"`
	ID        int64                     `json:"id"`
	Source    string                    `json:"source"`
	SourceID  string                    `json:"sourceId"`
	StartDate string                    `json:"startDate"`
	Days      int                       `json:"days"`
	Data      []availabilityDayResponse `json:"data"`
}

// GetCurrentAvailability handles
// GET /api/huts/:slug/availability/:date?days=N.
func (h *Handler) GetCurrentAvailability(c *gin.Context) {
	hut, start, ok := h.hutAndDate(c)
	if !ok {
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "14"))
	if err != nil || days < 1 || days > 365 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'days' parameter"})
		return
	}

	rows, err := h.store.CurrentForHut(c.Request.Context(), hut.ID, start, start.AddDate(0, 0, days))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve availability"})
		return
	}
	if len(rows) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No availability data for hut '" + hut.Slug + "'"})
		return
	}

	data := make([]availabilityDayResponse, len(rows))
	for i, r := range rows {
		data[i] = availabilityDayResponse{
			Date:              r.AvailabilityDate.Format("2006-01-02"),
			Free:              r.Free,
			Total:             r.Total,
			OccupancyPercent:  r.OccupancyPercent,
			OccupancySteps:    r.OccupancySteps,
			OccupancyStatus:   r.OccupancyStatus,
			ReservationStatus: r.ReservationStatus,
			HutType:           r.HutType,
			Link:              r.Link,
			FirstChecked:      r.FirstChecked,
			LastChecked:       r.LastChecked,
		}
	}

	c.JSON(http.StatusOK, currentAvailabilityResponse{
		Slug:      hut.Slug,
		ID:        hut.ID,
		Source:    rows[0].SourceSlug,
		SourceID:  rows[0].SourceID,
		StartDate: start.Format("2006-01-02"),
		Days:      days,
		Data:      data,
	})
}

// trendEntryResponse is one recorded state interval for a target date.
type trendEntryResponse struct {
	Free              int                     `json:"free"`
	Total             int                     `json:"total"`
	OccupancyPercent  float64                 `json:"occupancyPercent"`
	OccupancyStatus   model.OccupancyStatus   `json:"occupancyStatus"`
	ReservationStatus model.ReservationStatus `json:"reservationStatus"`
	FirstChecked      time.Time               `json:"firstChecked"`
	LastChecked       time.Time               `json:"lastChecked"`
	DurationSeconds   float64                 `json:"durationSeconds"`
}

type availabilityTrendResponse struct {
	Slug        string               `json:"slug"`
	ID          int64                `json:"id"`
	TargetDate  string               `json:"targetDate"`
	PeriodStart time.Time            `json:"periodStart"`
	PeriodEnd   time.Time            `json:"periodEnd"`
	Data        []trendEntryResponse `json:"data"`
}

// GetAvailabilityTrend handles
// GET /api/huts/:slug/availability/:date/trend?limit=N, returning how
// the target date's availability evolved, newest first.
func (h *Handler) GetAvailabilityTrend(c *gin.Context) {
	hut, target, ok := h.hutAndDate(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "7"))
	if err != nil || limit < 1 || limit > 365 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter"})
		return
	}

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -limit)
	rows, err := h.store.TrendForDate(c.Request.Context(), hut.ID, target, since)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve trend data"})
		return
	}
	if len(rows) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No historical data for hut '" + hut.Slug + "'"})
		return
	}

	data := make([]trendEntryResponse, len(rows))
	for i, r := range rows {
		data[i] = trendEntryResponse{
			Free:              r.Free,
			Total:             r.Total,
			OccupancyPercent:  r.OccupancyPercent,
			OccupancyStatus:   r.OccupancyStatus,
			ReservationStatus: r.ReservationStatus,
			FirstChecked:      r.FirstChecked,
			LastChecked:       r.LastChecked,
			DurationSeconds:   r.Duration().Seconds(),
		}
	}

	c.JSON(http.StatusOK, availabilityTrendResponse{
		Slug:        hut.Slug,
		ID:          hut.ID,
		TargetDate:  target.Format("2006-01-02"),
		PeriodStart: since,
		PeriodEnd:   now,
		Data:        data,
	})
}

// hutAndDate resolves the :slug and :date path parameters shared by
// the availability endpoints.
func (h *Handler) hutAndDate(c *gin.Context) (*model.Hut, time.Time, bool) {
	hut, err := h.store.HutBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Hut not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve hut"})
		}
		return nil, time.Time{}, false
	}

	date, err := dateparse.Parse(c.Param("date"), time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, time.Time{}, false
	}
	return hut, date, true
}
