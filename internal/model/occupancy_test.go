package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveOccupancy(t *testing.T) {
	testCases := []struct {
		name           string
		free, total    int
		expectPercent  float64
		expectSteps    int
		expectStatus   OccupancyStatus
	}{
		{"all free is empty", 10, 10, 0, 0, OccupancyEmpty},
		{"no free is full", 0, 10, 100, 100, OccupancyFull},
		{"mostly booked is high", 2, 10, 80, 80, OccupancyHigh},
		{"half booked is medium", 5, 10, 50, 50, OccupancyMedium},
		{"barely booked is low", 9, 10, 10, 10, OccupancyLow},
		{"boundary 75 percent stays medium", 1, 4, 75, 80, OccupancyMedium},
		{"boundary 25 percent stays low", 3, 4, 25, 30, OccupancyLow},
		{"zero total is unknown", 0, 0, 0, 0, OccupancyUnknown},
		{"full single place", 0, 1, 100, 100, OccupancyFull},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			percent, steps, status := DeriveOccupancy(tc.free, tc.total)
			assert.InDelta(t, tc.expectPercent, percent, 0.01)
			assert.Equal(t, tc.expectSteps, steps)
			assert.Equal(t, tc.expectStatus, status)
		})
	}
}
